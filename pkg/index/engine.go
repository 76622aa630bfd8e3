package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/mailest/mailestd/pkg/metrics"
)

// Mode is the engine's current handle state.
type Mode int

const (
	ModeClosed Mode = iota
	ModeRead
	ModeWrite
)

var (
	bucketDocs     = []byte("docs")
	bucketURI      = []byte("uri")
	bucketPostings = []byte("postings")
	bucketMeta     = []byte("meta")
	keyNextID      = []byte("next_id")
)

func attrBucketName(attr string) []byte {
	return []byte("attr:" + attr)
}

// optimizeThreshold is the combined put+delete count (spec.md §4.2: 800)
// after which a close sequence runs an optimize pass before closing.
const optimizeThreshold = 800

// Engine is the single-writer external index, exclusively owned by the
// DB worker (spec.md §5). Open/close transitions are lazy: OpenRead and
// OpenWrite are called by the operation that needs them, and Close is
// called by the DB worker at a quiescence point.
type Engine struct {
	path string

	mu   sync.Mutex
	db   *bolt.DB
	mode Mode

	attrIndexes map[string]bool
	opsSinceOpt int
}

// NewEngine creates an engine for the bbolt file at path. message-id and
// x-mew-parid are ensured as attribute indexes per spec.md §6.
func NewEngine(path string) *Engine {
	return &Engine{
		path: path,
		attrIndexes: map[string]bool{
			"message-id":   true,
			"x-mew-parid":  true,
		},
	}
}

// OpenWrite closes any open read handle, then opens (or reuses) a
// writable handle.
func (e *Engine) OpenWrite() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeWrite {
		return nil
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return fmt.Errorf("close read handle before write: %w", err)
		}
		e.db = nil
	}

	db, err := bolt.Open(e.path, 0600, nil)
	if err != nil {
		return fmt.Errorf("open index for write: %w", err)
	}

	if err := ensureBuckets(db, e.attrIndexes); err != nil {
		db.Close()
		return err
	}

	e.db = db
	e.mode = ModeWrite
	return nil
}

// OpenRead opens a read handle if none is open. Fails if already open
// for read per spec.md §4.2; a write handle already open is sufficient
// for reads, so this is a no-op in that case.
func (e *Engine) OpenRead() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeRead {
		return fmt.Errorf("index already open for read")
	}
	if e.mode == ModeWrite {
		return nil
	}

	existed := fileExists(e.path)
	db, err := bolt.Open(e.path, 0600, &bolt.Options{ReadOnly: existed})
	if err != nil {
		return fmt.Errorf("open index for read: %w", err)
	}

	if !existed {
		if err := ensureBuckets(db, e.attrIndexes); err != nil {
			db.Close()
			return err
		}
	}

	e.db = db
	e.mode = ModeRead
	return nil
}

// Mode reports the engine's current handle state, for a caller deciding
// whether an open call is needed before an operation.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// OpsSinceOptimize returns the put+delete count accumulated since the
// last optimize pass, the quantity the DB worker compares against its
// own flush-threshold policy at a quiescence point (spec.md §4.2).
func (e *Engine) OpsSinceOptimize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opsSinceOpt
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureBuckets(db *bolt.DB, attrIndexes map[string]bool) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketURI, bucketPostings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		for attr := range attrIndexes {
			if _, err := tx.CreateBucketIfNotExists(attrBucketName(attr)); err != nil {
				return fmt.Errorf("create attr index %s: %w", attr, err)
			}
		}
		return nil
	})
}

// Close flushes and closes the current handle. Before closing, if
// combined put+delete operations since the last optimize exceed
// optimizeThreshold, an optimize pass runs first (spec.md §4.2).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		e.mode = ModeClosed
		return nil
	}

	if e.mode == ModeWrite && e.opsSinceOpt > optimizeThreshold {
		if err := e.optimizeLocked(); err != nil {
			return err
		}
	}

	err := e.db.Close()
	e.db = nil
	e.mode = ModeClosed
	return err
}

// PutDoc assigns doc a fresh ID (any ID already set is replaced),
// stores it, and indexes its uri and any configured attribute.
// Requires write mode.
func (e *Engine) PutDoc(doc *Doc) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeWrite {
		return 0, fmt.Errorf("put_doc requires write mode")
	}

	var id uint64
	err := e.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		docs := tx.Bucket(bucketDocs)
		uris := tx.Bucket(bucketURI)

		var err error
		id, err = nextID(meta)
		if err != nil {
			return err
		}
		doc.ID = id

		if err := putIndexedDoc(tx, docs, uris, e.attrIndexes, doc); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.opsSinceOpt++
	metrics.IndexDocsTotal.Inc()
	return id, nil
}

func nextID(meta *bolt.Bucket) (uint64, error) {
	raw := meta.Get(keyNextID)
	var n uint64
	if raw != nil {
		n = binary.BigEndian.Uint64(raw)
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	if err := meta.Put(keyNextID, buf); err != nil {
		return 0, err
	}
	return n, nil
}

func putIndexedDoc(tx *bolt.Tx, docs, uris *bolt.Bucket, attrIndexes map[string]bool, doc *Doc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := docs.Put(idKey(doc.ID), data); err != nil {
		return err
	}
	if uri := doc.Attr("@uri"); uri != "" {
		if err := uris.Put([]byte(uri), idKey(doc.ID)); err != nil {
			return err
		}
	}
	for attr := range attrIndexes {
		val := doc.Attr(attr)
		if val == "" {
			continue
		}
		b, err := tx.CreateBucketIfNotExists(attrBucketName(attr))
		if err != nil {
			return err
		}
		if err := b.Put(attrKey(val, doc.ID), nil); err != nil {
			return err
		}
	}
	return indexText(tx, doc)
}

func indexText(tx *bolt.Tx, doc *Doc) error {
	postings := tx.Bucket(bucketPostings)
	for _, tok := range tokenize(doc.Text) {
		b, err := postings.CreateBucketIfNotExists([]byte(tok))
		if err != nil {
			return err
		}
		if err := b.Put(idKey(doc.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

// OutDoc deletes the document by id, removing its uri and attribute
// index entries. Requires write mode.
func (e *Engine) OutDoc(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeWrite {
		return fmt.Errorf("out_doc requires write mode")
	}

	err := e.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		raw := docs.Get(idKey(id))
		if raw == nil {
			return nil // already absent, deletion is idempotent
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}

		if err := docs.Delete(idKey(id)); err != nil {
			return err
		}
		if uri := doc.Attr("@uri"); uri != "" {
			if err := tx.Bucket(bucketURI).Delete([]byte(uri)); err != nil {
				return err
			}
		}
		for attr := range e.attrIndexes {
			val := doc.Attr(attr)
			if val == "" {
				continue
			}
			if b := tx.Bucket(attrBucketName(attr)); b != nil {
				if err := b.Delete(attrKey(val, id)); err != nil {
					return err
				}
			}
		}
		postings := tx.Bucket(bucketPostings)
		for _, tok := range tokenize(doc.Text) {
			if b := postings.Bucket([]byte(tok)); b != nil {
				_ = b.Delete(idKey(id))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.opsSinceOpt++
	metrics.IndexDocsTotal.Dec()
	return nil
}

// GetDoc fetches a document by id. Requires read or write mode.
func (e *Engine) GetDoc(id uint64) (*Doc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeClosed {
		return nil, fmt.Errorf("get_doc requires an open handle")
	}

	var doc Doc
	err := e.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketDocs).Get(idKey(id))
		if raw == nil {
			return fmt.Errorf("doc %d not found", id)
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// URIToID resolves a stored uri to its document id.
func (e *Engine) URIToID(uri string) (uint64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeClosed {
		return 0, false, fmt.Errorf("uri_to_id requires an open handle")
	}

	var id uint64
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketURI).Get([]byte(uri))
		if raw == nil {
			return nil
		}
		found = true
		id = binary.BigEndian.Uint64(raw)
		return nil
	})
	return id, found, err
}

// AddAttrIndex ensures attr is tracked as an equality-indexed attribute.
// Safe to call on an already-indexed attribute.
func (e *Engine) AddAttrIndex(attr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.attrIndexes[attr] = true
	if e.mode == ModeClosed {
		return nil
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(attrBucketName(attr))
		return err
	})
}

// AttrIndexExprs returns the names of every currently indexed attribute.
func (e *Engine) AttrIndexExprs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.attrIndexes))
	for attr := range e.attrIndexes {
		out = append(out, attr)
	}
	return out
}

// Flush commits any pending writes. bbolt commits each Update
// transaction synchronously, so Flush is a no-op beyond bookkeeping;
// kept as an explicit operation to match the external contract (and as
// a seam for a future write-behind batcher).
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.IndexFlushTotal.Inc()
	return nil
}

// Optimize runs a compaction pass, rewriting the database file to
// reclaim space freed by deletes (spec.md §4.2: "no-purge, no-dbopt").
func (e *Engine) Optimize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optimizeLocked()
}

func (e *Engine) optimizeLocked() error {
	if e.mode == ModeClosed {
		return fmt.Errorf("optimize requires an open handle")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IndexOptimizeDuration)

	tmpPath := e.path + ".compact"
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("open compaction target: %w", err)
	}

	if err := bolt.Compact(dst, e.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("compact index: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close compaction target: %w", err)
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close source before swap: %w", err)
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return fmt.Errorf("swap compacted index into place: %w", err)
	}

	db, err := bolt.Open(e.path, 0600, nil)
	if err != nil {
		return fmt.Errorf("reopen compacted index: %w", err)
	}
	e.db = db
	e.opsSinceOpt = 0
	return nil
}

// UsedCacheSize reports the on-disk size of the index file as a proxy
// for the external engine's cache footprint.
func (e *Engine) UsedCacheSize() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := os.Stat(e.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Iterator walks every document in id order, holding a single read
// transaction open for its lifetime. Grounded on the teacher's
// bucket.Cursor() listing pattern (pkg/storage/boltdb.go), adapted to
// a resumable iter_init/iter_next pair instead of a one-shot ForEach.
type Iterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	started bool
	closed  bool
}

// IterInit opens a cursor over the docs bucket positioned before the
// first entry. Requires read or write mode.
func (e *Engine) IterInit() (*Iterator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeClosed {
		return nil, fmt.Errorf("iter_init requires an open handle")
	}

	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin iterator transaction: %w", err)
	}
	return &Iterator{tx: tx, cursor: tx.Bucket(bucketDocs).Cursor()}, nil
}

// IterInitAfter opens a cursor over the docs bucket positioned to
// resume just after afterID, for a caller that persists its scan
// position across batches (SyncDb's cursor, spec.md §4.2). afterID==0
// behaves like IterInit.
func (e *Engine) IterInitAfter(afterID uint64) (*Iterator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeClosed {
		return nil, fmt.Errorf("iter_init requires an open handle")
	}

	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin iterator transaction: %w", err)
	}

	cursor := tx.Bucket(bucketDocs).Cursor()
	it := &Iterator{tx: tx, cursor: cursor}
	if afterID != 0 {
		cursor.Seek(idKey(afterID))
		it.started = true
	}
	return it, nil
}

// IterNext returns the next document, or (nil, false) once exhausted.
// The caller must call Close when done, whether or not it was drained.
func (it *Iterator) IterNext() (*Doc, bool, error) {
	if it.closed {
		return nil, false, fmt.Errorf("iterator already closed")
	}

	var k, v []byte
	if it.cursor == nil {
		return nil, false, nil
	}
	if it.atStart() {
		k, v = it.cursor.First()
	} else {
		k, v = it.cursor.Next()
	}
	it.started = true
	if k == nil {
		return nil, false, nil
	}

	var doc Doc
	if err := json.Unmarshal(v, &doc); err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}

func (it *Iterator) atStart() bool { return !it.started }

// Close releases the iterator's read transaction.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.tx.Rollback()
}

// SearchCond mirrors the attribute-equality and phrase conditions a
// caller can combine; an empty Attrs map or empty Phrase matches
// everything on that axis, but a condition with neither attributes nor
// phrase tokens matches no document.
type SearchCond struct {
	Attrs  map[string]string
	Phrase string
}

// Search returns the ids of every document matching every given
// attribute equality and containing every token of Phrase, ordered by
// id. Requires read or write mode.
func (e *Engine) Search(cond SearchCond) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeClosed {
		return nil, fmt.Errorf("search requires an open handle")
	}

	var result map[uint64]bool
	err := e.db.View(func(tx *bolt.Tx) error {
		for attr, val := range cond.Attrs {
			b := tx.Bucket(attrBucketName(attr))
			if b == nil {
				result = map[uint64]bool{}
				return nil
			}
			ids := matchingIDs(b, val)
			result = intersect(result, ids)
			if len(result) == 0 {
				return nil
			}
		}

		postings := tx.Bucket(bucketPostings)
		for _, tok := range tokenize(cond.Phrase) {
			ids := map[uint64]bool{}
			if b := postings.Bucket([]byte(tok)); b != nil {
				b.ForEach(func(k, _ []byte) error {
					ids[binary.BigEndian.Uint64(k)] = true
					return nil
				})
			}
			result = intersect(result, ids)
			if len(result) == 0 {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]uint64, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func matchingIDs(b *bolt.Bucket, value string) map[uint64]bool {
	ids := map[uint64]bool{}
	prefix := append([]byte(value), 0)
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		ids[binary.BigEndian.Uint64(k[len(prefix):])] = true
	}
	return ids
}

// intersect returns a fresh result when base is nil (first condition
// applied), otherwise the intersection of base and ids.
func intersect(base, ids map[uint64]bool) map[uint64]bool {
	if base == nil {
		return ids
	}
	out := map[uint64]bool{}
	for id := range base {
		if ids[id] {
			out[id] = true
		}
	}
	return out
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func attrKey(value string, id uint64) []byte {
	b := make([]byte, 0, len(value)+1+8)
	b = append(b, value...)
	b = append(b, 0)
	b = append(b, idKey(id)...)
	return b
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
