package dbworker

import (
	"strconv"
	"strings"

	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/metrics"
	"github.com/mailest/mailestd/pkg/types"
)

const uriFilePrefix = "file://"

// handleSyncDB reconciles the catalogue from the index's own document
// set, resuming from the cursor carried on t.SyncCursor (an index id
// in decimal, re-purposing the spec's URI cursor: ids are already
// assigned in iteration order, so a numeric cursor is equivalent and
// avoids a second URI->id lookup per resumption). After dbSyncBatch
// documents it saves the cursor and re-enqueues itself with high
// priority, yielding the DB worker to other queued work (spec.md §4.2).
func (w *Worker) handleSyncDB(t *types.Task) {
	if err := w.ensureRead(); err != nil {
		w.triggerDbError(err)
		return
	}

	after := parseCursor(t.SyncCursor)
	it, err := w.idx.IterInitAfter(after)
	if err != nil {
		w.triggerDbError(err)
		return
	}
	defer it.Close()

	seen := 0
	lastID := after
	for seen < w.dbSyncBatch {
		doc, ok, err := it.IterNext()
		if err != nil {
			w.triggerDbError(err)
			return
		}
		if !ok {
			w.finishSync()
			return
		}

		w.mergeDocIntoCatalogue(doc)
		lastID = doc.ID
		seen++
	}

	// Batch limit reached with more documents left: save the cursor and
	// re-enqueue at high priority so SyncDb doesn't starve other tasks.
	w.submitTask(w.queue, &types.Task{
		Kind:       types.TaskSyncDB,
		SyncCursor: formatCursor(lastID),
	})
}

// mergeDocIntoCatalogue implements the "first-seen wins" Open Question
// resolution (spec.md §9): a catalogue entry already bound to an index
// id (msg.IndexID != 0) keeps its own (mtime, size), while an entry not
// yet bound (db_id == 0, whether absent from the catalogue or present
// with IndexID 0) takes its index id, mtime and size from the stored
// document.
func (w *Worker) mergeDocIntoCatalogue(doc *index.Doc) {
	uri := doc.Attr("@uri")
	path := strings.TrimPrefix(uri, uriFilePrefix)
	if path == "" {
		return
	}

	msg := w.cat.Get(path)
	if msg == nil {
		msg = &types.Msg{Path: path}
		if mdate, err := index.ParseMDate(doc.Attr("@mdate")); err == nil {
			msg.MTime = mdate
		}
		msg.Size = parseSize(doc.Attr("@size"))
		msg.IndexID = doc.ID
		w.cat.Put(msg)
		return
	}

	if msg.IndexID == 0 {
		msg.IndexID = doc.ID
		if mdate, err := index.ParseMDate(doc.Attr("@mdate")); err == nil {
			msg.MTime = mdate
		}
		msg.Size = parseSize(doc.Attr("@size"))
	}
}

func (w *Worker) finishSync() {
	w.mu.Lock()
	w.syncComplete = true
	pendings := w.gatherPendings
	w.gatherPendings = nil
	w.mu.Unlock()

	w.registerDiscoveredFolders()

	for _, t := range pendings {
		w.drainPendingGather(t)
	}
}

// drainPendingGather resolves a gather that arrived before the initial
// SyncDb finished, and so was deferred without ever walking its
// folder. It never existed on disk as far as this run has observed,
// so there is nothing to compare against a fresh walk: every
// catalogue entry under the folder that sync didn't confirm present
// (FSTime still zero) is stale and gets a deletion pass, skipping any
// still on task (spec.md §4.2).
func (w *Worker) drainPendingGather(t *types.Task) {
	timer := metrics.NewTimer()

	prefix := t.Folder
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var dels []*types.Msg
	w.cat.RangePrefix(prefix, func(msg *types.Msg) bool {
		if msg.FSTime.IsZero() && !msg.OnTask {
			dels = append(dels, msg)
		}
		return true
	})

	if g := w.gather(t.GatherID); g != nil {
		g.Dels += uint64(len(dels))
	}

	for _, msg := range dels {
		msg.GatherID = t.GatherID
		w.submitTask(w.queue, &types.Task{Kind: types.TaskDelDB, Msg: msg})
	}

	w.finishFolder(t.GatherID, timer)
}

// registerDiscoveredFolders enqueues a watch registration for every
// distinct folder the catalogue now knows about, so the monitor worker
// can pick up live changes once the initial sync has caught up.
func (w *Worker) registerDiscoveredFolders() {
	seen := make(map[string]bool)
	w.cat.All(func(msg *types.Msg) bool {
		dir := parentDir(msg.Path)
		if dir == "" || seen[dir] {
			return true
		}
		seen[dir] = true

		w.mu.Lock()
		already := w.watchedFolders[dir]
		if !already {
			w.watchedFolders[dir] = true
		}
		w.mu.Unlock()

		if !already {
			w.submitTask(w.monitorQueue, &types.Task{Kind: types.TaskMonitorFolder, Folder: dir})
		}
		return true
	})
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}

func parseCursor(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

func formatCursor(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseSize(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
