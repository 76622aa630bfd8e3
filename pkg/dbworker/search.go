package dbworker

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/smew"
	"github.com/mailest/mailestd/pkg/types"
)

// handleSearch runs an attribute/phrase query and informs the
// requester with one "<id>\t<uri>\n" line per hit (spec.md §4.2,
// §6's outform Lines — the only outform currently defined).
func (w *Worker) handleSearch(t *types.Task) {
	if err := w.ensureRead(); err != nil {
		w.triggerDbError(err)
		return
	}

	ids, err := w.idx.Search(toIndexCond(t.Search))
	if err != nil {
		w.triggerDbError(err)
		return
	}

	sortHits(w.idx, ids, t.Search.Order)
	if t.Search.Max > 0 && len(ids) > t.Search.Max {
		ids = ids[:t.Search.Max]
	}

	var buf strings.Builder
	for _, id := range ids {
		doc, err := w.idx.GetDoc(id)
		if err != nil {
			continue
		}
		buf.WriteString(strconv.FormatUint(id, 10))
		buf.WriteByte('\t')
		buf.WriteString(doc.Attr("@uri"))
		buf.WriteByte('\n')
	}

	w.bus.Publish(&events.Inform{SrcID: t.SrcID, Payload: []byte(buf.String())})
}

// handleSmew reconstructs a message's thread and informs the
// requester with one "<uri>\n" line per surviving document, in
// ancestor-to-descendant order (spec.md §4.6).
func (w *Worker) handleSmew(t *types.Task) {
	if err := w.ensureRead(); err != nil {
		w.triggerDbError(err)
		return
	}

	docs, err := smew.Thread(w.idx, t.SmewMsgID, t.SmewFolderScope)
	if err != nil {
		w.triggerDbError(err)
		return
	}

	var buf strings.Builder
	for _, doc := range docs {
		buf.WriteString(doc.Attr("@uri"))
		buf.WriteByte('\n')
	}

	w.bus.Publish(&events.Inform{SrcID: t.SrcID, Payload: []byte(buf.String())})
}

// toIndexCond parses the control protocol's flat attribute-expression
// list ("name=value" pairs, ANDed) into the engine's query form.
func toIndexCond(cond types.SearchCond) index.SearchCond {
	attrs := make(map[string]string, len(cond.Attrs))
	for _, expr := range cond.Attrs {
		name, value, ok := strings.Cut(expr, "=")
		if !ok {
			continue
		}
		attrs[name] = value
	}
	return index.SearchCond{Attrs: attrs, Phrase: cond.Phrase}
}

// sortHits applies the hit ordering. The control protocol's `order`
// field is HyperEstraier-style and underspecified beyond "a string";
// this implements the one case spec.md's scenarios exercise (reverse
// chronological by @mdate) and otherwise leaves the engine's natural
// ascending-id order, which is deterministic and document-creation
// ordered.
func sortHits(idx interface {
	GetDoc(id uint64) (*index.Doc, error)
}, ids []uint64, order string) {
	if !strings.Contains(order, "mdate") {
		return
	}
	desc := strings.Contains(strings.ToUpper(order), "D")

	mdate := make(map[uint64]time.Time, len(ids))
	for _, id := range ids {
		doc, err := idx.GetDoc(id)
		if err != nil {
			continue
		}
		t, err := index.ParseMDate(doc.Attr("@mdate"))
		if err != nil {
			continue
		}
		mdate[id] = t
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if desc {
			return mdate[ids[i]].After(mdate[ids[j]])
		}
		return mdate[ids[i]].Before(mdate[ids[j]])
	})
}
