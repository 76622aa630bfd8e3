package dbworker

import (
	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/metrics"
	"github.com/mailest/mailestd/pkg/types"
)

// handlePutDB writes a parsed draft to the index and returns its
// kanban slot. If parsing failed upstream (msg.Draft == nil), no
// index write happens and only the slot accounting runs, keeping the
// kanban invariant intact (spec.md §4.4).
func (w *Worker) handlePutDB(t *types.Task) {
	msg := t.Msg
	if msg == nil {
		return
	}

	if msg.Draft != nil {
		if err := w.ensureWrite(); err != nil {
			w.triggerDbError(err)
			return
		}

		doc := &index.Doc{Attrs: msg.Draft.Attrs(), Text: msg.Draft.Text()}
		id, err := w.idx.PutDoc(doc)
		if err != nil {
			w.releaseSlot(msg)
			w.triggerDbError(err)
			return
		}
		msg.IndexID = id
		msg.Draft = nil
	}

	msg.OnTask = false
	w.releaseSlot(msg)
	w.notifyGatherPut(msg.GatherID)
	w.maybeDispatchPendingDrafts()
}

// handleDelDB removes a message's document from the index (if it had
// one) and frees its catalogue record.
func (w *Worker) handleDelDB(t *types.Task) {
	msg := t.Msg
	if msg == nil {
		return
	}

	if msg.IndexID != 0 {
		if err := w.ensureWrite(); err != nil {
			w.triggerDbError(err)
			return
		}
		if err := w.idx.OutDoc(msg.IndexID); err != nil {
			w.triggerDbError(err)
			return
		}
	}

	w.cat.Delete(msg.Path)
	w.notifyGatherDel(msg.GatherID)
	w.maybeDispatchPendingDrafts()
}

// releaseSlot returns msg's kanban slot to the pool. If a parked
// message was immediately reassigned the slot, it is queued for the
// next pending-draft dispatch rather than submitted inline (spec.md
// §4.1 rescheduling hysteresis).
func (w *Worker) releaseSlot(msg *types.Msg) {
	rescheduled, reused := w.kanban.Release(msg.KanbanSlot)
	metrics.KanbanInUse.Set(float64(w.kanban.InUse()))
	metrics.KanbanPending.Set(float64(w.kanban.Pending()))
	if !reused || rescheduled == nil {
		return
	}

	rescheduled.KanbanSlot = msg.KanbanSlot
	rescheduled.OnTask = true
	w.mu.Lock()
	w.pendingDraft = append(w.pendingDraft, rescheduled)
	w.mu.Unlock()
}

func (w *Worker) notifyGatherPut(gatherID uint64) {
	if g := w.gather(gatherID); g != nil {
		w.mu.Lock()
		g.PutsDone++
		w.mu.Unlock()
	}
	w.checkGatherDone(gatherID)
}

func (w *Worker) notifyGatherDel(gatherID uint64) {
	if g := w.gather(gatherID); g != nil {
		w.mu.Lock()
		g.DelsDone++
		w.mu.Unlock()
	}
	w.checkGatherDone(gatherID)
}
