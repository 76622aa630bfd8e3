package dbworker

import (
	"time"

	"github.com/mailest/mailestd/pkg/gather"
	"github.com/mailest/mailestd/pkg/metrics"
	"github.com/mailest/mailestd/pkg/types"
)

// StartGather registers a new gather context for folders (already
// front-end-expanded by the caller via pkg/gather.ExpandFolders, per
// spec.md §4.3 steps 1-3) and enqueues one Gather task per folder. The
// inform carrying the eventual completion or error is routed back to
// srcID. Returns the new gather's id.
func (w *Worker) StartGather(srcID uint64, target string, folders []string) uint64 {
	id := w.ids.Next()
	g := &types.Gather{ID: id, Target: target, SrcID: srcID, Folders: uint64(len(folders))}

	w.mu.Lock()
	w.gathers[id] = g
	w.mu.Unlock()
	metrics.GathersActive.Inc()

	if len(folders) == 0 {
		w.checkGatherDone(id)
		return id
	}

	for _, folder := range folders {
		w.submitTask(w.queue, &types.Task{Kind: types.TaskGather, Folder: folder, GatherID: id})
	}
	return id
}

// handleGather runs one gather task: a folder-subtree walk reconciled
// against the catalogue (spec.md §4.3). Deferred until the initial
// SyncDb has completed, per gather_pendings.
func (w *Worker) handleGather(t *types.Task) {
	w.mu.Lock()
	if !w.syncComplete {
		w.gatherPendings = append(w.gatherPendings, t)
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	timer := metrics.NewTimer()
	result, err := gather.Walk(w.cat, t.Folder, w.suffixes, time.Now())
	if err != nil {
		w.logger.Warn().Err(err).Str("folder", t.Folder).Msg("gather walk failed")
		w.finishFolder(t.GatherID, timer)
		return
	}

	// Counted against the actually-scheduled subset, not len(result.*):
	// a path skipped below (already on task, or its catalogue entry
	// vanished) never produces a matching PutDb/DelDb completion, so
	// counting it here would leave the gather's done-counters short
	// forever and the gather would never complete.
	var puts, dels int

	for _, path := range result.Puts {
		msg := w.cat.Get(path)
		if msg == nil || msg.OnTask {
			continue
		}
		msg.GatherID = t.GatherID
		w.scheduleDraft(msg)
		puts++
	}

	for _, path := range result.Dels {
		msg := w.cat.Get(path)
		if msg == nil || msg.OnTask {
			continue
		}
		msg.GatherID = t.GatherID
		w.submitTask(w.queue, &types.Task{Kind: types.TaskDelDB, Msg: msg})
		dels++
	}

	if g := w.gather(t.GatherID); g != nil {
		g.Puts += uint64(puts)
		g.Dels += uint64(dels)
	}

	w.registerWatchesForDirs(result.Dirs)
	metrics.GatherPutsTotal.Add(float64(puts))
	metrics.GatherDelsTotal.Add(float64(dels))

	w.finishFolder(t.GatherID, timer)
}

func (w *Worker) finishFolder(gatherID uint64, timer *metrics.Timer) {
	if g := w.gather(gatherID); g != nil {
		w.mu.Lock()
		g.FoldersDone++
		w.mu.Unlock()
	}
	timer.ObserveDuration(metrics.GatherDuration)
	w.checkGatherDone(gatherID)
}

// scheduleDraft takes a kanban slot for msg and, if one is free, hands
// a Draft task to the main worker. A message that cannot acquire a
// slot is parked by the kanban itself and dispatched later by
// maybeDispatchPendingDrafts. msg already on task is left untouched:
// a second task against it would leak or corrupt its kanban slot.
func (w *Worker) scheduleDraft(msg *types.Msg) {
	if msg.OnTask {
		return
	}
	slot, ok := w.kanban.Acquire(msg)
	metrics.KanbanInUse.Set(float64(w.kanban.InUse()))
	metrics.KanbanPending.Set(float64(w.kanban.Pending()))
	if !ok {
		return
	}
	msg.KanbanSlot = slot
	msg.OnTask = true
	w.submitTask(w.mainQueue, &types.Task{Kind: types.TaskDraft, Msg: msg})
}

func (w *Worker) registerWatchesForDirs(dirs []string) {
	for _, dir := range dirs {
		w.mu.Lock()
		already := w.watchedFolders[dir]
		if !already {
			w.watchedFolders[dir] = true
		}
		w.mu.Unlock()

		if !already {
			w.submitTask(w.monitorQueue, &types.Task{Kind: types.TaskMonitorFolder, Folder: dir})
		}
	}
}

// maybeDispatchPendingDrafts implements the rescheduling hysteresis
// rule (spec.md §4.1): drafts rescheduled off a freed kanban slot are
// batched and only handed to the main worker once in-flight work has
// dropped below half the kanban's capacity, or the queue is idle, so
// index flushes amortize across a batch instead of firing on every
// single PutDb completion.
func (w *Worker) maybeDispatchPendingDrafts() {
	w.mu.Lock()
	idle := w.queue.Len() == 0
	shouldFlush := idle || w.kanban.InUse() < w.kanban.Max()/2
	var batch []*types.Msg
	if shouldFlush {
		batch = w.pendingDraft
		w.pendingDraft = nil
	}
	w.mu.Unlock()

	for _, msg := range batch {
		w.submitTask(w.mainQueue, &types.Task{Kind: types.TaskDraft, Msg: msg})
	}
}
