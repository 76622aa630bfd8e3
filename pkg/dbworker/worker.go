package dbworker

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/ids"
	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/metrics"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

// flushThreshold is the write-cache size (put+delete ops since the
// last optimize) above which a quiescence point closes the index
// handle rather than leaving it idly open (spec.md §4.2).
const flushThreshold = 200

// Worker is the DB worker's reactor handler and the exclusive owner
// of the index handle, the catalogue, and the kanban slot pool.
// Grounded on the teacher's worker.Worker shape (pkg/worker/worker.go):
// a struct of owned resources plus a handler method dispatched from a
// reactor loop, generalized from gRPC task polling to the shared
// task.Reactor/task.Queue pair every mailestd worker uses.
type Worker struct {
	queue  *task.Queue
	idx    *index.Engine
	cat    *catalogue.Catalogue
	kanban *task.Kanban
	bus    *events.Bus
	ids    *ids.Counter

	mainQueue    *task.Queue
	monitorQueue *task.Queue

	maildirRoot string
	suffixes    []string
	trimSize    int
	dbSyncBatch int

	logger zerolog.Logger

	mu             sync.Mutex
	gathers        map[uint64]*types.Gather
	gatherPendings []*types.Task
	pendingDraft   []*types.Msg
	syncComplete   bool
	watchedFolders map[string]bool
}

// Deps bundles the collaborators wired in by the daemon facade.
type Deps struct {
	Queue        *task.Queue
	MainQueue    *task.Queue
	MonitorQueue *task.Queue
	Index        *index.Engine
	Catalogue    *catalogue.Catalogue
	Kanban       *task.Kanban
	Bus          *events.Bus
	IDs          *ids.Counter
	MaildirRoot  string
	Suffixes     []string
	TrimSize     int
	DBSyncBatch  int
}

// New creates a DB worker over the given collaborators.
func New(d Deps) *Worker {
	return &Worker{
		queue:          d.Queue,
		idx:            d.Index,
		cat:            d.Catalogue,
		kanban:         d.Kanban,
		bus:            d.Bus,
		ids:            d.IDs,
		mainQueue:      d.MainQueue,
		monitorQueue:   d.MonitorQueue,
		maildirRoot:    d.MaildirRoot,
		suffixes:       d.Suffixes,
		trimSize:       d.TrimSize,
		dbSyncBatch:    d.DBSyncBatch,
		logger:         log.WithComponent("db"),
		gathers:        make(map[uint64]*types.Gather),
		watchedFolders: make(map[string]bool),
	}
}

// Reactor wraps Handle in a task.Reactor named "db".
func (w *Worker) Reactor() *task.Reactor {
	return task.NewReactor("db", w.queue, w.Handle)
}

// Submit enqueues an arbitrary task directly on the DB worker's own
// queue, assigning it an id and deriving its priority from Kind. Used
// by the daemon facade to kick off the initial SyncDb and to submit
// the Search/Smew requests pkg/control's sessions dispatch to it.
func (w *Worker) Submit(t *types.Task) {
	w.submitTask(w.queue, t)
}

// Handle dispatches one task. It is the task.Handler passed to the
// reactor; returns true only for Stop.
func (w *Worker) Handle(ctx context.Context, t *types.Task) bool {
	switch t.Kind {
	case types.TaskStop:
		w.handleStop()
		return true
	case types.TaskSuspend:
		w.queue.SetSuspended(true)
	case types.TaskResume:
		w.queue.SetSuspended(false)
	case types.TaskSyncDB:
		w.handleSyncDB(t)
	case types.TaskGather:
		w.handleGather(t)
	case types.TaskPutDB:
		w.handlePutDB(t)
	case types.TaskDelDB:
		w.handleDelDB(t)
	case types.TaskSearch:
		w.handleSearch(t)
	case types.TaskSmew:
		w.handleSmew(t)
	default:
		w.logger.Warn().Str("kind", t.Kind.String()).Msg("db worker received unexpected task kind")
	}

	w.maybeQuiesce()
	return false
}

func (w *Worker) handleStop() {
	if w.idx.Mode() == index.ModeClosed {
		return
	}
	if err := w.idx.Flush(); err != nil {
		w.logger.Warn().Err(err).Msg("flush on stop failed")
	}
	if err := w.idx.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("close on stop failed")
	}
}

// ensureWrite opens a write handle if one isn't already held.
func (w *Worker) ensureWrite() error {
	if w.idx.Mode() == index.ModeWrite {
		return nil
	}
	return w.idx.OpenWrite()
}

// ensureRead opens a read handle if neither read nor write is held.
func (w *Worker) ensureRead() error {
	switch w.idx.Mode() {
	case index.ModeWrite, index.ModeRead:
		return nil
	default:
		return w.idx.OpenRead()
	}
}

// maybeQuiesce closes the index handle once the queue has no more
// low-priority work queued and the write cache has grown past the
// flush threshold (spec.md §4.2's quiescence-point close).
func (w *Worker) maybeQuiesce() {
	if w.queue.Len() != 0 {
		return
	}
	if w.idx.Mode() == index.ModeClosed {
		return
	}
	if w.idx.OpsSinceOptimize() < flushThreshold {
		return
	}

	if err := w.idx.Flush(); err != nil {
		w.logger.Warn().Err(err).Msg("flush at quiescence point failed")
		return
	}
	if err := w.idx.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("close at quiescence point failed")
	}
}

// submitTask allocates an id, sets the task's queue priority from its
// kind, and submits t to q. Priority is always derived from Kind
// (types.TaskKind.HighPriority) rather than left to each call site, so
// a Gather/Search/Smew/SyncDb task submitted from anywhere in the
// package jumps the per-message Draft/PutDb/DelDb traffic as spec.md
// §4.1 requires.
func (w *Worker) submitTask(q *task.Queue, t *types.Task) {
	if q == nil {
		return
	}
	t.ID = w.ids.Next()
	t.HighPriority = t.Kind.HighPriority()
	q.Submit(t)
}

func (w *Worker) triggerDbError(err error) {
	w.logger.Error().Err(err).Msg("index operation failed, suspending daemon")
	metrics.IndexSuspendedTotal.Inc()

	w.mu.Lock()
	gathers := w.gathers
	w.gathers = make(map[uint64]*types.Gather)
	w.mu.Unlock()

	for _, g := range gathers {
		g.ErrMsg = "Database broken"
		metrics.GathersActive.Dec()
		w.informGather(g)
	}

	w.submitTask(w.queue, &types.Task{Kind: types.TaskSuspend})
	w.submitTask(w.mainQueue, &types.Task{Kind: types.TaskSuspend})
	w.submitTask(w.monitorQueue, &types.Task{Kind: types.TaskSuspend})
}

// informGather publishes a gather's terminal inform. The payload is
// tagged so pkg/control can recover the "new messages" vs "old
// messages" distinction mailestctl reports without needing the full
// Gather record: 'E' + message on failure, 'K' + the completed put
// count + '\t' + the completed delete count on success. Both counts
// travel because the client's report is puts-first: any completed put
// means "new messages", regardless of how many deletes also ran.
func (w *Worker) informGather(g *types.Gather) {
	if g.SrcID == 0 || w.bus == nil {
		return
	}
	var payload []byte
	if g.ErrMsg != "" {
		payload = append([]byte{'E'}, g.ErrMsg...)
	} else {
		payload = append([]byte{'K'}, strconv.FormatUint(g.PutsDone, 10)...)
		payload = append(payload, '\t')
		payload = append(payload, strconv.FormatUint(g.DelsDone, 10)...)
	}
	w.bus.Publish(&events.Inform{SrcID: g.SrcID, Payload: payload})
}

// checkGatherDone publishes the gather's completion inform and frees
// its context once every counter has reached its target (spec.md §4.3
// completion rule).
func (w *Worker) checkGatherDone(gatherID uint64) {
	if gatherID == 0 {
		return
	}

	w.mu.Lock()
	g, ok := w.gathers[gatherID]
	if ok && g.Done() {
		delete(w.gathers, gatherID)
	} else {
		ok = false
	}
	w.mu.Unlock()

	if ok {
		metrics.GathersActive.Dec()
		w.informGather(g)
	}
}

func (w *Worker) gather(gatherID uint64) *types.Gather {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gathers[gatherID]
}
