package mainworker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/ids"
	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

// Worker is the main/parse worker's reactor handler: it owns nothing
// but the queue it drains, forwarding every parsed (or failed) draft
// to the DB worker's queue. Grounded on pkg/dbworker.Worker's
// struct-of-collaborators-plus-dispatch shape, generalized to the
// draft pipeline's single task kind.
type Worker struct {
	queue   *task.Queue
	dbQueue *task.Queue
	ids     *ids.Counter

	trimSize int

	logger zerolog.Logger
}

// Deps bundles the collaborators wired in by the daemon facade.
type Deps struct {
	Queue    *task.Queue
	DBQueue  *task.Queue
	IDs      *ids.Counter
	TrimSize int
}

// New creates a main worker over the given collaborators.
func New(d Deps) *Worker {
	return &Worker{
		queue:    d.Queue,
		dbQueue:  d.DBQueue,
		ids:      d.IDs,
		trimSize: d.TrimSize,
		logger:   log.WithComponent("main"),
	}
}

// Reactor wraps Handle in a task.Reactor named "main".
func (w *Worker) Reactor() *task.Reactor {
	return task.NewReactor("main", w.queue, w.Handle)
}

// Handle dispatches one task. Only Rfc822Draft and Suspend/Resume/Stop
// ever reach the main worker's own queue; everything else is a control
// command the daemon facade routes straight to pkg/dbworker.
func (w *Worker) Handle(ctx context.Context, t *types.Task) bool {
	switch t.Kind {
	case types.TaskStop:
		return true
	case types.TaskSuspend:
		w.queue.SetSuspended(true)
	case types.TaskResume:
		w.queue.SetSuspended(false)
	case types.TaskDraft:
		w.handleDraft(t)
	default:
		w.logger.Warn().Str("kind", t.Kind.String()).Msg("main worker received unexpected task kind")
	}
	return false
}

// handleDraft parses msg's file, synthesizes its catalogue-derived
// attributes, and rewrites t in place into a Rfc822PutDb task bound
// for the DB worker's queue (spec.md §4.4). A parse failure still
// forwards the task with msg.Draft left nil, so the DB worker's slot
// accounting (kanban release, gather counters) stays consistent even
// though nothing gets written to the index.
func (w *Worker) handleDraft(t *types.Task) {
	msg := t.Msg
	if msg == nil {
		return
	}

	draft, err := w.parseFile(msg)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", msg.Path).Msg("parse failed, skipping index write")
		msg.Draft = nil
	} else {
		msg.Draft = draft
	}

	t.Kind = types.TaskPutDB
	w.submit(w.dbQueue, t)
}

func (w *Worker) submit(q *task.Queue, t *types.Task) {
	if q == nil {
		return
	}
	t.ID = w.ids.Next()
	t.HighPriority = t.Kind.HighPriority()
	q.Submit(t)
}
