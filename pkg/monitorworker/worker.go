package monitorworker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/monitor"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

// GatherStarter is the slice of pkg/dbworker.Worker the monitor worker
// needs: enough to turn a settled folder into a gather without either
// package importing the other's concrete type.
type GatherStarter interface {
	StartGather(srcID uint64, target string, folders []string) uint64
}

// Worker is the monitor worker's reactor handler. It owns the
// fsnotify-backed watcher and forwards every folder it reports as
// settled to the DB worker as an ambient (srcID 0, uninterested
// client) gather.
type Worker struct {
	queue    *task.Queue
	watcher  *monitor.Watcher
	gatherer GatherStarter

	logger zerolog.Logger
}

// Deps bundles the collaborators wired in by the daemon facade.
type Deps struct {
	Queue    *task.Queue
	Watcher  *monitor.Watcher
	Gatherer GatherStarter
}

// New creates a monitor worker over the given collaborators.
func New(d Deps) *Worker {
	return &Worker{
		queue:    d.Queue,
		watcher:  d.Watcher,
		gatherer: d.Gatherer,
		logger:   log.WithComponent("monitor"),
	}
}

// Reactor wraps Handle in a task.Reactor named "monitor", for the
// worker's command-dispatch loop.
func (w *Worker) Reactor() *task.Reactor {
	return task.NewReactor("monitor", w.queue, w.Handle)
}

// Handle dispatches one task. Only Suspend/Resume/Stop and
// MonitorFolder ever reach the monitor worker's queue.
func (w *Worker) Handle(ctx context.Context, t *types.Task) bool {
	switch t.Kind {
	case types.TaskStop:
		w.watcher.Stop()
		return true
	case types.TaskSuspend:
		w.queue.SetSuspended(true)
	case types.TaskResume:
		w.queue.SetSuspended(false)
	case types.TaskMonitorFolder:
		if err := w.watcher.Register(t.Folder); err != nil {
			w.logger.Warn().Err(err).Str("folder", t.Folder).Msg("failed to register folder for watching")
		}
	default:
		w.logger.Warn().Str("kind", t.Kind.String()).Msg("monitor worker received unexpected task kind")
	}
	return false
}

// Run drives the watcher's own fsnotify event loop in the background
// and forwards every folder it reports as settled to the DB worker,
// until ctx is done or the watcher is stopped. This is the "suspends
// at its watch-backend wait" loop spec.md §5 names separately from
// the worker's own task-dispatch suspension point; call it in its own
// goroutine alongside Reactor().Run(ctx).
func (w *Worker) Run(ctx context.Context) {
	go w.watcher.Run(ctx)
	for folder := range w.watcher.Gathers() {
		w.gatherer.StartGather(0, "monitor", []string{folder})
	}
}
