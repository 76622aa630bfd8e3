package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/config"
	"github.com/mailest/mailestd/pkg/control"
	"github.com/mailest/mailestd/pkg/dbworker"
	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/gather"
	"github.com/mailest/mailestd/pkg/ids"
	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/mainworker"
	"github.com/mailest/mailestd/pkg/monitor"
	"github.com/mailest/mailestd/pkg/monitorworker"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

// Daemon owns every long-lived collaborator and wires the three
// workers, the control socket, and the monitor watcher over them.
// Workers hold a plain pointer to the collaborators they need,
// captured once here at construction; nothing in this package or the
// workers it wires ever needs to reach back through a Daemon pointer.
type Daemon struct {
	cfg *config.Config

	cat *catalogue.Catalogue
	idx *index.Engine
	bus *events.Bus
	ids *ids.Counter

	mainQueue    *task.Queue
	dbQueue      *task.Queue
	monitorQueue *task.Queue
	kanban       *task.Kanban

	watcher *monitor.Watcher

	db      *dbworker.Worker
	main    *mainworker.Worker
	monitor *monitorworker.Worker

	ctl *control.Server

	logger zerolog.Logger
}

// New wires every collaborator described by cfg. The control socket
// is bound before Run is ever called, so a second instance pointed at
// the same maildir fails fast on construction rather than silently
// stealing the first instance's connections later.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:          cfg,
		cat:          catalogue.New(),
		idx:          index.NewEngine(cfg.IndexPath),
		bus:          events.NewBus(),
		ids:          &ids.Counter{},
		mainQueue:    task.NewQueue(),
		dbQueue:      task.NewQueue(),
		monitorQueue: task.NewQueue(),
		kanban:       task.NewKanban(cfg.Tasks),
		logger:       log.WithComponent("daemon"),
	}

	watcher, err := monitor.New(cfg.MaildirRoot, cfg.MonitorDelay, cfg.IncludeFolder)
	if err != nil {
		return nil, fmt.Errorf("start folder watcher: %w", err)
	}
	d.watcher = watcher

	d.db = dbworker.New(dbworker.Deps{
		Queue:        d.dbQueue,
		MainQueue:    d.mainQueue,
		MonitorQueue: d.monitorQueue,
		Index:        d.idx,
		Catalogue:    d.cat,
		Kanban:       d.kanban,
		Bus:          d.bus,
		IDs:          d.ids,
		MaildirRoot:  cfg.MaildirRoot,
		Suffixes:     cfg.Suffixes,
		TrimSize:     cfg.TrimSize,
		DBSyncBatch:  cfg.DBSyncBatch,
	})

	d.main = mainworker.New(mainworker.Deps{
		Queue:    d.mainQueue,
		DBQueue:  d.dbQueue,
		IDs:      d.ids,
		TrimSize: cfg.TrimSize,
	})

	d.monitor = monitorworker.New(monitorworker.Deps{
		Queue:    d.monitorQueue,
		Watcher:  watcher,
		Gatherer: d.db,
	})

	ctl, err := control.Listen(cfg.SocketPath, d)
	if err != nil {
		return nil, fmt.Errorf("start control socket: %w", err)
	}
	d.ctl = ctl

	return d, nil
}

// Run starts every worker's reactor, the monitor's watch loop, and
// the control socket's accept loop, then blocks until ctx is done or
// every worker reactor has exited after handling a Stop task (broadcast
// by Dispatcher.Stop, issued over the control socket). Either way it
// waits for every goroutine it started, then closes the index.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.db.Submit(&types.Task{Kind: types.TaskSyncDB})

	var wg sync.WaitGroup
	runReactor := func(r *task.Reactor) {
		defer wg.Done()
		r.Run(ctx)
	}

	reactors := []*task.Reactor{d.db.Reactor(), d.main.Reactor(), d.monitor.Reactor()}
	wg.Add(len(reactors))
	for _, r := range reactors {
		go runReactor(r)
	}

	// Once every reactor has exited after a Stop, cancel ctx so the
	// monitor loop and the accept loop below wind down as well.
	go func() {
		for _, r := range reactors {
			<-r.Done()
		}
		cancel()
	}()

	if d.cfg.Monitor {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.monitor.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.ctl.Serve(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	return d.idx.Close()
}

// Update implements control.Dispatcher: front-end-expands folder
// (spec.md §4.3 steps 1-3) and starts a gather over the result.
func (d *Daemon) Update(folder string) (uint64, events.Subscriber, error) {
	folders, err := gather.ExpandFolders(d.cfg.MaildirRoot, folder, d.cat, d.cfg.IncludeFolder)
	if err != nil {
		return 0, nil, err
	}

	srcID := d.ids.Next()
	sub := d.bus.Subscribe(srcID)
	d.db.StartGather(srcID, folder, folders)
	return srcID, sub, nil
}

// Search implements control.Dispatcher.
func (d *Daemon) Search(cond types.SearchCond) (uint64, events.Subscriber) {
	srcID := d.ids.Next()
	sub := d.bus.Subscribe(srcID)
	d.db.Submit(&types.Task{Kind: types.TaskSearch, SrcID: srcID, Search: cond})
	return srcID, sub
}

// Smew implements control.Dispatcher.
func (d *Daemon) Smew(msgid, folderScope string) (uint64, events.Subscriber) {
	srcID := d.ids.Next()
	sub := d.bus.Subscribe(srcID)
	d.db.Submit(&types.Task{
		Kind:            types.TaskSmew,
		SrcID:           srcID,
		SmewMsgID:       msgid,
		SmewFolderScope: folderScope,
	})
	return srcID, sub
}

// Unsubscribe implements control.Dispatcher.
func (d *Daemon) Unsubscribe(srcID uint64) {
	d.bus.Unsubscribe(srcID)
}

// Suspend implements control.Dispatcher: broadcast to every worker.
func (d *Daemon) Suspend() { d.broadcast(types.TaskSuspend) }

// Resume implements control.Dispatcher: broadcast to every worker.
func (d *Daemon) Resume() { d.broadcast(types.TaskResume) }

// Stop implements control.Dispatcher: broadcast to every worker; once
// each has handled it, drained its queue and exited, Run returns.
func (d *Daemon) Stop() { d.broadcast(types.TaskStop) }

// SetDebug implements control.Dispatcher.
func (d *Daemon) SetDebug(on bool) { log.SetLevel(on) }

func (d *Daemon) broadcast(kind types.TaskKind) {
	for _, q := range []*task.Queue{d.mainQueue, d.dbQueue, d.monitorQueue} {
		q.Submit(&types.Task{ID: d.ids.Next(), Kind: kind, HighPriority: kind.HighPriority()})
	}
}
