package dbworker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/catalogue"
	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/ids"
	"github.com/mailest/mailestd/pkg/index"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

func newTestWorker(t *testing.T) (*Worker, *events.Bus) {
	t.Helper()

	idx := index.NewEngine(filepath.Join(t.TempDir(), "index.db"))
	t.Cleanup(func() { idx.Close() })

	bus := events.NewBus()
	w := New(Deps{
		Queue:        task.NewQueue(),
		MainQueue:    task.NewQueue(),
		MonitorQueue: task.NewQueue(),
		Index:        idx,
		Catalogue:    catalogue.New(),
		Kanban:       task.NewKanban(4),
		Bus:          bus,
		IDs:          &ids.Counter{},
		MaildirRoot:  t.TempDir(),
		Suffixes:     []string{".mew"},
		TrimSize:     131072,
		DBSyncBatch:  4000,
	})
	// a fresh worker behaves as though SyncDb has already run, so tests
	// that only exercise Gather/PutDb/DelDb don't need to drive SyncDb first.
	w.syncComplete = true
	return w, bus
}

func draftMsg(path string, attrs map[string]string) *types.Msg {
	d := types.NewDraft()
	for k, v := range attrs {
		d.AddAttr(k, v)
	}
	return &types.Msg{Path: path, Draft: d}
}

func TestHandlePutDBWritesDocAndReleasesSlot(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	msg := draftMsg("/mail/inbox/1.mew", map[string]string{"@uri": "/mail/inbox/1.mew"})
	slot, ok := w.kanban.Acquire(msg)
	require.True(t, ok)
	msg.KanbanSlot = slot
	msg.OnTask = true

	stop := w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: msg})
	assert.False(t, stop)

	assert.NotZero(t, msg.IndexID)
	assert.Nil(t, msg.Draft)
	assert.False(t, msg.OnTask)
	assert.Equal(t, 0, w.kanban.InUse())

	doc, err := w.idx.GetDoc(msg.IndexID)
	require.NoError(t, err)
	assert.Equal(t, "/mail/inbox/1.mew", doc.Attr("@uri"))
}

func TestHandlePutDBWithNilDraftOnlyReleasesSlot(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	msg := &types.Msg{Path: "/mail/inbox/2.mew"}
	slot, ok := w.kanban.Acquire(msg)
	require.True(t, ok)
	msg.KanbanSlot = slot
	msg.OnTask = true

	w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: msg})

	assert.Zero(t, msg.IndexID)
	assert.False(t, msg.OnTask)
	assert.Equal(t, 0, w.kanban.InUse())
}

func TestHandleDelDBRemovesDocAndCatalogueEntry(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	msg := draftMsg("/mail/inbox/3.mew", map[string]string{"@uri": "/mail/inbox/3.mew"})
	slot, _ := w.kanban.Acquire(msg)
	msg.KanbanSlot = slot
	w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: msg})
	w.cat.Put(msg)
	require.NotZero(t, msg.IndexID)

	w.Handle(ctx, &types.Task{Kind: types.TaskDelDB, Msg: msg})

	assert.Nil(t, w.cat.Get("/mail/inbox/3.mew"))
	_, err := w.idx.GetDoc(msg.IndexID)
	assert.Error(t, err)
}

func TestSlotReleaseDispatchesParkedMessageAsPendingDraft(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	// kanban has 4 slots: fill them, then park a 5th message.
	var inFlight []*types.Msg
	for i := 0; i < 4; i++ {
		msg := draftMsg("/mail/inbox/filler.mew", map[string]string{"@uri": "/mail/inbox/filler.mew"})
		slot, ok := w.kanban.Acquire(msg)
		require.True(t, ok)
		msg.KanbanSlot = slot
		inFlight = append(inFlight, msg)
	}
	parked := draftMsg("/mail/inbox/parked.mew", map[string]string{"@uri": "/mail/inbox/parked.mew"})
	_, ok := w.kanban.Acquire(parked)
	assert.False(t, ok)
	assert.Equal(t, 1, w.kanban.Pending())

	// keep the DB queue busy so the hysteresis holds the batch back
	// instead of flushing it to the main worker on an idle queue.
	w.submitTask(w.queue, &types.Task{Kind: types.TaskSearch})

	w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: inFlight[0]})

	assert.Equal(t, 0, w.kanban.Pending())
	assert.True(t, parked.OnTask)
	w.mu.Lock()
	assert.Len(t, w.pendingDraft, 1)
	assert.Same(t, parked, w.pendingDraft[0])
	w.mu.Unlock()
}

func TestMaybeDispatchPendingDraftsFlushesWhenQueueIdle(t *testing.T) {
	w, _ := newTestWorker(t)

	parked := &types.Msg{Path: "/mail/inbox/parked.mew"}
	w.pendingDraft = []*types.Msg{parked}

	w.maybeDispatchPendingDrafts()

	assert.Empty(t, w.pendingDraft)
	task, ok := w.mainQueue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskDraft, task.Kind)
	assert.Same(t, parked, task.Msg)
}

func TestMaybeDispatchPendingDraftsHoldsBackAboveHalfCapacity(t *testing.T) {
	w, _ := newTestWorker(t) // kanban max 4, half = 2

	for i := 0; i < 3; i++ {
		msg := &types.Msg{Path: "/mail/inbox/busy.mew"}
		w.kanban.Acquire(msg)
	}
	w.pendingDraft = []*types.Msg{{Path: "/mail/inbox/parked.mew"}}
	w.submitTask(w.queue, &types.Task{Kind: types.TaskSearch})

	w.maybeDispatchPendingDrafts()

	assert.Len(t, w.pendingDraft, 1)
	_, ok := w.mainQueue.Pop()
	assert.False(t, ok)
}

func TestStartGatherWithNoFoldersCompletesImmediately(t *testing.T) {
	w, bus := newTestWorker(t)
	sub := bus.Subscribe(42)

	id := w.StartGather(42, "update", nil)
	assert.NotZero(t, id)

	inform := <-sub
	assert.Equal(t, "K0\t0", string(inform.Payload))
}

func TestGatherWalksFolderPutsAndDels(t *testing.T) {
	w, bus := newTestWorker(t)
	ctx := context.Background()
	sub := bus.Subscribe(7)

	root := w.maildirRoot
	folder := filepath.Join(root, "inbox")
	require.NoError(t, writeFile(filepath.Join(folder, "1.mew"), "From: a@example.com\r\n\r\nbody"))

	id := w.StartGather(7, "update", []string{folder})
	require.NotZero(t, id)

	task, ok := w.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskGather, task.Kind)

	w.Handle(ctx, task)

	draftTask, ok := w.mainQueue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskDraft, draftTask.Kind)
	assert.Equal(t, filepath.Join(folder, "1.mew"), draftTask.Msg.Path)

	// simulate the main worker parsing the draft and handing it back as a put.
	draftTask.Msg.Draft = types.NewDraft()
	draftTask.Msg.Draft.AddAttr("@uri", draftTask.Msg.Path)
	w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: draftTask.Msg})

	inform := <-sub
	assert.Equal(t, "K1\t0", string(inform.Payload))
}

func TestGatherWalksFolderReportsNewWhenPutsAndDelsBothHappen(t *testing.T) {
	w, bus := newTestWorker(t)
	ctx := context.Background()
	sub := bus.Subscribe(8)

	root := w.maildirRoot
	folder := filepath.Join(root, "inbox")
	require.NoError(t, writeFile(filepath.Join(folder, "1.mew"), "From: a@example.com\r\n\r\nbody"))

	// pre-seed a stale catalogue entry under folder that the walk will
	// not find on disk, so this gather produces both a put and a del.
	w.cat.Put(&types.Msg{Path: filepath.Join(folder, "2.mew")})

	id := w.StartGather(8, "update", []string{folder})
	require.NotZero(t, id)

	task, ok := w.queue.Pop()
	require.True(t, ok)
	w.Handle(ctx, task)

	draftTask, ok := w.mainQueue.Pop()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(folder, "1.mew"), draftTask.Msg.Path)
	draftTask.Msg.Draft = types.NewDraft()
	draftTask.Msg.Draft.AddAttr("@uri", draftTask.Msg.Path)
	w.Handle(ctx, &types.Task{Kind: types.TaskPutDB, Msg: draftTask.Msg})

	delTask, ok := w.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskDelDB, delTask.Kind)
	w.Handle(ctx, delTask)

	inform := <-sub
	assert.Equal(t, "K1\t1", string(inform.Payload))
}

func TestTriggerDbErrorSuspendsAllQueuesAndFailsGathers(t *testing.T) {
	w, bus := newTestWorker(t)
	sub := bus.Subscribe(9)

	folder := filepath.Join(w.maildirRoot, "inbox")
	require.NoError(t, writeFile(filepath.Join(folder, "1.mew"), "body"))
	id := w.StartGather(9, "update", []string{folder})
	require.NotZero(t, id)
	// simulate the reactor having already dispatched the enqueued gather
	// task, leaving the gather context itself still live.
	_, ok := w.queue.Pop()
	require.True(t, ok)

	w.triggerDbError(errors.New("index corrupted"))

	inform := <-sub
	assert.Equal(t, "EDatabase broken", string(inform.Payload))

	for _, q := range []*task.Queue{w.queue, w.mainQueue, w.monitorQueue} {
		tk, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, types.TaskSuspend, tk.Kind)
	}
}

func TestHandleSearchReturnsTabSeparatedLines(t *testing.T) {
	w, bus := newTestWorker(t)
	ctx := context.Background()
	sub := bus.Subscribe(5)

	doc := &index.Doc{Text: "hello"}
	doc.SetAttr("@uri", "/mail/inbox/1.mew")
	require.NoError(t, w.idx.OpenWrite())
	id, err := w.idx.PutDoc(doc)
	require.NoError(t, err)
	require.NotZero(t, id)

	cond := types.SearchCond{Phrase: "hello"}
	w.Handle(ctx, &types.Task{Kind: types.TaskSearch, SrcID: 5, Search: cond})

	inform := <-sub
	assert.Contains(t, string(inform.Payload), "/mail/inbox/1.mew")
}

func writeFile(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(contents), 0644)
}
