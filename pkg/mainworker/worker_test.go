package mainworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/ids"
	"github.com/mailest/mailestd/pkg/task"
	"github.com/mailest/mailestd/pkg/types"
)

func newTestWorker(t *testing.T) (*Worker, *task.Queue) {
	t.Helper()
	dbQueue := task.NewQueue()
	w := New(Deps{
		Queue:    task.NewQueue(),
		DBQueue:  dbQueue,
		IDs:      &ids.Counter{},
		TrimSize: 131072,
	})
	return w, dbQueue
}

func writeMessage(t *testing.T, contents string) *types.Msg {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.mew")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return &types.Msg{Path: path, MTime: info.ModTime(), Size: info.Size()}
}

func TestHandleDraftParsesAndConvertsToPutDB(t *testing.T) {
	w, dbQueue := newTestWorker(t)

	msg := writeMessage(t, "From: a@example.com\r\n"+
		"Message-Id: <child@example.com>\r\n"+
		"In-Reply-To: <parent@example.com>\r\n"+
		"Subject: hi\r\n"+
		"Content-Type: text/plain; charset=us-ascii\r\n"+
		"\r\nhello world")

	stop := w.Handle(context.Background(), &types.Task{Kind: types.TaskDraft, Msg: msg})
	assert.False(t, stop)

	out, ok := dbQueue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskPutDB, out.Kind)
	require.NotNil(t, out.Msg.Draft)

	draft := out.Msg.Draft
	assert.Equal(t, "file://"+msg.Path, draft.Attr("@uri"))
	assert.NotEmpty(t, draft.Attr("@mdate"))
	assert.NotEmpty(t, draft.Attr("@size"))
	assert.Equal(t, "<parent@example.com>", draft.Attr("x-mew-parid"))
	assert.Equal(t, "hello world", draft.Text())
}

func TestHandleDraftWithUnreadableFileForwardsNilDraft(t *testing.T) {
	w, dbQueue := newTestWorker(t)

	msg := &types.Msg{Path: filepath.Join(t.TempDir(), "missing.mew")}

	w.Handle(context.Background(), &types.Task{Kind: types.TaskDraft, Msg: msg})

	out, ok := dbQueue.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskPutDB, out.Kind)
	assert.Nil(t, out.Msg.Draft)
}

func TestHandleStopReturnsTrue(t *testing.T) {
	w, _ := newTestWorker(t)
	stop := w.Handle(context.Background(), &types.Task{Kind: types.TaskStop})
	assert.True(t, stop)
}

func TestParseFileSynthesizesMDateFromMTimeNotHeaderDate(t *testing.T) {
	w, _ := newTestWorker(t)

	msg := writeMessage(t, "Date: Mon, 01 Jan 2001 00:00:00 +0000\r\n"+
		"Content-Type: text/plain; charset=us-ascii\r\n"+
		"\r\nbody")
	old := msg.MTime.Add(-48 * time.Hour)
	msg.MTime = old

	draft, err := w.parseFile(msg)
	require.NoError(t, err)
	assert.NotContains(t, draft.Attr("@mdate"), "2001")
}
