package client_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mclient "github.com/mailest/mailestd/pkg/client"
	"github.com/mailest/mailestd/pkg/control"
	"github.com/mailest/mailestd/pkg/events"
	"github.com/mailest/mailestd/pkg/types"
)

type fakeDispatcher struct {
	sub events.Subscriber

	suspended, resumed, stopped bool
	debug                       *bool
}

func (f *fakeDispatcher) Update(folder string) (uint64, events.Subscriber, error) {
	return 1, f.sub, nil
}

func (f *fakeDispatcher) Search(cond types.SearchCond) (uint64, events.Subscriber) {
	return 1, f.sub
}

func (f *fakeDispatcher) Smew(msgid, folderScope string) (uint64, events.Subscriber) {
	return 1, f.sub
}

func (f *fakeDispatcher) Unsubscribe(srcID uint64) {}
func (f *fakeDispatcher) Suspend()                 { f.suspended = true }
func (f *fakeDispatcher) Resume()                  { f.resumed = true }
func (f *fakeDispatcher) Stop()                    { f.stopped = true }
func (f *fakeDispatcher) SetDebug(on bool)         { f.debug = &on }

func startServer(t *testing.T, disp control.Dispatcher) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "control.sock")

	srv, err := control.Listen(sockPath, disp)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	return sockPath
}

func TestClientUpdateRoundTrip(t *testing.T) {
	sub := make(events.Subscriber, 1)
	sub <- &events.Inform{SrcID: 1, Payload: []byte("K0")}
	sockPath := startServer(t, &fakeDispatcher{sub: sub})

	c, err := mclient.NewClient(sockPath)
	require.NoError(t, err)
	defer c.Close()

	line, err := c.Update("/mail/inbox")
	require.NoError(t, err)
	assert.Equal(t, "new messages...done\n", line)
}

func TestClientSearchRoundTrip(t *testing.T) {
	sub := make(events.Subscriber, 1)
	sub <- &events.Inform{SrcID: 1, Payload: []byte("1\tfile:///mail/inbox/1.mew\n")}
	sockPath := startServer(t, &fakeDispatcher{sub: sub})

	c, err := mclient.NewClient(sockPath)
	require.NoError(t, err)
	defer c.Close()

	line, err := c.Search(types.SearchCond{Phrase: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "1\tfile:///mail/inbox/1.mew\n", line)
}

func TestClientSmewRoundTrip(t *testing.T) {
	sub := make(events.Subscriber, 1)
	sub <- &events.Inform{SrcID: 1, Payload: []byte("file:///mail/inbox/1.mew\n")}
	sockPath := startServer(t, &fakeDispatcher{sub: sub})

	c, err := mclient.NewClient(sockPath)
	require.NoError(t, err)
	defer c.Close()

	line, err := c.Smew("<a@b>", "")
	require.NoError(t, err)
	assert.Equal(t, "file:///mail/inbox/1.mew\n", line)
}

func TestClientSuspendResumeDebugStop(t *testing.T) {
	disp := &fakeDispatcher{}
	sockPath := startServer(t, disp)

	c, err := mclient.NewClient(sockPath)
	require.NoError(t, err)

	require.NoError(t, c.Suspend())
	require.NoError(t, c.Resume())
	require.NoError(t, c.DebugUp())
	require.NoError(t, c.DebugDown())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, disp.suspended)
	assert.True(t, disp.resumed)
	require.NotNil(t, disp.debug)
	assert.False(t, *disp.debug)

	require.NoError(t, c.Stop())
	c.Close()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, disp.stopped)
}

func TestNewClientFailsWhenNoServerListening(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "missing.sock")
	_, err := mclient.NewClient(sockPath)
	assert.Error(t, err)
}
