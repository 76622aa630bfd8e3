package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/config"
	"github.com/mailest/mailestd/pkg/types"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default(root)
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")
	cfg.SocketPath = filepath.Join(t.TempDir(), "control.sock")
	cfg.MonitorDelay = 10 * time.Millisecond

	d, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.idx.Close() })
	return d
}

func runDaemon(t *testing.T, d *Daemon) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not shut down")
		}
	})
	return cancel
}

func TestNewWiresEveryCollaborator(t *testing.T) {
	d := newTestDaemon(t)

	assert.NotNil(t, d.cat)
	assert.NotNil(t, d.idx)
	assert.NotNil(t, d.bus)
	assert.NotNil(t, d.watcher)
	assert.NotNil(t, d.db)
	assert.NotNil(t, d.main)
	assert.NotNil(t, d.monitor)
	assert.NotNil(t, d.ctl)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default("/nonexistent/path/does-not-exist")
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestUpdateOnEmptyFolderCompletesImmediately(t *testing.T) {
	d := newTestDaemon(t)
	runDaemon(t, d)

	srcID, sub, err := d.Update("")
	require.NoError(t, err)
	require.NotZero(t, srcID)
	defer d.Unsubscribe(srcID)

	select {
	case inform := <-sub:
		require.NotEmpty(t, inform.Payload)
		assert.Equal(t, byte('K'), inform.Payload[0])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update completion")
	}
}

func TestUpdateOnMissingAbsoluteFolderErrors(t *testing.T) {
	d := newTestDaemon(t)
	runDaemon(t, d)

	_, _, err := d.Update(filepath.Join(d.cfg.MaildirRoot, "does-not-exist"))
	assert.Error(t, err)
}

func TestSearchReturnsSubscriberThatSeesInform(t *testing.T) {
	d := newTestDaemon(t)
	runDaemon(t, d)

	srcID, sub := d.Search(types.SearchCond{Max: 10, Order: "d"})
	require.NotZero(t, srcID)
	defer d.Unsubscribe(srcID)

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for search reply")
	}
}

func TestSmewReturnsSubscriberThatSeesInform(t *testing.T) {
	d := newTestDaemon(t)
	runDaemon(t, d)

	srcID, sub := d.Smew("<missing@example.com>", "")
	require.NotZero(t, srcID)
	defer d.Unsubscribe(srcID)

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for smew reply")
	}
}

func TestSetDebugTogglesLogLevel(t *testing.T) {
	d := newTestDaemon(t)
	d.SetDebug(true)
	d.SetDebug(false)
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	d := newTestDaemon(t)
	cancel := runDaemon(t, d)
	cancel()
}

func TestSuspendAndResumeDoNotBlockDispatch(t *testing.T) {
	d := newTestDaemon(t)
	runDaemon(t, d)

	d.Suspend()
	d.Resume()

	srcID, sub := d.Search(types.SearchCond{Max: 1})
	defer d.Unsubscribe(srcID)

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("search did not complete after resume")
	}
}

func TestMaildirRootIsUsableAfterNew(t *testing.T) {
	d := newTestDaemon(t)
	info, err := os.Stat(d.cfg.MaildirRoot)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
