package filemonitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReportsEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	logger, _ := test.NewNullLogger()

	var (
		mu    sync.Mutex
		names []string
	)
	w, err := NewWatch(logger, []string{dir}, func(_ logrus.FieldLogger, event fsnotify.Event) {
		if event.Has(fsnotify.Create) {
			mu.Lock()
			names = append(names, filepath.Base(event.Name))
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Run(ctx)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.adf"), []byte("p alpha 1 1\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "a.adf", names[0])
}

func TestWatcherFilters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	logger, _ := test.NewNullLogger()

	events := make(chan string, 16)
	w, err := NewWatch(logger, []string{dir}, func(_ logrus.FieldLogger, event fsnotify.Event) {
		events <- filepath.Base(event.Name)
	}, WithExtension(".adf"), WithOps(fsnotify.Create))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Run(ctx)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skipped.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.adf"), []byte("p alpha 1 1\n"), 0o600))

	select {
	case name := <-events:
		require.Equal(t, "kept.adf", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
	cancel()
	<-w.Done()
}

func TestFilters(t *testing.T) {
	create := fsnotify.Event{Name: "/tmp/a.adf", Op: fsnotify.Create}
	chmod := fsnotify.Event{Name: "/tmp/a.adf", Op: fsnotify.Chmod}
	other := fsnotify.Event{Name: "/tmp/a.yaml", Op: fsnotify.Create}

	require.True(t, WithExtension(".adf")(create))
	require.False(t, WithExtension(".adf")(other))
	require.True(t, WithOps(fsnotify.Write, fsnotify.Create)(create))
	require.False(t, WithOps(fsnotify.Write, fsnotify.Create)(chmod))
}

func TestNewWatchMissingPath(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewWatch(logger, []string{filepath.Join(t.TempDir(), "missing")}, nil)
	require.Error(t, err)
}
