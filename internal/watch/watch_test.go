package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/project"
)

func newWatchFixture(t *testing.T) (*project.Project, string) {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "sub"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(docs, ".git"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "index.md"), []byte("v1"), 0o600))

	cfg := &project.Config{
		SourceDir:  "docs",
		TargetRoot: "build",
		CacheRoot:  ".cache",
		Targets:    []string{"html"},
	}
	p, err := project.Open(root, project.Options{Config: cfg})
	require.NoError(t, err)
	return p, root
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	p, root := newWatchFixture(t)
	w, err := New(p, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	product := filepath.Join(root, "build", "html", "index.html")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(product)
		return err == nil && string(data) == "v1"
	}, 5*time.Second, 20*time.Millisecond, "initial render")

	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "index.md"), []byte("v2"), 0o600))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(product)
		return err == nil && string(data) == "v2"
	}, 5*time.Second, 20*time.Millisecond, "rebuild after change")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchTree_SkipsHiddenDirs(t *testing.T) {
	p, root := newWatchFixture(t)
	w, err := New(p, Options{})
	require.NoError(t, err)
	defer w.fsw.Close()

	require.NoError(t, w.watchTree(p.SourceRoot()))

	watched := w.fsw.WatchList()
	require.Contains(t, watched, filepath.Join(root, "docs"))
	require.Contains(t, watched, filepath.Join(root, "docs", "sub"))
	require.NotContains(t, watched, filepath.Join(root, "docs", ".git"))
}

func TestRequestRebuild_CoalescesPending(t *testing.T) {
	p, _ := newWatchFixture(t)
	w, err := New(p, Options{})
	require.NoError(t, err)
	defer w.fsw.Close()

	w.requestRebuild()
	w.requestRebuild()
	require.Len(t, w.trigger, 1)
}

func TestRelevantEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"markdown write", fsnotify.Event{Name: "/p/docs/index.md", Op: fsnotify.Write}, true},
		{"rename", fsnotify.Event{Name: "/p/docs/ch1.md", Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: "/p/docs/index.md", Op: fsnotify.Chmod}, false},
		{"vim swap", fsnotify.Event{Name: "/p/docs/.index.md.swp", Op: fsnotify.Create}, false},
		{"backup file", fsnotify.Event{Name: "/p/docs/index.md~", Op: fsnotify.Write}, false},
		{"temp file", fsnotify.Event{Name: "/p/docs/out.tmp", Op: fsnotify.Write}, false},
		{"hidden file", fsnotify.Event{Name: "/p/docs/.env", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, relevantEvent(tc.ev))
		})
	}
}
