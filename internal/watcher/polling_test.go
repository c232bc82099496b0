package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, ch <-chan FileEvent, path string, op Operation) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "channel closed")
			if e.Path == path && e.Operation == op {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", op, path)
		}
	}
}

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))

	p := NewPollingWatcher(20*time.Millisecond, nameFilter{"build": true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, root) }()
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "Out.java"), []byte("x"), 0o644))
	file := filepath.Join(root, "src", "A.java")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("class A {}"), 0o644))
	waitEvent(t, p.Events(), "src/A.java", OpCreate)

	require.NoError(t, os.WriteFile(file, []byte("class A { int longer; }"), 0o644))
	waitEvent(t, p.Events(), "src/A.java", OpModify)

	require.NoError(t, os.Remove(file))
	waitEvent(t, p.Events(), "src/A.java", OpDelete)

	p.mu.Lock()
	_, tracked := p.fileState["build/Out.java"]
	p.mu.Unlock()
	assert.False(t, tracked)
}

func TestPollingWatcher_StartErrorsAndStop(t *testing.T) {
	p := NewPollingWatcher(time.Second, nil)
	assert.Error(t, p.Start(context.Background(), filepath.Join(t.TempDir(), "missing")))

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	_, ok := <-p.Events()
	assert.False(t, ok)
}

func TestPollingWatcher_ContextCancellation(t *testing.T) {
	p := NewPollingWatcher(10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx, t.TempDir()) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("polling watcher did not stop")
	}
}
