package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mindriot101/dockerdeploy/internal/controller"
)

func TestChangeKind(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want controller.ChangeKind
	}{
		{fsnotify.Write, controller.ChangeModified},
		{fsnotify.Write | fsnotify.Chmod, controller.ChangeModified},
		{fsnotify.Create, controller.ChangeCreated},
		{fsnotify.Remove, controller.ChangeRemoved},
		{fsnotify.Rename, controller.ChangeRenamed},
		{fsnotify.Chmod, controller.ChangeOther},
	}
	for _, tc := range cases {
		if got := ChangeKind(tc.op); got != tc.want {
			t.Fatalf("op %s: expected %s got %s", tc.op, tc.want, got)
		}
	}
}

func TestWatcherForwardsWritesToDeployFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yml")
	if err := os.WriteFile(path, []byte("image:\n  name: nginx\n"), 0o644); err != nil {
		t.Fatalf("write deploy file: %v", err)
	}

	queue := controller.NewQueue()
	w, err := New(path, queue, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}
	if err := os.WriteFile(path, []byte("image:\n  name: nginx\n  tag: \"1.27\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite deploy file: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()
	for {
		msg, err := queue.Receive(recvCtx)
		if err != nil {
			t.Fatalf("expected reload message: %v", err)
		}
		reload, ok := msg.(controller.Reload)
		if !ok {
			t.Fatalf("expected Reload, got %#v", msg)
		}
		if reload.Path != w.path {
			t.Fatalf("unexpected path %s", reload.Path)
		}
		if reload.Change == controller.ChangeModified {
			break
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestWatcherStopsOnClosedQueue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yml")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("write deploy file: %v", err)
	}
	queue := controller.NewQueue()
	queue.Close()
	w, err := New(path, queue, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	if err := os.WriteFile(path, []byte("b"), 0o644); err != nil {
		t.Fatalf("rewrite deploy file: %v", err)
	}
	select {
	case err := <-done:
		if err != controller.ErrQueueClosed {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop on closed queue")
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing", "deploy.yml"), controller.NewQueue(), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
