package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"stv-go/internal/stv"
	"stv-go/internal/testutil"
	"stv-go/internal/watch"
)

func waitChange(t *testing.T, ch <-chan watch.Change) watch.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change")
		return watch.Change{}
	}
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.sync-conflict-20240101-000000-AAA.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := stv.NewService(afero.NewOsFs(), testutil.NewTestJournal(t), nil, stv.NewNopLogger(), testutil.FixedClock(), stv.Options{HostID: "h"})
	w := watch.New(svc, dir, 20*time.Millisecond, stv.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan watch.Change, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(c watch.Change) { changes <- c })
	}()

	initial := waitChange(t, changes)
	if len(initial.Appeared) != 1 || initial.Appeared[0].RelativePath != "a.sync-conflict-20240101-000000-AAA.txt" {
		t.Fatalf("initial change = %+v", initial)
	}

	// a conflict inside a directory created after the watch started
	sub := filepath.Join(dir, "new")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "b.sync-conflict-20240101-000000-BBB.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := waitChange(t, changes)
	if len(c.Appeared) != 1 || c.Appeared[0].RelativePath != "new/b.sync-conflict-20240101-000000-BBB.txt" {
		t.Fatalf("change after create = %+v", c)
	}

	if err := os.Remove(filepath.Join(dir, "a.sync-conflict-20240101-000000-AAA.txt")); err != nil {
		t.Fatal(err)
	}
	c = waitChange(t, changes)
	if len(c.Disappeared) != 1 || c.Disappeared[0].OriginalName != "a.txt" {
		t.Fatalf("change after remove = %+v", c)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestWatcher_Run_MissingFolder(t *testing.T) {
	svc := stv.NewService(afero.NewOsFs(), testutil.NewTestJournal(t), nil, stv.NewNopLogger(), testutil.FixedClock(), stv.Options{HostID: "h"})
	w := watch.New(svc, filepath.Join(t.TempDir(), "missing"), 0, stv.NewNopLogger())

	if err := w.Run(context.Background(), func(watch.Change) {}); err == nil {
		t.Fatal("Run() expected error for missing folder")
	}
}
