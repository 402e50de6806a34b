package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// watch starts Watch on path and returns a channel fed on every change.
func watch(t *testing.T, path string) (<-chan struct{}, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()
	return changed, cancel, done
}

// waitChange repeats action until a change is reported.
func waitChange(t *testing.T, changed <-chan struct{}, action func()) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-changed:
			return
		case <-tick.C:
			action()
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatch_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "a: 1\n")

	changed, cancel, done := watch(t, path)
	defer cancel()

	waitChange(t, changed, func() { writeFile(t, path, "a: 2\n") })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatch_RenameSaveKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	tmp := path + ".tmp"
	writeFile(t, path, "a: 1\n")

	changed, cancel, done := watch(t, path)
	defer cancel()

	waitChange(t, changed, func() {
		writeFile(t, tmp, "a: 2\n")
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}
	})
	drain(changed)

	// A plain write after the rename must still be seen.
	waitChange(t, changed, func() { writeFile(t, path, "a: 3\n") })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatch_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "a: 1\n")

	changed, cancel, done := watch(t, path)
	defer cancel()

	// Make sure the watcher is live before checking that siblings are ignored.
	waitChange(t, changed, func() { writeFile(t, path, "a: 2\n") })
	drain(changed)

	writeFile(t, filepath.Join(dir, "other.yaml"), "b: 1\n")
	select {
	case <-changed:
		t.Error("change reported for a sibling file")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), func() {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
