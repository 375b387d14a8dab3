package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/storage"
)

// watcherTestEnv sets up a storage dir and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "ws"), 0o755); err != nil {
		t.Fatal(err)
	}
	return root, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewBlobIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, root, quietLogger(), func(kind string, ref models.DocumentRef) {
		mu.Lock()
		events = append(events, kind+":"+ref.String())
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "ws", "a.scene.json"), []byte(`{"type":"scene"}`), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		row, err := db.GetScene(refA)
		return err == nil && row.Checksum != ""
	}, "new blob not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:ws/a" {
				return true
			}
		}
		return false
	}, "expected created:ws/a callback")
}

func TestWatcher_IgnoresPreviews(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "ws", "a.preview.png"), []byte("png"), 0o644)
	time.Sleep(300 * time.Millisecond)

	all, _ := db.AllChecksums()
	if len(all) != 0 {
		t.Errorf("preview blob should not be catalogued: %v", all)
	}
}

func TestWatcher_NewWorkspaceDirWatched(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.MkdirAll(filepath.Join(root, "ws2"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(root, "ws2", "deep.scene.json"), []byte(`{"type":"scene"}`), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetScene(models.DocumentRef{WorkspaceID: "ws2", DocumentID: "deep"})
		return err == nil
	}, "blob in new workspace dir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromCatalog(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "ws", "a.scene.json"), []byte(`{"type":"scene"}`), 0o644)
	_ = Sync(db, store, quietLogger())
	if _, err := db.GetScene(refA); err != nil {
		t.Fatal("precondition: scene should be catalogued")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "ws", "a.scene.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetScene(refA)
		return err != nil
	}, "deleted blob still in catalog")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "ws", "a.scene.json"), []byte(`{"type":"scene"}`), 0o644)
	_ = Sync(db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, root, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "ws", "a.scene.json"), filepath.Join(root, "ws", "renamed.scene.json"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, oldErr := db.GetScene(refA)
		_, newErr := db.GetScene(models.DocumentRef{WorkspaceID: "ws", DocumentID: "renamed"})
		return oldErr != nil && newErr == nil
	}, "rename reconciliation failed: old scene should be removed and new one catalogued")
}
