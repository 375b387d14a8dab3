// Package testutil provides shared test helpers for catalogs, blob stores and scenes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/index"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sceneservice"
	"github.com/starford/scenesync/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "scenesync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary blob root with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// TestService builds a scene service over a temporary catalog and store, without listing cache.
func TestService(t *testing.T) *sceneservice.Service {
	t.Helper()
	_, store := TestStore(t)
	return sceneservice.NewService(store, TestDB(t), 0)
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Content builds scene content with one rectangle per id, each at version 1.
func Content(ids ...string) models.Content {
	c := codec.Empty()
	for _, id := range ids {
		c.Elements = append(c.Elements, models.Element{ID: id, Type: "rectangle", Version: 1, Width: 10, Height: 10})
	}
	return c
}

// Encode encodes content or fails the test.
func Encode(t *testing.T, c models.Content) []byte {
	t.Helper()
	data, err := codec.Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// CreateScene creates a scene in svc or fails the test.
func CreateScene(t *testing.T, svc *sceneservice.Service, in sceneservice.CreateInput) *models.SceneRecord {
	t.Helper()
	rec, err := svc.CreateScene(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateScene: %v", err)
	}
	return rec
}
