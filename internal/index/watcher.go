package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/storage"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, ref models.DocumentRef)

// Watch starts an fsnotify watcher on the storage root and keeps the catalog in
// step with content blobs edited outside the API until ctx is cancelled. It calls
// cb (if non-nil) after each successful catalog mutation.
//
// Workspace directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation pass.
func Watch(ctx context.Context, db SceneIndex, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	notify := func(kind string, ref models.DocumentRef) {
		if cb != nil {
			cb(kind, ref)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// Blobs may already have landed before the watch was added.
					scheduleReconcile()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			ref, ok := storage.ParseContentPath(filepath.ToSlash(rel))
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				created, idxErr := indexBlob(db, store, ref)
				if idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("scene", ref.String()), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if created {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("scene", ref.String()), slog.String("op", kind))
				notify(kind, ref)

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteScene(ref); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("scene", ref.String()), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("scene", ref.String()))
				notify("deleted", ref)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as a
				// separate Create when it stays under a watched dir.
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes catalog rows without a content blob and records blobs whose
// checksum is unknown or stale.
func reconcile(db SceneIndex, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List("", storage.ContentSuffix)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[models.DocumentRef]string, len(metas))
	for _, m := range metas {
		if ref, ok := storage.ParseContentPath(m.Path); ok {
			disk[ref] = m.Checksum
		}
	}

	for ref := range checksums {
		if _, ok := disk[ref]; !ok {
			if delErr := db.DeleteScene(ref); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("scene", ref.String()))
				notify("deleted", ref)
			}
		}
	}

	for ref, cs := range disk {
		if checksums[ref] == cs {
			continue
		}
		created, idxErr := db.UpsertChecksum(ref, cs)
		if idxErr != nil {
			continue
		}
		kind := "updated"
		if created {
			kind = "created"
		}
		logger.Debug("reconcile: indexed", slog.String("scene", ref.String()), slog.String("op", kind))
		notify(kind, ref)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
