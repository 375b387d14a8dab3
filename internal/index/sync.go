package index

import (
	"log/slog"

	"github.com/starford/scenesync/internal/fingerprint"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/storage"
)

// Sync walks the content blobs and brings the catalog up to date:
//   - new/changed blobs get their checksum recorded
//   - scenes whose content blob is gone are deleted from the catalog
func Sync(db SceneIndex, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("", storage.ContentSuffix)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[models.DocumentRef]struct{}, len(metas))
	for _, m := range metas {
		ref, ok := storage.ParseContentPath(m.Path)
		if !ok {
			continue
		}
		disk[ref] = struct{}{}

		if checksums[ref] == m.Checksum {
			continue
		}
		if _, err := db.UpsertChecksum(ref, m.Checksum); err != nil {
			logger.Warn("sync: index failed", slog.String("scene", ref.String()), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("scene", ref.String()))
		}
	}

	for ref := range checksums {
		if _, ok := disk[ref]; !ok {
			if err := db.DeleteScene(ref); err != nil {
				logger.Warn("sync: delete failed", slog.String("scene", ref.String()), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("scene", ref.String()))
			}
		}
	}

	return nil
}

// indexBlob reads a content blob and records its checksum.
func indexBlob(db SceneIndex, store storage.Provider, ref models.DocumentRef) (bool, error) {
	data, err := store.Read(storage.ContentPath(ref))
	if err != nil {
		return false, err
	}
	return db.UpsertChecksum(ref, fingerprint.Sum(data))
}
