package index

import "github.com/starford/scenesync/internal/models"

// SceneIndex defines the catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type SceneIndex interface {
	UpsertScene(s SceneRow) error
	UpsertChecksum(ref models.DocumentRef, checksum string) (created bool, err error)
	SetPreviewChecksum(ref models.DocumentRef, checksum string) error
	GetScene(ref models.DocumentRef) (*SceneRow, error)
	ListScenes(workspaceID string, limit, offset int) ([]SceneRow, int, error)
	DeleteScene(ref models.DocumentRef) error
	AllChecksums() (map[models.DocumentRef]string, error)
	Close() error
}

// Verify *DB satisfies SceneIndex at compile time.
var _ SceneIndex = (*DB)(nil)
