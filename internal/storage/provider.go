// Package storage defines the blob storage abstraction for scene content and previews.
package storage

import (
	"path"
	"strings"
	"time"

	"github.com/starford/scenesync/internal/models"
)

// Blob suffixes. A scene is stored as <workspace>/<id>.scene.json with an
// optional <workspace>/<id>.preview.png next to it.
const (
	ContentSuffix = ".scene.json"
	PreviewSuffix = ".preview.png"
)

// Meta is a lightweight description of one stored blob.
type Meta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for blob operations.
type Provider interface {
	// List returns metadata for every blob under dir whose name ends with suffix.
	List(dir, suffix string) ([]Meta, error)
	// Read returns the raw bytes of the blob at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the blob at path (relative to root).
	Delete(path string) error
}

// ContentPath returns the blob path of a scene's content.
func ContentPath(ref models.DocumentRef) string {
	return path.Join(ref.WorkspaceID, ref.DocumentID+ContentSuffix)
}

// PreviewPath returns the blob path of a scene's preview image.
func PreviewPath(ref models.DocumentRef) string {
	return path.Join(ref.WorkspaceID, ref.DocumentID+PreviewSuffix)
}

// ParseContentPath inverts ContentPath. It accepts OS-specific separators.
func ParseContentPath(p string) (models.DocumentRef, bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasSuffix(p, ContentSuffix) {
		return models.DocumentRef{}, false
	}
	dir, file := path.Split(p)
	dir = strings.Trim(dir, "/")
	if dir == "" || strings.Contains(dir, "/") {
		return models.DocumentRef{}, false
	}
	id := strings.TrimSuffix(file, ContentSuffix)
	if id == "" {
		return models.DocumentRef{}, false
	}
	return models.DocumentRef{WorkspaceID: dir, DocumentID: id}, true
}
