// Package sceneservice is the local scene backend: blob storage plus the SQLite catalog.
package sceneservice

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/starford/scenesync/internal/apperr"
	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/fingerprint"
	"github.com/starford/scenesync/internal/index"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/storage"
)

// SceneListItem is a lightweight item in a list response.
type SceneListItem struct {
	ID            string              `json:"id"`
	WorkspaceID   string              `json:"workspace_id"`
	Title         string              `json:"title"`
	AccessRights  models.AccessRights `json:"access_rights"`
	Collaborative bool                `json:"collaborative"`
	Checksum      string              `json:"checksum"`
	HasPreview    bool                `json:"has_preview"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// CreateInput describes a new scene.
type CreateInput struct {
	WorkspaceID   string
	WorkspaceSlug string
	Title         string
	AccessRights  models.AccessRights
	Collaborative bool
	Content       []byte
}

// Service coordinates storage and catalog operations.
type Service struct {
	store    storage.Provider
	db       index.SceneIndex
	listings *cache.Cache
}

// NewService creates a scene service. Listings are cached for listingTTL; zero disables caching.
func NewService(store storage.Provider, db index.SceneIndex, listingTTL time.Duration) *Service {
	s := &Service{store: store, db: db}
	if listingTTL > 0 {
		s.listings = cache.New(listingTTL, 2*listingTTL)
	}
	return s
}

// CreateScene writes a new scene and catalogs it. Collaborative scenes get a fresh room.
func (s *Service) CreateScene(_ context.Context, in CreateInput) (*models.SceneRecord, error) {
	content := in.Content
	if len(strings.TrimSpace(string(content))) == 0 {
		var err error
		if content, err = codec.Encode(codec.Empty()); err != nil {
			return nil, err
		}
	} else if _, err := codec.Decode(content); err != nil {
		return nil, err
	}

	row := index.SceneRow{
		WorkspaceID:   in.WorkspaceID,
		ID:            uuid.NewString(),
		Title:         in.Title,
		WorkspaceSlug: in.WorkspaceSlug,
		Access:        in.AccessRights,
		Checksum:      fingerprint.Sum(content),
		UpdatedAt:     time.Now().UTC(),
	}
	if row.WorkspaceSlug == "" {
		row.WorkspaceSlug = in.WorkspaceID
	}
	if in.Collaborative {
		key, err := newRoomKey()
		if err != nil {
			return nil, err
		}
		row.RoomID = strings.ReplaceAll(uuid.NewString(), "-", "")
		row.RoomKey = key
	}

	// Catalog first so the watcher sees a known scene when the blob lands.
	if err := s.db.UpsertScene(row); err != nil {
		return nil, err
	}
	if err := s.store.Write(storage.ContentPath(row.Ref()), content); err != nil {
		_ = s.db.DeleteScene(row.Ref())
		return nil, err
	}
	s.InvalidateListings()

	rec, err := s.db.GetScene(row.Ref())
	if err != nil {
		return nil, err
	}
	return rec.Record(), nil
}

// GetRecord returns the catalog record of a scene.
func (s *Service) GetRecord(_ context.Context, ref models.DocumentRef) (*models.SceneRecord, error) {
	row, err := s.db.GetScene(ref)
	if err != nil {
		return nil, err
	}
	return row.Record(), nil
}

// GetContent returns the raw content bytes of a scene and their checksum.
func (s *Service) GetContent(_ context.Context, ref models.DocumentRef) ([]byte, string, error) {
	data, err := s.store.Read(storage.ContentPath(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.ErrNotFound
		}
		return nil, "", err
	}
	return data, fingerprint.Sum(data), nil
}

// SaveContent replaces scene content with optimistic concurrency on ifMatch.
// It returns the updated record and the decoded content.
func (s *Service) SaveContent(ctx context.Context, ref models.DocumentRef, data []byte, ifMatch string) (*models.SceneRecord, *models.Content, error) {
	if _, err := s.db.GetScene(ref); err != nil {
		return nil, nil, err
	}
	content, err := codec.Decode(data)
	if err != nil {
		return nil, nil, err
	}

	existing, current, err := s.GetContent(ctx, ref)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, err
	}
	if ifMatch != "" && (existing == nil || ifMatch != current) {
		return nil, nil, apperr.ErrConflict
	}

	if err := s.store.Write(storage.ContentPath(ref), data); err != nil {
		return nil, nil, err
	}
	if _, err := s.db.UpsertChecksum(ref, fingerprint.Sum(data)); err != nil {
		return nil, nil, err
	}
	s.InvalidateListings()

	rec, err := s.GetRecord(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return rec, content, nil
}

// DeleteScene removes a scene's blobs and catalog row.
func (s *Service) DeleteScene(_ context.Context, ref models.DocumentRef) error {
	if _, err := s.db.GetScene(ref); err != nil {
		return err
	}
	if err := s.store.Delete(storage.ContentPath(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.store.Delete(storage.PreviewPath(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.db.DeleteScene(ref); err != nil {
		return err
	}
	s.InvalidateListings()
	return nil
}

// ListScenes returns a page of scenes in a workspace and the total count.
func (s *Service) ListScenes(_ context.Context, workspaceID string, limit, offset int) ([]SceneListItem, int, error) {
	key := fmt.Sprintf("%s:%d:%d", workspaceID, limit, offset)
	if s.listings != nil {
		if x, found := s.listings.Get(key); found {
			page := x.(listingPage)
			return page.items, page.total, nil
		}
	}

	rows, total, err := s.db.ListScenes(workspaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]SceneListItem, len(rows))
	for i, r := range rows {
		items[i] = SceneListItem{
			ID:            r.ID,
			WorkspaceID:   r.WorkspaceID,
			Title:         r.Title,
			AccessRights:  r.Access,
			Collaborative: r.RoomID != "",
			Checksum:      r.Checksum,
			HasPreview:    r.PreviewChecksum != "",
			UpdatedAt:     r.UpdatedAt,
		}
	}

	if s.listings != nil {
		s.listings.Set(key, listingPage{items: items, total: total}, cache.DefaultExpiration)
	}
	return items, total, nil
}

type listingPage struct {
	items []SceneListItem
	total int
}

// InvalidateListings drops every cached listing page.
func (s *Service) InvalidateListings() {
	if s.listings != nil {
		s.listings.Flush()
	}
}

// PutPreview stores the preview image of an existing scene.
func (s *Service) PutPreview(_ context.Context, ref models.DocumentRef, png []byte) error {
	if _, err := s.db.GetScene(ref); err != nil {
		return err
	}
	if err := s.store.Write(storage.PreviewPath(ref), png); err != nil {
		return err
	}
	return s.db.SetPreviewChecksum(ref, fingerprint.Sum(png))
}

// GetPreview returns the preview image of a scene.
func (s *Service) GetPreview(_ context.Context, ref models.DocumentRef) ([]byte, error) {
	data, err := s.store.Read(storage.PreviewPath(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func newRoomKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sceneservice: room key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
