package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/scenesync/internal/apperr"
	"github.com/starford/scenesync/internal/models"
)

// SceneRow represents a row in the scenes table.
type SceneRow struct {
	WorkspaceID     string
	ID              string
	Title           string
	WorkspaceSlug   string
	Access          models.AccessRights
	RoomID          string
	RoomKey         string
	Checksum        string
	PreviewChecksum string
	UpdatedAt       time.Time
}

// Ref returns the document reference of the row.
func (r *SceneRow) Ref() models.DocumentRef {
	return models.DocumentRef{WorkspaceID: r.WorkspaceID, DocumentID: r.ID}
}

// Record converts the row into the persistence-gateway record shape.
func (r *SceneRow) Record() *models.SceneRecord {
	return &models.SceneRecord{
		ID:            r.ID,
		WorkspaceID:   r.WorkspaceID,
		WorkspaceSlug: r.WorkspaceSlug,
		Title:         r.Title,
		AccessRights:  r.Access,
		RoomID:        r.RoomID,
		RoomKey:       r.RoomKey,
		Checksum:      r.Checksum,
		UpdatedAt:     r.UpdatedAt,
	}
}

const sceneColumns = `workspace_id, id, title, workspace_slug, access, room_id, room_key, checksum, preview_checksum, updated_at`

// UpsertScene inserts or replaces a scene row. The preview checksum is kept on update.
func (db *DB) UpsertScene(s SceneRow) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	if s.Access == "" {
		s.Access = models.AccessOwner
	}
	_, err := db.conn.Exec(`
		INSERT INTO scenes (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, id) DO UPDATE SET
			title          = excluded.title,
			workspace_slug = excluded.workspace_slug,
			access         = excluded.access,
			room_id        = excluded.room_id,
			room_key       = excluded.room_key,
			checksum       = excluded.checksum,
			updated_at     = excluded.updated_at
	`, s.WorkspaceID, s.ID, s.Title, s.WorkspaceSlug, string(s.Access), s.RoomID, s.RoomKey,
		s.Checksum, s.PreviewChecksum, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert scene: %w", err)
	}
	return nil
}

// UpsertChecksum records a new content checksum. Scenes first seen this way are
// created with default metadata and reported via created.
func (db *DB) UpsertChecksum(ref models.DocumentRef, checksum string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`UPDATE scenes SET checksum = ?, updated_at = ? WHERE workspace_id = ? AND id = ?`,
		checksum, time.Now(), ref.WorkspaceID, ref.DocumentID)
	if err != nil {
		return false, fmt.Errorf("index: update checksum: %w", err)
	}
	n, _ := res.RowsAffected()
	created := n == 0
	if created {
		_, err = tx.Exec(`INSERT INTO scenes (workspace_id, id, title, workspace_slug, checksum, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ref.WorkspaceID, ref.DocumentID, ref.DocumentID, ref.WorkspaceID, checksum, time.Now())
		if err != nil {
			return false, fmt.Errorf("index: insert scene: %w", err)
		}
	}
	return created, tx.Commit()
}

// SetPreviewChecksum stores the checksum of the last uploaded preview image.
func (db *DB) SetPreviewChecksum(ref models.DocumentRef, checksum string) error {
	res, err := db.conn.Exec(`UPDATE scenes SET preview_checksum = ? WHERE workspace_id = ? AND id = ?`,
		checksum, ref.WorkspaceID, ref.DocumentID)
	if err != nil {
		return fmt.Errorf("index: set preview checksum: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetScene returns one scene row or apperr.ErrNotFound.
func (db *DB) GetScene(ref models.DocumentRef) (*SceneRow, error) {
	row := db.conn.QueryRow(`SELECT `+sceneColumns+` FROM scenes WHERE workspace_id = ? AND id = ?`,
		ref.WorkspaceID, ref.DocumentID)
	s, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get scene: %w", err)
	}
	return s, nil
}

// ListScenes returns a page of scenes in a workspace, newest first, and the total count.
func (db *DB) ListScenes(workspaceID string, limit, offset int) ([]SceneRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM scenes WHERE workspace_id = ?`, workspaceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count scenes: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+sceneColumns+` FROM scenes WHERE workspace_id = ?
		ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list scenes: %w", err)
	}
	defer rows.Close()

	var out []SceneRow
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// DeleteScene removes a scene row. Deleting a missing row is not an error.
func (db *DB) DeleteScene(ref models.DocumentRef) error {
	_, err := db.conn.Exec(`DELETE FROM scenes WHERE workspace_id = ? AND id = ?`, ref.WorkspaceID, ref.DocumentID)
	if err != nil {
		return fmt.Errorf("index: delete scene: %w", err)
	}
	return nil
}

// AllChecksums returns the content checksum of every catalogued scene.
func (db *DB) AllChecksums() (map[models.DocumentRef]string, error) {
	rows, err := db.conn.Query(`SELECT workspace_id, id, checksum FROM scenes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[models.DocumentRef]string)
	for rows.Next() {
		var ref models.DocumentRef
		var cs string
		if err := rows.Scan(&ref.WorkspaceID, &ref.DocumentID, &cs); err != nil {
			return nil, err
		}
		out[ref] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScene(sc scanner) (*SceneRow, error) {
	var s SceneRow
	var access string
	if err := sc.Scan(&s.WorkspaceID, &s.ID, &s.Title, &s.WorkspaceSlug, &access, &s.RoomID, &s.RoomKey,
		&s.Checksum, &s.PreviewChecksum, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Access = models.AccessRights(access)
	return &s, nil
}
