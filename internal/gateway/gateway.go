// Package gateway declares the external collaborators the scene coordinator talks to,
// and an HTTP client for the persistence contract.
package gateway

import (
	"context"

	"github.com/starford/scenesync/internal/models"
)

// Persistence fetches scene records and content and accepts preview uploads.
// Implementations report apperr.ErrUnauthenticated, apperr.ErrForbidden and
// apperr.ErrNotFound (wrapped) so callers can tell them apart from generic failure.
type Persistence interface {
	FetchDocumentRecord(ctx context.Context, ref models.DocumentRef) (*models.SceneRecord, error)
	FetchContentBytes(ctx context.Context, ref models.DocumentRef) ([]byte, error)
	UploadPreviewImage(ctx context.Context, ref models.DocumentRef, png []byte) error
}

// JoinRequest describes the room to join.
type JoinRequest struct {
	RoomID   string
	RoomKey  string
	AutoJoin bool
}

// LeaveRequest names the room being left. Leaves run detached from the next
// join, so the room and the session generation of the join being ended are
// given explicitly rather than taken from session state.
type LeaveRequest struct {
	RoomID    string
	RoomKey   string
	Session   uint64
	FlushSave bool
	Snapshot  models.Content
}

// Collaboration is the live-room session. Join returns nil content for an empty room
// and starts a new session generation, reported by Session. Leave is best-effort;
// FlushSave persists Snapshot to the room, and session state is only reset when
// the request's Session is still the current one.
type Collaboration interface {
	IsActive() bool
	Join(ctx context.Context, req JoinRequest) (*models.Content, error)
	Session() uint64
	Leave(ctx context.Context, req LeaveRequest) error
	SetActiveDocumentID(id string)
}
