package sceneservice

import (
	"context"

	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/models"
)

// LocalGateway serves the persistence contract straight from the local service.
type LocalGateway struct {
	svc *Service
}

var _ gateway.Persistence = (*LocalGateway)(nil)

// NewLocalGateway wraps svc.
func NewLocalGateway(svc *Service) *LocalGateway {
	return &LocalGateway{svc: svc}
}

// FetchDocumentRecord implements gateway.Persistence.
func (g *LocalGateway) FetchDocumentRecord(ctx context.Context, ref models.DocumentRef) (*models.SceneRecord, error) {
	return g.svc.GetRecord(ctx, ref)
}

// FetchContentBytes implements gateway.Persistence.
func (g *LocalGateway) FetchContentBytes(ctx context.Context, ref models.DocumentRef) ([]byte, error) {
	data, _, err := g.svc.GetContent(ctx, ref)
	return data, err
}

// UploadPreviewImage implements gateway.Persistence.
func (g *LocalGateway) UploadPreviewImage(ctx context.Context, ref models.DocumentRef, png []byte) error {
	return g.svc.PutPreview(ctx, ref, png)
}
