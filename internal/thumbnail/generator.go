// Package thumbnail keeps scene previews in step with saved content.
//
// Generation is best-effort: failures are logged and dropped so the save that
// triggered them is never affected.
package thumbnail

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/scenesync/internal/fingerprint"
	"github.com/starford/scenesync/internal/models"
)

// Uploader stores a rendered preview.
type Uploader interface {
	UploadPreviewImage(ctx context.Context, ref models.DocumentRef, png []byte) error
}

// Generator renders and uploads previews, at most one run per document at a time.
type Generator struct {
	renderer   Renderer
	uploader   Uploader
	opts       Options
	invalidate func()
	logger     *slog.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	pending map[string]struct{}
	hashes  map[string]string

	wg sync.WaitGroup
}

// Option configures a Generator.
type Option func(*Generator)

// WithInvalidate sets the hook run after each successful upload.
func WithInvalidate(fn func()) Option {
	return func(g *Generator) { g.invalidate = fn }
}

// WithOptions overrides the render bounds.
func WithOptions(opts Options) Option {
	return func(g *Generator) { g.opts = opts }
}

// New creates a Generator.
func New(renderer Renderer, uploader Uploader, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		renderer: renderer,
		uploader: uploader,
		opts:     Options{MaxDimension: 512, Padding: 16, Background: true},
		logger:   logger,
		tracer:   otel.Tracer("github.com/starford/scenesync/internal/thumbnail"),
		pending:  make(map[string]struct{}),
		hashes:   make(map[string]string),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// MaybeGenerateAndUpload regenerates the preview of ref if its visible content changed.
// It never returns an error.
func (g *Generator) MaybeGenerateAndUpload(ctx context.Context, ref models.DocumentRef, content models.Content) {
	id := ref.DocumentID
	hash := fingerprint.Content(content)

	g.mu.Lock()
	if _, busy := g.pending[id]; busy {
		g.mu.Unlock()
		return
	}
	if prev, ok := g.hashes[id]; ok && prev == hash {
		g.mu.Unlock()
		return
	}
	g.pending[id] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}()

	ctx, span := g.tracer.Start(ctx, "thumbnail.generate", trace.WithAttributes(
		attribute.String("document.id", id),
		attribute.String("fingerprint", hash),
	))
	defer span.End()

	png, err := g.render(ctx, content)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("thumbnail: render failed", slog.String("document", ref.String()), slog.String("error", err.Error()))
		return
	}

	if err := g.uploader.UploadPreviewImage(ctx, ref, png); err != nil {
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("thumbnail: upload failed", slog.String("document", ref.String()), slog.String("error", err.Error()))
		return
	}

	g.mu.Lock()
	g.hashes[id] = hash
	g.mu.Unlock()

	if g.invalidate != nil {
		g.invalidate()
	}
	g.logger.Debug("thumbnail: uploaded", slog.String("document", ref.String()), slog.Int("bytes", len(png)))
}

func (g *Generator) render(ctx context.Context, content models.Content) ([]byte, error) {
	opts := g.opts
	opts.Dark = content.AppState.Dark()
	if len(content.Visible()) == 0 {
		return Placeholder(content, opts)
	}
	return g.renderer.Render(ctx, content, opts)
}

// Go runs MaybeGenerateAndUpload on a tracked goroutine detached from ctx cancellation.
func (g *Generator) Go(ctx context.Context, ref models.DocumentRef, content models.Content) {
	ctx = context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.MaybeGenerateAndUpload(ctx, ref, content)
	}()
}

// Wait blocks until every run started with Go has finished.
func (g *Generator) Wait() {
	g.wg.Wait()
}

// ClearHash forgets the recorded fingerprint of one document.
func (g *Generator) ClearHash(id string) {
	g.mu.Lock()
	delete(g.hashes, id)
	g.mu.Unlock()
}

// ClearAllHashes forgets every recorded fingerprint.
func (g *Generator) ClearAllHashes() {
	g.mu.Lock()
	clear(g.hashes)
	g.mu.Unlock()
}

// Pending reports whether a run for id is in progress.
func (g *Generator) Pending(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[id]
	return ok
}

// Hash returns the fingerprint of the last successful upload for id.
func (g *Generator) Hash(id string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hashes[id]
	return h, ok
}
