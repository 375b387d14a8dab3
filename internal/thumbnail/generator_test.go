package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/starford/scenesync/internal/fingerprint"
	"github.com/starford/scenesync/internal/models"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string][][]byte
	err     error
	block   chan struct{}
	entered chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string][][]byte)}
}

func (f *fakeUploader) UploadPreviewImage(_ context.Context, ref models.DocumentRef, data []byte) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads[ref.DocumentID] = append(f.uploads[ref.DocumentID], data)
	return nil
}

func (f *fakeUploader) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads[id])
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, models.Content, Options) ([]byte, error) {
	return nil, errors.New("boom")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var ref = models.DocumentRef{WorkspaceID: "ws", DocumentID: "doc-1"}

func sampleContent() models.Content {
	return models.Content{
		Elements: []models.Element{
			{ID: "a", Type: "rectangle", Version: 1, X: 0, Y: 0, Width: 100, Height: 50, BackgroundColor: "#ff0000"},
			{ID: "b", Type: "ellipse", Version: 3, X: 120, Y: 10, Width: 40, Height: 40},
		},
		AppState: models.AppState{ViewBackgroundColor: "#ffffff"},
	}
}

func TestIdenticalContentUploadsOnce(t *testing.T) {
	up := newFakeUploader()
	var invalidations atomic.Int32
	g := New(RasterRenderer{}, up, quietLogger(), WithInvalidate(func() { invalidations.Add(1) }))

	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())
	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())

	if n := up.count("doc-1"); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
	if n := invalidations.Load(); n != 1 {
		t.Errorf("invalidations = %d, want 1", n)
	}
	h, ok := g.Hash("doc-1")
	if !ok || h != fingerprint.Content(sampleContent()) {
		t.Errorf("hash = %q, %v", h, ok)
	}
}

func TestChangedRevisionUploadsAgain(t *testing.T) {
	up := newFakeUploader()
	g := New(RasterRenderer{}, up, quietLogger())

	c := sampleContent()
	g.MaybeGenerateAndUpload(context.Background(), ref, c)
	c.Elements[1].Version++
	g.MaybeGenerateAndUpload(context.Background(), ref, c)

	if n := up.count("doc-1"); n != 2 {
		t.Errorf("uploads = %d, want 2", n)
	}
}

func TestConcurrentRunIsSkipped(t *testing.T) {
	up := newFakeUploader()
	up.block = make(chan struct{})
	up.entered = make(chan struct{}, 2)
	g := New(RasterRenderer{}, up, quietLogger())

	g.Go(context.Background(), ref, sampleContent())
	<-up.entered

	if !g.Pending("doc-1") {
		t.Fatal("first run should be pending")
	}
	c := sampleContent()
	c.Elements[0].Version = 99
	g.MaybeGenerateAndUpload(context.Background(), ref, c)

	close(up.block)
	g.Wait()

	if n := up.count("doc-1"); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
	if g.Pending("doc-1") {
		t.Error("pending set should be empty after both runs settle")
	}
}

func TestUploadFailureIsSwallowed(t *testing.T) {
	up := newFakeUploader()
	up.err = errors.New("network down")
	invalidated := false
	g := New(RasterRenderer{}, up, quietLogger(), WithInvalidate(func() { invalidated = true }))

	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())

	if _, ok := g.Hash("doc-1"); ok {
		t.Error("hash must not be recorded after a failed upload")
	}
	if g.Pending("doc-1") {
		t.Error("pending must be cleared on failure")
	}
	if invalidated {
		t.Error("listings must not be invalidated on failure")
	}

	up.mu.Lock()
	up.err = nil
	up.mu.Unlock()
	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())
	if n := up.count("doc-1"); n != 1 {
		t.Errorf("retry uploads = %d, want 1", n)
	}
}

func TestRenderFailureIsSwallowed(t *testing.T) {
	up := newFakeUploader()
	g := New(failingRenderer{}, up, quietLogger())

	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())

	if up.count("doc-1") != 0 || g.Pending("doc-1") {
		t.Error("render failure must not upload or leave the document pending")
	}
}

func TestEmptySceneUsesPlaceholder(t *testing.T) {
	up := newFakeUploader()
	g := New(failingRenderer{}, up, quietLogger())

	empty := models.Content{
		Elements: []models.Element{{ID: "gone", Version: 4, IsDeleted: true}},
		AppState: models.AppState{ViewBackgroundColor: "#000000"},
	}
	g.MaybeGenerateAndUpload(context.Background(), ref, empty)

	if up.count("doc-1") != 1 {
		t.Fatal("placeholder should be uploaded without calling the renderer")
	}
	img, err := png.Decode(bytes.NewReader(up.uploads["doc-1"][0]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("placeholder size = %v", b)
	}
}

func TestClearHashes(t *testing.T) {
	up := newFakeUploader()
	g := New(RasterRenderer{}, up, quietLogger())
	other := models.DocumentRef{WorkspaceID: "ws", DocumentID: "doc-2"}

	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())
	g.MaybeGenerateAndUpload(context.Background(), other, sampleContent())

	g.ClearHash("doc-1")
	if _, ok := g.Hash("doc-1"); ok {
		t.Error("doc-1 hash should be cleared")
	}
	if _, ok := g.Hash("doc-2"); !ok {
		t.Error("doc-2 hash should survive")
	}

	g.MaybeGenerateAndUpload(context.Background(), ref, sampleContent())
	if up.count("doc-1") != 2 {
		t.Error("cleared hash should allow regeneration")
	}

	g.ClearAllHashes()
	if _, ok := g.Hash("doc-2"); ok {
		t.Error("ClearAllHashes should drop every record")
	}
}
