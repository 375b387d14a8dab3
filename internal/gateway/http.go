package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/scenesync/internal/apperr"
	"github.com/starford/scenesync/internal/models"
)

const maxContentBytes = 50 << 20

// HTTPPersistence implements Persistence against a remote scenesync API.
type HTTPPersistence struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPPersistence creates a client for the API rooted at baseURL (e.g. http://host:8080/api).
func NewHTTPPersistence(baseURL, token string, timeout time.Duration) *HTTPPersistence {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPersistence{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ Persistence = (*HTTPPersistence)(nil)

func (p *HTTPPersistence) sceneURL(ref models.DocumentRef, suffix string) string {
	return fmt.Sprintf("%s/workspaces/%s/scenes/%s%s", p.baseURL,
		url.PathEscape(ref.WorkspaceID), url.PathEscape(ref.DocumentID), suffix)
}

// FetchDocumentRecord handles GET /workspaces/{ws}/scenes/{id}.
func (p *HTTPPersistence) FetchDocumentRecord(ctx context.Context, ref models.DocumentRef) (*models.SceneRecord, error) {
	body, err := p.do(ctx, http.MethodGet, p.sceneURL(ref, ""), nil, "")
	if err != nil {
		return nil, err
	}
	var rec models.SceneRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("gateway: decode record: %w", err)
	}
	return &rec, nil
}

// FetchContentBytes handles GET /workspaces/{ws}/scenes/{id}/content.
func (p *HTTPPersistence) FetchContentBytes(ctx context.Context, ref models.DocumentRef) ([]byte, error) {
	return p.do(ctx, http.MethodGet, p.sceneURL(ref, "/content"), nil, "")
}

// UploadPreviewImage handles PUT /workspaces/{ws}/scenes/{id}/preview.
func (p *HTTPPersistence) UploadPreviewImage(ctx context.Context, ref models.DocumentRef, png []byte) error {
	_, err := p.do(ctx, http.MethodPut, p.sceneURL(ref, "/preview"), png, "image/png")
	return err
}

func (p *HTTPPersistence) do(ctx context.Context, method, target string, payload []byte, contentType string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("gateway: read body: %w", err)
	}

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, target, err)
	}
	return data, nil
}

// statusError maps the HTTP status classes of the persistence contract.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return apperr.ErrUnauthenticated
	case code == http.StatusForbidden:
		return apperr.ErrForbidden
	case code == http.StatusNotFound:
		return apperr.ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
