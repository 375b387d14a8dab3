package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scenesync/internal/autosave"
	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/coordinator"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sceneservice"
	"github.com/starford/scenesync/internal/thumbnail"
	"github.com/starford/scenesync/internal/view"
)

const (
	maxSceneBytes   = 10 << 20
	maxPreviewBytes = 10 << 20
)

// Notifier receives scene change events.
type Notifier interface {
	PublishSceneEvent(kind string, ref models.DocumentRef)
}

// RoomSaver writes live-view saves into the joined collaboration room.
type RoomSaver interface {
	Save(ctx context.Context, roomID, roomKey string, content models.Content) error
	ActiveDocumentID() string
}

// Deps are the collaborators the handlers use. Rooms and Events may be nil.
type Deps struct {
	Scenes      *sceneservice.Service
	Coordinator *coordinator.Coordinator
	Canvas      *view.Canvas
	Thumbnails  *thumbnail.Generator
	Autosave    *autosave.Tracker
	Rooms       RoomSaver
	Events      Notifier
}

// Handler holds API route handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

func sceneRef(r *http.Request) models.DocumentRef {
	return models.DocumentRef{
		WorkspaceID: chi.URLParam(r, "ws"),
		DocumentID:  chi.URLParam(r, "id"),
	}
}

func (h *Handler) notify(kind string, ref models.DocumentRef) {
	if h.Events != nil {
		h.Events.PublishSceneEvent(kind, ref)
	}
}

// ListScenes handles GET /api/workspaces/{ws}/scenes.
func (h *Handler) ListScenes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	ws := chi.URLParam(r, "ws")

	items, total, err := h.Scenes.ListScenes(r.Context(), ws, limit, offset)
	if err != nil {
		writeError(w, "list scenes", err, slog.String("workspace", ws))
		return
	}
	if items == nil {
		items = []sceneservice.SceneListItem{}
	}
	writeJSON(w, http.StatusOK, SceneListResponse{Scenes: items, Total: total})
}

// CreateScene handles POST /api/workspaces/{ws}/scenes.
func (h *Handler) CreateScene(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSceneBytes)
	var req CreateSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	switch req.AccessRights {
	case "", models.AccessOwner, models.AccessEdit, models.AccessView:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown access_rights"))
		return
	}

	rec, err := h.Scenes.CreateScene(r.Context(), sceneservice.CreateInput{
		WorkspaceID:   chi.URLParam(r, "ws"),
		WorkspaceSlug: req.WorkspaceSlug,
		Title:         req.Title,
		AccessRights:  req.AccessRights,
		Collaborative: req.Collaborative,
		Content:       req.Content,
	})
	if err != nil {
		writeError(w, "create scene", err)
		return
	}
	h.notify("created", rec.Ref())
	writeJSON(w, http.StatusCreated, rec)
}

// GetScene handles GET /api/workspaces/{ws}/scenes/{id}.
func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	rec, err := h.Scenes.GetRecord(r.Context(), ref)
	if err != nil {
		writeError(w, "get scene", err, slog.String("scene", ref.String()))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteScene handles DELETE /api/workspaces/{ws}/scenes/{id}.
func (h *Handler) DeleteScene(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	if err := h.Scenes.DeleteScene(r.Context(), ref); err != nil {
		writeError(w, "delete scene", err, slog.String("scene", ref.String()))
		return
	}
	h.Thumbnails.ClearHash(ref.DocumentID)
	h.Autosave.Forget(ref.DocumentID)
	h.notify("deleted", ref)
	w.WriteHeader(http.StatusNoContent)
}

// GetContent handles GET /api/workspaces/{ws}/scenes/{id}/content.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	data, checksum, err := h.Scenes.GetContent(r.Context(), ref)
	if err != nil {
		writeError(w, "get content", err, slog.String("scene", ref.String()))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", `"`+checksum+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PutContent handles PUT /api/workspaces/{ws}/scenes/{id}/content.
// The body is a raw scene document; If-Match carries the expected checksum.
func (h *Handler) PutContent(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxSceneBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	rec, content, err := h.Scenes.SaveContent(r.Context(), ref, data, ifMatch)
	if err != nil {
		writeError(w, "save content", err, slog.String("scene", ref.String()))
		return
	}

	if cur := h.Coordinator.Current(); cur != nil && cur.SceneID == ref.DocumentID && cur.WorkspaceID == ref.WorkspaceID {
		h.Canvas.Update(*content)
		h.Autosave.Reset(ref.DocumentID, data)
	}
	h.Thumbnails.Go(r.Context(), ref, *content)
	h.notify("updated", ref)

	w.Header().Set("ETag", `"`+rec.Checksum+`"`)
	writeJSON(w, http.StatusOK, rec)
}

// GetPreview handles GET /api/workspaces/{ws}/scenes/{id}/preview.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	data, err := h.Scenes.GetPreview(r.Context(), ref)
	if err != nil {
		writeError(w, "get preview", err, slog.String("scene", ref.String()))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PutPreview handles PUT /api/workspaces/{ws}/scenes/{id}/preview.
func (h *Handler) PutPreview(w http.ResponseWriter, r *http.Request) {
	ref := sceneRef(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxPreviewBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("preview too large"))
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty preview"))
		return
	}
	if err := h.Scenes.PutPreview(r.Context(), ref, data); err != nil {
		writeError(w, "put preview", err, slog.String("scene", ref.String()))
		return
	}
	h.Scenes.InvalidateListings()
	h.notify("preview", ref)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) viewState() ViewResponse {
	return ViewResponse{
		Scene:   h.Coordinator.Current(),
		Binding: h.Coordinator.Binding(),
		Loading: h.Coordinator.Loading(),
		Canvas:  h.Canvas.State(),
	}
}

// GetView handles GET /api/view.
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.viewState())
}

// OpenView handles POST /api/view/open. It returns once the load settles or is queued.
func (h *Handler) OpenView(w http.ResponseWriter, r *http.Request) {
	var req OpenViewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ref := models.DocumentRef{WorkspaceID: req.WorkspaceID, DocumentID: req.DocumentID}
	if !ref.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody("workspace_id and document_id are required"))
		return
	}

	h.Coordinator.LoadDocument(context.WithoutCancel(r.Context()), ref, coordinator.LoadOptions{
		RoomKeyOverride: req.RoomKey,
	})
	writeJSON(w, http.StatusOK, h.viewState())
}

// SaveView handles PUT /api/view/content: a save of the live view.
// Collaborative scenes are saved to their room, solo scenes to storage when changed.
// Saves are refused while a load is in flight.
func (h *Handler) SaveView(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSceneBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	content, err := codec.Decode(data)
	if err != nil {
		writeError(w, "save view", err)
		return
	}
	// The canvas is cleared for the incoming scene; content sent now belongs to the old one.
	if h.Coordinator.Loading() {
		writeJSON(w, http.StatusConflict, errorBody("scene is loading"))
		return
	}
	cur := h.Coordinator.Current()
	if cur == nil {
		writeJSON(w, http.StatusConflict, errorBody("no scene displayed"))
		return
	}
	ref := models.DocumentRef{WorkspaceID: cur.WorkspaceID, DocumentID: cur.SceneID}

	if binding := h.Coordinator.Binding(); binding != nil && h.Rooms != nil {
		if id := h.Rooms.ActiveDocumentID(); id != "" {
			ref.DocumentID = id
		}
		if err := h.Rooms.Save(r.Context(), binding.RoomID, binding.RoomKey, *content); err != nil {
			writeError(w, "save room", err, slog.String("room", binding.RoomID))
			return
		}
	} else {
		if !h.Autosave.Dirty(ref.DocumentID, data) {
			writeJSON(w, http.StatusOK, map[string]bool{"saved": false})
			return
		}
		if _, _, err := h.Scenes.SaveContent(r.Context(), ref, data, ""); err != nil {
			writeError(w, "save view", err, slog.String("scene", ref.String()))
			return
		}
		h.Autosave.Reset(ref.DocumentID, data)
		h.notify("updated", ref)
	}

	h.Canvas.Update(*content)
	h.Thumbnails.Go(r.Context(), ref, *content)
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// Logout handles POST /api/session/logout.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.Thumbnails.ClearAllHashes()
	h.Autosave.ForgetAll()
	w.WriteHeader(http.StatusNoContent)
}
