package api

import (
	"encoding/json"

	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sceneservice"
	"github.com/starford/scenesync/internal/view"
)

// CreateSceneRequest is the request body for creating a scene.
type CreateSceneRequest struct {
	Title         string              `json:"title"`
	WorkspaceSlug string              `json:"workspace_slug,omitempty"`
	AccessRights  models.AccessRights `json:"access_rights,omitempty"`
	Collaborative bool                `json:"collaborative"`
	Content       json.RawMessage     `json:"content,omitempty"`
}

// SceneListResponse wraps paginated scene listings.
type SceneListResponse struct {
	Scenes []sceneservice.SceneListItem `json:"scenes"`
	Total  int                          `json:"total"`
}

// OpenViewRequest asks the coordinator to display a scene.
type OpenViewRequest struct {
	WorkspaceID string `json:"workspace_id"`
	DocumentID  string `json:"document_id"`
	RoomKey     string `json:"room_key,omitempty"`
}

// ViewResponse describes what the live view shows.
type ViewResponse struct {
	Scene   *models.DisplayedScene `json:"scene"`
	Binding *models.CollabBinding  `json:"binding"`
	Loading bool                   `json:"loading"`
	Canvas  view.State             `json:"canvas"`
}
