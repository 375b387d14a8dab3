// Package models defines the domain types for scenesync.
package models

import (
	"fmt"
	"time"
)

// DocumentRef identifies a loadable scene. Treat it as a value; never mutate a shared one.
type DocumentRef struct {
	WorkspaceID string `json:"workspace_id"`
	DocumentID  string `json:"document_id"`
}

// String renders the reference as "workspace/document".
func (r DocumentRef) String() string {
	return fmt.Sprintf("%s/%s", r.WorkspaceID, r.DocumentID)
}

// Valid reports whether both halves of the reference are set.
func (r DocumentRef) Valid() bool {
	return r.WorkspaceID != "" && r.DocumentID != ""
}

// AccessRights is the viewer's permission level on a scene.
type AccessRights string

const (
	AccessOwner AccessRights = "owner"
	AccessEdit  AccessRights = "edit"
	AccessView  AccessRights = "view"
)

// CanCollaborate reports whether the rights allow joining a live room.
func (a AccessRights) CanCollaborate() bool {
	return a == AccessOwner || a == AccessEdit
}

// SceneRecord is the persisted metadata of a scene, as returned by the persistence gateway.
type SceneRecord struct {
	ID            string       `json:"id"`
	WorkspaceID   string       `json:"workspace_id"`
	WorkspaceSlug string       `json:"workspace_slug"`
	Title         string       `json:"title"`
	AccessRights  AccessRights `json:"access_rights"`
	RoomID        string       `json:"room_id,omitempty"`
	RoomKey       string       `json:"room_key,omitempty"`
	Content       []byte       `json:"content,omitempty"`
	Checksum      string       `json:"checksum"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Ref returns the document reference of the record.
func (r *SceneRecord) Ref() DocumentRef {
	return DocumentRef{WorkspaceID: r.WorkspaceID, DocumentID: r.ID}
}

// HasRoom reports whether the scene is bound to a collaboration room.
func (r *SceneRecord) HasRoom() bool {
	return r.RoomID != "" && r.RoomKey != ""
}

// Element is one drawable item of a scene.
type Element struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Version         int64   `json:"version"`
	IsDeleted       bool    `json:"isDeleted,omitempty"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	StrokeColor     string  `json:"strokeColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	Text            string  `json:"text,omitempty"`
	FileID          string  `json:"fileId,omitempty"`
}

// AppState holds scene-wide display settings.
type AppState struct {
	ViewBackgroundColor string `json:"viewBackgroundColor"`
	Theme               string `json:"theme,omitempty"`
}

// Dark reports whether the scene uses the dark theme.
func (s AppState) Dark() bool {
	return s.Theme == "dark"
}

// FileData is a binary asset referenced by image elements.
type FileData struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataURL"`
}

// Content is the decoded body of a scene.
type Content struct {
	Elements []Element          `json:"elements"`
	AppState AppState           `json:"appState"`
	Files    map[string]FileData `json:"files,omitempty"`
}

// Visible returns the elements that are not deleted, in input order.
func (c Content) Visible() []Element {
	out := make([]Element, 0, len(c.Elements))
	for _, el := range c.Elements {
		if !el.IsDeleted {
			out = append(out, el)
		}
	}
	return out
}

// FileIDs returns the ids of every referenced binary asset.
func (c Content) FileIDs() []string {
	out := make([]string, 0, len(c.Files))
	for id := range c.Files {
		out = append(out, id)
	}
	return out
}

// Scene is a record together with its decoded content.
type Scene struct {
	Record  SceneRecord `json:"record"`
	Content Content     `json:"content"`
}

// CollabBinding describes the live room the displayed scene is bound to.
// AutoJoined bindings cannot be left manually. Session is the gateway's join
// generation, handed back on leave.
type CollabBinding struct {
	RoomID     string `json:"room_id"`
	RoomKey    string `json:"-"`
	Session    uint64 `json:"-"`
	AutoJoined bool   `json:"auto_joined"`
}

// DisplayedScene is the identity of what is on screen right now.
type DisplayedScene struct {
	SceneID       string       `json:"scene_id"`
	WorkspaceID   string       `json:"workspace_id"`
	Title         string       `json:"title"`
	AccessRights  AccessRights `json:"access_rights"`
	WorkspaceSlug string       `json:"workspace_slug"`
}
