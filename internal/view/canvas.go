// Package view holds the headless live view a scene is painted onto.
package view

import (
	"sync"

	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sse"
)

// Publisher receives view state changes.
type Publisher interface {
	Publish(event sse.Event)
}

// State is the published form of the canvas.
type State struct {
	Loading  bool   `json:"loading"`
	SceneID  string `json:"scene_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Elements int    `json:"elements"`
}

// Canvas is the live view. The zero value is not usable; call New.
type Canvas struct {
	pub Publisher

	mu      sync.RWMutex
	loading bool
	scene   *models.Scene
	content models.Content
}

// New creates an empty canvas. pub may be nil.
func New(pub Publisher) *Canvas {
	return &Canvas{pub: pub, content: codec.Empty()}
}

// SetLoading toggles the loading indicator.
func (c *Canvas) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	st := c.stateLocked()
	c.mu.Unlock()
	c.publish(st)
}

// Clear drops the painted scene and shows an empty canvas.
func (c *Canvas) Clear() {
	c.mu.Lock()
	c.scene = nil
	c.content = codec.Empty()
	st := c.stateLocked()
	c.mu.Unlock()
	c.publish(st)
}

// Apply paints a loaded scene.
func (c *Canvas) Apply(scene *models.Scene) {
	c.mu.Lock()
	c.scene = scene
	c.content = scene.Content
	st := c.stateLocked()
	c.mu.Unlock()
	c.publish(st)
}

// Update replaces the painted content while keeping the scene identity,
// as when the displayed scene is saved from elsewhere.
func (c *Canvas) Update(content models.Content) {
	c.mu.Lock()
	c.content = content
	if c.scene != nil {
		s := *c.scene
		s.Content = content
		c.scene = &s
	}
	st := c.stateLocked()
	c.mu.Unlock()
	c.publish(st)
}

// Snapshot returns a copy of the painted content.
func (c *Canvas) Snapshot() models.Content {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.content)
}

// Loading reports whether the loading indicator is on.
func (c *Canvas) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Scene returns the painted scene, or nil when the canvas is empty.
func (c *Canvas) Scene() *models.Scene {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scene
}

// State returns the current published state.
func (c *Canvas) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Canvas) stateLocked() State {
	st := State{Loading: c.loading, Elements: len(c.content.Visible())}
	if c.scene != nil {
		st.SceneID = c.scene.Record.ID
		st.Title = c.scene.Record.Title
	}
	return st
}

func (c *Canvas) publish(st State) {
	if c.pub != nil {
		c.pub.Publish(sse.Event{Type: sse.TypeViewState, Data: st})
	}
}

func clone(in models.Content) models.Content {
	out := in
	out.Elements = append([]models.Element(nil), in.Elements...)
	if in.Files != nil {
		out.Files = make(map[string]models.FileData, len(in.Files))
		for k, v := range in.Files {
			out.Files[k] = v
		}
	}
	return out
}
