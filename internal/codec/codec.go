// Package codec decodes and encodes persisted scene documents.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/scenesync/internal/models"
)

// DocumentType is the value of the "type" field of every scene document.
const DocumentType = "scene"

// CurrentVersion is written by Encode.
const CurrentVersion = 2

// DefaultBackground is used when a document does not specify one.
const DefaultBackground = "#ffffff"

// ErrMalformed is returned for content that cannot be restored.
var ErrMalformed = errors.New("malformed scene")

type document struct {
	Type     string                     `json:"type"`
	Version  int                        `json:"version"`
	Source   string                     `json:"source,omitempty"`
	Elements []models.Element           `json:"elements"`
	AppState models.AppState            `json:"appState"`
	Files    map[string]models.FileData `json:"files,omitempty"`
}

// Decode parses raw scene bytes. Empty input decodes to an empty scene.
func Decode(data []byte) (*models.Content, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		c := Empty()
		return &c, nil
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Type != DocumentType {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformed, doc.Type)
	}

	seen := make(map[string]struct{}, len(doc.Elements))
	for i, el := range doc.Elements {
		if el.ID == "" {
			return nil, fmt.Errorf("%w: element %d has no id", ErrMalformed, i)
		}
		if _, dup := seen[el.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate element id %q", ErrMalformed, el.ID)
		}
		seen[el.ID] = struct{}{}
	}

	if doc.AppState.ViewBackgroundColor == "" {
		doc.AppState.ViewBackgroundColor = DefaultBackground
	}
	if doc.Elements == nil {
		doc.Elements = []models.Element{}
	}

	return &models.Content{
		Elements: doc.Elements,
		AppState: doc.AppState,
		Files:    doc.Files,
	}, nil
}

// Encode serializes content as a scene document.
func Encode(c models.Content) ([]byte, error) {
	els := c.Elements
	if els == nil {
		els = []models.Element{}
	}
	return json.Marshal(document{
		Type:     DocumentType,
		Version:  CurrentVersion,
		Source:   "scenesync",
		Elements: els,
		AppState: c.AppState,
		Files:    c.Files,
	})
}

// Empty returns the content of a blank canvas.
func Empty() models.Content {
	return models.Content{
		Elements: []models.Element{},
		AppState: models.AppState{ViewBackgroundColor: DefaultBackground},
	}
}
