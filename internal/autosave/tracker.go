// Package autosave tracks the last known-saved form of each scene so a freshly
// loaded scene is not mistaken for unsaved edits.
package autosave

import (
	"sync"

	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/fingerprint"
)

// Tracker maps scene ids to the checksum of their saved baseline. Baselines
// are taken over the re-encoded document, so formatting alone is not an edit.
type Tracker struct {
	mu        sync.Mutex
	baselines map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{baselines: make(map[string]string)}
}

// Reset records snapshot as the saved baseline of id.
func (t *Tracker) Reset(id string, snapshot []byte) {
	t.mu.Lock()
	t.baselines[id] = canonical(snapshot)
	t.mu.Unlock()
}

// Dirty reports whether data differs from the baseline of id.
// Scenes without a baseline are always dirty.
func (t *Tracker) Dirty(id string, data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	base, ok := t.baselines[id]
	return !ok || base != canonical(data)
}

// Forget drops the baseline of id.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.baselines, id)
	t.mu.Unlock()
}

// ForgetAll drops every baseline.
func (t *Tracker) ForgetAll() {
	t.mu.Lock()
	clear(t.baselines)
	t.mu.Unlock()
}

// canonical fingerprints the normalized form of data. Undecodable bytes are
// fingerprinted as they are.
func canonical(data []byte) string {
	content, err := codec.Decode(data)
	if err != nil {
		return fingerprint.Sum(data)
	}
	norm, err := codec.Encode(*content)
	if err != nil {
		return fingerprint.Sum(data)
	}
	return fingerprint.Sum(norm)
}
