// Package fingerprint computes change-detection digests for scenes and raw content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/scenesync/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Scene returns a short base-36 djb2 fingerprint of the visible content.
//
// The canonical input is "id:version" for every non-deleted element in input
// order, then the background color, then the sorted asset ids. Deleted elements
// contribute nothing.
func Scene(elements []models.Element, background string, fileIDs []string) string {
	var b strings.Builder
	first := true
	for _, el := range elements {
		if el.IsDeleted {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(el.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(el.Version, 10))
	}
	b.WriteByte('|')
	b.WriteString(background)
	b.WriteByte('|')

	ids := slices.Clone(fileIDs)
	slices.Sort(ids)
	b.WriteString(strings.Join(ids, ","))

	return strconv.FormatUint(uint64(djb2(b.String())), 36)
}

// Content is Scene applied to decoded scene content.
func Content(c models.Content) string {
	return Scene(c.Elements, c.AppState.ViewBackgroundColor, c.FileIDs())
}

func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}
