package coordinator

import (
	"errors"

	"github.com/starford/scenesync/internal/apperr"
	"github.com/starford/scenesync/internal/codec"
)

// Describe turns a load failure into a message fit for the user.
func Describe(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return "Could not open the scene: you are signed out."
	case errors.Is(err, apperr.ErrForbidden):
		return "Could not open the scene: you do not have access to it."
	case errors.Is(err, apperr.ErrNotFound):
		return "Could not open the scene: it no longer exists."
	case errors.Is(err, codec.ErrMalformed):
		return "Could not open the scene: its content is damaged."
	default:
		return "Could not open the scene. Check your connection and try again."
	}
}
