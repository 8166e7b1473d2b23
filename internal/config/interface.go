package config

import (
	"context"
	"errors"
)

// ErrInvalid wraps every validation failure of a loaded model.
var ErrInvalid = errors.New("invalid configuration")

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths and translates it into
	// the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
