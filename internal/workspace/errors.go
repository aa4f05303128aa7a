package workspace

import (
	"errors"

	"github.com/fentz26/helios/internal/registry"
)

// Sentinel errors for workspace operations.
var (
	ErrArchiveNotFound = registry.ErrArchiveNotFound
	ErrEntryNotFound   = errors.New("entry not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrClosed          = errors.New("workspace closed")
)
