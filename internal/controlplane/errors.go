package controlplane

import (
	"errors"
	"net/http"
	"os"

	"github.com/fentz26/helios/internal/registry"
	"github.com/fentz26/helios/internal/tasks"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/workspace"
)

// Sentinel errors for control plane requests.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// statusFor maps workspace errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, workspace.ErrArchiveNotFound),
		errors.Is(err, workspace.ErrEntryNotFound),
		errors.Is(err, workspace.ErrTaskNotFound),
		errors.Is(err, transformer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateArchive),
		errors.Is(err, tasks.ErrNotCancelable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, os.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
