package persistence

import (
	"context"

	"github.com/osvaldoandrade/gradeq/internal/repository"
)

// Plugin is a pluggable result-store backend. Backends register themselves
// via RegisterProvider and are selected by name from configuration.
type Plugin interface {
	// Results returns the result repository backed by this plugin.
	Results() repository.ResultRepository

	// Health checks if the backend is reachable.
	Health(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}
