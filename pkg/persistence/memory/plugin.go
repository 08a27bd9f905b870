// Package memory provides an in-process result store, suited to single-shot
// CLI runs and tests.
package memory

import (
	"context"
	"encoding/json"

	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/pkg/persistence"
)

func init() {
	persistence.RegisterProvider("memory", func(_ json.RawMessage) (persistence.Plugin, error) {
		return &plugin{repo: repository.NewMemoryRepository()}, nil
	})
}

type plugin struct {
	repo repository.ResultRepository
}

func (p *plugin) Results() repository.ResultRepository { return p.repo }

func (p *plugin) Health(ctx context.Context) error { return ctx.Err() }

func (p *plugin) Close() error { return nil }
