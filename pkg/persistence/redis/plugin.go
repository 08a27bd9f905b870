// Package redis provides the Redis-backed result store used when results
// must outlive the grading process or be shared with the report API.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/osvaldoandrade/gradeq/internal/providers"
	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/pkg/persistence"

	goredis "github.com/go-redis/redis/v8"
)

type pluginConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

func init() {
	persistence.RegisterProvider("redis", func(raw json.RawMessage) (persistence.Plugin, error) {
		var cfg pluginConfig
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("redis persistence config: %w", err)
			}
		}
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("redis persistence config: addr is required")
		}
		client := providers.NewRedisProvider(cfg.Addr, cfg.Password)
		return &plugin{client: client, repo: repository.NewResultRepository(client)}, nil
	})
}

type plugin struct {
	client *goredis.Client
	repo   repository.ResultRepository
}

func (p *plugin) Results() repository.ResultRepository { return p.repo }

func (p *plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *plugin) Close() error { return p.client.Close() }

// Client exposes the underlying connection for callers that register
// store-level collectors.
func (p *plugin) Client() *goredis.Client { return p.client }
