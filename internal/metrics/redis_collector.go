package metrics

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// maxRunsPerScrape bounds how many run keys a single scrape inspects so a
// long-lived store cannot stall the exporter.
const maxRunsPerScrape = 100

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	runResultsDesc  *prometheus.Desc
	runsTrackedDesc *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		runResultsDesc: prometheus.NewDesc(
			"gradeq_run_results",
			"Number of stored results per grading run.",
			[]string{"run"},
			nil,
		),
		runsTrackedDesc: prometheus.NewDesc(
			"gradeq_runs_tracked",
			"Number of grading runs present in the result store.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runResultsDesc
	ch <- c.runsTrackedDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, "gradeq:run:*:order", 100).Result()
		if err != nil {
			c.logger.Warn("prometheus redis collector failed", "err", err)
			return
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= maxRunsPerScrape {
			break
		}
	}
	if len(keys) > maxRunsPerScrape {
		keys = keys[:maxRunsPerScrape]
	}

	pipe := c.rdb.Pipeline()
	llens := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		llens[i] = pipe.LLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	for i, k := range keys {
		run := strings.TrimSuffix(strings.TrimPrefix(k, "gradeq:run:"), ":order")
		emitGauge(ch, c.runResultsDesc, float64(llens[i].Val()), run)
	}
	emitGauge(ch, c.runsTrackedDesc, float64(len(keys)))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
