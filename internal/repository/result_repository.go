package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/osvaldoandrade/gradeq/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("not-found")

// ResultRepository persists per-run grading results so the report server can
// read a run produced by another process, and so a run survives a restart of
// the reader.
type ResultRepository interface {
	SaveResult(ctx context.Context, runID string, res *domain.FunctionalResult) error
	GetResult(ctx context.Context, runID, submissionID string) (*domain.FunctionalResult, error)
	ListResults(ctx context.Context, runID string) ([]*domain.FunctionalResult, error)
	SaveState(ctx context.Context, runID string, st domain.BatchState) error
	GetState(ctx context.Context, runID string) (domain.BatchState, error)
}

type resultRedisRepo struct {
	rdb *redis.Client
}

func NewResultRepository(rdb *redis.Client) ResultRepository {
	return &resultRedisRepo{rdb: rdb}
}

func (r *resultRedisRepo) keyResultsHash(runID string) string {
	return fmt.Sprintf("gradeq:run:%s:results", runID)
}
func (r *resultRedisRepo) keyOrder(runID string) string {
	return fmt.Sprintf("gradeq:run:%s:order", runID)
}
func (r *resultRedisRepo) keyState(runID string) string {
	return fmt.Sprintf("gradeq:run:%s:state", runID)
}

func (r *resultRedisRepo) SaveResult(ctx context.Context, runID string, res *domain.FunctionalResult) error {
	if res == nil || res.SubmissionID == "" {
		return fmt.Errorf("result without submission id")
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	// First write for a submission claims its slot in the order list;
	// re-runs overwrite the hash entry in place.
	added, err := r.rdb.HSetNX(ctx, r.keyResultsHash(runID), res.SubmissionID, string(b)).Result()
	if err != nil {
		return fmt.Errorf("redis HSETNX result: %w", err)
	}
	if added {
		if err := r.rdb.RPush(ctx, r.keyOrder(runID), res.SubmissionID).Err(); err != nil {
			return fmt.Errorf("redis RPUSH order: %w", err)
		}
		return nil
	}
	if err := r.rdb.HSet(ctx, r.keyResultsHash(runID), res.SubmissionID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET result: %w", err)
	}
	return nil
}

func (r *resultRedisRepo) GetResult(ctx context.Context, runID, submissionID string) (*domain.FunctionalResult, error) {
	js, err := r.rdb.HGet(ctx, r.keyResultsHash(runID), submissionID).Result()
	if err == redis.Nil || js == "" {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET result: %w", err)
	}
	var res domain.FunctionalResult
	if err := json.Unmarshal([]byte(js), &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

func (r *resultRedisRepo) ListResults(ctx context.Context, runID string) ([]*domain.FunctionalResult, error) {
	ids, err := r.rdb.LRange(ctx, r.keyOrder(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := r.rdb.HMGet(ctx, r.keyResultsHash(runID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET results: %w", err)
	}
	out := make([]*domain.FunctionalResult, 0, len(ids))
	for _, v := range raw {
		js, ok := v.(string)
		if !ok || js == "" {
			continue
		}
		var res domain.FunctionalResult
		if err := json.Unmarshal([]byte(js), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, &res)
	}
	return out, nil
}

func (r *resultRedisRepo) SaveState(ctx context.Context, runID string, st domain.BatchState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := r.rdb.Set(ctx, r.keyState(runID), string(b), 0).Err(); err != nil {
		return fmt.Errorf("redis SET state: %w", err)
	}
	return nil
}

func (r *resultRedisRepo) GetState(ctx context.Context, runID string) (domain.BatchState, error) {
	js, err := r.rdb.Get(ctx, r.keyState(runID)).Result()
	if err == redis.Nil {
		return domain.BatchState{}, ErrNotFound
	}
	if err != nil {
		return domain.BatchState{}, fmt.Errorf("redis GET state: %w", err)
	}
	var st domain.BatchState
	if err := json.Unmarshal([]byte(js), &st); err != nil {
		return domain.BatchState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}
