package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/osvaldoandrade/gradeq/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupRedisRepo(t *testing.T) (context.Context, ResultRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return context.Background(), NewResultRepository(rdb)
}

func sampleResult(id string, score int) *domain.FunctionalResult {
	return &domain.FunctionalResult{
		SubmissionID: id,
		Student:      "student-" + id,
		Strategy:     domain.StrategyBrowser,
		Success:      true,
		Score:        score,
		SubScores:    domain.SubScores{AppLoads: 20, Buttons: 20},
	}
}

func repoImpls(t *testing.T) map[string]func(*testing.T) (context.Context, ResultRepository) {
	return map[string]func(*testing.T) (context.Context, ResultRepository){
		"redis": setupRedisRepo,
		"memory": func(t *testing.T) (context.Context, ResultRepository) {
			return context.Background(), NewMemoryRepository()
		},
	}
}

func TestSaveAndGetResult(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)

			if err := repo.SaveResult(ctx, "run-1", sampleResult("sub-1", 80)); err != nil {
				t.Fatalf("SaveResult: %v", err)
			}
			got, err := repo.GetResult(ctx, "run-1", "sub-1")
			if err != nil {
				t.Fatalf("GetResult: %v", err)
			}
			if got.Score != 80 || got.Strategy != domain.StrategyBrowser {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestGetResultNotFound(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)
			if _, err := repo.GetResult(ctx, "run-1", "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListResultsPreservesOrderAndReplaces(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)

			for i := 0; i < 4; i++ {
				id := fmt.Sprintf("sub-%d", i)
				if err := repo.SaveResult(ctx, "run-1", sampleResult(id, 50+i)); err != nil {
					t.Fatalf("SaveResult %s: %v", id, err)
				}
			}
			// Re-run of sub-1 replaces in place.
			if err := repo.SaveResult(ctx, "run-1", sampleResult("sub-1", 99)); err != nil {
				t.Fatalf("SaveResult re-run: %v", err)
			}

			results, err := repo.ListResults(ctx, "run-1")
			if err != nil {
				t.Fatalf("ListResults: %v", err)
			}
			if len(results) != 4 {
				t.Fatalf("len = %d, want 4", len(results))
			}
			for i, r := range results {
				if want := fmt.Sprintf("sub-%d", i); r.SubmissionID != want {
					t.Errorf("position %d = %s, want %s", i, r.SubmissionID, want)
				}
			}
			if results[1].Score != 99 {
				t.Errorf("replaced score = %d, want 99", results[1].Score)
			}
		})
	}
}

func TestListResultsEmptyRun(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)
			results, err := repo.ListResults(ctx, "ghost")
			if err != nil {
				t.Fatalf("ListResults: %v", err)
			}
			if len(results) != 0 {
				t.Errorf("len = %d, want 0", len(results))
			}
		})
	}
}

func TestRunIsolation(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)
			repo.SaveResult(ctx, "run-a", sampleResult("sub-1", 10))
			repo.SaveResult(ctx, "run-b", sampleResult("sub-1", 20))

			a, err := repo.GetResult(ctx, "run-a", "sub-1")
			if err != nil {
				t.Fatal(err)
			}
			b, err := repo.GetResult(ctx, "run-b", "sub-1")
			if err != nil {
				t.Fatal(err)
			}
			if a.Score != 10 || b.Score != 20 {
				t.Errorf("runs bleed into each other: a=%d b=%d", a.Score, b.Score)
			}
		})
	}
}

func TestSaveAndGetState(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)

			if _, err := repo.GetState(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing state err = %v, want ErrNotFound", err)
			}
			st := domain.BatchState{Active: 2, Completed: 5, Pending: 3, BatchSize: 4, MemPressure: 0.42}
			if err := repo.SaveState(ctx, "run-1", st); err != nil {
				t.Fatalf("SaveState: %v", err)
			}
			got, err := repo.GetState(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetState: %v", err)
			}
			if got != st {
				t.Errorf("state = %+v, want %+v", got, st)
			}
		})
	}
}

func TestSaveResultRejectsMissingID(t *testing.T) {
	for name, setup := range repoImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx, repo := setup(t)
			if err := repo.SaveResult(ctx, "run-1", &domain.FunctionalResult{}); err == nil {
				t.Error("result without submission id must be rejected")
			}
		})
	}
}
