package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/internal/services"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type fakeRun struct {
	state   domain.BatchState
	stopped bool
}

func (f *fakeRun) State() domain.BatchState { return f.state }
func (f *fakeRun) Stop()                    { f.stopped = true }

func newRunRouter(t *testing.T) (*gin.Engine, services.RunService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	repo.SaveResult(ctx, "run-1", &domain.FunctionalResult{SubmissionID: "sub-1", Success: true, Score: 85})
	repo.SaveResult(ctx, "run-1", &domain.FunctionalResult{SubmissionID: "sub-2", Success: false, Cause: "build failed"})
	repo.SaveState(ctx, "run-1", domain.BatchState{Completed: 2, BatchSize: 4})

	svc := services.NewRunService(repo, nil)

	r := gin.New()
	runs := r.Group("/v1/gradeq/runs")
	runs.GET("/:id/results", NewListResultsController(svc).Handle)
	runs.GET("/:id/results/:submission", NewGetResultController(svc).Handle)
	runs.GET("/:id/summary", NewRunSummaryController(svc).Handle)
	runs.GET("/:id/progress", NewRunProgressController(svc).Handle)
	runs.POST("/:id/cancel", NewCancelRunController(svc).Handle)
	return r, svc
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListResults(t *testing.T) {
	r, _ := newRunRouter(t)
	w := do(r, http.MethodGet, "/v1/gradeq/runs/run-1/results")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var body struct {
		Count   int                        `json:"count"`
		Results []*domain.FunctionalResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Results) != 2 {
		t.Errorf("count = %d, results = %d", body.Count, len(body.Results))
	}
	if body.Results[0].SubmissionID != "sub-1" {
		t.Errorf("insertion order lost: %s first", body.Results[0].SubmissionID)
	}
}

func TestGetResult(t *testing.T) {
	r, _ := newRunRouter(t)

	w := do(r, http.MethodGet, "/v1/gradeq/runs/run-1/results/sub-2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var res domain.FunctionalResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Cause != "build failed" {
		t.Errorf("cause = %q", res.Cause)
	}

	if w := do(r, http.MethodGet, "/v1/gradeq/runs/run-1/results/ghost"); w.Code != http.StatusNotFound {
		t.Errorf("unknown submission status = %d, want 404", w.Code)
	}
}

func TestRunSummary(t *testing.T) {
	r, _ := newRunRouter(t)
	w := do(r, http.MethodGet, "/v1/gradeq/runs/run-1/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var sum domain.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 {
		t.Errorf("total = %d, want 2", sum.Total)
	}
	if sum.ByStatus[domain.StatusSucceeded] != 1 || sum.ByStatus[domain.StatusFailed] != 1 {
		t.Errorf("byStatus = %v", sum.ByStatus)
	}
}

func TestRunProgress(t *testing.T) {
	r, svc := newRunRouter(t)

	w := do(r, http.MethodGet, "/v1/gradeq/runs/run-1/progress")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var st domain.BatchState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Completed != 2 {
		t.Errorf("snapshot completed = %d, want 2", st.Completed)
	}

	svc.Register("run-1", &fakeRun{state: domain.BatchState{Active: 3, Pending: 5}})
	w = do(r, http.MethodGet, "/v1/gradeq/runs/run-1/progress")
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.Active != 3 || st.Pending != 5 {
		t.Errorf("live state not served: %+v", st)
	}

	if w := do(r, http.MethodGet, "/v1/gradeq/runs/ghost/progress"); w.Code != http.StatusNotFound {
		t.Errorf("unknown run progress status = %d, want 404", w.Code)
	}
}

func TestCancelRun(t *testing.T) {
	r, svc := newRunRouter(t)

	if w := do(r, http.MethodPost, "/v1/gradeq/runs/run-1/cancel"); w.Code != http.StatusConflict {
		t.Errorf("cancel of inactive run status = %d, want 409", w.Code)
	}

	run := &fakeRun{}
	svc.Register("run-1", run)
	w := do(r, http.MethodPost, "/v1/gradeq/runs/run-1/cancel")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if !run.stopped {
		t.Error("cancel endpoint must stop the live run")
	}
}
