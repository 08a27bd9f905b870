package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/osvaldoandrade/gradeq/pkg/config"
	"github.com/osvaldoandrade/gradeq/pkg/domain"

	"github.com/alicebob/miniredis/v2"
)

type liveRun struct {
	state   domain.BatchState
	stopped bool
}

func (l *liveRun) State() domain.BatchState { return l.state }
func (l *liveRun) Stop()                    { l.stopped = true }

func TestHTTPIntegrationFlow(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.ResultStore = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.AdminToken = "itest-token"
	cfg.LogFormat = "text"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })
	SetupMappings(application)

	repo := application.Store.Results()
	if err := repo.SaveResult(ctx, "run-x", &domain.FunctionalResult{SubmissionID: "s1", Success: true, Score: 92}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveResult(ctx, "run-x", &domain.FunctionalResult{SubmissionID: "s2", Degraded: true, Success: true, Score: 60}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(application.Engine)
	t.Cleanup(srv.Close)

	call := func(method, path, token string) (*http.Response, []byte) {
		t.Helper()
		req, _ := http.NewRequest(method, srv.URL+path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return resp, body
	}

	resp, _ := call(http.MethodGet, "/v1/gradeq/runs/run-x/results", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated results status = %d, want 401", resp.StatusCode)
	}

	resp, body := call(http.MethodGet, "/v1/gradeq/runs/run-x/results", "itest-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results status = %d, body %s", resp.StatusCode, body)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil || list.Count != 2 {
		t.Errorf("results count = %d (%v)", list.Count, err)
	}

	resp, body = call(http.MethodGet, "/v1/gradeq/runs/run-x/summary", "itest-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d", resp.StatusCode)
	}
	var sum domain.RunSummary
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.ByStatus[domain.StatusSucceeded] != 1 || sum.ByStatus[domain.StatusDegraded] != 1 {
		t.Errorf("summary = %+v", sum)
	}

	resp, _ = call(http.MethodPost, "/v1/gradeq/runs/run-x/cancel", "itest-token")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel of inactive run status = %d, want 409", resp.StatusCode)
	}

	run := &liveRun{state: domain.BatchState{Active: 1, Pending: 3}}
	application.Runs.Register("run-x", run)
	resp, body = call(http.MethodGet, "/v1/gradeq/runs/run-x/progress", "itest-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d", resp.StatusCode)
	}
	var st domain.BatchState
	if err := json.Unmarshal(body, &st); err != nil || st.Pending != 3 {
		t.Errorf("progress = %+v (%v)", st, err)
	}

	resp, _ = call(http.MethodPost, "/v1/gradeq/runs/run-x/cancel", "itest-token")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("cancel status = %d, want 202", resp.StatusCode)
	}
	if !run.stopped {
		t.Error("cancel must stop the registered run")
	}

	resp, _ = call(http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, body = call(http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "gradeq_") {
		t.Errorf("metrics endpoint missing gradeq series (status %d)", resp.StatusCode)
	}
}
