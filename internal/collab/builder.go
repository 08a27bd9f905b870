package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/osvaldoandrade/gradeq/internal/backoff"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

const (
	portScanRange   = 1000
	stopGracePeriod = 3 * time.Second
)

type BuildResult struct {
	Success bool
	Log     string
}

// Builder installs dependencies, builds the submission and starts it as a
// local instance. Start hands ownership of the process to the returned
// RunningInstance; its Stop closure kills the whole process group.
type Builder interface {
	InstallAndBuild(ctx context.Context, path string) (BuildResult, error)
	Start(ctx context.Context, submissionID, path string) (*domain.RunningInstance, error)
}

type npmBuilder struct {
	logger   *slog.Logger
	npmBin   string
	basePort int
}

func NewNPMBuilder(logger *slog.Logger, basePort int) Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if basePort <= 0 {
		basePort = 3000
	}
	return &npmBuilder{logger: logger, npmBin: "npm", basePort: basePort}
}

func (b *npmBuilder) InstallAndBuild(ctx context.Context, path string) (BuildResult, error) {
	install := exec.CommandContext(ctx, b.npmBin, "install", "--no-audit", "--no-fund")
	install.Dir = path
	out, err := install.CombinedOutput()
	if err != nil {
		return BuildResult{Log: string(out)}, fmt.Errorf("%w: npm install: %s", domain.ErrBuildFailed, lastLines(string(out), 5))
	}
	log := string(out)

	if hasScript(path, "build") {
		build := exec.CommandContext(ctx, b.npmBin, "run", "build")
		build.Dir = path
		out, err := build.CombinedOutput()
		log += string(out)
		if err != nil {
			return BuildResult{Log: log}, fmt.Errorf("%w: npm run build: %s", domain.ErrBuildFailed, lastLines(string(out), 5))
		}
	}
	return BuildResult{Success: true, Log: log}, nil
}

// Start launches the dev server on a free port and polls the base URL until
// it answers. ctx bounds startup only; the process outlives it.
func (b *npmBuilder) Start(ctx context.Context, submissionID, path string) (*domain.RunningInstance, error) {
	port, err := FreePort(b.basePort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInstanceStart, err)
	}

	cmd := exec.Command(b.npmBin, "start")
	cmd.Dir = path
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PORT=%d", port),
		"BROWSER=none",
		"CI=true",
	)
	// Own process group so Stop can take down npm and everything it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInstanceStart, err)
	}

	stop := func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return nil // already gone
		}
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(stopGracePeriod):
			syscall.Kill(pgid, syscall.SIGKILL)
			<-done
		}
		return nil
	}

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := WaitReady(ctx, baseURL); err != nil {
		stop()
		return nil, fmt.Errorf("%w: %v", domain.ErrInstanceStart, err)
	}

	b.logger.Info("instance started", "submission", submissionID, "port", port)
	return domain.NewRunningInstance(submissionID, baseURL, port, stop), nil
}

// FreePort scans upward from base for a bindable TCP port.
func FreePort(base int) (int, error) {
	for p := base; p < base+portScanRange; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err != nil {
			continue
		}
		l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", base, base+portScanRange)
}

// WaitReady polls url until it serves a non-5xx response or ctx expires.
func WaitReady(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
		}
		delay := backoff.Compute("linear", 250*time.Millisecond, 2*time.Second, attempt, rng)
		select {
		case <-ctx.Done():
			return fmt.Errorf("not ready before deadline: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func hasScript(path, name string) bool {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[name]
	return ok
}
