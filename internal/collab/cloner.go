package collab

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

// Cloner fetches a submission's repository into the workspace.
type Cloner interface {
	Clone(ctx context.Context, repoURL, dest string) (string, error)
}

type gitCloner struct {
	logger *slog.Logger
}

func NewGitCloner(logger *slog.Logger) Cloner {
	if logger == nil {
		logger = slog.Default()
	}
	return &gitCloner{logger: logger}
}

func (c *gitCloner) Clone(ctx context.Context, repoURL, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCloneFailed, err)
	}
	// A stale dir from an interrupted run would make git refuse the clone.
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCloneFailed, err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", repoURL, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		c.logger.Warn("git clone failed", "repo", repoURL, "err", err)
		return "", fmt.Errorf("%w: %s", domain.ErrCloneFailed, lastLines(string(out), 5))
	}
	return dest, nil
}

// CleanupWorkspace removes every per-submission directory under dir. Used by
// the orchestrator between batches.
func CleanupWorkspace(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
