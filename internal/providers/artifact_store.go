package providers

import (
	"context"
	"os"
	"path/filepath"
)

// ArtifactStore persists run artifacts (report JSON, captured evidence) and
// returns a stable reference to them.
type ArtifactStore interface {
	Put(ctx context.Context, objectPath string, data []byte) (string, error)
}

type localStore struct {
	rootDir string
}

func NewLocalArtifactStore(rootDir string) ArtifactStore {
	return &localStore{rootDir: rootDir}
}

func (s *localStore) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	dst := filepath.Join(s.rootDir, objectPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(dst)
	return "file://" + abs, nil
}
