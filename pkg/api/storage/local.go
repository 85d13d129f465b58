package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/boa-dev/conformoor/pkg/config"
)

// Compile-time interface check.
var _ Store = (*localStore)(nil)

type localStore struct {
	root string
}

// NewLocalStore creates a Store backed by a local archive directory.
func NewLocalStore(cfg *config.APILocalStorageConfig) Store {
	return &localStore{root: cfg.Path}
}

// GetRefFile reads {root}/refs/{ref}/{commit}/{filename}.
// Returns (nil, nil) when the file does not exist.
func (s *localStore) GetRefFile(
	ctx context.Context, ref, commit, filename string,
) ([]byte, error) {
	return s.GetFile(ctx, refKey(ref, commit, filename))
}

// GetFile reads an archive path relative to the root. Paths escaping the
// root are rejected. Returns (nil, nil) when the file does not exist.
func (s *localStore) GetFile(
	_ context.Context, path string,
) ([]byte, error) {
	clean := filepath.Clean("/" + path)

	p := filepath.Join(s.root, clean)
	if !strings.HasPrefix(p, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("invalid archive path: %q", path)
	}

	data, err := os.ReadFile(p) //nolint:gosec // rooted above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

// ListCommits returns the directory names under {root}/refs/{ref}/.
func (s *localStore) ListCommits(
	_ context.Context, ref string,
) ([]string, error) {
	dir := filepath.Join(s.root, "refs", filepath.FromSlash(ref))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading ref directory: %w", err)
	}

	commits := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			commits = append(commits, e.Name())
		}
	}

	return commits, nil
}

// PutRefFile writes {root}/refs/{ref}/{commit}/{filename}, creating
// parent directories as needed.
func (s *localStore) PutRefFile(
	_ context.Context, ref, commit, filename string, data []byte,
) error {
	p := filepath.Join(s.root, filepath.FromSlash(refKey(ref, commit, filename)))

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec // report data
		return fmt.Errorf("writing archive file: %w", err)
	}

	return nil
}

// refKey builds the archive key for a ref document.
func refKey(ref, commit, filename string) string {
	return "refs/" + ref + "/" + commit + "/" + filename
}
