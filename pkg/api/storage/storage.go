package storage

import "context"

// Reader provides read access to archived report documents stored in a
// backend (local filesystem or S3). It is used by the file-serving
// endpoints without knowing the underlying storage details.
type Reader interface {
	// GetRefFile reads an archived document for a ref and commit.
	// Returns (nil, nil) when the file does not exist.
	GetRefFile(
		ctx context.Context, ref, commit, filename string,
	) ([]byte, error)

	// GetFile reads an arbitrary archive path relative to the root.
	// Returns (nil, nil) when the file does not exist.
	GetFile(ctx context.Context, path string) ([]byte, error)

	// ListCommits returns the archived commit hashes for a ref.
	ListCommits(ctx context.Context, ref string) ([]string, error)
}

// Writer provides write access to the report archive. The collector
// archives the raw upstream documents alongside the indexed snapshots.
type Writer interface {
	// PutRefFile stores an archived document for a ref and commit.
	PutRefFile(
		ctx context.Context, ref, commit, filename string, data []byte,
	) error
}

// Store combines archive read and write access.
type Store interface {
	Reader
	Writer
}
