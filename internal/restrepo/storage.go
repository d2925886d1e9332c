package restrepo

import (
	"context"
	"io"
	"time"
)

// Entry describes one listed object.
type Entry struct {
	Name  string
	Size  int64
	Mtime time.Time
}

// ByteRange is an inclusive [Start, End] byte range; End < 0 means "to end
// of file", matching an absent HTTP Range end.
type ByteRange struct {
	Start int64
	End   int64
}

// ReadResult is the streamed outcome of Backend.Read.
type ReadResult struct {
	io.ReadCloser
	// TotalSize is the full object size, independent of any requested range.
	TotalSize int64
	// Range is non-nil when the read was clamped to a byte range.
	Range *ByteRange
}

// Backend is the storage contract of the Storage Backend component (C2): a
// local, content-addressed, create-exclusive object store, keyed by
// (repository path, object kind, object name).
type Backend interface {
	// CreateRepo creates the directory tree for repo, including the five
	// kind sub-directories (config is a file, not a directory) and, for
	// data, all 256 shard directories. Returns a Conflict error if the
	// repository already exists, as RepoExists reports it.
	CreateRepo(ctx context.Context, repo string) error

	// RepoExists reports whether repo exists: its config object is present,
	// or its directory tree was already initialized by CreateRepo.
	RepoExists(ctx context.Context, repo string) (bool, error)

	// Exists reports whether the named object exists within repo.
	Exists(ctx context.Context, repo string, kind ObjectKind, name string) (bool, error)

	// List returns every object of kind stored in repo. For KindData this
	// is the union over all 256 shard directories. Returns NotFound if
	// repo does not exist.
	List(ctx context.Context, repo string, kind ObjectKind) ([]Entry, error)

	// Read opens name for reading, honoring an optional byte range.
	Read(ctx context.Context, repo string, kind ObjectKind, name string, rng *ByteRange) (*ReadResult, error)

	// Write stores body under name using create-exclusive semantics: if
	// name already exists the write fails with Conflict and no bytes of
	// the existing object are touched. Returns the number of bytes
	// written on success.
	Write(ctx context.Context, repo string, kind ObjectKind, name string, body io.Reader) (int64, error)

	// Delete removes name. Returns NotFound if it does not exist.
	Delete(ctx context.Context, repo string, kind ObjectKind, name string) error

	// Stat returns the size and modification time of name.
	Stat(ctx context.Context, repo string, kind ObjectKind, name string) (Entry, error)
}
