package restrepo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const dirPerm = 0o770

// LocalStorage is a Backend implementation rooted at a directory on the
// local filesystem. It delegates atomic object creation to the filesystem's
// exclusive-create hard-link semantics rather than an in-process lock table.
type LocalStorage struct {
	root   string
	quota  int64 // bytes; 0 = unlimited
	log    *logrus.Logger
	sizers *sizeCache
}

// NewLocalStorage returns a LocalStorage rooted at root, enforcing quota
// bytes per repository (0 disables quota enforcement).
func NewLocalStorage(root string, quota int64, log *logrus.Logger) *LocalStorage {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalStorage{
		root:   root,
		quota:  quota,
		log:    log,
		sizers: newSizeCache(),
	}
}

func (s *LocalStorage) repoDir(repo string) string {
	segs := SplitRepoPath(repo)
	return filepath.Join(append([]string{s.root}, segs...)...)
}

func (s *LocalStorage) kindDir(repo string, kind ObjectKind) string {
	return filepath.Join(s.repoDir(repo), string(kind))
}

func (s *LocalStorage) objectPath(repo string, kind ObjectKind, name string) string {
	dir := s.kindDir(repo, kind)
	if kind == KindData && name != "" {
		dir = filepath.Join(dir, Shard(name))
	}
	if kind == KindConfigObj {
		return s.kindDir(repo, kind) // config is a file, not a directory
	}
	return filepath.Join(dir, name)
}

func (s *LocalStorage) CreateRepo(ctx context.Context, repo string) error {
	exists, err := s.RepoExists(ctx, repo)
	if err != nil {
		return err
	}
	if exists {
		return newErr(KindConflict, "repository already exists")
	}

	dir := s.repoDir(repo)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return wrapErr(KindIO, "creating repository", err)
	}
	for _, kind := range AllKinds {
		kindDir := filepath.Join(dir, string(kind))
		if err := os.MkdirAll(kindDir, dirPerm); err != nil {
			return wrapErr(KindIO, "creating kind directory", err)
		}
		if kind == KindData {
			for i := 0; i < 256; i++ {
				shard := shardName(i)
				if err := os.MkdirAll(filepath.Join(kindDir, shard), dirPerm); err != nil {
					return wrapErr(KindIO, "creating shard directory", err)
				}
			}
		}
	}
	return nil
}

func shardName(i int) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[i>>4], hex[i&0xf]})
}

// RepoExists reports whether repo exists, per spec.md §6.4: either the
// config object has been written, or the repository directory tree was
// already initialized by CreateRepo (so objects -- including the config
// itself -- may be written into it even before a config blob lands).
func (s *LocalStorage) RepoExists(ctx context.Context, repo string) (bool, error) {
	if _, err := os.Stat(filepath.Join(s.repoDir(repo), string(KindConfigObj))); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, wrapErr(KindIO, "statting repository", err)
	}

	marker := filepath.Join(s.kindDir(repo, KindData), shardName(0))
	if _, err := os.Stat(marker); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, wrapErr(KindIO, "statting repository", err)
	}
	return false, nil
}

func (s *LocalStorage) Exists(ctx context.Context, repo string, kind ObjectKind, name string) (bool, error) {
	_, err := os.Stat(s.objectPath(repo, kind, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, wrapErr(KindIO, "statting object", err)
}

// List returns every object of kind in repo. Entries whose names fail the
// kind's regex are silently skipped, since they indicate a partially
// written temp file left behind by an interrupted write.
func (s *LocalStorage) List(ctx context.Context, repo string, kind ObjectKind) ([]Entry, error) {
	exists, err := s.RepoExists(ctx, repo)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, newErr(KindNotFound, "repository not found")
	}

	var entries []Entry
	if kind == KindData {
		base := s.kindDir(repo, kind)
		for i := 0; i < 256; i++ {
			shardEntries, err := listDir(filepath.Join(base, shardName(i)), kind)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, wrapErr(KindIO, "listing shard", err)
			}
			entries = append(entries, shardEntries...)
		}
		return entries, nil
	}

	entries, err = listDir(s.kindDir(repo, kind), kind)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapErr(KindIO, "listing kind directory", err)
	}
	return entries, nil
}

func listDir(dir string, kind ObjectKind) ([]Entry, error) {
	fis, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(fis))
	for _, fi := range fis {
		if fi.IsDir() {
			continue
		}
		name := fi.Name()
		if isTempName(name) || !ValidName(kind, name) {
			continue // partially-written temp file; skip silently
		}
		info, err := fi.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Size: info.Size(), Mtime: info.ModTime()})
	}
	return entries, nil
}

func (s *LocalStorage) Read(ctx context.Context, repo string, kind ObjectKind, name string, rng *ByteRange) (*ReadResult, error) {
	path := s.objectPath(repo, kind, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(KindNotFound, "object not found")
		}
		return nil, wrapErr(KindIO, "opening object", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIO, "statting object", err)
	}
	total := fi.Size()

	if rng == nil {
		return &ReadResult{ReadCloser: f, TotalSize: total}, nil
	}

	start, end := rng.Start, rng.End
	if end < 0 || end >= total {
		end = total - 1
	}
	if start < 0 || start >= total || start > end {
		f.Close()
		return nil, newErr(KindRangeNotSatisfiable, "range not satisfiable")
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, wrapErr(KindIO, "seeking object", err)
	}

	clamped := &ByteRange{Start: start, End: end}
	return &ReadResult{
		ReadCloser: &limitedReadCloser{r: io.LimitReader(f, end-start+1), c: f},
		TotalSize:  total,
		Range:      clamped,
	}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

// Write streams body into name using create-exclusive semantics: the data
// lands in a uniquely named temp file in the object's own directory (so the
// final link is atomic on the same filesystem), and is only linked in
// under its final name if that name does not already exist.
func (s *LocalStorage) Write(ctx context.Context, repo string, kind ObjectKind, name string, body io.Reader) (int64, error) {
	exists, err := s.RepoExists(ctx, repo)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, newErr(KindNotFound, "repository not found")
	}

	final := s.objectPath(repo, kind, name)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, wrapErr(KindIO, "preparing object directory", err)
	}

	if _, err := os.Stat(final); err == nil {
		return 0, newErr(KindConflict, "object already exists")
	}

	// Captured before the temp file exists, so the write in progress isn't
	// walked into its own baseline (it would otherwise be counted once here
	// and again via n below, rejecting legitimate writes at roughly half
	// the real quota).
	var used int64
	if s.quota > 0 {
		used, err = s.sizers.repoSize(s.repoDir(repo))
		if err != nil {
			return 0, wrapErr(KindIO, "computing repository size", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.tmp")
	if err != nil {
		return 0, wrapErr(KindIO, "creating temp file", err)
	}
	tmpName := tmp.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return 0, wrapErr(KindIO, "writing object body", err)
	}

	if s.quota > 0 && used+n > s.quota {
		return 0, newErr(KindQuotaExceeded, "repository quota exceeded")
	}

	if err := tmp.Sync(); err != nil {
		return 0, wrapErr(KindIO, "flushing object", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, wrapErr(KindIO, "closing object", err)
	}

	// os.Rename would silently overwrite an existing destination on POSIX,
	// which is exactly the exclusive-create guarantee this write must not
	// violate. os.Link instead fails with EEXIST if final is already taken,
	// atomically, with no window where a concurrent reader could observe a
	// half-written file under the final name; the temp file is then
	// unlinked, leaving final as the object's only remaining name.
	succeeded = true // from here on, tmp is ours to clean up unconditionally
	defer os.Remove(tmpName)

	if err := os.Link(tmpName, final); err != nil {
		if os.IsExist(err) {
			return 0, newErr(KindConflict, "object already exists")
		}
		return 0, wrapErr(KindIO, "finalizing object", err)
	}

	s.sizers.invalidate(s.repoDir(repo))
	return n, nil
}

func (s *LocalStorage) Delete(ctx context.Context, repo string, kind ObjectKind, name string) error {
	path := s.objectPath(repo, kind, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return newErr(KindNotFound, "object not found")
		}
		return wrapErr(KindIO, "removing object", err)
	}
	s.sizers.invalidate(s.repoDir(repo))
	return nil
}

func (s *LocalStorage) Stat(ctx context.Context, repo string, kind ObjectKind, name string) (Entry, error) {
	path := s.objectPath(repo, kind, name)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, newErr(KindNotFound, "object not found")
		}
		return Entry{}, wrapErr(KindIO, "statting object", err)
	}
	return Entry{Name: name, Size: fi.Size(), Mtime: fi.ModTime()}, nil
}

// isTempName reports whether name looks like a LocalStorage temp file, so
// listings skip it defensively even if ValidName's length/charset check
// happened to let it through.
func isTempName(name string) bool {
	return strings.HasPrefix(name, ".tmp-")
}
