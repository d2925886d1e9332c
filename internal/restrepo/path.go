package restrepo

import (
	"regexp"
	"strings"
)

// ObjectKind identifies one of the six object kinds a repository stores.
type ObjectKind string

// The six object kinds a repository is composed of.
const (
	KindConfigObj ObjectKind = "config"
	KindKeys      ObjectKind = "keys"
	KindSnapshots ObjectKind = "snapshots"
	KindIndex     ObjectKind = "index"
	KindData      ObjectKind = "data"
	KindLocks     ObjectKind = "locks"
)

// AllKinds are the five listable, sub-directory kinds -- config is a
// singleton and is never listed.
var AllKinds = []ObjectKind{KindKeys, KindSnapshots, KindIndex, KindData, KindLocks}

var nameLength = map[ObjectKind]int{
	KindKeys:      32,
	KindSnapshots: 64,
	KindIndex:     64,
	KindData:      64,
	KindLocks:     64,
}

var hexName = regexp.MustCompile(`^[0-9a-fA-F]+$`)

var repoSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidKind reports whether s names one of the six object kinds.
func ValidKind(s string) (ObjectKind, bool) {
	k := ObjectKind(s)
	switch k {
	case KindConfigObj, KindKeys, KindSnapshots, KindIndex, KindData, KindLocks:
		return k, true
	}
	return "", false
}

// ValidName reports whether name is an acceptable object name for kind.
// config has no name (name must be empty); every other kind requires
// lowercase-or-uppercase hex of the exact length spec.md §3.1 assigns it.
func ValidName(kind ObjectKind, name string) bool {
	if kind == KindConfigObj {
		return name == ""
	}
	want, ok := nameLength[kind]
	if !ok {
		return false
	}
	return len(name) == want && hexName.MatchString(name)
}

// Shard returns the 2-hex shard directory for a data object name. Callers
// must have already validated the name with ValidName.
func Shard(name string) string {
	return strings.ToLower(name[:2])
}

// ValidRepoPath reports whether path is a well-formed repository path: the
// root repo "" (or "/") or a sequence of "/"-separated alphanumeric /
// underscore / hyphen segments.
func ValidRepoPath(path string) bool {
	segs := SplitRepoPath(path)
	for _, s := range segs {
		if !repoSegment.MatchString(s) {
			return false
		}
	}
	return true
}

// SplitRepoPath splits a repo path into its non-empty segments. The root
// repo yields an empty slice.
func SplitRepoPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// TargetKind discriminates the shape of a parsed request path.
type TargetKind int

const (
	TargetHealth TargetKind = iota
	TargetRepo
	TargetKindList
	TargetObject
	TargetConfig
	TargetMetrics
)

// Target is the typed result of parsing an HTTP method and URL path: a
// repository path plus the object-kind-shaped thing the request addresses.
type Target struct {
	Kind       TargetKind
	RepoPath   string // normalized, no leading/trailing slash; "" is root repo
	ObjectKind ObjectKind // set for TargetKindList and TargetObject
	Name       string // set for TargetObject
	Create     bool   // set for TargetRepo, from the ?create= query flag
}

// ParseError describes which validation rule a request path violated.
type ParseError struct {
	Rule string
}

func (e *ParseError) Error() string { return e.Rule }

// Parse decomposes a raw URL path (+ a "create" query flag,
// already extracted by the caller since query-string parsing is an HTTP
// concern C1 does not own) into a Target, or a *ParseError describing the
// first rule the path violates.
func Parse(rawPath string, createFlag bool) (Target, error) {
	p := strings.TrimPrefix(rawPath, "/")

	if p == "health/live" || p == "health/live/" {
		return Target{Kind: TargetHealth}, nil
	}
	if p == "metrics" {
		return Target{Kind: TargetMetrics}, nil
	}

	trailingSlash := strings.HasSuffix(p, "/")
	trimmed := strings.TrimSuffix(p, "/")

	segs := SplitRepoPath(trimmed)

	// Walk backwards: the last one or two segments may be "config",
	// "<kind>", or "<kind>/<name>". Everything before that is the repo path.
	switch {
	case len(segs) == 0:
		// "/" or "" -- the repo root itself.
		return Target{Kind: TargetRepo, RepoPath: "", Create: createFlag}, nil

	case segs[len(segs)-1] == string(KindConfigObj) && !trailingSlash:
		repo := segs[:len(segs)-1]
		if err := validateSegs(repo); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetConfig, RepoPath: strings.Join(repo, "/")}, nil

	case len(segs) >= 1:
		last := segs[len(segs)-1]
		if k, ok := ValidKind(last); ok && k != KindConfigObj {
			if !trailingSlash {
				return Target{}, &ParseError{Rule: "kind listing requires a trailing slash"}
			}
			repo := segs[:len(segs)-1]
			if err := validateSegs(repo); err != nil {
				return Target{}, err
			}
			return Target{Kind: TargetKindList, RepoPath: strings.Join(repo, "/"), ObjectKind: k}, nil
		}

		if len(segs) >= 2 {
			maybeKind := segs[len(segs)-2]
			name := segs[len(segs)-1]
			if k, ok := ValidKind(maybeKind); ok && k != KindConfigObj {
				if trailingSlash {
					return Target{}, &ParseError{Rule: "object path must not have a trailing slash"}
				}
				repo := segs[:len(segs)-2]
				if err := validateSegs(repo); err != nil {
					return Target{}, err
				}
				if !ValidName(k, name) {
					return Target{}, &ParseError{Rule: "invalid object name for kind " + string(k)}
				}
				return Target{
					Kind:       TargetObject,
					RepoPath:   strings.Join(repo, "/"),
					ObjectKind: k,
					Name:       name,
				}, nil
			}
		}

		// No recognized kind suffix at all: treat the whole thing as a repo
		// path being addressed directly (POST .../?create=true).
		if err := validateSegs(segs); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetRepo, RepoPath: strings.Join(segs, "/"), Create: createFlag}, nil
	}

	return Target{}, &ParseError{Rule: "unrecognized path shape"}
}

func validateSegs(segs []string) error {
	for _, s := range segs {
		if !repoSegment.MatchString(s) {
			return &ParseError{Rule: "invalid repository path segment"}
		}
	}
	return nil
}
