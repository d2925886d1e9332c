package restrepo

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Level is the ordered ACL permission level spec.md §3.3 defines:
// Read < Append < Write < Modify.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelAppend
	LevelWrite
	LevelModify
)

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelAppend:
		return "append"
	case LevelWrite:
		return "write"
	case LevelModify:
		return "modify"
	default:
		return "none"
	}
}

func parseLevel(s string) (Level, bool) {
	switch s {
	case "read":
		return LevelRead, true
	case "append":
		return LevelAppend, true
	case "write":
		return LevelWrite, true
	case "modify":
		return LevelModify, true
	}
	return LevelNone, false
}

// OpClass is the access class a request is classified into by the
// dispatcher before reaching the ACL engine, per spec.md §4.4.
type OpClass int

const (
	OpRead OpClass = iota
	OpAppend
	OpWrite
	OpModify
)

func (l Level) meets(required OpClass) bool {
	switch required {
	case OpRead:
		return l >= LevelRead
	case OpAppend:
		return l >= LevelAppend
	case OpWrite:
		return l >= LevelWrite
	case OpModify:
		return l >= LevelModify
	}
	return false
}

// reservedDefaultRepo and reservedWildcardUser are the two fallback keys
// spec.md §3.3 reserves.
const (
	reservedDefaultRepo  = "default"
	reservedWildcardUser = "*"
)

// Policy is the fixed, process-lifetime record of global flags spec.md
// §3.5 defines.
type Policy struct {
	DisableAuth   bool
	DisableACL    bool
	PrivateRepos  bool
	AppendOnly    bool
	QuotaBytes    int64
}

// ACL evaluates (user, repo, op-class) triples against a declarative
// per-repo-per-user table plus the global Policy flags, per spec.md §4.4.
type ACL struct {
	policy Policy
	repos  map[string]map[string]Level
}

// aclFile is the on-disk YAML shape: repo path -> user -> level string.
type aclFile map[string]map[string]string

// LoadACL reads a YAML ACL file into an ACL evaluator. An empty path yields
// an ACL with no repo-specific rows, falling through entirely to the
// Policy flags for every request (matching a deployment with no ACL file
// configured, per the default-flags fallback in spec.md §4.4 step 5).
func LoadACL(path string, policy Policy) (*ACL, error) {
	repos := map[string]map[string]Level{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wrapErr(KindInternal, "opening ACL file", err)
		}

		var raw aclFile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, wrapErr(KindInternal, "parsing ACL file", err)
		}

		for repo, users := range raw {
			row := make(map[string]Level, len(users))
			for user, levelStr := range users {
				lvl, ok := parseLevel(levelStr)
				if !ok {
					return nil, newErr(KindInternal, "unknown ACL level for "+repo+"/"+user)
				}
				row[user] = lvl
			}
			repos[repo] = row
		}

		// The root repository ("") shares the "default" row unless a
		// literal "" row is also present, per original_source/src/acl.rs's
		// read_toml (SPEC_FULL.md §10.3).
		if def, ok := repos[reservedDefaultRepo]; ok {
			if _, hasRoot := repos[""]; !hasRoot {
				repos[""] = def
			}
		}
	}

	return &ACL{policy: policy, repos: repos}, nil
}

// Authorize evaluates the six-step decision procedure of spec.md §4.4.
// User and repo lookups are case-sensitive.
func (a *ACL) Authorize(user, repoPath string, op OpClass) bool {
	if a.policy.DisableACL {
		return true
	}
	if a.policy.AppendOnly && op == OpWrite {
		return false
	}

	row, ok := a.repos[repoPath]
	if !ok {
		row, ok = a.repos[reservedDefaultRepo]
	}
	if !ok {
		return a.fallback(user, repoPath, op)
	}

	level, ok := row[user]
	if !ok {
		level, ok = row[reservedWildcardUser]
	}
	if !ok {
		return false
	}

	return level.meets(op)
}

// fallback implements step 5 of spec.md §4.4: with no matching ACL row at
// all, grant access only when private_repos is unset, or the user's name
// matches the repo path's first segment.
func (a *ACL) fallback(user, repoPath string, op OpClass) bool {
	if !a.policy.PrivateRepos {
		return true
	}
	segs := SplitRepoPath(repoPath)
	if len(segs) == 0 {
		return false
	}
	return segs[0] == user
}
