package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rustic-rs/rest-server/internal/restrepo"
)

const (
	mediaTypeV1 = "application/vnd.x.restic.rest.v1+json"
	mediaTypeV2 = "application/vnd.x.restic.rest.v2+json"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("live"))
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Range")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
}

// handleHead serves HEAD /<repo>/<kind>/<name> and HEAD /<repo>/config.
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	target, user, ok := s.prepare(w, r)
	if !ok {
		return
	}

	switch target.Kind {
	case restrepo.TargetObject, restrepo.TargetConfig:
		if !s.authorize(w, r, user, target, restrepo.OpRead) {
			return
		}
		kind, name := targetKindName(target)
		entry, err := s.Storage.Stat(r.Context(), target.RepoPath, kind, name)
		if err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
		w.WriteHeader(http.StatusOK)
	default:
		respondError(w, r, restrepo.ErrBadRequest)
	}
}

// handleGet serves GET for Object, Config and Kind listing targets, plus
// /health/live should it reach this catch-all route (the dedicated routes
// normally intercept /health/live and /metrics first; a /metrics request
// that does reach this route is answered 400).
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	target, user, ok := s.prepare(w, r)
	if !ok {
		return
	}

	switch target.Kind {
	case restrepo.TargetHealth:
		s.handleHealth(w, r)
	case restrepo.TargetObject, restrepo.TargetConfig:
		s.getObject(w, r, user, target)
	case restrepo.TargetKindList:
		s.listKind(w, r, user, target)
	default:
		respondError(w, r, restrepo.ErrBadRequest)
	}
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target) {
	if !s.authorize(w, r, user, target, restrepo.OpRead) {
		return
	}
	kind, name := targetKindName(target)

	var rng *restrepo.ByteRange
	if h := r.Header.Get("Range"); h != "" {
		if parsed, ok := parseRange(h); ok {
			rng = parsed
		}
	}

	result, err := s.Storage.Read(r.Context(), target.RepoPath, kind, name, rng)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer result.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if result.Range != nil {
		w.Header().Set("Content-Range", contentRange(*result.Range, result.TotalSize))
		w.Header().Set("Content-Length", strconv.FormatInt(result.Range.End-result.Range.Start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(result.TotalSize, 10))
		w.WriteHeader(http.StatusOK)
	}
	_, _ = io.Copy(w, result)
}

func (s *Server) listKind(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target) {
	if !s.authorize(w, r, user, target, restrepo.OpRead) {
		return
	}

	entries, err := s.Storage.List(r.Context(), target.RepoPath, target.ObjectKind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	mediaType := negotiateListMediaType(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if mediaType == mediaTypeV2 {
		type repoEntry struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		}
		out := make([]repoEntry, len(entries))
		for i, e := range entries {
			out[i] = repoEntry{Name: e.Name, Size: e.Size}
		}
		_ = enc.Encode(out)
		return
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	_ = enc.Encode(names)
}

func negotiateListMediaType(accept string) string {
	if accept == mediaTypeV2 {
		return mediaTypeV2
	}
	return mediaTypeV1
}

// handlePost serves repo creation and object/config writes.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	target, user, ok := s.prepare(w, r)
	if !ok {
		return
	}

	switch target.Kind {
	case restrepo.TargetRepo:
		s.createRepo(w, r, user, target)
	case restrepo.TargetObject, restrepo.TargetConfig:
		s.writeObject(w, r, user, target)
	default:
		respondError(w, r, restrepo.ErrBadRequest)
	}
}

func (s *Server) createRepo(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target) {
	if !target.Create {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !s.authorize(w, r, user, target, restrepo.OpModify) {
		return
	}
	if err := s.Storage.CreateRepo(r.Context(), target.RepoPath); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeObject(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target) {
	if !s.authorize(w, r, user, target, restrepo.OpAppend) {
		return
	}
	kind, name := targetKindName(target)
	defer r.Body.Close()

	n, err := s.Storage.Write(r.Context(), target.RepoPath, kind, name, r.Body)
	if err != nil {
		if isQuotaExceeded(err) {
			quotaRejections.WithLabelValues(target.RepoPath).Inc()
		}
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	w.WriteHeader(http.StatusOK)
}

// handleDelete serves DELETE of objects and config.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	target, user, ok := s.prepare(w, r)
	if !ok {
		return
	}

	switch target.Kind {
	case restrepo.TargetObject, restrepo.TargetConfig:
		s.deleteObject(w, r, user, target)
	default:
		respondError(w, r, restrepo.ErrBadRequest)
	}
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target) {
	if !s.authorize(w, r, user, target, restrepo.OpWrite) {
		return
	}
	kind, name := targetKindName(target)
	if err := s.Storage.Delete(r.Context(), target.RepoPath, kind, name); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// prepare parses the request path and resolves the authenticated user. It
// writes an error response and returns ok=false if parsing or
// authentication fails.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (restrepo.Target, string, bool) {
	createFlag := r.URL.Query().Get("create") == "true"
	target, err := restrepo.Parse(r.URL.Path, createFlag)
	if err != nil {
		respondError(w, r, &restrepo.Error{Kind: restrepo.KindBadRequest, Detail: "invalid path"})
		return restrepo.Target{}, "", false
	}

	*r = *r.WithContext(withRepoPath(r.Context(), target.RepoPath))

	if target.Kind == restrepo.TargetHealth {
		return target, "", true
	}

	user, ok := s.authenticate(w, r)
	if !ok {
		return restrepo.Target{}, "", false
	}
	*r = *r.WithContext(withUser(r.Context(), user))
	return target, user, true
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.Policy.DisableAuth {
		return restrepo.AnonymousUser, true
	}

	user, pass, ok := r.BasicAuth()
	if !ok || !s.Auth.Verify(user, pass) {
		authFailures.WithLabelValues(user).Inc()
		w.Header().Set("WWW-Authenticate", `Basic realm="rustic"`)
		respondError(w, r, restrepo.ErrUnauthorized)
		return "", false
	}
	return user, true
}

// authorize classifies the op-class for the target and verb, special-cases
// locks as always-Read (SPEC_FULL.md §10.1), and consults the ACL engine.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, user string, target restrepo.Target, op restrepo.OpClass) bool {
	op = opForKind(target.ObjectKind, op)
	if !s.ACL.Authorize(user, target.RepoPath, op) {
		aclDenials.WithLabelValues(target.RepoPath, user).Inc()
		respondError(w, r, restrepo.ErrForbidden)
		return false
	}
	return true
}

// opForKind implements "access to locks is always treated as Read"
// (original_source/src/acl.rs, carried forward in SPEC_FULL.md §10.1).
func opForKind(kind restrepo.ObjectKind, op restrepo.OpClass) restrepo.OpClass {
	if kind == restrepo.KindLocks {
		return restrepo.OpRead
	}
	return op
}

func targetKindName(t restrepo.Target) (restrepo.ObjectKind, string) {
	if t.Kind == restrepo.TargetConfig {
		return restrepo.KindConfigObj, ""
	}
	return t.ObjectKind, t.Name
}

func isQuotaExceeded(err error) bool {
	var rerr *restrepo.Error
	if e, ok := err.(*restrepo.Error); ok {
		rerr = e
	}
	return rerr != nil && rerr.Kind == restrepo.KindQuotaExceeded
}

var statusByKind = map[restrepo.Kind]int{
	restrepo.KindBadRequest:          http.StatusBadRequest,
	restrepo.KindUnauthorized:        http.StatusUnauthorized,
	restrepo.KindForbidden:           http.StatusForbidden,
	restrepo.KindNotFound:            http.StatusNotFound,
	restrepo.KindConflict:            http.StatusConflict,
	restrepo.KindRangeNotSatisfiable: http.StatusRequestedRangeNotSatisfiable,
	restrepo.KindQuotaExceeded:       http.StatusForbidden,
	restrepo.KindIO:                  http.StatusInternalServerError,
	restrepo.KindInternal:            http.StatusInternalServerError,
}

func statusFor(err error) int {
	if rerr, ok := err.(*restrepo.Error); ok {
		if code, ok := statusByKind[rerr.Kind]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

// respondError maps a restrepo.Error onto an HTTP status + JSON body,
// generalizing the teacher's respondError/ResponseError envelope
// (main.go) to the full restrepo.Kind status table of spec.md §6.4.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	detail := err.Error()
	if rerr, ok := err.(*restrepo.Error); ok && rerr.Detail != "" {
		detail = rerr.Detail
	}
	_ = json.NewEncoder(w).Encode(struct {
		Code    int    `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}{Code: code, Error: http.StatusText(code), Message: detail})
}

// parseRange parses a single-range "bytes=start-end" or "bytes=start-"
// header value, per spec.md §4.2's "single byte-range specifier".
// Multi-range and malformed headers are reported as not-ok so the caller
// falls back to a full read, matching common HTTP server behavior for
// Range headers it does not support.
func parseRange(header string) (*restrepo.ByteRange, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return nil, false // multi-range, not supported
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return nil, false
	}
	if parts[1] == "" {
		return &restrepo.ByteRange{Start: start, End: -1}, true
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return nil, false
	}
	return &restrepo.ByteRange{Start: start, End: end}, true
}

func contentRange(rng restrepo.ByteRange, total int64) string {
	return "bytes " + strconv.FormatInt(rng.Start, 10) + "-" + strconv.FormatInt(rng.End, 10) + "/" + strconv.FormatInt(total, 10)
}
