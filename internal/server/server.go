// Package server implements the Request Dispatcher (C5): it turns HTTP
// method + URL + headers into calls against the restrepo package's Path
// model, Storage backend, Credential store and ACL engine, and streams the
// response back.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/pat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/streadway/handy/report"

	"github.com/rustic-rs/rest-server/internal/restrepo"
)

type ctxKey int

const (
	ctxRepoPath ctxKey = iota
	ctxUser
)

// Server wires the four lower components together behind one HTTP handler.
type Server struct {
	Storage  restrepo.Backend
	Auth     *restrepo.CredentialStore
	ACL      *restrepo.ACL
	Policy   restrepo.Policy
	Log      *logrus.Logger
	Registry *prometheus.Registry
}

// New constructs a Server. If log or registry are nil, the standard logger
// and the default Prometheus registry are used.
func New(storage restrepo.Backend, auth *restrepo.CredentialStore, acl *restrepo.ACL, policy restrepo.Policy, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Storage: storage, Auth: auth, ACL: acl, Policy: policy, Log: log}
}

// Handler returns the top-level http.Handler: a gorilla/pat router doing
// only method + catch-all pattern demultiplexing (as the teacher's main.go
// does for bucket/key routes), wrapped per-route in the teacher's
// report.JSON access logger and the metrics() telemetry middleware, with a
// panic-recovery layer outermost so a handler panic becomes a 500 instead
// of taking down the listener (spec.md §7).
func (s *Server) Handler() http.Handler {
	r := pat.New()

	r.Get("/health/live", s.wrap("health", s.handleHealth).ServeHTTP)
	r.Get("/metrics", s.metricsHandler().ServeHTTP)
	r.Add("OPTIONS", "/{rest:.*}", s.wrap("options", s.handleOptions))

	r.Add("HEAD", "/{rest:.*}", s.wrap("stat", s.handleHead))
	r.Get("/{rest:.*}", s.wrap("get", s.handleGet).ServeHTTP)
	r.Post("/{rest:.*}", s.wrap("post", s.handlePost).ServeHTTP)
	r.Delete("/{rest:.*}", s.wrap("delete", s.handleDelete).ServeHTTP)

	return recoverMiddleware(s.Log, r)
}

// wrap applies the teacher's composition order -- access log outermost,
// then telemetry, then the handler -- around every dispatcher entry point.
func (s *Server) wrap(op string, h http.HandlerFunc) http.Handler {
	return report.JSON(logWriter{s.Log}, metrics(op, h))
}

func (s *Server) metricsHandler() http.Handler {
	reg := s.Registry
	if reg == nil {
		return promHandler()
	}
	return promHandlerFor(reg)
}

func withRepoPath(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, ctxRepoPath, repo)
}

func withUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxUser, user)
}

func userFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(ctxUser).(string); ok {
		return u
	}
	return ""
}
