package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry vectors, generalized from the teacher's bucket-scoped metrics
// to repo/op-class-scoped metrics: label set grows from
// {bucket, method, operation, status} to {repo, method, operation, status}
// plus three counters the teacher's blob store has no equivalent for
// (quota, ACL, auth all being concerns this domain adds on top of
// plain CRUD).
var (
	labelNames = []string{"repo", "method", "operation", "status"}

	requestDurations = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: "rest_server",
			Name:      "requests_duration_nanoseconds",
			Help:      "Amount of time rest-server has spent answering requests, in nanoseconds.",
		},
		labelNames,
	)
	requestBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rest_server",
			Name:      "request_bytes_total",
			Help:      "Total volume of request payloads received, in bytes.",
		},
		labelNames,
	)
	responseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rest_server",
			Name:      "response_bytes_total",
			Help:      "Total volume of response payloads emitted, in bytes.",
		},
		labelNames,
	)
	quotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rest_server",
			Name:      "quota_rejections_total",
			Help:      "Writes rejected because they would exceed a repository's quota.",
		},
		[]string{"repo"},
	)
	aclDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rest_server",
			Name:      "acl_denials_total",
			Help:      "Requests denied by the ACL engine.",
		},
		[]string{"repo", "user"},
	)
	authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rest_server",
			Name:      "auth_failures_total",
			Help:      "Basic-auth credential checks that failed.",
		},
		[]string{"user"},
	)
)

// registerMetrics registers every collector with reg exactly once; safe to
// call from tests that build multiple Servers against a private registry.
func registerMetrics(reg prometheus.Registerer) {
	reg.MustRegister(requestDurations, requestBytes, responseBytes, quotaRejections, aclDenials, authFailures)
}

// metrics wraps next, recording duration/byte-count telemetry the same way
// the teacher's main.go does: a byte-counting request body delegate and a
// byte/status-counting ResponseWriter delegate, both read out after next
// has run to completion.
func metrics(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			start = time.Now()
			rd    = &readerDelegator{ReadCloser: r.Body}
			rc    = &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		)
		r.Body = rd

		next.ServeHTTP(rc, r)

		labels := prometheus.Labels{
			"repo":      repoLabel(r),
			"method":    r.Method,
			"operation": op,
			"status":    strconv.Itoa(rc.status),
		}

		requestDurations.With(labels).Observe(float64(time.Since(start)))
		requestBytes.With(labels).Add(float64(rd.BytesRead))
		responseBytes.With(labels).Add(float64(rc.size))
	})
}

func repoLabel(r *http.Request) string {
	if repo, ok := r.Context().Value(ctxRepoPath).(string); ok {
		return repo
	}
	return ""
}

type readerDelegator struct {
	io.ReadCloser
	BytesRead int
}

func (r *readerDelegator) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.BytesRead += n
	return n, err
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
