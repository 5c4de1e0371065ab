package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/cuemby/cadence/pkg/metrics"
)

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records cadence_api_requests_total and
// cadence_api_request_duration_seconds, labeled by route pattern so that
// query strings and media names do not explode cardinality
func instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer(nil)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			_, path = next.Handler(r)
		}
		if path == "" {
			path = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, path)
	})
}
