package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/metrics"
)

// requestObserver logs each request and records the request counters
// and latency histogram. The metric path label is the chi route
// pattern, not the raw URL, so identifiers do not explode cardinality.
func requestObserver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.
			WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).
			Inc()
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, pattern).
			Observe(elapsed.Seconds())

		lg := log.WithComponent("api")
		lg.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", elapsed).
			Msg("request")
	})
}
