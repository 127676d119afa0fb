package gateway

import (
	"crypto/subtle"
	"net/http"

	"github.com/glimte/jobgate/metrics"
)

// APIKeyHeader carries the shared secret on submission requests.
const APIKeyHeader = "X-API-KEY"

// apiKeyAuth rejects requests whose API key header does not match the
// configured secret. Comparison is constant-time.
func apiKeyAuth(key string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				m.JobsRejected.WithLabelValues(metrics.ReasonUnauthorized).Inc()
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
