package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/glimte/jobgate/metrics"
)

// maxJobBytes caps a submitted payload. Jobs are expected to be small
// serialized task descriptions, not bulk data.
const maxJobBytes = 1 << 20

// Handler serves the job submission endpoint.
type Handler struct {
	publisher JobPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandler creates a request handler.
func NewHandler(publisher JobPublisher, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitJob accepts a job payload and forwards it verbatim to the broker.
// The payload bytes are opaque here; validation belongs to the submitter
// and the downstream workers. A publish failure is a 500 for this caller,
// but the payload keeps retrying in the background.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJobBytes))
	if err != nil {
		h.metrics.JobsRejected.WithLabelValues(metrics.ReasonBadRequest).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	if len(body) == 0 {
		h.metrics.JobsRejected.WithLabelValues(metrics.ReasonBadRequest).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return
	}

	if err := h.publisher.Publish(r.Context(), body); err != nil {
		h.logger.Error("job submission failed", "error", err)
		h.metrics.JobsRejected.WithLabelValues(metrics.ReasonPublish).Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job not accepted"})
		return
	}

	h.metrics.JobsAccepted.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
