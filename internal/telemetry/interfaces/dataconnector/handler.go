package dataconnector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
	telemetry "coldstorage/internal/telemetry/domain"
)

const maxBody = 1 << 20

// Ingestor accepts one event.
type Ingestor interface {
	Ingest(ctx context.Context, evt telemetry.Event) (application.Reading, error)
}

// Handler accepts events pushed by the sensor cloud data connector.
type Handler struct {
	ingestor Ingestor
	logger   *log.Logger
}

// NewHandler constructs a handler. Signature checks are applied by wrapping
// it with auth.DataConnectorVerifier.
func NewHandler(ingestor Ingestor, logger *log.Logger) (*Handler, error) {
	if ingestor == nil {
		return nil, errors.New("dataconnector: nil ingestor")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{ingestor: ingestor, logger: logger}, nil
}

// ServeHTTP handles POST /ingest/events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.logger.Printf("dataconnector: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	evt, err := telemetry.ParseEvent(body)
	switch {
	case errors.Is(err, telemetry.ErrNotTemperature):
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "ignored"})
		return
	case err != nil:
		h.logger.Printf("dataconnector: decode error: %v", err)
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	reading, err := h.ingestor.Ingest(r.Context(), evt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reading)
	case errors.Is(err, application.ErrUnknownSensor):
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "ignored"})
	case errors.Is(err, anomaly.ErrOutOfOrderSample):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, anomaly.ErrInvalidSample), errors.Is(err, application.ErrEmptySensorID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Printf("dataconnector: ingest error: %v", err)
		http.Error(w, "ingest error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
