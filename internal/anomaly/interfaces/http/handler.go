package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coldstorage/internal/anomaly/application"
	anomaly "coldstorage/internal/anomaly/domain"
	"coldstorage/internal/anomaly/interfaces/export"
	"coldstorage/internal/audit"
	"coldstorage/internal/auth"
	"coldstorage/internal/observability/metrics"
	telemetry "coldstorage/internal/telemetry/domain"
	"coldstorage/internal/telemetry/infrastructure/fileimport"
)

const maxUpload = 32 << 20

// SensorService is the read and replay surface of the director.
type SensorService interface {
	Config() anomaly.Config
	StorageMaxTemp() float64
	Sensors() []application.SensorSummary
	Sensor(id string) (application.SensorSummary, error)
	Snapshot(id string) (anomaly.Snapshot, error)
	ReplayImport(ctx context.Context, events []telemetry.Event) (application.ReplayResult, error)
}

// Handler serves the sensor, alert and report endpoints.
type Handler struct {
	sensors SensorService
	alerts  application.AlertReader
	broker  *SSEBroker
	logger  *log.Logger
	audit   audit.Logger
	now     func() time.Time
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithAuditLogger records imports and report downloads.
func WithAuditLogger(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.audit = logger
	}
}

// NewHandler constructs a handler. alerts and broker may be nil.
func NewHandler(sensors SensorService, alerts application.AlertReader, broker *SSEBroker, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if sensors == nil {
		return nil, errors.New("anomaly handler: nil sensor service")
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		sensors: sensors,
		alerts:  alerts,
		broker:  broker,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes mounts the API on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", h.handleConfig)
		r.Get("/sensors", h.handleSensors)
		r.Post("/sensors/import", h.handleImport)
		r.Route("/sensors/{id}", func(r chi.Router) {
			r.Get("/", h.handleSensor)
			r.Get("/series", h.handleSeries)
			r.Get("/chart", h.handleChart)
			r.Get("/plot.png", h.handlePlot)
			r.Get("/export.xlsx", h.handleExportXLSX)
			r.Get("/export.pdf", h.handleExportPDF)
		})
		r.Get("/alerts", h.handleAlerts)
		r.Get("/alerts/stream", h.handleStream)
	})
	return r
}

type configResponse struct {
	Delay          string            `json:"delay"`
	RobustCycle    string            `json:"robust_cycle"`
	RobustWidth    string            `json:"robust_width"`
	RobustDays     int               `json:"robust_days"`
	BoundWindows   int               `json:"bound_windows"`
	MMAD           float64           `json:"mmad"`
	BoundMinVal    float64           `json:"bound_minval"`
	Alignment      anomaly.Alignment `json:"alignment"`
	StorageMaxTemp float64           `json:"storage_max_temp"`
}

func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.sensors.Config()
	writeJSON(w, http.StatusOK, configResponse{
		Delay:          cfg.Delay.String(),
		RobustCycle:    cfg.RobustCycle.String(),
		RobustWidth:    cfg.RobustWidth.String(),
		RobustDays:     cfg.RobustDays,
		BoundWindows:   cfg.WindowCount(),
		MMAD:           cfg.MMAD,
		BoundMinVal:    cfg.BoundMinVal,
		Alignment:      cfg.Alignment,
		StorageMaxTemp: h.sensors.StorageMaxTemp(),
	})
}

func (h *Handler) handleSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sensors.Sensors())
}

func (h *Handler) handleSensor(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sensors.Sensor(chi.URLParam(r, "id"))
	if err != nil {
		respondSensorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type seriesResponse struct {
	SensorID string         `json:"sensor_id"`
	Config   anomaly.Config `json:"config"`
	anomaly.Snapshot
	Classifications []anomaly.Classification `json:"classifications"`
}

func (h *Handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := h.window(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{
		SensorID:        id,
		Config:          h.sensors.Config(),
		Snapshot:        snap,
		Classifications: snap.Classifications(),
	})
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "html", "text/html; charset=utf-8", "", export.RenderChartHTML)
}

func (h *Handler) handlePlot(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "png", "image/png", "", func(rep export.Report) ([]byte, error) {
		return export.RenderPlotPNG(rep, 0, 0)
	})
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", export.BuildSensorXLSX)
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pdf", "application/pdf", "pdf", export.BuildSensorPDF)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, format, contentType, attachment string, build func(export.Report) ([]byte, error)) {
	started := time.Now()
	id := chi.URLParam(r, "id")
	snap, ok := h.window(w, r, id)
	if !ok {
		return
	}
	report := export.Report{
		SensorID:    id,
		Config:      h.sensors.Config(),
		MaxTemp:     h.sensors.StorageMaxTemp(),
		Snapshot:    snap,
		GeneratedAt: h.now(),
	}
	if h.alerts != nil {
		from, to, _ := parseRange(r)
		list, err := h.alerts.List(r.Context(), application.AlertQuery{SensorID: id, From: from, To: to})
		if err != nil {
			h.logger.Printf("anomaly handler: list alerts error: %v", err)
		}
		report.Alerts = list
	}

	payload, err := build(report)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		if errors.Is(err, export.ErrNoSamples) {
			http.Error(w, "no samples in range", http.StatusNotFound)
			return
		}
		h.logger.Printf("anomaly handler: render %s error: %v", format, err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))

	w.Header().Set("Content-Type", contentType)
	if attachment != "" {
		h.logAudit(r, "sensors.export", id, map[string]any{"format": format, "samples": len(snap.Temperature)})
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", id, attachment))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request, id string) (anomaly.Snapshot, bool) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return anomaly.Snapshot{}, false
	}
	snap, err := h.sensors.Snapshot(id)
	if err != nil {
		respondSensorError(w, err)
		return anomaly.Snapshot{}, false
	}
	return snap.Window(unixOrZero(from), unixOrZero(to)), true
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusOK, []application.AlertEvent{})
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}
	list, err := h.alerts.List(r.Context(), application.AlertQuery{
		SensorID: r.URL.Query().Get("sensor"),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		h.logger.Printf("anomaly handler: list alerts error: %v", err)
		http.Error(w, "list alerts error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []application.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleImport replays an uploaded CSV or XLSX recording. The device query
// parameter names the target sensor.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "multipart form required", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	importer := fileimport.NewImporter(r.URL.Query().Get("device"), h.logger)
	var events []telemetry.Event
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx", ".xlsm":
		events, err = importer.ImportXLSX(file)
	default:
		events, err = importer.ImportCSV(io.LimitReader(file, maxUpload))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.sensors.ReplayImport(r.Context(), events)
	if err != nil {
		h.logger.Printf("anomaly handler: import replay error: %v", err)
		http.Error(w, "replay error", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "sensors.import", r.URL.Query().Get("device"), map[string]any{
		"file":     header.Filename,
		"accepted": result.Accepted,
		"rejected": result.Rejected,
		"ignored":  result.Ignored,
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) logAudit(r *http.Request, action, resourceID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "sensor",
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Printf("anomaly handler: audit error: %v", err)
	}
}

func respondSensorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrSensorNotFound):
		http.Error(w, "sensor not found", http.StatusNotFound)
	case errors.Is(err, application.ErrEmptySensorID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "sensor lookup failed", http.StatusInternalServerError)
	}
}

// parseRange reads optional from/to query values given as RFC3339 or unix seconds.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return from, to, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339 or unix seconds")
	}
	return parsed.UTC(), nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
