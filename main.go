package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"coldstorage/internal/anomaly/application"
	"coldstorage/internal/anomaly/infrastructure/memory"
	alertrepo "coldstorage/internal/anomaly/infrastructure/postgres"
	anomalyhttp "coldstorage/internal/anomaly/interfaces/http"
	"coldstorage/internal/anomaly/notify"
	"coldstorage/internal/audit"
	"coldstorage/internal/auth"
	"coldstorage/internal/config"
	"coldstorage/internal/observability/metrics"
	telemetry "coldstorage/internal/telemetry/domain"
	"coldstorage/internal/telemetry/infrastructure/dtapi"
	mqttsource "coldstorage/internal/telemetry/infrastructure/mqtt"
	samplerepo "coldstorage/internal/telemetry/infrastructure/postgres"
	"coldstorage/internal/telemetry/interfaces/dataconnector"
)

type stores struct {
	audit   audit.Logger
	samples application.SampleStore
	source  application.SampleSource
	alerts  interface {
		application.AlertStore
		application.AlertReader
	}
}

func main() {
	logger := slog.NewLogLogger(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.DateTime}), slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	}
	metrics.Init(db, logger)

	st, err := buildStores(db)
	if err != nil {
		logger.Fatalf("store error: %v", err)
	}

	var dt *dtapi.Client
	var devices []dtapi.Device
	if cfg.DT.Enabled() {
		dt, err = dtapi.NewClient(cfg.DT.BaseURL, cfg.DT.ProjectID, cfg.DT.KeyID, cfg.DT.Secret,
			dtapi.WithLogger(logger),
			dtapi.WithReconnects(cfg.DT.Reconnects),
		)
		if err != nil {
			logger.Fatalf("dt client error: %v", err)
		}
		devices, err = dt.ListTemperatureDevices(ctx)
		if err != nil {
			logger.Fatalf("dt device list error: %v", err)
		}
		logger.Printf("dt project %s: %d temperature sensors", cfg.DT.ProjectID, len(devices))
	}

	broker := anomalyhttp.NewSSEBroker()
	notifiers := []application.AlertNotifier{broker}
	if cfg.Alerts.WebhookURL != "" {
		webhook, err := buildWebhookNotifier(cfg, logger)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		defer webhook.Close()
		notifiers = append(notifiers, webhook)
	}

	opts := []application.Option{
		application.WithSampleStore(st.samples),
		application.WithAlertStore(st.alerts),
		application.WithNotifier(notify.NewMultiNotifier(notifiers...)),
		application.WithLogger(logger),
		application.WithStorageMaxTemp(cfg.StorageMaxTemp),
	}
	if len(devices) > 0 {
		ids := make([]string, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		opts = append(opts, application.WithSensors(ids...))
	}
	director, err := application.NewDirector(cfg.Engine, opts...)
	if err != nil {
		logger.Fatalf("director error: %v", err)
	}

	latest, restored, err := director.Restore(ctx, st.source, time.Time{})
	if err != nil {
		logger.Fatalf("restore error: %v", err)
	}
	logger.Printf("restored %d samples (%d rejected, %d ignored)", restored.Accepted, restored.Rejected, restored.Ignored)

	if dt != nil {
		start, end := cfg.DT.HistoryRange(time.Now().UTC())
		if latest.After(start) {
			start = latest.Add(time.Second)
		}
		if start.Before(end) {
			history, err := dt.ProjectHistory(ctx, devices, start, end)
			if err != nil {
				logger.Fatalf("dt history error: %v", err)
			}
			res, err := director.Replay(ctx, history)
			if err != nil {
				logger.Fatalf("dt history replay error: %v", err)
			}
			logger.Printf("replayed history %s..%s: %d accepted, %d rejected, %d ignored",
				start.Format(time.RFC3339), end.Format(time.RFC3339), res.Accepted, res.Rejected, res.Ignored)
		}
	}

	handler, err := buildHandler(cfg, director, st, broker, logger)
	if err != nil {
		logger.Fatalf("http handler error: %v", err)
	}
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	ingest := func(ctx context.Context, evt telemetry.Event) error {
		_, err := director.Ingest(ctx, evt)
		if errors.Is(err, application.ErrUnknownSensor) {
			return nil
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if dt != nil {
		g.Go(func() error {
			return dt.Stream(gctx, ingest)
		})
	}
	if cfg.MQTT.Enabled() {
		source, err := mqttsource.NewSource(mqttsource.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
		}, ingest, logger)
		if err != nil {
			logger.Fatalf("mqtt source error: %v", err)
		}
		g.Go(func() error {
			return source.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("service error: %v", err)
	}
	logger.Printf("shutdown complete")
}

func buildStores(db *sql.DB) (stores, error) {
	if db == nil {
		samples := memory.NewSampleRepository()
		return stores{audit: audit.NewMemoryLog(), samples: samples, source: samples, alerts: memory.NewAlertRepository()}, nil
	}
	samples := samplerepo.NewSampleRepository(db)
	alerts, err := alertrepo.NewAlertRepository(db)
	if err != nil {
		return stores{}, err
	}
	return stores{audit: audit.NewRepository(db), samples: samples, source: samples, alerts: alerts}, nil
}

func buildWebhookNotifier(cfg config.Config, logger *log.Logger) (*notify.Notifier, error) {
	channel, err := notify.NewWebhookChannel(cfg.Alerts.WebhookURL)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate(cfg.Alerts.NotifyTemplate)
	if err != nil {
		return nil, err
	}
	opts := []notify.Option{
		notify.WithLogger(logger),
		notify.WithStorageMaxTemp(cfg.StorageMaxTemp),
		notify.WithCooldown(cfg.Alerts.Cooldown),
		notify.WithDedupeWindow(cfg.Alerts.DedupeWindow),
		notify.WithEscalation(cfg.Alerts.EscalateAfter),
		notify.WithRequestTimeout(cfg.Alerts.NotifyTimeout),
	}
	if base := strings.TrimRight(cfg.PublicBaseURL, "/"); base != "" {
		opts = append(opts, notify.WithDashboardURL(func(sensorID string) string {
			return base + "/api/v1/sensors/" + sensorID + "/chart"
		}))
	}
	return notify.NewNotifier(channel, tpl, opts...)
}

func buildHandler(cfg config.Config, director *application.Director, st stores, broker *anomalyhttp.SSEBroker, logger *log.Logger) (http.Handler, error) {
	api, err := anomalyhttp.NewHandler(director, st.alerts, broker, logger, anomalyhttp.WithAuditLogger(st.audit))
	if err != nil {
		return nil, err
	}
	ingestHandler, err := dataconnector.NewHandler(director, logger)
	if err != nil {
		return nil, err
	}
	var ingest http.Handler = ingestHandler
	if cfg.DataConnectorSecret != "" {
		verifier, err := auth.NewDataConnectorVerifier([]byte(cfg.DataConnectorSecret))
		if err != nil {
			return nil, err
		}
		ingest = verifier.Wrap(ingestHandler)
	} else {
		logger.Printf("ingest: DATACONNECTOR_SECRET unset, accepting unsigned events")
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"}))

	mux := http.NewServeMux()
	mux.Handle("/api/", api.Routes())
	mux.Handle("/ingest/events", ingest)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return loggingMiddleware(authMiddleware.Wrap(mux), logger), nil
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the alert stream working behind the logger.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
