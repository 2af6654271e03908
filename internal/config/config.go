package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	anomaly "coldstorage/internal/anomaly/domain"
)

// FileEnv names the optional YAML configuration file.
const FileEnv = "COLDSTORAGE_CONFIG"

// ErrInvalid indicates a configuration that cannot start the service.
var ErrInvalid = errors.New("config: invalid")

// Config is the process configuration.
type Config struct {
	HTTPAddr            string         `yaml:"http_addr"`
	DatabaseURL         string         `yaml:"database_url"`
	JWTSecret           string         `yaml:"jwt_secret"`
	DataConnectorSecret string         `yaml:"dataconnector_secret"`
	PublicBaseURL       string         `yaml:"public_base_url"`
	StorageMaxTemp      float64        `yaml:"storage_max_temp"`
	Engine              anomaly.Config `yaml:"engine"`
	DT                  DTConfig       `yaml:"dt"`
	MQTT                MQTTConfig     `yaml:"mqtt"`
	Alerts              AlertConfig    `yaml:"alerts"`
}

// DTConfig configures the sensor cloud REST and stream client.
type DTConfig struct {
	BaseURL         string        `yaml:"base_url"`
	ProjectID       string        `yaml:"project_id"`
	KeyID           string        `yaml:"key_id"`
	Secret          string        `yaml:"secret"`
	HistoryStart    time.Time     `yaml:"history_start"`
	HistoryEnd      time.Time     `yaml:"history_end"`
	HistoryLookback time.Duration `yaml:"history_lookback"`
	Reconnects      int           `yaml:"reconnects"`
}

// Enabled reports whether the client has credentials and a project.
func (c DTConfig) Enabled() bool {
	return c.ProjectID != "" && c.KeyID != "" && c.Secret != ""
}

// MQTTConfig configures the optional broker source.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// AlertConfig configures alert notifications.
type AlertConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	NotifyTemplate string        `yaml:"notify_template"`
	Cooldown       time.Duration `yaml:"cooldown"`
	DedupeWindow   time.Duration `yaml:"dedupe_window"`
	EscalateAfter  time.Duration `yaml:"escalate_after"`
	NotifyTimeout  time.Duration `yaml:"notify_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		StorageMaxTemp: 4,
		Engine:         anomaly.DefaultConfig(),
		DT: DTConfig{
			BaseURL:         "https://api.disruptive-technologies.com/v2",
			HistoryLookback: 7 * 24 * time.Hour,
			Reconnects:      5,
		},
		MQTT: MQTTConfig{
			Topic:    "coldstorage/events",
			ClientID: "coldstorage",
			QoS:      1,
		},
		Alerts: AlertConfig{
			NotifyTimeout: 5 * time.Second,
		},
	}
}

// Load reads .env when present, then the YAML file named by COLDSTORAGE_CONFIG
// over the defaults, then environment variables over both.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.DataConnectorSecret = getenvDefault("DATACONNECTOR_SECRET", cfg.DataConnectorSecret)
	cfg.PublicBaseURL = getenvDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.StorageMaxTemp = getenvFloatDefault("STORAGE_MAX_TEMP", cfg.StorageMaxTemp)

	cfg.Engine.Delay = getenvDuration("ENGINE_DELAY", cfg.Engine.Delay)
	cfg.Engine.RobustCycle = getenvDuration("ENGINE_ROBUST_CYCLE", cfg.Engine.RobustCycle)
	cfg.Engine.RobustWidth = getenvDuration("ENGINE_ROBUST_WIDTH", cfg.Engine.RobustWidth)
	cfg.Engine.RobustDays = getenvIntDefault("ENGINE_ROBUST_DAYS", cfg.Engine.RobustDays)
	cfg.Engine.BoundWindows = getenvIntDefault("ENGINE_BOUND_WINDOWS", cfg.Engine.BoundWindows)
	cfg.Engine.MMAD = getenvFloatDefault("ENGINE_MMAD", cfg.Engine.MMAD)
	cfg.Engine.BoundMinVal = getenvFloatDefault("ENGINE_BOUND_MINVAL", cfg.Engine.BoundMinVal)
	cfg.Engine.Alignment = anomaly.Alignment(getenvDefault("ENGINE_ALIGNMENT", string(cfg.Engine.Alignment)))

	cfg.DT.BaseURL = getenvDefault("DT_API_URL", cfg.DT.BaseURL)
	cfg.DT.ProjectID = getenvDefault("DT_PROJECT_ID", cfg.DT.ProjectID)
	cfg.DT.KeyID = getenvDefault("DT_API_KEY_ID", cfg.DT.KeyID)
	cfg.DT.Secret = getenvDefault("DT_API_SECRET", cfg.DT.Secret)
	cfg.DT.Reconnects = getenvIntDefault("DT_RECONNECTS", cfg.DT.Reconnects)
	cfg.DT.HistoryLookback = getenvDuration("DT_HISTORY_LOOKBACK", cfg.DT.HistoryLookback)
	var err error
	if cfg.DT.HistoryStart, err = getenvTime("DT_HISTORY_START", cfg.DT.HistoryStart); err != nil {
		return err
	}
	if cfg.DT.HistoryEnd, err = getenvTime("DT_HISTORY_END", cfg.DT.HistoryEnd); err != nil {
		return err
	}

	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Topic = getenvDefault("MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.QoS = getenvIntDefault("MQTT_QOS", cfg.MQTT.QoS)

	cfg.Alerts.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alerts.WebhookURL)
	cfg.Alerts.NotifyTemplate = getenvDefault("ALERT_NOTIFY_TEMPLATE", cfg.Alerts.NotifyTemplate)
	cfg.Alerts.Cooldown = getenvDuration("ALERT_NOTIFY_COOLDOWN", cfg.Alerts.Cooldown)
	cfg.Alerts.DedupeWindow = getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", cfg.Alerts.DedupeWindow)
	cfg.Alerts.EscalateAfter = getenvDuration("ALERT_ESCALATION_AFTER", cfg.Alerts.EscalateAfter)
	cfg.Alerts.NotifyTimeout = getenvDuration("ALERT_NOTIFY_TIMEOUT", cfg.Alerts.NotifyTimeout)
	return nil
}

// Validate checks the engine parameters and the service settings.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%w: empty http address", ErrInvalid)
	}
	if c.DT.Reconnects < 0 {
		return fmt.Errorf("%w: negative DT reconnects", ErrInvalid)
	}
	if !c.DT.HistoryStart.IsZero() && !c.DT.HistoryEnd.IsZero() && c.DT.HistoryEnd.Before(c.DT.HistoryStart) {
		return fmt.Errorf("%w: DT history end precedes start", ErrInvalid)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: MQTT QoS must be 0, 1 or 2", ErrInvalid)
	}
	return nil
}

// HistoryRange resolves the DT history replay window at now.
func (c DTConfig) HistoryRange(now time.Time) (time.Time, time.Time) {
	start, end := c.HistoryStart, c.HistoryEnd
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.Add(-c.HistoryLookback)
	}
	return start.UTC(), end.UTC()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvTime(key string, fallback time.Time) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", ErrInvalid, key)
	}
	return parsed.UTC(), nil
}
