package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anomaly "coldstorage/internal/anomaly/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4.0, cfg.StorageMaxTemp)
	assert.Equal(t, 3*time.Hour, cfg.Engine.Delay)
	assert.Equal(t, 16*time.Hour, cfg.Engine.RobustCycle)
	assert.Equal(t, 24*time.Hour, cfg.Engine.RobustWidth)
	assert.Equal(t, 5, cfg.Engine.RobustDays)
	assert.Equal(t, 5, cfg.DT.Reconnects)
	assert.False(t, cfg.DT.Enabled())
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coldstorage.yaml")
	doc := `
http_addr: ":9090"
storage_max_temp: 6
engine:
  delay: 2h
  robust_cycle: 8h
  robust_width: 12h
  robust_days: 3
  mmad: 1.5
  bound_minval: 0.25
  alignment: position
dt:
  project_id: proj
  history_start: 2026-01-01T00:00:00Z
mqtt:
  broker: tcp://localhost:1883
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv(FileEnv, path)
	t.Setenv("ENGINE_MMAD", "2")
	t.Setenv("DT_API_KEY_ID", "key")
	t.Setenv("DT_API_SECRET", "secret")
	t.Setenv("DT_HISTORY_END", "2026-01-08T00:00:00Z")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 6.0, cfg.StorageMaxTemp)
	assert.Equal(t, 2*time.Hour, cfg.Engine.Delay)
	assert.Equal(t, 8*time.Hour, cfg.Engine.RobustCycle)
	assert.Equal(t, 12*time.Hour, cfg.Engine.RobustWidth)
	assert.Equal(t, 3, cfg.Engine.RobustDays)
	assert.Equal(t, 2.0, cfg.Engine.MMAD)
	assert.Equal(t, 0.25, cfg.Engine.BoundMinVal)
	assert.Equal(t, anomaly.AlignPosition, cfg.Engine.Alignment)
	assert.True(t, cfg.DT.Enabled())
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "coldstorage/events", cfg.MQTT.Topic)

	start, end := cfg.DT.HistoryRange(time.Now())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), end)
}

func TestLoadRejectsInvalidEngine(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ENGINE_BOUND_MINVAL", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, anomaly.ErrInvalidConfig))
}

func TestLoadRejectsBadHistoryTime(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("DT_HISTORY_START", "last week")
	_, err := Load()
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestHistoryRangeLookback(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start, end := DTConfig{HistoryLookback: 48 * time.Hour}.HistoryRange(now)
	assert.Equal(t, now, end)
	assert.Equal(t, now.Add(-48*time.Hour), start)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MQTT.QoS = 3
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))

	cfg = Default()
	cfg.HTTPAddr = " "
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))
}
