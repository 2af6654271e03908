package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	// 24h / 16h * 5 days = 7.5 windows.
	assert.Equal(t, 8, cfg.WindowCount())
}

func TestConfigWindowCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RobustCycle = 2 * time.Hour
	cfg.RobustDays = 1
	assert.Equal(t, 12, cfg.WindowCount())

	cfg.BoundWindows = 3
	assert.Equal(t, 3, cfg.WindowCount())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero delay":        func(c *Config) { c.Delay = 0 },
		"sub-second cycle":  func(c *Config) { c.RobustCycle = time.Millisecond },
		"zero width":        func(c *Config) { c.RobustWidth = 0 },
		"negative windows":  func(c *Config) { c.BoundWindows = -1 },
		"no days":           func(c *Config) { c.RobustDays = 0 },
		"negative mmad":     func(c *Config) { c.MMAD = -1 },
		"negative minval":   func(c *Config) { c.BoundMinVal = -0.1 },
		"unknown alignment": func(c *Config) { c.Alignment = "diagonal" },
		"windows round down": func(c *Config) {
			c.RobustCycle = 200 * time.Hour
			c.RobustDays = 1
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigExplicitWindowsSkipDays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RobustDays = 0
	cfg.BoundWindows = 4
	assert.NoError(t, cfg.Validate())
}
