package anomaly

import (
	"fmt"
	"math"
	"time"
)

// Alignment selects how robust windows pair temperatures with baseline levels.
type Alignment string

const (
	// AlignTimestamp pairs each temperature with the baseline level whose
	// timestamp is equal or nearest to it.
	AlignTimestamp Alignment = "timestamp"
	// AlignPosition pairs by buffer index. Kept for compatibility with
	// recordings produced by the positional implementation.
	AlignPosition Alignment = "position"
)

const day = 24 * time.Hour

// Config holds the engine parameters. They are fixed for the lifetime of an engine.
type Config struct {
	// Delay is the reporting lag of the baseline and the bounds.
	Delay time.Duration `yaml:"delay" json:"delay"`
	// RobustCycle is the source-time period between robust sampling cycles.
	RobustCycle time.Duration `yaml:"robust_cycle" json:"robust_cycle"`
	// RobustWidth is the span of each robust window.
	RobustWidth time.Duration `yaml:"robust_width" json:"robust_width"`
	// RobustDays is the history blended into the bounds.
	RobustDays int `yaml:"robust_days" json:"robust_days"`
	// BoundWindows overrides the number of robust windows derived from
	// RobustDays when positive.
	BoundWindows int `yaml:"bound_windows" json:"bound_windows"`
	// MMAD multiplies the median dispersion when widening the band.
	MMAD float64 `yaml:"mmad" json:"mmad"`
	// BoundMinVal is the minimum half-width of the band.
	BoundMinVal float64 `yaml:"bound_minval" json:"bound_minval"`
	// Alignment selects how robust windows are placed on the sample axis.
	Alignment Alignment `yaml:"alignment" json:"alignment"`
}

// DefaultConfig returns the cold-storage defaults.
func DefaultConfig() Config {
	return Config{
		Delay:       3 * time.Hour,
		RobustCycle: 16 * time.Hour,
		RobustWidth: 24 * time.Hour,
		RobustDays:  5,
		MMAD:        1,
		BoundMinVal: 0,
		Alignment:   AlignTimestamp,
	}
}

// Validate checks parameter invariants.
func (c Config) Validate() error {
	if c.Delay < time.Second {
		return fmt.Errorf("%w: delay must be at least 1s, got %s", ErrInvalidConfig, c.Delay)
	}
	if c.RobustCycle < time.Second {
		return fmt.Errorf("%w: robust cycle must be at least 1s, got %s", ErrInvalidConfig, c.RobustCycle)
	}
	if c.RobustWidth < time.Second {
		return fmt.Errorf("%w: robust width must be at least 1s, got %s", ErrInvalidConfig, c.RobustWidth)
	}
	if c.BoundWindows < 0 {
		return fmt.Errorf("%w: bound windows must not be negative", ErrInvalidConfig)
	}
	if c.BoundWindows == 0 && c.RobustDays <= 0 {
		return fmt.Errorf("%w: robust days must be positive", ErrInvalidConfig)
	}
	if c.MMAD < 0 || math.IsNaN(c.MMAD) || math.IsInf(c.MMAD, 0) {
		return fmt.Errorf("%w: mmad must be a finite non-negative number", ErrInvalidConfig)
	}
	if c.BoundMinVal < 0 || math.IsNaN(c.BoundMinVal) || math.IsInf(c.BoundMinVal, 0) {
		return fmt.Errorf("%w: bound minval must be a finite non-negative number", ErrInvalidConfig)
	}
	switch c.Alignment {
	case "", AlignTimestamp, AlignPosition:
	default:
		return fmt.Errorf("%w: unknown alignment %q", ErrInvalidConfig, c.Alignment)
	}
	if c.WindowCount() < 1 {
		return fmt.Errorf("%w: bound window count rounds to zero", ErrInvalidConfig)
	}
	return nil
}

// WindowCount returns how many of the latest robust windows feed the bounds.
func (c Config) WindowCount() int {
	if c.BoundWindows > 0 {
		return c.BoundWindows
	}
	perDay := float64(day) / float64(c.RobustCycle)
	return int(math.Round(perDay * float64(c.RobustDays)))
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
