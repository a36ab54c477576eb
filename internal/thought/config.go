package thought

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for timing settings that would make the
// scheduler unable to fire.
var ErrInvalidConfig = errors.New("invalid scheduler config")

// Config holds the scheduler timing.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// TickInterval is the idle check period. It is independent of the idle
	// window below.
	TickInterval time.Duration `yaml:"tick_interval"`

	// A thought may fire only while IdleThreshold <= idle <= MaxIdleDuration.
	IdleThreshold   time.Duration `yaml:"idle_threshold"`
	MaxIdleDuration time.Duration `yaml:"max_idle_duration"`

	// MinThoughtInterval is the minimum gap between two thoughts.
	// MaxThoughtInterval is the idle time at which the firing probability
	// reaches its ceiling.
	MinThoughtInterval time.Duration `yaml:"min_thought_interval"`
	MaxThoughtInterval time.Duration `yaml:"max_thought_interval"`

	CharDelay    time.Duration `yaml:"char_delay"`
	CharVariance time.Duration `yaml:"char_variance"`

	// MaxThoughtsPerHour caps autonomous thoughts. 0 means unlimited.
	MaxThoughtsPerHour int `yaml:"max_thoughts_per_hour"`

	// MoodNudge is how far a finished thought moves the matching mood.
	MoodNudge float64 `yaml:"mood_nudge"`

	Clock  func() time.Time `yaml:"-"`
	Random func() float64   `yaml:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		TickInterval:       5 * time.Second,
		IdleThreshold:      45 * time.Second,
		MaxIdleDuration:    2 * time.Hour,
		MinThoughtInterval: 90 * time.Second,
		MaxThoughtInterval: 10 * time.Minute,
		CharDelay:          45 * time.Millisecond,
		CharVariance:       25 * time.Millisecond,
		MaxThoughtsPerHour: 20,
		MoodNudge:          0.02,
	}
}

// Validate rejects configurations that produce broken scheduling.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive, got %s", ErrInvalidConfig, c.TickInterval)
	}
	for name, d := range map[string]time.Duration{
		"idle_threshold":       c.IdleThreshold,
		"max_idle_duration":    c.MaxIdleDuration,
		"min_thought_interval": c.MinThoughtInterval,
		"max_thought_interval": c.MaxThoughtInterval,
		"char_delay":           c.CharDelay,
		"char_variance":        c.CharVariance,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, name, d)
		}
	}
	if c.MinThoughtInterval > c.MaxThoughtInterval {
		return fmt.Errorf("%w: min_thought_interval (%s) exceeds max_thought_interval (%s)",
			ErrInvalidConfig, c.MinThoughtInterval, c.MaxThoughtInterval)
	}
	if c.IdleThreshold > c.MaxIdleDuration {
		return fmt.Errorf("%w: idle_threshold (%s) exceeds max_idle_duration (%s)",
			ErrInvalidConfig, c.IdleThreshold, c.MaxIdleDuration)
	}
	if c.MaxThoughtsPerHour < 0 {
		return fmt.Errorf("%w: max_thoughts_per_hour must not be negative", ErrInvalidConfig)
	}
	return nil
}
