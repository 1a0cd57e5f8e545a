package sched

import (
	"math"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml. All durations are in milliseconds.
type Config struct {
	FrameMS        int `yaml:"frame_ms"`         // slice budget for the loop host, 5 (by default)
	UserBlockingMS int `yaml:"user_blocking_ms"` // timeout for UserBlocking tasks, 250 (by default)
	NormalMS       int `yaml:"normal_ms"`        // timeout for Normal tasks, 5000 (by default)
	LowMS          int `yaml:"low_ms"`           // timeout for Low tasks, 10000 (by default)
	StallMS        int `yaml:"stall_ms"`         // watchdog threshold, 1000 (by default)
	EventBuffer    int `yaml:"event_buffer"`     // trace channel capacity, 256 (by default)
}

// Immediate and Idle timeouts are pinned, not configurable: Immediate must
// always arrive already expired, and Idle must never expire on its own.
const (
	immediateTimeout = -1 * time.Millisecond
	idleTimeout      = time.Duration(math.MaxInt64) // effectively never
)

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		FrameMS:        5,
		UserBlockingMS: 250,
		NormalMS:       5000,
		LowMS:          10000,
		StallMS:        1000,
		EventBuffer:    256,
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	def := defaultConfig()
	if cfg.FrameMS <= 0 {
		cfg.FrameMS = def.FrameMS
	}
	if cfg.UserBlockingMS <= 0 {
		cfg.UserBlockingMS = def.UserBlockingMS
	}
	if cfg.NormalMS <= 0 {
		cfg.NormalMS = def.NormalMS
	}
	if cfg.LowMS <= 0 {
		cfg.LowMS = def.LowMS
	}
	if cfg.StallMS <= 0 {
		cfg.StallMS = def.StallMS
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	return cfg
}

// timeout returns the maximum age for tasks at level p: how long such a
// task may wait before the work loop stops yielding ahead of it.
func (c Config) timeout(p PriorityLevel) time.Duration {
	switch p {
	case ImmediatePriority:
		return immediateTimeout
	case UserBlockingPriority:
		return time.Duration(c.UserBlockingMS) * time.Millisecond
	case LowPriority:
		return time.Duration(c.LowMS) * time.Millisecond
	case IdlePriority:
		return idleTimeout
	default:
		return time.Duration(c.NormalMS) * time.Millisecond
	}
}

// Frame returns the slice quantum as a duration.
func (c Config) Frame() time.Duration {
	return time.Duration(c.FrameMS) * time.Millisecond
}
