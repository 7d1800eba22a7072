// Package config loads uncov.ini: bounds for coverage percentage
// coloring, tab width, and diff folding, as described in spec.md §6.
package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// Defaults mirror the original implementation's Settings.cpp.
const (
	DefaultLowBound     = 70
	DefaultHiBound      = 90
	DefaultTabSize      = 4
	DefaultMinFoldSize  = 3
	DefaultFoldContext  = 1
	DefaultShowLineNo   = false
	FileName            = "uncov.ini"
)

// Config holds the recognized uncov.ini keys, already clamped to their
// valid ranges.
type Config struct {
	LowBound      int  // percent, clamped 0-100
	HiBound       int  // percent, clamped 0-100, swapped with LowBound if inverted
	TabSize       int  // clamped 1-25
	MinFoldSize   int  // clamped 1-100
	FoldContext   int  // clamped 0-100
	DiffShowLineNo bool
	Prefix        string // joined onto tool-reported relative paths during import
}

// Default returns the configuration used when no uncov.ini is present
// or it fails to parse — spec.md §6: "missing/invalid files are
// silently ignored".
func Default() *Config {
	return &Config{
		LowBound:       DefaultLowBound,
		HiBound:        DefaultHiBound,
		TabSize:        DefaultTabSize,
		MinFoldSize:    DefaultMinFoldSize,
		FoldContext:    DefaultFoldContext,
		DiffShowLineNo: DefaultShowLineNo,
	}
}

// Load reads path (an uncov.ini file) and returns a Config with
// recognized keys applied over the defaults and clamped to their valid
// ranges. A missing or unparsable file yields Default() with no error,
// matching spec.md §6.
func Load(path string) *Config {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		return cfg
	}

	file, err := ini.Load(path)
	if err != nil {
		return cfg
	}

	sec := file.Section("")
	cfg.LowBound = clamp(sec.Key("low-bound").MustInt(DefaultLowBound), 0, 100)
	cfg.HiBound = clamp(sec.Key("hi-bound").MustInt(DefaultHiBound), 0, 100)
	if cfg.LowBound > cfg.HiBound {
		cfg.LowBound, cfg.HiBound = cfg.HiBound, cfg.LowBound
	}
	cfg.TabSize = clamp(sec.Key("tab-size").MustInt(DefaultTabSize), 1, 25)
	cfg.MinFoldSize = clamp(sec.Key("min-fold-size").MustInt(DefaultMinFoldSize), 1, 100)
	cfg.FoldContext = clamp(sec.Key("fold-context").MustInt(DefaultFoldContext), 0, 100)
	cfg.DiffShowLineNo = sec.Key("diff-show-lineno").MustBool(DefaultShowLineNo)
	cfg.Prefix = sec.Key("prefix").MustString("")

	return cfg
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate reports a descriptive error for a Config built by hand
// (e.g. in tests) rather than via Load, which always produces a valid
// Config by clamping.
func (c *Config) Validate() error {
	if c.TabSize < 1 || c.TabSize > 25 {
		return fmt.Errorf("tab-size out of range: %d", c.TabSize)
	}
	if c.LowBound < 0 || c.LowBound > 100 || c.HiBound < 0 || c.HiBound > 100 {
		return fmt.Errorf("bounds out of range: low=%d hi=%d", c.LowBound, c.HiBound)
	}
	return nil
}
