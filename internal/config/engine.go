// Package config implements the configuration layer: a line-oriented
// key=value engine-config reader and a YAML program/patch document.
// The core DSP packages never read a file directly; this package calls
// their Go setters from parsed data, keeping the cores file-format
// agnostic.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EngineConfig holds the process-wide constants and effect tunables.
// Unknown keys are ignored with a warning (returned to
// the caller, not logged here); out-of-range values are rejected with a
// contextual error.
type EngineConfig struct {
	SampleRate  float64
	BlockSize   int
	TuningOsc   int
	ReferenceHz float64
	Precision   float64

	ScannerHz float64

	WhirlBypass    bool
	HornSlowRPM    float64
	HornFastRPM    float64
	DrumSlowRPM    float64
	DrumFastRPM    float64
	HornAccel      float64
	HornDecel      float64
	DrumAccel      float64
	DrumDecel      float64
	HornBrakePos   float64
	DrumBrakePos   float64
	HornRadiusCm   float64
	DrumRadiusCm   float64

	ReverbMix float64

	OverdriveInputGain  float64
	OverdriveOutputGain float64
}

// DefaultEngineConfig matches the stock engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:  48000,
		BlockSize:   128,
		TuningOsc:   11,
		ReferenceHz: 440,
		Precision:   1e-3,

		ScannerHz: 7.25,

		HornSlowRPM:  60.0 * 0.672,
		HornFastRPM:  60.0 * 7.056,
		DrumSlowRPM:  60.0 * 0.600,
		DrumFastRPM:  60.0 * 5.955,
		HornAccel:    0.161,
		HornDecel:    0.321,
		DrumAccel:    4.127,
		DrumDecel:    1.371,
		HornRadiusCm: 19.2,
		DrumRadiusCm: 22.0,

		ReverbMix: 0.3,

		OverdriveInputGain:  3.5675,
		OverdriveOutputGain: 0.8795,
	}
}

// Warning describes an ignored unknown key, carrying its line number for
// a contextual message.
type Warning struct {
	Line int
	Key  string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: unknown config key %q ignored", w.Line, w.Key)
}

// setting describes one accepted key: its bounds and where the parsed
// value lands.
type setting struct {
	min, max float64
	assign   func(cfg *EngineConfig, v float64)
}

func settings() map[string]setting {
	return map[string]setting{
		"samplerate":  {8000, 192000, func(c *EngineConfig, v float64) { c.SampleRate = v }},
		"blocksize":   {1, 8192, func(c *EngineConfig, v float64) { c.BlockSize = int(v) }},
		"tuningosc":   {0, 90, func(c *EngineConfig, v float64) { c.TuningOsc = int(v) }},
		"referencehz": {400, 480, func(c *EngineConfig, v float64) { c.ReferenceHz = v }},

		"osc.precision": {1e-9, 1, func(c *EngineConfig, v float64) { c.Precision = v }},
		"scanner.hz":    {4, 22, func(c *EngineConfig, v float64) { c.ScannerHz = v }},

		"whirl.bypass":             {0, 1, func(c *EngineConfig, v float64) { c.WhirlBypass = v != 0 }},
		"whirl.horn.slowrpm":       {5, 200, func(c *EngineConfig, v float64) { c.HornSlowRPM = v }},
		"whirl.horn.fastrpm":       {100, 900, func(c *EngineConfig, v float64) { c.HornFastRPM = v }},
		"whirl.drum.slowrpm":       {5, 100, func(c *EngineConfig, v float64) { c.DrumSlowRPM = v }},
		"whirl.drum.fastrpm":       {60, 600, func(c *EngineConfig, v float64) { c.DrumFastRPM = v }},
		"whirl.horn.acceleration":  {0.05, 2, func(c *EngineConfig, v float64) { c.HornAccel = v }},
		"whirl.horn.deceleration":  {0.05, 2, func(c *EngineConfig, v float64) { c.HornDecel = v }},
		"whirl.drum.acceleration":  {0.5, 10, func(c *EngineConfig, v float64) { c.DrumAccel = v }},
		"whirl.drum.deceleration":  {0.5, 10, func(c *EngineConfig, v float64) { c.DrumDecel = v }},
		"whirl.horn.brakepos":      {0, 1, func(c *EngineConfig, v float64) { c.HornBrakePos = v }},
		"whirl.drum.brakepos":      {0, 1, func(c *EngineConfig, v float64) { c.DrumBrakePos = v }},
		"whirl.horn.radius":        {9, 50, func(c *EngineConfig, v float64) { c.HornRadiusCm = v }},
		"whirl.drum.radius":        {9, 50, func(c *EngineConfig, v float64) { c.DrumRadiusCm = v }},

		"reverb.mix": {0, 1, func(c *EngineConfig, v float64) { c.ReverbMix = v }},

		"overdrive.inputgain":  {0.001, 10, func(c *EngineConfig, v float64) { c.OverdriveInputGain = v }},
		"overdrive.outputgain": {0.1, 10, func(c *EngineConfig, v float64) { c.OverdriveOutputGain = v }},
	}
}

// ParseEngineConfig reads `key = value` lines from r into cfg, starting
// from cfg's current values so repeated calls layer overrides. It
// returns any unknown-key warnings and the first out-of-range parse
// error encountered; a rejected line keeps its default and does not
// stop the scan.
func ParseEngineConfig(r io.Reader, cfg *EngineConfig) ([]Warning, error) {
	var warnings []Warning
	var firstErr error
	table := settings()

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		s, known := table[key]
		if !known {
			warnings = append(warnings, Warning{Line: line, Key: key})
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < s.min || v > s.max {
			if firstErr == nil {
				firstErr = fmt.Errorf("line %d: invalid value %q for %q", line, value, key)
			}
			continue
		}
		s.assign(cfg, v)
	}
	return warnings, firstErr
}
