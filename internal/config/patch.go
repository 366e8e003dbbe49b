package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Drawbars holds the nine 0..8 drawbar settings for one manual.
type Drawbars [9]int

// PercussionState mirrors internal/tonegen's percussion switches.
type PercussionState struct {
	Enabled bool `yaml:"enabled"`
	Fast    bool `yaml:"fast"`
	Soft    bool `yaml:"soft"`
	Second  bool `yaml:"second_harmonic"`
}

// VibratoState mirrors internal/vibrato's selector.
type VibratoState struct {
	Depth  int  `yaml:"depth"` // 0=V1, 1=V2, 2=V3
	Chorus bool `yaml:"chorus"`
}

// WhirlFilterState mirrors one internal/whirl biquad's control bindings.
type WhirlFilterState struct {
	Type int     `yaml:"type"`
	Hz   float64 `yaml:"hz"`
	Q    float64 `yaml:"q"`
	Gain float64 `yaml:"gain"`
}

// WhirlState mirrors internal/whirl's rotary selector and coefficients.
type WhirlState struct {
	Speed        int              `yaml:"speed"` // 0=stop,1=slow,2=fast
	HornBrake    float64          `yaml:"horn_brake"`
	DrumBrake    float64          `yaml:"drum_brake"`
	HornFilterA  WhirlFilterState `yaml:"horn_filter_a"`
	HornFilterB  WhirlFilterState `yaml:"horn_filter_b"`
	DrumFilter   WhirlFilterState `yaml:"drum_filter"`
}

// OverdriveState mirrors internal/overdrive's control bindings.
type OverdriveState struct {
	Clean     bool    `yaml:"clean"`
	Bias      float64 `yaml:"bias"`
	GainIn    float64 `yaml:"gainin"`
	GainOut   float64 `yaml:"gainout"`
	SagToBias float64 `yaml:"sagtobias"`
	LocalFb   float64 `yaml:"feedback"`
	PostFb    float64 `yaml:"postfeed"`
	GlobalFb  float64 `yaml:"globfeed"`
}

// Patch is one of the 1..128 indexable programs: drawbar values
// per manual, percussion state, vibrato state, rotary selector, whirl
// coefficients, and overdrive parameters.
type Patch struct {
	Name       string          `yaml:"name"`
	Upper      Drawbars        `yaml:"upper"`
	Lower      Drawbars        `yaml:"lower"`
	Pedal      Drawbars        `yaml:"pedal"`
	Percussion PercussionState `yaml:"percussion"`
	Vibrato    VibratoState    `yaml:"vibrato"`
	Whirl      WhirlState      `yaml:"whirl"`
	Overdrive  OverdriveState  `yaml:"overdrive"`
}

// Bank is an indexable 1..128 collection of patches.
type Bank struct {
	Patches map[int]Patch `yaml:"patches"`
}

// LoadBank decodes a YAML program bank from r, validating drawbar values
// and patch indices.
func LoadBank(r io.Reader) (*Bank, error) {
	var b Bank
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("config: decoding patch bank: %w", err)
	}
	for idx, p := range b.Patches {
		if idx < 1 || idx > 128 {
			return nil, fmt.Errorf("config: patch index %d out of range 1..128", idx)
		}
		for _, d := range [][9]int{p.Upper, p.Lower, p.Pedal} {
			for _, v := range d {
				if v < 0 || v > 8 {
					return nil, fmt.Errorf("config: patch %q drawbar %d out of range 0..8", p.Name, v)
				}
			}
		}
	}
	return &b, nil
}

// Encode writes the bank back out as YAML (for round trips in tests).
func (b *Bank) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(b)
}
