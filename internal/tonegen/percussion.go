package tonegen

import "math"

// percussion bus assignments: the trigger bus's drawbar is muted while
// percussion is enabled.
const (
	percBusA = 3 // second-harmonic tap (4')
	percBusB = 4 // third-harmonic tap (2 2/3')
)

// percussion implements the five-state envelope generator:
// off, normal_fast, normal_slow, soft_fast, soft_slow. The decay is an
// exponential gain multiplied by a per-sample constant; the reset level
// is restored whenever the upper manual is empty, so only the first
// key of a chord retriggers it.
type percussion struct {
	enabled bool
	fast    bool
	soft    bool
	second  bool // harmonic tap select: false=busA, true=busB

	hipass bool // percussion hipass variant, chosen at runtime

	envGain  float64
	decay    float64
	resetLvl float64

	// drawbar setting of the muted trigger bus, restored on disable
	savedDrawbar float64

	hipassZ float32
}

// percDrawbarNormalGain and percDrawbarSoftGain scale the whole manual
// output while percussion is enabled, compensating for the muted
// trigger bus; they do not depend on any drawbar setting.
const (
	percDrawbarNormalGain = 0.60512
	percDrawbarSoftGain   = 1.0
)

// percDrawbarGain returns the output scaling for the current
// soft/normal switch.
func (p *percussion) percDrawbarGain() float64 {
	if p.soft {
		return percDrawbarSoftGain
	}
	return percDrawbarNormalGain
}

// resetNorm/resetSoft are the unscaled envelope reset levels; the
// scaling factor depends on the hipass variant.
const (
	percResetNorm       = 1.0
	percResetSoft       = 0.5012
	percScalingPlain    = 3.0
	percScalingHipassed = 11.0
)

func newPercussion() *percussion {
	return &percussion{decay: 1}
}

// sendBus returns the upper-manual bus index currently routed through
// the percussion envelope.
func (p *percussion) sendBus() int {
	if p.second {
		return percBusB
	}
	return percBusA
}

// configure recomputes the decay coefficient and reset level from the
// fast/soft switches: over 1s (fast) or 4s (slow) the envelope decays
// from its reset level to 0.001 (-60dB) of the unscaled normal-volume
// level, i.e. -60dB relative to the normal reset and about -54dB
// relative to the soft reset.
func (p *percussion) configure(sampleRate float64) {
	seconds := 4.0
	if p.fast {
		seconds = 1.0
	}
	reset := percResetNorm
	if p.soft {
		reset = percResetSoft
	}
	p.decay = math.Exp(math.Log(0.001/reset) / (sampleRate * seconds))

	scaling := percScalingPlain
	if p.hipass {
		scaling = percScalingHipassed
	}
	p.resetLvl = scaling * reset
}

// applyHipass runs a first-order difference hipass over buf in place
// when enabled.
func (p *percussion) applyHipass(buf []float32) {
	if !p.hipass {
		return
	}
	for i, x := range buf {
		y := x - p.hipassZ
		p.hipassZ = x
		buf[i] = y
	}
}
