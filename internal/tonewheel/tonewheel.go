// Package tonewheel implements the 91-oscillator wavetable bank:
// per-wheel tuning, loop-length fitting, additive harmonic synthesis,
// and the three built-in EQ curve families.
package tonewheel

import (
	"fmt"
	"math"
	"math/rand"
)

// NumWheels is the number of tonewheels in a full 91-oscillator generator.
const NumWheels = 91

// MaxPartials bounds the number of harmonic partials summed per wheel.
const MaxPartials = 12

// Temperament selects how per-wheel frequencies are derived.
type Temperament int

const (
	// Equal is A440 equal temperament: f = Aref/8 * 2^((i-tuningOsc)/12).
	Equal Temperament = iota
	// Gear60 derives frequencies from integer gear ratios on a 60Hz motor.
	Gear60
	// Gear50 is the 50Hz motor equivalent of Gear60.
	Gear50
)

// EQCurve selects one of the three built-in macro attenuation curves.
type EQCurve int

const (
	// EQSpline is the constrained Hermite spline between (0,p1y) and (1,p4y).
	EQSpline EQCurve = iota
	// EQPeak24 is the legacy damper curve peaking near wheel 24.
	EQPeak24
	// EQPeak46 is the legacy damper curve peaking near wheel 46.
	EQPeak46
)

// Oscillator is one simulated tonewheel. Its per-block render
// bookkeeping (active index, change flags) lives with the tone
// generator's Active Oscillator Table, not here.
type Oscillator struct {
	Wave        []float32
	Frequency   float64
	Attenuation float64
	Pos         int
}

// SplineParams are the four Hermite-spline control values used by
// EQSpline: endpoint levels and endpoint slopes.
type SplineParams struct {
	P1Y, R1Y, P4Y, R4Y float64
}

// DefaultSplineParams is a flat unity curve.
var DefaultSplineParams = SplineParams{P1Y: 1.0, R1Y: 0.0, P4Y: 1.0, R4Y: 0.0}

// Config configures a Bank at construction time.
type Config struct {
	SampleRate   float64
	BlockSize    int // used to size the minimum loop length
	Temperament  Temperament
	// TuningOsc is the wheel index (1-based) whose Equal-temperament
	// frequency equals ReferenceHz/8. A value around 11 places wheel 1
	// near the bottom of the Hammond tonewheel range (~30Hz); the
	// formula has no built-in floor, so a TuningOsc far from the wheel
	// count will push some wheels below what fitWave can loop within
	// the configured block size.
	TuningOsc int
	ReferenceHz  float64 // A_ref, default 440
	EQ           EQCurve
	Spline       SplineParams
	Precision    float64            // fitWave error threshold, default 1e-3
	Partials     [MaxPartials]float64 // global default partial amplitudes
	PerWheelEQ   map[int]float64    // eqv[i] overrides, 1-indexed
	PerWheelHarm map[int][MaxPartials]float64 // osc.harmonic.w%d overrides, added to Partials
	Seed         int64              // dither/click RNG seed
}

// Bank holds the full set of 91 precomputed looped waveforms.
type Bank struct {
	SampleRate float64
	cfg        Config
	Oscillators [NumWheels]Oscillator
	rng        *rand.Rand
}

// NewBank builds and fills all 91 oscillators. Allocation or loop-fit
// failure at construction leaves no usable generator, so this panics
// rather than returning an error.
func NewBank(cfg Config) *Bank {
	if cfg.ReferenceHz == 0 {
		cfg.ReferenceHz = 440.0
	}
	if cfg.Precision == 0 {
		cfg.Precision = 1e-3
	}
	if cfg.Partials == ([MaxPartials]float64{}) {
		cfg.Partials[0] = 1.0
	}
	b := &Bank{
		SampleRate: cfg.SampleRate,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec
	}
	for i := range b.Oscillators {
		freq := wheelFrequency(cfg, i+1)
		b.Oscillators[i] = Oscillator{Frequency: freq}
	}
	b.applyEQ()
	for i := range b.Oscillators {
		b.fill(i)
	}
	return b
}

// gears60Ratios are the drive/driven tooth counts of the 60Hz motor's
// gear pairs, one per note class (c..h).
var gears60Ratios = [12][2]float64{
	{85, 104}, {71, 82}, {67, 73}, {35, 36}, {69, 67}, {12, 11},
	{37, 32}, {49, 40}, {48, 37}, {11, 8}, {67, 46}, {54, 35},
}

// gears50Ratios are the 50Hz-motor equivalents (estimated).
var gears50Ratios = [12][2]float64{
	{17, 26}, {57, 82}, {11, 15}, {49, 63}, {33, 40}, {55, 63},
	{49, 53}, {49, 50}, {55, 53}, {11, 10}, {7, 6}, {90, 73},
}

// wheelFrequency computes the frequency of wheel number i (1-indexed)
// under the selected temperament.
func wheelFrequency(cfg Config, i int) float64 {
	switch cfg.Temperament {
	case Gear60, Gear50:
		// frequency number 0 is c at about 32.7Hz regardless of which wheel
		// the installed generator starts at
		freqNr := i + 9 - cfg.TuningOsc
		if freqNr < 0 {
			freqNr = 0
		}
		note := freqNr % 12
		octave := freqNr / 12
		teeth := math.Pow(2, float64(octave+1))
		sel := note
		if freqNr >= 84 {
			// the top wheels re-use lower gear pairs against a
			// 192-tooth wheel
			sel += 5
			if sel >= 12 {
				sel -= 12
			}
			teeth = 192
		}
		var f float64
		if cfg.Temperament == Gear60 {
			r := gears60Ratios[sel]
			f = 20.0 * teeth * r[0] / r[1]
		} else {
			r := gears50Ratios[sel]
			f = 25.0 * teeth * r[0] / r[1]
		}
		return f * cfg.ReferenceHz / 440.0
	default: // Equal
		return (cfg.ReferenceHz / 8.0) * math.Pow(2, float64(i-cfg.TuningOsc)/12.0)
	}
}

// fitWave returns the smallest n in [nMin, nMax] minimizing |SR*k/f - n|
// over integer k, stopping early once the error drops below precision.
func fitWave(sr, f, precision float64, nMin, nMax int) (int, error) {
	if nMin >= nMax {
		return 0, fmt.Errorf("tonewheel: invalid loop-length range [%d,%d]", nMin, nMax)
	}
	minWaves := int(math.Ceil(f * float64(nMin) / sr))
	maxWaves := int(math.Floor(f * float64(nMax) / sr))
	if minWaves < 1 {
		minWaves = 1
	}
	if maxWaves < minWaves {
		return 0, fmt.Errorf("tonewheel: no integer loop length fits frequency %.4fHz in [%d,%d] samples", f, nMin, nMax)
	}

	bestErr := math.Inf(1)
	bestN := 0
	for k := minWaves; k <= maxWaves; k++ {
		ideal := sr * float64(k) / f
		n := math.Round(ideal)
		err := math.Abs(ideal - n)
		if err < bestErr {
			bestErr = err
			bestN = int(n)
		}
		if err < precision {
			break
		}
	}
	if bestN <= 0 {
		return 0, fmt.Errorf("tonewheel: fitWave found no solution for %.4fHz", f)
	}
	return bestN, nil
}

// loopBounds computes [nMin, nMax] for fitWave: nMin is at least 3
// block sizes, nMax is ceil(SR/48000)*4096.
func loopBounds(sr float64, blockSize int) (nMin, nMax int) {
	nMin = 3 * blockSize
	if nMin < 3 {
		nMin = 3
	}
	factor := int(math.Ceil(sr / 48000.0))
	if factor < 1 {
		factor = 1
	}
	nMax = factor * 4096
	return
}

// fill computes the loop length and renders the waveform for oscillator i.
func (b *Bank) fill(i int) {
	osc := &b.Oscillators[i]
	nMin, nMax := loopBounds(b.SampleRate, b.cfg.BlockSize)
	if nMax <= nMin {
		nMax = nMin + 1
	}
	n, err := fitWave(b.SampleRate, osc.Frequency, b.cfg.Precision, nMin, nMax)
	if err != nil {
		panic(fmt.Sprintf("tonewheel: wheel %d: %v", i+1, err))
	}
	osc.Wave = make([]float32, n)
	b.writeSamples(osc, n)
}

// writeSamples fills osc.Wave with the sum of up to MaxPartials harmonics
// of the fundamental, normalized by attenuation/sum(|amplitude|), plus
// one-LSB dither.
func (b *Bank) writeSamples(osc *Oscillator, n int) {
	amps := b.cfg.Partials
	if h, ok := b.cfg.PerWheelHarm[indexToWheelNumber(osc, b)]; ok {
		for k := range amps {
			amps[k] += h[k]
		}
	}

	sum := 0.0
	for k, a := range amps {
		freq := osc.Frequency * float64(k+1)
		if freq >= b.SampleRate/2 {
			amps[k] = 0
			continue
		}
		sum += math.Abs(a)
	}
	if sum == 0 {
		sum = 1
	}

	const ditherLSB = 1.0 / 32768.0
	for i := 0; i < n; i++ {
		acc := 0.0
		for k, a := range amps {
			if a == 0 {
				continue
			}
			phase := 2 * math.Pi * float64(k+1) * osc.Frequency * float64(i) / b.SampleRate
			acc += a * math.Sin(phase)
		}
		dither := (b.rng.Float64()*2 - 1) * ditherLSB
		osc.Wave[i] = float32(osc.Attenuation/sum*acc + dither)
	}
}

// indexToWheelNumber returns the 1-based wheel number for osc within b.
func indexToWheelNumber(osc *Oscillator, b *Bank) int {
	for i := range b.Oscillators {
		if &b.Oscillators[i] == osc {
			return i + 1
		}
	}
	return 0
}

// applyEQ fills in Attenuation for every oscillator per the configured
// EQ curve, then applies any per-wheel overrides.
func (b *Bank) applyEQ() {
	switch b.cfg.EQ {
	case EQPeak24:
		applyPeak24(b.Oscillators[:])
	case EQPeak46:
		applyPeak46(b.Oscillators[:])
	default:
		applySpline(b.Oscillators[:], b.cfg.Spline)
	}
	for i, a := range b.cfg.PerWheelEQ {
		if i >= 1 && i <= NumWheels {
			b.Oscillators[i-1].Attenuation = clamp01(a)
		}
	}
}

// applySpline implements the constrained Hermite spline (p1x=0, p4x=1)
// over wheel index.
func applySpline(oscs []Oscillator, p SplineParams) {
	k := float64(len(oscs) - 1)
	for i := range oscs {
		t := float64(i) / k
		tSq := t * t
		tCb := tSq * t
		r := p.P1Y*(2*tCb-3*tSq+1) +
			p.P4Y*(-2*tCb+3*tSq) +
			p.R1Y*(tCb-2*tSq+t) +
			p.R4Y*(tCb-tSq)
		oscs[i].Attenuation = clamp01(r)
	}
}

// damperCurve is 1 - w*z^2 where z is a
// linear ramp of thisTG within [firstTG,lastTG] remapped into [v,u].
func damperCurve(thisTG, firstTG, lastTG int, w, v, u float64) float64 {
	x := float64(thisTG-firstTG) / float64(lastTG-firstTG)
	z := x*(u-v) - u
	return 1.0 - w*z*z
}

// applyPeak24 is the legacy damper curve peaking near wheel 24.
func applyPeak24(oscs []Oscillator) {
	n := len(oscs)
	for i := 1; i <= 43 && i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 1, 43, 0.2, -0.8, 1.0)
	}
	for i := 44; i <= 48 && i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 44, 48, 1.6, -0.4, -0.3)
	}
	for i := 49; i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 49, n, 0.9, -1.0, -0.7)
	}
}

// applyPeak46 is the legacy damper curve peaking near wheel 46.
func applyPeak46(oscs []Oscillator) {
	n := len(oscs)
	for i := 1; i <= 43 && i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 1, 43, 0.3, 0.4, 1.0)
	}
	for i := 44; i <= 48 && i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 44, 48, 0.1, -0.4, 0.4)
	}
	for i := 49; i <= n; i++ {
		oscs[i-1].Attenuation = damperCurve(i, 49, n, 0.8, -1.0, -0.3)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
