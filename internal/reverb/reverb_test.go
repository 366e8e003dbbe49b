package reverb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetMixInvariant(t *testing.T) {
	tank := New(48000)
	for _, g := range []float64{0, 0.3, 0.5, 0.8, 1.0} {
		tank.SetMix(g)
		assert.InDelta(t, g, tank.Mix(), 1e-6)
	}
}

func TestSetOutputGainPreservesMixRatio(t *testing.T) {
	tank := New(48000)
	tank.SetMix(0.4)
	before := tank.Mix()
	tank.SetOutputGain(0.5)
	assert.InDelta(t, before, tank.Mix(), 1e-6)
}

func TestSetMixPreservesOutputGainScaling(t *testing.T) {
	tank := New(48000)
	tank.SetOutputGain(0.5) // total drops from 1.0 to 0.5
	tank.SetMix(0.3)
	assert.InDelta(t, 0.15, tank.wet, 1e-9)
	assert.InDelta(t, 0.35, tank.dry, 1e-9)
	assert.InDelta(t, 0.3, tank.Mix(), 1e-9)
}

func TestImpulseDecaysWithinRT60Window(t *testing.T) {
	const sr = 48000
	tank := New(sr)

	in := make([]float32, sr*4)
	in[0] = 1.0
	out := make([]float32, len(in))
	tank.Process(in, out)

	peak := float32(0)
	for _, v := range out {
		if abs32(v) > peak {
			peak = abs32(v)
		}
	}
	threshold := peak / 1000 // -60 dB

	rt60Sample := -1
	for i := len(out) - 1; i >= 0; i-- {
		if abs32(out[i]) > threshold {
			rt60Sample = i
			break
		}
	}

	assert.Greater(t, rt60Sample, 0)
	rt60Seconds := float64(rt60Sample) / sr
	assert.Greater(t, rt60Seconds, 0.05)
	assert.Less(t, rt60Seconds, 3.5)
}

func TestProcessStaysFinite(t *testing.T) {
	tank := New(48000)
	in := make([]float32, 2048)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / 48000))
	}
	out := make([]float32, len(in))
	tank.Process(in, out)
	for i, v := range out {
		assert.Falsef(t, v != v, "sample %d is NaN", i)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
