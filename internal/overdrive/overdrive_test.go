package overdrive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterWeightsSumToUnity(t *testing.T) {
	pre := New(DefaultParams())

	var sumDecim float64
	for _, w := range pre.aal {
		sumDecim += math.Abs(float64(w))
	}
	assert.InDelta(t, 1.0, sumDecim, 1e-6)

	for branch := range pre.wi {
		var sumBranch float64
		for _, w := range pre.wi[branch] {
			sumBranch += math.Abs(float64(w))
		}
		assert.Greater(t, sumBranch, 0.0, "branch %d", branch)
	}
}

func TestCleanBypassIsIdentity(t *testing.T) {
	p := DefaultParams()
	p.Clean = true
	pre := New(p)

	in := make([]float32, 32)
	for i := range in {
		in[i] = float32(i) / 32
	}
	out := make([]float32, len(in))
	pre.Process(in, out)
	assert.Equal(t, in, out)
}

func TestProcessStaysFinite(t *testing.T) {
	p := DefaultParams()
	p.Clean = false
	pre := New(p)

	in := make([]float32, 4096)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}
	out := make([]float32, len(in))
	pre.Process(in, out)

	for i, v := range out {
		assert.Falsef(t, v != v || v > 1e6 || v < -1e6, "sample %d: %v", i, v)
	}
}

func TestHighGainOutputIsNonzeroAndBounded(t *testing.T) {
	p := DefaultParams()
	p.Clean = false
	p.SetBiasControl(0.95)
	p.SetInputGainControl(0.9)
	p.SetOutputGainControl(0.3)
	p.SetSagToBiasControl(0.5)
	p.SetFeedbackControl(0.6)
	p.SetGlobalFeedControl(0.2)
	pre := New(p)

	const n = 2048
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(0.8 * math.Sin(2*math.Pi*220*float64(i)/48000))
	}
	out := make([]float32, n)
	pre.Process(in, out)

	var peak float32
	for _, v := range out {
		if v > peak {
			peak = v
		}
		if -v > peak {
			peak = -v
		}
	}
	assert.Greater(t, peak, float32(0))
	assert.Less(t, peak, float32(1e4))
}
