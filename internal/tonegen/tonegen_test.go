package tonegen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantherb/gobfree/internal/tonewheel"
	"github.com/pantherb/gobfree/internal/vibrato"
)

func keyWheelFunc(manual Manual, key int) int {
	base := 20
	switch manual {
	case Lower:
		base = 15
	case Pedal:
		base = 10
	}
	return base + key
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	bank := tonewheel.NewBank(tonewheel.Config{
		SampleRate:  48000,
		BlockSize:   128,
		Temperament: tonewheel.Equal,
		TuningOsc:   11,
		ReferenceHz: 440,
		EQ:          tonewheel.EQSpline,
		Spline:      tonewheel.DefaultSplineParams,
	})
	vib := vibrato.NewScanner(48000, 7.0, vibrato.DefaultAmplitudes)
	eng := New(Config{
		SampleRate: 48000,
		BlockSize:  128,
		NumWheels:  tonewheel.NumWheels,
		Foldback:   FB00,
		UpperKeys:  61,
		LowerKeys:  61,
		PedalKeys:  32,
		KeyWheel:   keyWheelFunc,
		Seed:       1,
	}, bank, vib)
	for b := 0; b < NumBuses; b++ {
		eng.SetDrawbar(Upper, b, 8)
		eng.SetDrawbar(Lower, b, 8)
		eng.SetDrawbar(Pedal, b, 8)
	}
	eng.SetSwellPedal(127)
	return eng
}

func TestActiveListWellFormedThroughoutLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	out := make([]float32, 128)

	eng.KeyOn(Upper, 36)
	for i := 0; i < 5; i++ {
		eng.Process(out)
		assert.True(t, eng.WellFormed())
	}
	eng.KeyOff(Upper, 36)
	for i := 0; i < 5; i++ {
		eng.Process(out)
		assert.True(t, eng.WellFormed())
	}
}

func TestRefCountReturnsToZero(t *testing.T) {
	// paired on/off sequences must drain every reference count
	eng := newTestEngine(t)
	out := make([]float32, 128)

	keys := []int{24, 36, 40, 45}
	for _, k := range keys {
		eng.KeyOn(Upper, k)
	}
	eng.Process(out)
	for _, k := range keys {
		eng.KeyOff(Upper, k)
	}
	for i := 0; i < 10; i++ {
		eng.Process(out)
	}
	assert.True(t, eng.Quiescent())
}

func TestMiddleCKeyClick(t *testing.T) {
	eng := newTestEngine(t)
	out := make([]float32, 128)

	eng.KeyOn(Upper, 36)
	eng.Process(out)

	var sumSq float64
	nonzero := false
	for _, v := range out {
		if v != 0 {
			nonzero = true
		}
		sumSq += float64(v) * float64(v)
	}
	assert.True(t, nonzero, "expected nonzero output within the first block after KEY_ON")

	rms := math.Sqrt(sumSq / float64(len(out)))
	dBFS := 20 * math.Log10(rms+1e-12)
	assert.Greater(t, dBFS, -40.0)

	for i := 0; i < 4800/128+2; i++ {
		eng.Process(out)
	}
	eng.KeyOff(Upper, 36)
	for i := 0; i < 10; i++ {
		eng.Process(out)
	}
	require.True(t, eng.Quiescent())
}

func TestPercussionRetrigger(t *testing.T) {
	eng := newTestEngine(t)
	out := make([]float32, 128)
	eng.SetPercussion(true, true, false, false)

	eng.KeyOn(Upper, 36)
	eng.Process(out)
	firstPeak := eng.perc.envGain

	// let the fast (1s) envelope decay while 36 is held
	for i := 0; i < 400; i++ {
		eng.Process(out)
	}

	eng.KeyOn(Upper, 37)
	eng.Process(out)
	secondPeak := eng.perc.envGain

	assert.LessOrEqual(t, secondPeak, firstPeak*0.1,
		"holding 36 while pressing 37 must not retrigger percussion")

	eng.KeyOff(Upper, 36)
	eng.KeyOff(Upper, 37)
	for i := 0; i < 5; i++ {
		eng.Process(out)
	}

	eng.KeyOn(Upper, 36)
	eng.Process(out)
	assert.Greater(t, eng.perc.envGain, eng.perc.resetLvl*0.9,
		"first key after an empty upper manual retriggers the full envelope")
}

func TestProgramSplitsWrappingReads(t *testing.T) {
	eng := newTestEngine(t)
	out := make([]float32, 128)

	eng.KeyOn(Upper, 36)
	// advance until at least one oscillator read straddles its loop end
	sawSplit := false
	for i := 0; i < 200 && !sawSplit; i++ {
		eng.Process(out)
		for j := 0; j < eng.pgm.n; j++ {
			ins := &eng.pgm.ins[j]
			if ins.dstOff != 0 {
				sawSplit = true
				// the pair must cover the block exactly
				prev := &eng.pgm.ins[j-1]
				assert.Equal(t, prev.count, ins.dstOff)
				assert.Equal(t, 128, prev.count+ins.count)
				assert.Equal(t, 0, ins.srcOff)
			}
		}
	}
	assert.True(t, sawSplit, "expected at least one wrap-split instruction pair")
}

func TestEnvelopeBankShapes(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < numEnvelopes; i++ {
		atk := eng.envelopes.attack[i]
		rel := eng.envelopes.release[i]
		require.Len(t, atk, 128)
		require.Len(t, rel, 128)
		// both polarities traverse 0 to 1
		assert.InDelta(t, 0.0, float64(rel[0]), 1e-6)
		assert.InDelta(t, 1.0, float64(rel[len(rel)-1]), 1e-6)
		// the click burst may reach the penultimate sample, so the
		// smoothed tail is only guaranteed to reach half scale
		assert.Greater(t, float64(atk[len(atk)-1]), 0.4)
	}
}

func TestKeyCompressionTargetsTable(t *testing.T) {
	var kc keyCompression
	kc.setKeyDownCount(1)
	assert.InDelta(t, 1.0, kc.target, 1e-12)
	kc.setKeyDownCount(10)
	low := kc.target
	kc.setKeyDownCount(40)
	assert.Less(t, kc.target, low, "compression is monotone decreasing in key count")
}

func TestPercussionSoundsRegardlessOfTriggerDrawbar(t *testing.T) {
	// the percussion output gain is the fixed soft/normal constant, not
	// the (muted) trigger bus's drawbar setting
	eng := newTestEngine(t)
	out := make([]float32, 128)

	// pull every drawbar in so only the percussion path can sound
	for b := 0; b < NumBuses; b++ {
		eng.SetDrawbar(Upper, b, 0)
		eng.SetDrawbar(Lower, b, 0)
		eng.SetDrawbar(Pedal, b, 0)
	}
	eng.SetPercussion(true, true, false, true)

	eng.KeyOn(Upper, 36)
	var energy float64
	for i := 0; i < 4; i++ {
		eng.Process(out)
		for _, v := range out {
			energy += float64(v) * float64(v)
		}
	}
	assert.Greater(t, energy, 0.0,
		"percussion must sound even with the trigger drawbar at zero")
}

func TestDrawbarMonotonicity(t *testing.T) {
	// increasing a drawbar setting never decreases that bus's
	// contribution to any keyed-on sample's magnitude.
	eng := newTestEngine(t)
	out := make([]float32, 128)

	eng.SetDrawbar(Upper, 2, 0)
	eng.KeyOn(Upper, 36)
	eng.Process(out)
	var low float64
	for _, v := range out {
		low += math.Abs(float64(v))
	}

	eng2 := newTestEngine(t)
	eng2.SetDrawbar(Upper, 2, 8)
	eng2.KeyOn(Upper, 36)
	out2 := make([]float32, 128)
	eng2.Process(out2)
	var high float64
	for _, v := range out2 {
		high += math.Abs(float64(v))
	}

	assert.GreaterOrEqual(t, high, low)
}
