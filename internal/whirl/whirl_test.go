package whirl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIRTablesNormalized(t *testing.T) {
	// for any angle index, the sum of |component weight| is <= 1
	cab := New(DefaultConfig(48000))
	for i := 0; i < displcSize; i++ {
		assert.LessOrEqualf(t, cab.IRWeightSum(i), 1.0+1e-6, "angle %d", i)
	}
	// the backward table is the index-reversed forward table
	for i := 0; i < displcSize; i++ {
		for j := 0; j < 5; j++ {
			assert.Equal(t, cab.bfw[i][j], cab.bbw[displcSize-i-1][j])
		}
	}
}

func TestAngleStaysInUnitRange(t *testing.T) {
	// horn.angle and drum.angle stay in [0,1) at all times
	cab := New(DefaultConfig(48000))
	cab.SetSpeed(Fast)

	in := make([]float32, 64)
	left := make([]float32, 64)
	right := make([]float32, 64)
	for block := 0; block < 500; block++ {
		cab.Process(in, left, right)
		assert.GreaterOrEqual(t, cab.HornAngle(), 0.0)
		assert.Less(t, cab.HornAngle(), 1.0)
		assert.GreaterOrEqual(t, cab.DrumAngle(), 0.0)
		assert.Less(t, cab.DrumAngle(), 1.0)
	}
}

func TestBypassIsRoundTrip(t *testing.T) {
	// bypass copies input to both channels unmodified
	cab := New(DefaultConfig(48000))
	cab.SetBypass(true)

	in := make([]float32, 32)
	for i := range in {
		in[i] = float32(i) / 32
	}
	left := make([]float32, 32)
	right := make([]float32, 32)
	cab.Process(in, left, right)

	assert.Equal(t, in, left)
	assert.Equal(t, in, right)
}

func TestBrakeSeeksBrakePosition(t *testing.T) {
	// FAST -> STOP with horn brakepos 0.5 parks the horn
	// at (1.25 - 0.5) mod 1 within the 2/128 dead zone.
	const sr = 48000
	cab := New(DefaultConfig(sr))
	cab.SetSpeed(Fast)

	in := make([]float32, 512)
	left := make([]float32, 512)
	right := make([]float32, 512)
	for i := 0; i < 200; i++ {
		cab.Process(in, left, right)
	}
	require.Greater(t, cab.HornIncr(), 0.0)

	cab.SetBrakePositions(0.5, 0)
	cab.SetSpeed(Stop)

	seconds := DefaultConfig(sr).HornDecelSec*3 + 5
	blocks := int(seconds * sr / 512)
	for i := 0; i < blocks; i++ {
		cab.Process(in, left, right)
	}

	assert.Equal(t, 0.0, cab.HornIncr())
	target := math.Mod(1.25-0.5, 1.0)
	assert.InDelta(t, target, cab.HornAngle(), 2.0/displcSize+1e-9)
}

func TestSpeedTableCoversAllNineCombinations(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cab := New(DefaultConfig(48000))
		n := rapid.IntRange(0, 8).Draw(rt, "option")
		cab.SetRevOption(n)
		wantHorn := cab.revOptions[n].horn
		wantDrum := cab.revOptions[n].drum
		if cab.horn.target != wantHorn || cab.drum.target != wantDrum {
			rt.Fatalf("option %d: targets (%g,%g), want (%g,%g)",
				n, cab.horn.target, cab.drum.target, wantHorn, wantDrum)
		}
	})
}

func TestWidthMatrixIsEnergyPreserving(t *testing.T) {
	for _, w := range []float64{-1, -0.5, 0, 0.5, 1} {
		ll, lr, rl, rr := widthMatrix(w)
		assert.InDelta(t, 1.0, ll*ll+lr*lr, 1e-9, "width %f left row", w)
		assert.InDelta(t, 1.0, rl*rl+rr*rr, 1e-9, "width %f right row", w)
	}
	// zero width is the identity: no channel bleed
	ll, lr, rl, rr := widthMatrix(0)
	assert.Equal(t, 1.0, ll)
	assert.Equal(t, 0.0, lr)
	assert.Equal(t, 0.0, rl)
	assert.Equal(t, 1.0, rr)
}

func TestRotorAcceleratesAndSnapsToTarget(t *testing.T) {
	cab := New(DefaultConfig(48000))
	cab.SetSpeed(Fast)
	require.NotZero(t, cab.horn.acDc)

	in := make([]float32, 512)
	left := make([]float32, 512)
	right := make([]float32, 512)
	for i := 0; i < 400; i++ {
		cab.Process(in, left, right)
	}
	assert.Zero(t, cab.horn.acDc, "horn inertia should have settled")
	assert.InDelta(t, cab.horn.target, cab.HornIncr(), 1e-12)
}

func TestProcessSpinningHornDiffersPerChannel(t *testing.T) {
	// with the horn spinning fast, a steady sine must come out
	// differently on the two channels, without NaNs
	cab := New(DefaultConfig(48000))
	cab.SetSpeed(Fast)

	const n = 4096
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*880*float64(i)/48000))
	}
	left := make([]float32, n)
	right := make([]float32, n)
	// prime the rotors and delay lines
	for i := 0; i < 40; i++ {
		cab.Process(in, left, right)
	}
	cab.Process(in, left, right)

	var diff float64
	for i := n / 2; i < n; i++ {
		diff += math.Abs(float64(left[i] - right[i]))
		assert.False(t, left[i] != left[i], "NaN in left channel")
	}
	assert.Greater(t, diff, 0.0, "stereo channels must differ for a spinning horn")
}

func TestDenormalFreedomAfterSilence(t *testing.T) {
	// after a long run of zero input, filter state settles to
	// exactly zero or stays above the denormal threshold.
	cab := New(DefaultConfig(48000))
	in := make([]float32, 8192)
	left := make([]float32, 8192)
	right := make([]float32, 8192)
	for i := 0; i < 128; i++ {
		cab.Process(in, left, right)
	}

	states := []float64{
		cab.hornFilterA.z0, cab.hornFilterA.z1,
		cab.hornFilterB.z0, cab.hornFilterB.z1,
		cab.drumFilterL.z0, cab.drumFilterL.z1,
		cab.drumFilterR.z0, cab.drumFilterR.z1,
	}
	for _, s := range states {
		assert.True(t, s == 0 || math.Abs(s) > 1e-300)
	}
}
