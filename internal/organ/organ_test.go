package organ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantherb/gobfree/internal/config"
	"github.com/pantherb/gobfree/internal/control"
	"github.com/pantherb/gobfree/internal/tonegen"
)

func newTestEngine() *Engine {
	return New(Config{
		SampleRate:  48000,
		BlockSize:   128,
		TuningOsc:   11,
		ReferenceHz: 440,
		Seed:        1,
	})
}

func TestSilenceWithoutKeys(t *testing.T) {
	e := newTestEngine()
	left := make([]float32, 128)
	right := make([]float32, 128)
	for i := 0; i < 4; i++ {
		e.Process(left, right)
	}
	for i := range left {
		assert.InDelta(t, 0, left[i], 1e-4)
		assert.InDelta(t, 0, right[i], 1e-4)
	}
}

func TestKeyEventFlowsThroughQueue(t *testing.T) {
	e := newTestEngine()
	require.True(t, e.EnqueueKeyEvent(control.KeyOn, tonegen.Upper, 24))

	left := make([]float32, 128)
	right := make([]float32, 128)
	// give the rotary delay lines time to carry the wavefront to the mics
	var energy float64
	for i := 0; i < 20; i++ {
		e.Process(left, right)
		for _, v := range left {
			energy += float64(v) * float64(v)
		}
	}
	assert.Greater(t, energy, 0.0, "a queued KEY_ON must produce sound")

	require.True(t, e.EnqueueKeyEvent(control.KeyOff, tonegen.Upper, 24))
	for i := 0; i < 10; i++ {
		e.Process(left, right)
	}
	assert.True(t, e.tone.Quiescent())
}

func TestControlSurfaceNamesRegistered(t *testing.T) {
	e := newTestEngine()
	for _, name := range []string{
		"swellpedal1",
		"upper.drawbar16", "lower.drawbar513", "pedal.drawbar1",
		"percussion.enable", "percussion.decay", "percussion.harmonic", "percussion.volume",
		"vibrato.knob", "vibrato.routing",
		"rotary.speed-toggle", "rotary.speed-preset", "rotary.speed-select",
		"whirl.horn.filter.a.type", "whirl.horn.filter.a.hz",
		"whirl.horn.filter.b.q", "whirl.drum.filter.gain",
		"whirl.horn.brakepos", "whirl.drum.acceleration",
		"bias", "feedback", "sagtobias", "postfeed", "globfeed", "gainin", "gainout",
	} {
		assert.NoErrorf(t, e.Dispatch(name, 64), "control %q", name)
	}
	assert.Error(t, e.Dispatch("no.such.control", 0))
}

func TestDrawbarControlIsInverted(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Dispatch("upper.drawbar16", 0))
	assert.InDelta(t, 1.0, e.tone.Drawbar(tonegen.Upper, 0), 1e-9)
	require.NoError(t, e.Dispatch("upper.drawbar16", 127))
	assert.InDelta(t, 0.0, e.tone.Drawbar(tonegen.Upper, 0), 1e-9)
}

func TestApplyPatch(t *testing.T) {
	e := newTestEngine()
	patch := config.Patch{
		Name:  "test",
		Upper: config.Drawbars{8, 0, 4, 0, 0, 0, 0, 0, 0},
		Percussion: config.PercussionState{
			Enabled: true, Fast: true,
		},
		Whirl: config.WhirlState{Speed: 2},
	}
	e.ApplyPatch(patch)

	assert.InDelta(t, 1.0, e.tone.Drawbar(tonegen.Upper, 0), 1e-9)
	assert.InDelta(t, 0.5, e.tone.Drawbar(tonegen.Upper, 2), 1e-9)
	assert.True(t, e.tone.PercussionEnabled())
}

func TestPatchSpeedEngagesRotors(t *testing.T) {
	e := newTestEngine()
	e.ApplyPatch(config.Patch{Whirl: config.WhirlState{Speed: 2}})
	left := make([]float32, 128)
	right := make([]float32, 128)
	for i := 0; i < 200; i++ {
		e.Process(left, right)
	}
	assert.Greater(t, e.cabinet.HornIncr(), 0.0)
}
