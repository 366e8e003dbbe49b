package tonegen

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func manualContribConfig(fb Foldback) ContribConfig {
	return ContribConfig{
		NumWheels: 91,
		Foldback:  fb,
		KeyWheel:  func(key int) int { return 13 + key },
	}
}

func TestKeyContribSortedAndAboveFloor(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fb := Foldback(rapid.IntRange(0, 2).Draw(rt, "foldback"))
		contrib := BuildKeyContrib(manualContribConfig(fb), 61)
		key := rapid.IntRange(0, 60).Draw(rt, "key")

		list := contrib[key]
		if len(list) == 0 {
			rt.Fatalf("key %d has no contributions", key)
		}
		sorted := sort.SliceIsSorted(list, func(i, j int) bool {
			if list[i].Wheel != list[j].Wheel {
				return list[i].Wheel < list[j].Wheel
			}
			return list[i].Bus < list[j].Bus
		})
		if !sorted {
			rt.Fatalf("key %d contributions not sorted by (wheel, bus)", key)
		}
		for _, c := range list {
			if c.Gain < contributionFloor {
				rt.Fatalf("key %d carries a gain %g below the floor", key, c.Gain)
			}
			if c.Wheel < 1 || c.Wheel > 91 {
				rt.Fatalf("key %d references wheel %d", key, c.Wheel)
			}
			if c.Bus < 0 || c.Bus >= NumBuses {
				rt.Fatalf("key %d references bus %d", key, c.Bus)
			}
		}
	})
}

func TestFoldbackKeepsTerminalsInRange(t *testing.T) {
	// the A-based 82-wheel variant never reaches below terminal 10
	contrib := BuildKeyContrib(manualContribConfig(FB09), 61)
	for key, list := range contrib {
		for _, c := range list {
			// compartment/strip neighbours may sit below the fold, but
			// the dominant (taper) contributions must not
			if c.Gain > 0.1 {
				assert.GreaterOrEqualf(t, c.Wheel, 10, "key %d wheel %d", key, c.Wheel)
			}
		}
	}
}

func TestTwelveNoteFoldbackRemapsBottomOctave(t *testing.T) {
	plain := BuildKeyContrib(manualContribConfig(FB00), 61)
	folded := BuildKeyContrib(manualContribConfig(FB12), 61)

	// key 0's 16' drawbar wants terminal 1; with 12-note foldback it
	// lands an octave up instead
	findBus := func(list []Contribution, bus int) []Contribution {
		var out []Contribution
		for _, c := range list {
			if c.Bus == bus {
				out = append(out, c)
			}
		}
		return out
	}
	plainBus0 := findBus(plain[0], 0)
	foldedBus0 := findBus(folded[0], 0)
	require.NotEmpty(t, plainBus0)
	require.NotEmpty(t, foldedBus0)

	minWheel := func(cs []Contribution) int {
		w := 1 << 10
		for _, c := range cs {
			// skip the faint crosstalk-only entries
			if c.Gain > 0.1 && c.Wheel < w {
				w = c.Wheel
			}
		}
		return w
	}
	assert.Equal(t, 1, minWheel(plainBus0))
	assert.Equal(t, 13, minWheel(foldedBus0))
}

func TestTaperingModelStepsAreQuantized(t *testing.T) {
	levels := map[float64]bool{
		taperMinusThree: true, taperMinusTwo: true, taperMinusOne: true,
		taperReference: true, taperPlusOne: true, taperPlusTwo: true,
	}
	for bus := 0; bus < NumBuses; bus++ {
		for key := 0; key <= 60; key++ {
			assert.Truef(t, levels[taperingModel(key, bus)],
				"bus %d key %d yields an off-model taper", bus, key)
		}
	}
}

func TestPedalContribHasNoFoldback(t *testing.T) {
	cfg := ContribConfig{
		NumWheels: 91,
		KeyWheel:  func(key int) int { return 1 + key },
		Pedal:     true,
	}
	contrib := BuildKeyContrib(cfg, 32)
	// pedal key 0's 16' terminal would be -11; it is dropped, not folded
	for _, c := range contrib[0] {
		if c.Bus == 0 {
			t.Fatalf("pedal key 0 should have no 16' contribution, got wheel %d", c.Wheel)
		}
	}
	// but the 8' fundamental (terminal 1) is present
	var has8 bool
	for _, c := range contrib[0] {
		if c.Bus == 2 && c.Gain > 0.5 {
			has8 = true
		}
	}
	assert.True(t, has8)
}

func TestTerminalMixSharesCompartment(t *testing.T) {
	mix := buildTerminalMix(91)
	// terminal 1 shares its compartment with wheel 49
	var self, pair float64
	for _, me := range mix[1] {
		switch me.wheel {
		case 1:
			self = me.level
		case 49:
			pair = me.level
		}
	}
	assert.InDelta(t, 1.0-defaultCompartmentCrosstalk, self, 1e-12)
	assert.InDelta(t, defaultCompartmentCrosstalk, pair, 1e-12)
}
