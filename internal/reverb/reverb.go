// Package reverb implements the spring-reverb tail: four parallel
// feedback combs, three series allpasses, and a damped feedback path.
package reverb

// numCombs is the number of parallel feedback comb filters.
const numCombs = 4

// numAllpass is the number of series allpass filters.
const numAllpass = 3

// combLengths and allpassLengths are the delay-line lengths in samples
// at the reference 22050Hz rate; scaled by SR/22050 at construction so
// the tail character (not its absolute sample length) stays put.
var combLengths = [numCombs]int{2999, 2331, 1893, 1097}
var allpassLengths = [numAllpass]int{1051, 337, 113}

const invSqrt2 = 0.70710678118654752440

// denormalFloor keeps IIR feedback state from stalling on denormals.
const denormalFloor = 1e-14

// Tank is a stateful spring-reverb processor.
type Tank struct {
	combs    [numCombs]comb
	allpass  [numAllpass]allpass

	inputGain   float64
	feedbackGain float64

	wet, dry float64

	yy1 float32
	y1  float32
}

type comb struct {
	line []float32
	pos  int
	gain float64
}

type allpass struct {
	line []float32
	pos  int
	gain float64
}

// New builds a Tank sized for sampleRate, scaling the reference delay
// lengths proportionally.
func New(sampleRate float64) *Tank {
	scale := sampleRate / 22050.0
	t := &Tank{
		inputGain:    0.025,
		feedbackGain: -0.015,
		wet:          0.3,
		dry:          0.7,
	}
	for i := range t.combs {
		n := int(float64(combLengths[i]) * scale)
		if n < 1 {
			n = 1
		}
		t.combs[i] = comb{line: make([]float32, n), gain: invSqrt2}
	}
	for i := range t.allpass {
		n := int(float64(allpassLengths[i]) * scale)
		if n < 1 {
			n = 1
		}
		t.allpass[i] = allpass{line: make([]float32, n), gain: invSqrt2}
	}
	return t
}

// SetMix splits the current wet+dry total as g wet, 1-g dry, so a prior
// SetOutputGain scaling survives.
func (t *Tank) SetMix(g float64) {
	if g < 0 {
		g = 0
	} else if g > 1 {
		g = 1
	}
	total := t.wet + t.dry
	if total == 0 {
		total = 1
	}
	t.wet = g * total
	t.dry = total - g*total
}

// Mix returns wet/(wet+dry), which must equal the last SetMix argument
// within rounding.
func (t *Tank) Mix() float64 {
	total := t.wet + t.dry
	if total == 0 {
		return 0
	}
	return t.wet / total
}

// SetOutputGain scales wet and dry proportionally, keeping their ratio
// (and hence Mix()) unchanged.
func (t *Tank) SetOutputGain(g float64) {
	t.wet *= g
	t.dry *= g
}

// Process runs the tank over a block (len(out) == len(in)).
func (t *Tank) Process(in, out []float32) {
	for i, xo := range in {
		x := float32(t.inputGain)*xo + t.y1

		var xa float32
		for c := range t.combs {
			cb := &t.combs[c]
			y := cb.line[cb.pos]
			cb.line[cb.pos] = x + float32(cb.gain)*y
			if cb.line[cb.pos] < denormalFloor && cb.line[cb.pos] > -denormalFloor {
				cb.line[cb.pos] += denormalFloor
			}
			cb.pos++
			if cb.pos >= len(cb.line) {
				cb.pos = 0
			}
			xa += y
		}

		for a := range t.allpass {
			ap := &t.allpass[a]
			y := ap.line[ap.pos]
			ap.line[ap.pos] = float32(ap.gain) * (xa + y)
			ap.pos++
			if ap.pos >= len(ap.line) {
				ap.pos = 0
			}
			y2 := y - xa
			xa = y2
		}

		y := 0.5 * (xa + t.yy1)
		t.yy1 = y
		t.y1 = float32(t.feedbackGain) * xa

		out[i] = float32(t.wet)*y + float32(t.dry)*xo
	}
}
