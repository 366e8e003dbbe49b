// Package vibrato implements the variable-delay vibrato/chorus
// scanner: a fixed-point phase accumulator sampling a precomputed
// offset table into a short write-interpolated delay line.
package vibrato

import "math"

// delayLen is the vibrato delay buffer length in samples.
const delayLen = 1024

// phaseBits is the width of the stator fixed-point phase accumulator.
const phaseBits = 27

// phaseMask wraps the stator phase at 1<<27.
const phaseMask = (1 << phaseBits) - 1

// tableSize is the number of entries in each offset table.
const tableSize = 2048

// Depth selects one of the three built-in offset tables.
type Depth int

const (
	V1 Depth = iota
	V2
	V3
)

// DefaultAmplitudes are the default per-depth modulation amplitudes.
var DefaultAmplitudes = [3]float64{3, 6, 9}

// Scanner is a stateful variable-delay vibrato/chorus line.
type Scanner struct {
	sampleRate float64

	buf    [delayLen]float32
	outPos int

	stator          uint32
	statorIncrement uint32

	tables  [3][tableSize]uint32
	table   Depth
	chorus  bool
}

// NewScanner builds a Scanner with the three offset tables precomputed
// from amps (depths V1/V2/V3) at the given vibrato rate in Hz.
func NewScanner(sampleRate, vibratoHz float64, amps [3]float64) *Scanner {
	s := &Scanner{sampleRate: sampleRate}
	s.SetRate(vibratoHz)
	for k, amp := range amps {
		for i := 0; i < tableSize; i++ {
			v := (1 + amp + amp*math.Sin(2*math.Pi*float64(i)/tableSize)) * 65536.0
			s.tables[k][i] = uint32(v)
		}
	}
	return s
}

// SetRate updates the stator's phase increment for a new vibrato rate,
// increment = vib_hz * (1<<phaseBits) / SR in the 27-bit fixed-point
// domain.
func (s *Scanner) SetRate(vibratoHz float64) {
	s.statorIncrement = uint32((vibratoHz * float64(uint32(1)<<phaseBits)) / s.sampleRate)
}

// Select chooses one of VIB1/VIB2/VIB3 or CHO1/CHO2/CHO3. chorus
// enables the (x+buf[out])/sqrt(2) chorus mix.
func (s *Scanner) Select(depth Depth, chorus bool) {
	s.table = depth
	s.chorus = chorus
}

const invSqrt2 = 0.70710678118654752440

// Process runs the scanner over a block in place semantics: for each
// input sample it writes the delayed/chorus output to out (len(out) ==
// len(in)).
func (s *Scanner) Process(in, out []float32) {
	for i, x := range in {
		j := (uint32(s.outPos)<<16 + s.tables[s.table][s.stator>>16]) & 0x03FFFFFF
		h := j >> 16
		k := (h + 1) & 0x3FF
		f := float32(j&0xFFFF) / 65536.0

		s.buf[h] += x * (1 - f)
		s.buf[k] += x * f

		y := s.buf[s.outPos]
		if s.chorus {
			y = (x + y) * invSqrt2
		}
		out[i] = y

		s.buf[s.outPos] = 0
		s.outPos = (s.outPos + 1) % delayLen
		s.stator = (s.stator + s.statorIncrement) & phaseMask
	}
}
