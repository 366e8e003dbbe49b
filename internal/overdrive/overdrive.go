// Package overdrive implements the oversampled tube-style preamp: ×4
// polyphase interpolation, a nonlinear transfer
// function with local/global feedback and power-sag bias modulation, and
// ×4 decimation.
package overdrive

import "math"

// historyLen is the input history ring length.
const historyLen = 64

// outputHistoryLen is the transfer-output history ring length.
const outputHistoryLen = 128

// prototype33 is the 33-tap symmetric lowpass prototype at a quarter
// of the oversampled rate, shared by the interpolator and the
// decimator.
var prototype33 = [33]float64{
	0, -0.0018878784, 0, 0.0038624783, 0, -0.0082424665, 0, 0.0159471147,
	0, -0.0286765601, 0, 0.0507185608, 0, -0.0980159044, 0, 0.3159417510,
	0.5007057786,
	0.3159417510, 0, -0.0980159044, 0, 0.0507185608, 0, -0.0286765601,
	0, 0.0159471147, 0, -0.0082424665, 0, 0.0038624783, 0, -0.0018878784, 0,
}

// interpTapCounts is the per-branch tap count for the ×4 polyphase
// interpolation FIR.
var interpTapCounts = [4]int{9, 8, 8, 8}

// Params are the nonlinearity/feedback coefficients.
type Params struct {
	BiasBase  float64
	InputGain float64
	OutputGain float64
	SagFb     float64 // sag_fb, power-supply recovery rate
	SagGainBias float64 // sag_zgb
	LocalFb   float64 // adw_fb
	PostFb    float64 // adw_fb2
	GlobalFb  float64 // adw_gfb
	Clean     bool
}

// DefaultParams are the stock preamp coefficients; the amp starts in
// clean (bypass) mode until the drive is switched in.
func DefaultParams() Params {
	return Params{
		BiasBase:    0.5347,
		InputGain:   3.5675,
		OutputGain:  0.8795,
		SagFb:       0.991,
		SagGainBias: 0.0094,
		LocalFb:     0.5821,
		PostFb:      0.999,
		GlobalFb:    -0.6214,
		Clean:       true,
	}
}

// Control scalings: bias = 0.7*u^2; input_gain = 0.001 +
// (10-0.001)*u; output_gain = 0.1 + (10-0.1)*u; feedback gains scale as
// 0.999*u or -0.999*u. Each setter maps one 0..1 knob onto its
// coefficient for read-modify-write control bindings.

func (p *Params) SetBiasControl(u float64)       { p.BiasBase = 0.7 * u * u }
func (p *Params) SetInputGainControl(u float64)  { p.InputGain = 0.001 + (10-0.001)*u }
func (p *Params) SetOutputGainControl(u float64) { p.OutputGain = 0.1 + (10-0.1)*u }
func (p *Params) SetSagToBiasControl(u float64)  { p.SagGainBias = 0.05 * u }
func (p *Params) SetFeedbackControl(u float64)   { p.LocalFb = 0.999 * u }
func (p *Params) SetPostFeedControl(u float64)   { p.PostFb = 0.999 * u }
func (p *Params) SetGlobalFeedControl(u float64) { p.GlobalFb = -0.999 * u }

// Preamp is a stateful overdrive processor.
type Preamp struct {
	params Params

	wi  [4][9]float32 // polyphase interpolation weights
	aal [33]float32   // normalized decimation FIR

	xhist [historyLen]float32
	xpos  int

	yhist [outputHistoryLen]float32
	ypos  int

	sagZ    float64
	bias    float64
	norm    float64
	adwZ    float64
	adwZ1   float64
	adwGfZ  float64
}

// New builds a Preamp with the given parameters.
func New(p Params) *Preamp {
	pre := &Preamp{params: p}
	pre.buildFilters()
	return pre
}

// buildFilters derives the interpolation polyphase branches and the
// decimation FIR from prototype33, normalized so sum(|w|) == 1.
func (pre *Preamp) buildFilters() {
	sum := 0.0
	for _, w := range prototype33 {
		sum += math.Abs(w)
	}
	var aal [33]float64
	for i, w := range prototype33 {
		aal[i] = w / sum
		pre.aal[i] = float32(aal[i])
	}

	// Interleave into 4 polyphase branches: wi[p][j] = proto[4j+3-p]
	// (normalized), reading backwards from the convolution tail so a
	// single loop over the history ring needs no conditional at block
	// boundaries.
	for p := 0; p < 4; p++ {
		n := interpTapCounts[p]
		for j := 0; j < n; j++ {
			idx := 4*j + (3 - p)
			if idx < len(prototype33) {
				pre.wi[p][j] = float32(prototype33[idx] / sum)
			}
		}
	}
}

// Params returns the processor's current nonlinearity/feedback
// coefficients, for read-modify-write control bindings.
func (pre *Preamp) Params() Params {
	return pre.params
}

// SetParams updates the processor's nonlinearity/feedback coefficients.
// Safe to call at block boundaries from the control thread's mirrored
// values; does not reallocate.
func (pre *Preamp) SetParams(p Params) {
	pre.params = p
}

// Process runs the preamp over a block (len(out) == len(in)).
func (pre *Preamp) Process(in, out []float32) {
	p := pre.params
	for i, x := range in {
		if p.Clean {
			out[i] = x
			continue
		}

		xin := float32(p.InputGain) * x
		pre.sagZ = p.SagFb*pre.sagZ + math.Abs(float64(xin))
		pre.bias = p.BiasBase - p.SagGainBias*pre.sagZ
		pre.norm = 1.0 - 1.0/(1.0+pre.bias*pre.bias)

		pre.xhist[pre.xpos] = xin
		pre.xpos = (pre.xpos + 1) % historyLen

		var u float32
		for branch := 0; branch < 4; branch++ {
			n := interpTapCounts[branch]
			for j := 0; j < n; j++ {
				idx := (pre.xpos - 1 - j + historyLen) % historyLen
				u += pre.wi[branch][j] * pre.xhist[idx]
			}
		}

		uf := float64(u)
		uf -= p.GlobalFb * pre.adwGfZ
		temp := uf - pre.adwZ
		pre.adwZ = uf + pre.adwZ*p.LocalFb
		uf = temp

		var v float64
		if uf < 0 {
			x2 := uf - pre.bias
			v = 1.0/(1.0+x2*x2) - 1.0 + pre.norm
		} else {
			x2 := uf + pre.bias
			v = 1.0 - pre.norm - 1.0/(1.0+x2*x2)
		}

		temp2 := v + p.PostFb*pre.adwZ1
		v = temp2 - pre.adwZ1
		pre.adwZ1 = temp2
		pre.adwGfZ = v

		pre.yhist[pre.ypos] = float32(v)
		pre.ypos = (pre.ypos + 1) % outputHistoryLen

		var y float32
		for j := 0; j < len(pre.aal); j++ {
			idx := (pre.ypos - 1 - j + outputHistoryLen) % outputHistoryLen
			y += pre.aal[j] * pre.yhist[idx]
		}

		out[i] = float32(p.OutputGain) * y
	}
}
