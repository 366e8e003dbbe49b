package tonegen

// Core instruction opcodes: two-bit tags, bit 0
// selects add-vs-copy, bit 1 selects envelope interpolation.
const (
	opCPY    = 0
	opADD    = 1
	opCPYENV = 2
	opADDENV = 3
)

// maxProgramLen bounds the per-block instruction program. Each active
// wheel emits at most two instructions (one extra when the source read
// wraps), so 2*91 fits with headroom.
const maxProgramLen = 256

// coreIns is one compiled instruction: render count samples of src
// starting at srcOff into the three scratch buffers at dstOff, at gains
// (sgain, vgain, pgain), optionally interpolated toward (nsgain,
// nvgain, npgain) under env.
type coreIns struct {
	opr    int
	src    []float32
	srcOff int
	dstOff int
	count  int

	env []float32 // nil unless opr has the envelope bit

	sgain, vgain, pgain    float64
	nsgain, nvgain, npgain float64
}

// program is the per-block instruction sequence plus its write cursor.
// Reset and refilled by the compiler every block; owned by the audio
// thread.
type program struct {
	ins []coreIns
	n   int
}

func newProgram() *program {
	return &program{ins: make([]coreIns, maxProgramLen)}
}

func (p *program) reset() { p.n = 0 }

// emit appends one instruction slot, or returns nil when the program is
// full (maxProgramLen leaves room for every wheel's read plus its wrap).
func (p *program) emit() *coreIns {
	if p.n >= maxProgramLen {
		return nil
	}
	ins := &p.ins[p.n]
	p.n++
	*ins = coreIns{}
	return ins
}

// interpret renders every compiled instruction into the swell, vibrato
// and percussion scratch buffers. The first wheel's instruction (and,
// when its read wraps, the partner covering the rest of the block) is a
// CPY/CPYENV writing the buffers outright; everything after accumulates. With an empty program the caller zeroes the
// buffers instead.
func (p *program) interpret(swl, vib, prc []float32) {
	for i := 0; i < p.n; i++ {
		ins := &p.ins[i]
		src := ins.src[ins.srcOff:]
		ys := swl[ins.dstOff:]
		yv := vib[ins.dstOff:]
		yp := prc[ins.dstOff:]

		gs := float32(ins.sgain)
		gv := float32(ins.vgain)
		gp := float32(ins.pgain)

		switch ins.opr {
		case opCPY:
			for n := 0; n < ins.count; n++ {
				x := src[n]
				ys[n] = x * gs
				yv[n] = x * gv
				yp[n] = x * gp
			}
		case opADD:
			for n := 0; n < ins.count; n++ {
				x := src[n]
				ys[n] += x * gs
				yv[n] += x * gv
				yp[n] += x * gp
			}
		case opCPYENV:
			ds := float32(ins.nsgain) - gs
			dv := float32(ins.nvgain) - gv
			dp := float32(ins.npgain) - gp
			for n := 0; n < ins.count; n++ {
				x := src[n]
				e := ins.env[n]
				ys[n] = x * (gs + e*ds)
				yv[n] = x * (gv + e*dv)
				yp[n] = x * (gp + e*dp)
			}
		case opADDENV:
			ds := float32(ins.nsgain) - gs
			dv := float32(ins.nvgain) - gv
			dp := float32(ins.npgain) - gp
			for n := 0; n < ins.count; n++ {
				x := src[n]
				e := ins.env[n]
				ys[n] += x * (gs + e*ds)
				yv[n] += x * (gv + e*dv)
				yp[n] += x * (gp + e*dp)
			}
		}
	}
}
