// Package tonegen implements the tone generator core: the
// key-contribution graph, the Active Oscillator Table, the per-block
// instruction compiler/interpreter, percussion, key compression, and
// drawbar mixing.
package tonegen

import (
	"math/rand"

	"github.com/pantherb/gobfree/internal/tonewheel"
	"github.com/pantherb/gobfree/internal/vibrato"
)

// Manual selects one of the organ's three keyboards.
type Manual int

const (
	Upper Manual = iota
	Lower
	Pedal
)

// numManuals is the bus-offset stride; pedal shares the 27-bus layout
// even though it only drives one reference taper.
const numManuals = 3

// routing bits, compared once per block to detect toggles.
const (
	routeLowerVib = 1 << 0
	routeUpperVib = 1 << 1
	routePerc     = 1 << 2
	routeVib      = routeUpperVib | routeLowerVib
)

// Config parameterizes Engine construction.
type Config struct {
	SampleRate float64
	BlockSize  int
	NumWheels  int
	Foldback   Foldback
	UpperKeys  int
	LowerKeys  int
	PedalKeys  int
	KeyWheel   func(manual Manual, key int) int
	// AttackModel/ReleaseModel select the envelope shapes; zero values
	// give the stock click attack and linear release.
	AttackModel  EnvelopeModel
	ReleaseModel EnvelopeModel
	Seed         int64
}

// Engine owns the AOT, active list, compiled core program, and
// per-block scratch buffers; it is touched only from the audio thread.
type Engine struct {
	cfg  Config
	bank *tonewheel.Bank
	vib  *vibrato.Scanner

	aot     *aotTable
	contrib [numManuals][][]Contribution

	pgm       *program
	envelopes *envelopeBank

	removedList []int

	keyDown      [numManuals][]bool
	keyDownCount [numManuals]int

	drawbars      [numManuals][NumBuses]float64 // linear gain, drawbar/8
	drawBarChange bool

	oldRouting int
	newRouting int

	swellPedalGain float64

	perc *percussion
	comp keyCompression

	rng *rand.Rand

	swellScratch   []float32
	vibratoScratch []float32
	vibratoOut     []float32
	percScratch    []float32
}

// New builds an Engine sharing bank and vib with the rest of the audio
// pipeline.
func New(cfg Config, bank *tonewheel.Bank, vib *vibrato.Scanner) *Engine {
	e := &Engine{
		cfg:  cfg,
		bank: bank,
		vib:  vib,
		aot:  newAOTTable(cfg.NumWheels),
		pgm:  newProgram(),
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		perc: newPercussion(),
	}
	e.envelopes = newEnvelopeBank(cfg.BlockSize, cfg.SampleRate, cfg.AttackModel, cfg.ReleaseModel, e.rng)
	e.newRouting = routeUpperVib | routeLowerVib
	e.oldRouting = e.newRouting
	e.swellPedalGain = 1.0
	e.perc.configure(cfg.SampleRate)
	e.perc.envGain = e.perc.resetLvl
	e.comp.current = compressionTable[0]
	e.removedList = make([]int, 0, cfg.NumWheels)

	keyWheel := func(manual Manual) func(int) int {
		return func(key int) int { return cfg.KeyWheel(manual, key) }
	}
	e.contrib[Upper] = BuildKeyContrib(ContribConfig{NumWheels: cfg.NumWheels, Foldback: cfg.Foldback, KeyWheel: keyWheel(Upper)}, cfg.UpperKeys)
	e.contrib[Lower] = BuildKeyContrib(ContribConfig{NumWheels: cfg.NumWheels, Foldback: cfg.Foldback, KeyWheel: keyWheel(Lower)}, cfg.LowerKeys)
	e.contrib[Pedal] = BuildKeyContrib(ContribConfig{NumWheels: cfg.NumWheels, Foldback: cfg.Foldback, KeyWheel: keyWheel(Pedal), Pedal: true}, cfg.PedalKeys)

	e.keyDown[Upper] = make([]bool, cfg.UpperKeys)
	e.keyDown[Lower] = make([]bool, cfg.LowerKeys)
	e.keyDown[Pedal] = make([]bool, cfg.PedalKeys)

	e.swellScratch = make([]float32, cfg.BlockSize)
	e.vibratoScratch = make([]float32, cfg.BlockSize)
	e.vibratoOut = make([]float32, cfg.BlockSize)
	e.percScratch = make([]float32, cfg.BlockSize)

	return e
}

func busOffset(m Manual) int { return int(m) * NumBuses }

// SetDrawbar sets a 0..8 drawbar position for (manual, bus). While
// percussion is enabled, the trigger bus's drawbar is muted; updates to
// it land in the saved restore value instead.
func (e *Engine) SetDrawbar(m Manual, bus int, position int) {
	if bus < 0 || bus >= NumBuses {
		return
	}
	if position < 0 {
		position = 0
	}
	if position > 8 {
		position = 8
	}
	gain := float64(position) / 8.0
	if e.perc.enabled && m == Upper && bus == e.perc.sendBus() {
		e.perc.savedDrawbar = gain
		return
	}
	e.drawbars[m][bus] = gain
	e.drawBarChange = true
}

// Drawbar reports the live linear gain for (manual, bus).
func (e *Engine) Drawbar(m Manual, bus int) float64 { return e.drawbars[m][bus] }

// SetSwellPedal sets the global swell gain from a 0..127 control value.
func (e *Engine) SetSwellPedal(u int) {
	if u < 0 {
		u = 0
	}
	if u > 127 {
		u = 127
	}
	e.swellPedalGain = float64(u) / 127.0
}

// SetVibratoRouting selects whether a manual's signal passes through
// the vibrato scanner before the swell mix. The pedal
// group always routes directly to swell.
func (e *Engine) SetVibratoRouting(m Manual, routed bool) {
	var bit int
	switch m {
	case Upper:
		bit = routeUpperVib
	case Lower:
		bit = routeLowerVib
	default:
		return
	}
	if routed {
		e.newRouting |= bit
	} else {
		e.newRouting &^= bit
	}
}

// SetPercussion configures the percussion state machine: the
// four independent switches for enable, fast/slow decay, soft/normal
// volume and harmonic tap (secondHarmonic false selects bus 3, the 4'
// second-harmonic tap; true selects bus 4, the 2 2/3' third-harmonic
// tap). Enabling mutes the trigger
// bus's drawbar and saves its setting; disabling restores it.
func (e *Engine) SetPercussion(enabled, fast, soft, secondHarmonic bool) {
	wasEnabled := e.perc.enabled
	oldBus := e.perc.sendBus()

	e.perc.fast = fast
	e.perc.soft = soft
	e.perc.second = secondHarmonic
	e.perc.enabled = enabled
	e.perc.configure(e.cfg.SampleRate)

	bus := e.perc.sendBus()
	switch {
	case enabled && !wasEnabled:
		e.perc.savedDrawbar = e.drawbars[Upper][bus]
		e.drawbars[Upper][bus] = 0
		e.drawBarChange = true
		e.newRouting |= routePerc
	case !enabled && wasEnabled:
		e.drawbars[Upper][oldBus] = e.perc.savedDrawbar
		e.drawBarChange = true
		e.newRouting &^= routePerc
	case enabled && bus != oldBus:
		// harmonic tap moved: unmute the old bus, mute the new one
		e.drawbars[Upper][oldBus] = e.perc.savedDrawbar
		e.perc.savedDrawbar = e.drawbars[Upper][bus]
		e.drawbars[Upper][bus] = 0
		e.drawBarChange = true
	}
}

// SetPercussionHipass selects the hipass percussion variant at
// runtime, keeping both envelope scaling constants available.
func (e *Engine) SetPercussionHipass(on bool) {
	e.perc.hipass = on
	e.perc.configure(e.cfg.SampleRate)
}

// PercussionEnabled reports the percussion enable switch.
func (e *Engine) PercussionEnabled() bool { return e.perc.enabled }

// KeyOn registers a key press.
func (e *Engine) KeyOn(m Manual, key int) {
	if key < 0 || key >= len(e.keyDown[m]) || e.keyDown[m][key] {
		return
	}
	e.keyDown[m][key] = true
	e.keyDownCount[m]++
	e.aot.keyOn(e.contrib[m][key], busOffset(m))
}

// KeyOff registers a key release.
func (e *Engine) KeyOff(m Manual, key int) {
	if key < 0 || key >= len(e.keyDown[m]) || !e.keyDown[m][key] {
		return
	}
	e.keyDown[m][key] = false
	e.keyDownCount[m]--
	e.aot.keyOff(e.contrib[m][key], busOffset(m))
}

// ActiveWheelCount reports the number of wheels currently on the active
// list, for diagnostics and tests.
func (e *Engine) ActiveWheelCount() int { return len(e.aot.activeList) }

// Quiescent reports true once every ref count is zero and the
// active list is empty.
func (e *Engine) Quiescent() bool { return e.aot.quiescent() }

// WellFormed reports whether the active list and the per-entry back
// indices agree.
func (e *Engine) WellFormed() bool { return e.aot.wellFormed() }

// PercussionEnvelopeGain exposes the live percussion envelope level for
// retrigger tests.
func (e *Engine) PercussionEnvelopeGain() float64 { return e.perc.envGain }

// recomputeGroupSums refreshes an entry's manual group sums against the
// live drawbar gains; reroute folds them into the swell/scanner/percussion
// send levels under the current routing.
func (e *Engine) recomputeGroupSums(entry *aotEntry) {
	var upper, lower, pedal float64
	for b := 0; b < NumBuses; b++ {
		upper += entry.busLevel[busOffset(Upper)+b] * e.drawbars[Upper][b]
		lower += entry.busLevel[busOffset(Lower)+b] * e.drawbars[Lower][b]
		pedal += entry.busLevel[busOffset(Pedal)+b] * e.drawbars[Pedal][b]
	}
	entry.sumUpper = upper
	entry.sumLower = lower
	entry.sumPedal = pedal
}

func (e *Engine) reroute(entry *aotEntry) {
	if e.oldRouting&routePerc != 0 {
		entry.sumPercn = entry.busLevel[busOffset(Upper)+e.perc.sendBus()]
	} else {
		entry.sumPercn = 0
	}
	entry.sumScanr = 0
	entry.sumSwell = entry.sumPedal
	if e.oldRouting&routeUpperVib != 0 {
		entry.sumScanr += entry.sumUpper
	} else {
		entry.sumSwell += entry.sumUpper
	}
	if e.oldRouting&routeLowerVib != 0 {
		entry.sumScanr += entry.sumLower
	} else {
		entry.sumSwell += entry.sumLower
	}
}

// emitWheel compiles one or two instructions (two when the source read
// wraps the wave loop) for wheel's render this block.
func (e *Engine) emitWheel(osc *tonewheel.Oscillator, opr int, env []float32,
	sgain, vgain, pgain, nsgain, nvgain, npgain float64, copyDone *bool) {

	n := e.cfg.BlockSize
	op := opr
	if *copyDone {
		op |= opADD
	} else {
		*copyDone = true
	}

	ins := e.pgm.emit()
	if ins == nil {
		return
	}
	ins.opr = op
	ins.src = osc.Wave
	ins.srcOff = osc.Pos
	ins.dstOff = 0
	ins.env = env
	ins.sgain, ins.vgain, ins.pgain = sgain, vgain, pgain
	ins.nsgain, ins.nvgain, ins.npgain = nsgain, nvgain, npgain

	l := len(osc.Wave)
	if osc.Pos+n > l {
		// split across the wave loop boundary
		first := l - osc.Pos
		ins.count = first
		osc.Pos = n - first

		wrap := e.pgm.emit()
		if wrap == nil {
			return
		}
		wrap.opr = op
		wrap.src = osc.Wave
		wrap.srcOff = 0
		wrap.dstOff = first
		wrap.count = n - first
		if env != nil {
			wrap.env = env[first:]
		}
		wrap.sgain, wrap.vgain, wrap.pgain = sgain, vgain, pgain
		wrap.nsgain, wrap.nvgain, wrap.npgain = nsgain, nvgain, npgain
	} else {
		ins.count = n
		osc.Pos += n
	}
}

// Process runs one block: compile the core program from the
// active list, interpret it into the swell/vibrato/percussion scratch
// buffers, run the vibrato-routed bus through the scanner, and mix down
// with swell, key compression and the percussion envelope. len(out)
// must equal the configured block size.
func (e *Engine) Process(out []float32) {
	n := e.cfg.BlockSize
	e.pgm.reset()
	e.removedList = e.removedList[:0]

	recomputeRouting := e.oldRouting != e.newRouting
	e.oldRouting = e.newRouting

	copyDone := false
	for i, wheel := range e.aot.activeList {
		entry := &e.aot.entries[wheel]
		osc := &e.bank.Oscillators[wheel-1]

		if entry.flag == FlagRemoved {
			e.removedList = append(e.removedList, wheel)
			e.emitWheel(osc, opCPYENV, e.envelopes.releaseEnv(i),
				entry.sumSwell, entry.sumScanr, entry.sumPercn, 0, 0, 0, &copyDone)
			entry.flag = FlagNone
			continue
		}

		sgain, vgain, pgain := entry.sumSwell, entry.sumScanr, entry.sumPercn
		reroute := false
		if entry.flag == FlagAdded || entry.flag == FlagModified || e.drawBarChange {
			e.recomputeGroupSums(entry)
			reroute = true
		}
		if reroute || recomputeRouting {
			e.reroute(entry)
		}

		if entry.flag == FlagAdded {
			e.emitWheel(osc, opCPYENV, e.envelopes.attackEnv(i),
				0, 0, 0, entry.sumSwell, entry.sumScanr, entry.sumPercn, &copyDone)
		} else {
			// plain copy/add at the (possibly refreshed) steady gains
			if reroute || recomputeRouting {
				sgain, vgain, pgain = entry.sumSwell, entry.sumScanr, entry.sumPercn
			}
			e.emitWheel(osc, opCPY, nil, sgain, vgain, pgain, sgain, vgain, pgain, &copyDone)
		}
		entry.flag = FlagNone
	}
	e.drawBarChange = false

	for _, wheel := range e.removedList {
		entry := &e.aot.entries[wheel]
		e.aot.deactivate(wheel)
		entry.sumUpper, entry.sumLower, entry.sumPedal = 0, 0, 0
		entry.sumSwell, entry.sumScanr, entry.sumPercn = 0, 0, 0
	}

	if e.pgm.n == 0 {
		for i := 0; i < n; i++ {
			e.swellScratch[i] = 0
			e.vibratoScratch[i] = 0
			e.percScratch[i] = 0
		}
	} else {
		e.pgm.interpret(e.swellScratch, e.vibratoScratch, e.percScratch)
	}

	// the scanner is stateful, so it runs on silence too whenever routed
	if e.oldRouting&routeVib != 0 {
		e.vib.Process(e.vibratoScratch, e.vibratoOut)
	}

	e.comp.setKeyDownCount(e.keyDownCount[Upper] + e.keyDownCount[Lower] + e.keyDownCount[Pedal])
	compDelta := e.comp.delta(n)

	percOn := e.oldRouting&routePerc != 0
	outputGain := e.swellPedalGain
	if percOn {
		e.perc.applyHipass(e.percScratch)
		outputGain *= e.perc.percDrawbarGain()
	}
	vibOn := e.oldRouting&routeVib != 0

	for i := 0; i < n; i++ {
		x := e.swellScratch[i]
		if vibOn {
			x += e.vibratoOut[i]
		}
		if percOn {
			x += e.percScratch[i] * float32(e.perc.envGain)
			e.perc.envGain *= e.perc.decay
		}
		e.comp.chase(compDelta)
		out[i] = x * float32(outputGain*e.comp.current)
	}

	// the percussion capacitor recharges while the upper manual is
	// empty; the next key strike plays a full envelope
	if e.keyDownCount[Upper] == 0 {
		e.perc.envGain = e.perc.resetLvl
	}
}
