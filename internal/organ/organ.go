// Package organ wires the tone generator, vibrato scanner, overdrive
// preamp, spring reverb, and rotary cabinet into the single audio-thread
// entry point: tonegen -> vibrato (inside tonegen's own mixdown) ->
// overdrive -> reverb -> whirl.
package organ

import (
	"fmt"
	"math"

	"github.com/pantherb/gobfree/internal/config"
	"github.com/pantherb/gobfree/internal/control"
	"github.com/pantherb/gobfree/internal/organlog"
	"github.com/pantherb/gobfree/internal/overdrive"
	"github.com/pantherb/gobfree/internal/reverb"
	"github.com/pantherb/gobfree/internal/tonegen"
	"github.com/pantherb/gobfree/internal/tonewheel"
	"github.com/pantherb/gobfree/internal/vibrato"
	"github.com/pantherb/gobfree/internal/whirl"
)

// maxBlockSize matches the rotary cabinet's delay-buffer length.
const maxBlockSize = 8192

// Config parameterizes Engine construction.
type Config struct {
	SampleRate  float64
	BlockSize   int
	TuningOsc   int
	ReferenceHz float64
	Temperament tonewheel.Temperament
	Seed        int64
}

// Engine is the complete signal chain for one audio callback: the tone
// generator's mono signal feeds the overdrive, then the reverb, then
// the rotary cabinet, producing stereo output. It owns the control
// queue and registry too, since draining the queue is itself a
// per-block audio-thread step.
type Engine struct {
	blockSize int

	bank    *tonewheel.Bank
	vib     *vibrato.Scanner
	tone    *tonegen.Engine
	preamp  *overdrive.Preamp
	tank    *reverb.Tank
	cabinet *whirl.Cabinet

	queue    *control.Queue
	registry *control.Registry

	// mirrored whirl coefficients for read-modify-write bindings
	hornA, hornB, drumF whirl.FilterParams
	hornBrake           float64
	drumBrake           float64
	hornWidth           float64
	drumWidth           float64
	hornAccel, hornDecl float64
	drumAccel, drumDecl float64

	mono []float32
}

// New builds a fully wired Engine. Allocation failure inside
// tonewheel.NewBank panics; New does
// not recover from it.
func New(cfg Config) *Engine {
	if cfg.BlockSize <= 0 || cfg.BlockSize > maxBlockSize {
		organlog.Fatal("block size out of range", "size", cfg.BlockSize, "max", maxBlockSize)
	}

	bank := tonewheel.NewBank(tonewheel.Config{
		SampleRate:  cfg.SampleRate,
		BlockSize:   cfg.BlockSize,
		Temperament: cfg.Temperament,
		TuningOsc:   cfg.TuningOsc,
		ReferenceHz: cfg.ReferenceHz,
		EQ:          tonewheel.EQSpline,
		Spline:      tonewheel.DefaultSplineParams,
		Seed:        cfg.Seed,
	})
	vib := vibrato.NewScanner(cfg.SampleRate, 7.25, vibrato.DefaultAmplitudes)

	tone := tonegen.New(tonegen.Config{
		SampleRate: cfg.SampleRate,
		BlockSize:  cfg.BlockSize,
		NumWheels:  tonewheel.NumWheels,
		Foldback:   tonegen.FB00,
		UpperKeys:  61,
		LowerKeys:  61,
		PedalKeys:  32,
		KeyWheel:   defaultKeyWheel,
		Seed:       cfg.Seed,
	}, bank, vib)

	whirlCfg := whirl.DefaultConfig(cfg.SampleRate)

	e := &Engine{
		blockSize: cfg.BlockSize,
		bank:      bank,
		vib:       vib,
		tone:      tone,
		preamp:    overdrive.New(overdrive.DefaultParams()),
		tank:      reverb.New(cfg.SampleRate),
		cabinet:   whirl.New(whirlCfg),
		queue:     control.NewQueue(),
		registry:  control.NewRegistry(),
		hornA:     whirlCfg.HornA,
		hornB:     whirlCfg.HornB,
		drumF:     whirlCfg.Drum,
		hornAccel: whirlCfg.HornAccelSec,
		hornDecl:  whirlCfg.HornDecelSec,
		drumAccel: whirlCfg.DrumAccelSec,
		drumDecl:  whirlCfg.DrumDecelSec,
		mono:      make([]float32, cfg.BlockSize),
	}
	e.registerControls()
	e.applyStartupRegistration()
	organlog.Info("organ engine initialized", "samplerate", cfg.SampleRate, "blocksize", cfg.BlockSize)
	return e
}

// defaultKeyWheel assigns manual-relative keys to tonewheel numbers
// using a C-based 61-note manual / 32-note pedal layout with the
// standard fundamental offset, before harmonic/foldback mapping in
// internal/tonegen.
func defaultKeyWheel(manual tonegen.Manual, key int) int {
	switch manual {
	case tonegen.Pedal:
		return 1 + key
	default:
		return 13 + key
	}
}

// applyStartupRegistration gives the drawbars a playable initial
// registration so a freshly started engine makes sound.
func (e *Engine) applyStartupRegistration() {
	for bus, v := range []int{8, 8, 6} {
		e.tone.SetDrawbar(tonegen.Upper, bus, v)
	}
	for bus, v := range []int{8, 3, 8} {
		e.tone.SetDrawbar(tonegen.Lower, bus, v)
	}
	e.tone.SetDrawbar(tonegen.Pedal, 0, 8)
	e.tone.SetDrawbar(tonegen.Pedal, 2, 6)
	e.tone.SetSwellPedal(127)
	e.tone.SetPercussion(false, true, false, true)
}

// EnqueueKeyEvent posts a key press or release from the control thread;
// it never blocks.
func (e *Engine) EnqueueKeyEvent(kind control.EventKind, manual tonegen.Manual, key int) bool {
	return e.queue.Push(control.Event{Kind: kind, Manual: int(manual), Key: key})
}

// Dispatch routes a named, 0..127 control value through the
// registry.
func (e *Engine) Dispatch(name string, value int) error {
	return e.registry.Dispatch(name, value)
}

// ControlNames lists every registered binding, for midnam-style export
// and diagnostics.
func (e *Engine) ControlNames() []string { return e.registry.Names() }

// Tone, Preamp, Reverb and Cabinet expose the wired components for
// direct (non-MIDI) configuration before audio starts.
func (e *Engine) Tone() *tonegen.Engine      { return e.tone }
func (e *Engine) Preamp() *overdrive.Preamp  { return e.preamp }
func (e *Engine) Reverb() *reverb.Tank       { return e.tank }
func (e *Engine) Cabinet() *whirl.Cabinet    { return e.cabinet }
func (e *Engine) Scanner() *vibrato.Scanner  { return e.vib }
func (e *Engine) Bank() *tonewheel.Bank      { return e.bank }

// drawbarNames are the footage suffixes in bus order: 16', 5 1/3',
// 8', 4', 2 2/3', 2', 1 3/5', 1 1/3', 1'.
var drawbarNames = [tonegen.NumBuses]string{
	"16", "513", "8", "4", "223", "2", "135", "113", "1",
}

// registerControls installs the named control bindings over the wired
// components. Integer-banded controls divide the 0..127 range inside
// the handler, never in the wire format.
func (e *Engine) registerControls() {
	reg := e.registry.Register

	reg("swellpedal1", func(v int) { e.tone.SetSwellPedal(v) })
	reg("swellpedal2", func(v int) { e.tone.SetSwellPedal(v) })

	manuals := []struct {
		prefix string
		m      tonegen.Manual
	}{
		{"upper", tonegen.Upper},
		{"lower", tonegen.Lower},
		{"pedal", tonegen.Pedal},
	}
	for _, mn := range manuals {
		mn := mn
		for bus := 0; bus < tonegen.NumBuses; bus++ {
			bus := bus
			reg(fmt.Sprintf("%s.drawbar%s", mn.prefix, drawbarNames[bus]), func(v int) {
				// the control surface is inverted: 0 is pulled all the
				// way out (loudest)
				e.tone.SetDrawbar(mn.m, bus, int(math.Round(float64(127-v)*8.0/127.0)))
			})
		}
	}

	// percussion switches: each binding flips one boolean of
	// the state machine
	percState := struct{ enabled, fast, soft, second bool }{fast: true, second: true}
	applyPerc := func() {
		e.tone.SetPercussion(percState.enabled, percState.fast, percState.soft, percState.second)
	}
	reg("percussion.enable", func(v int) { percState.enabled = v > 63; applyPerc() })
	reg("percussion.decay", func(v int) { percState.fast = v > 63; applyPerc() })
	reg("percussion.harmonic", func(v int) { percState.second = v > 63; applyPerc() })
	reg("percussion.volume", func(v int) { percState.soft = v > 63; applyPerc() })

	// vibrato knob: VIB1,CHO1,VIB2,CHO2,VIB3,CHO3 in six bands
	reg("vibrato.knob", func(v int) {
		sel := v / 22
		if sel > 5 {
			sel = 5
		}
		e.vib.Select(vibrato.Depth(sel/2), sel%2 == 1)
	})
	reg("vibrato.routing", func(v int) {
		sel := v / 32
		e.tone.SetVibratoRouting(tonegen.Upper, sel == 2 || sel == 3)
		e.tone.SetVibratoRouting(tonegen.Lower, sel == 1 || sel == 3)
	})

	// rotary speed: the 9-way selector, the 3-way preset, and the
	// slow/fast sustain-pedal toggle
	reg("rotary.speed-select", func(v int) { e.cabinet.SetRevOption(v / 15) })
	reg("rotary.speed-preset", func(v int) { e.cabinet.SetSpeed(whirl.Speed(v / 43)) })
	reg("rotary.speed-toggle", func(v int) {
		if v > 63 {
			e.cabinet.ToggleSpeed()
		}
	})
	reg("rotary.bypass", func(v int) { e.cabinet.SetBypass(v > 63) })

	e.registerWhirlFilter("whirl.horn.filter.a", &e.hornA, e.cabinet.SetHornFilterA)
	e.registerWhirlFilter("whirl.horn.filter.b", &e.hornB, e.cabinet.SetHornFilterB)
	e.registerWhirlFilter("whirl.drum.filter", &e.drumF, e.cabinet.SetDrumFilter)

	applyWidths := func() { e.cabinet.SetWidths(e.hornWidth, e.drumWidth) }
	reg("whirl.horn.width", func(v int) { e.hornWidth = float64(v)/63.5 - 1; applyWidths() })
	reg("whirl.drum.width", func(v int) { e.drumWidth = float64(v)/63.5 - 1; applyWidths() })

	applyBrakes := func() { e.cabinet.SetBrakePositions(e.hornBrake, e.drumBrake) }
	reg("whirl.horn.brakepos", func(v int) { e.hornBrake = float64(v) / 127.0; applyBrakes() })
	reg("whirl.drum.brakepos", func(v int) { e.drumBrake = float64(v) / 127.0; applyBrakes() })

	applyInertia := func() {
		e.cabinet.SetInertia(e.hornAccel, e.hornDecl, e.drumAccel, e.drumDecl)
	}
	reg("whirl.horn.acceleration", func(v int) { e.hornAccel = 0.05 + 1.95*float64(v)/127.0; applyInertia() })
	reg("whirl.horn.deceleration", func(v int) { e.hornDecl = 0.05 + 1.95*float64(v)/127.0; applyInertia() })
	reg("whirl.drum.acceleration", func(v int) { e.drumAccel = 0.5 + 9.5*float64(v)/127.0; applyInertia() })
	reg("whirl.drum.deceleration", func(v int) { e.drumDecl = 0.5 + 9.5*float64(v)/127.0; applyInertia() })

	// overdrive knobs: read-modify-write against the live coefficients
	odParam := func(set func(p *overdrive.Params, u float64)) control.Handler {
		return func(v int) {
			p := e.preamp.Params()
			set(&p, float64(v)/127.0)
			e.preamp.SetParams(p)
		}
	}
	reg("overdrive.enable", odParam(func(p *overdrive.Params, u float64) { p.Clean = u < 0.5 }))
	reg("bias", odParam(func(p *overdrive.Params, u float64) { p.SetBiasControl(u) }))
	reg("gainin", odParam(func(p *overdrive.Params, u float64) { p.SetInputGainControl(u) }))
	reg("gainout", odParam(func(p *overdrive.Params, u float64) { p.SetOutputGainControl(u) }))
	reg("feedback", odParam(func(p *overdrive.Params, u float64) { p.SetFeedbackControl(u) }))
	reg("sagtobias", odParam(func(p *overdrive.Params, u float64) { p.SetSagToBiasControl(u) }))
	reg("postfeed", odParam(func(p *overdrive.Params, u float64) { p.SetPostFeedControl(u) }))
	reg("globfeed", odParam(func(p *overdrive.Params, u float64) { p.SetGlobalFeedControl(u) }))

	reg("reverb.mix", func(v int) { e.tank.SetMix(float64(v) / 127.0) })
}

// registerWhirlFilter binds the type/hz/q/gain quad for one crossover
// biquad, mirroring the coefficients so each knob only overwrites its
// own field.
func (e *Engine) registerWhirlFilter(prefix string, mirror *whirl.FilterParams, apply func(whirl.FilterParams)) {
	e.registry.Register(prefix+".type", func(v int) {
		mirror.Type = whirl.FilterType(v / 15)
		apply(*mirror)
	})
	e.registry.Register(prefix+".hz", func(v int) {
		u := float64(v)
		mirror.Hz = 250.0 + (8000.0-250.0)*(u*u)/16129.0
		apply(*mirror)
	})
	e.registry.Register(prefix+".q", func(v int) {
		mirror.Q = 0.01 + (6.0-0.01)*float64(v)/127.0
		apply(*mirror)
	})
	e.registry.Register(prefix+".gain", func(v int) {
		mirror.Gain = -48.0 + 96.0*float64(v)/127.0
		apply(*mirror)
	})
}

// ApplyPatch pushes one program's state into the engine. Called
// from the control thread between blocks.
func (e *Engine) ApplyPatch(p config.Patch) {
	for bus := 0; bus < tonegen.NumBuses; bus++ {
		e.tone.SetDrawbar(tonegen.Upper, bus, p.Upper[bus])
		e.tone.SetDrawbar(tonegen.Lower, bus, p.Lower[bus])
		e.tone.SetDrawbar(tonegen.Pedal, bus, p.Pedal[bus])
	}
	e.tone.SetPercussion(p.Percussion.Enabled, p.Percussion.Fast, p.Percussion.Soft, p.Percussion.Second)
	e.vib.Select(vibrato.Depth(p.Vibrato.Depth), p.Vibrato.Chorus)

	e.cabinet.SetSpeed(whirlSpeedFromPatch(p.Whirl.Speed))
	e.cabinet.SetBrakePositions(p.Whirl.HornBrake, p.Whirl.DrumBrake)
	e.hornA = filterFromPatch(p.Whirl.HornFilterA, e.hornA)
	e.hornB = filterFromPatch(p.Whirl.HornFilterB, e.hornB)
	e.drumF = filterFromPatch(p.Whirl.DrumFilter, e.drumF)
	e.cabinet.SetHornFilterA(e.hornA)
	e.cabinet.SetHornFilterB(e.hornB)
	e.cabinet.SetDrumFilter(e.drumF)

	od := e.preamp.Params()
	od.Clean = p.Overdrive.Clean
	od.SetBiasControl(p.Overdrive.Bias)
	od.SetInputGainControl(p.Overdrive.GainIn)
	od.SetOutputGainControl(p.Overdrive.GainOut)
	od.SetSagToBiasControl(p.Overdrive.SagToBias)
	od.SetFeedbackControl(p.Overdrive.LocalFb)
	od.SetPostFeedControl(p.Overdrive.PostFb)
	od.SetGlobalFeedControl(p.Overdrive.GlobalFb)
	e.preamp.SetParams(od)

	organlog.Info("patch applied", "name", p.Name)
}

func whirlSpeedFromPatch(v int) whirl.Speed {
	switch v {
	case 2:
		return whirl.Fast
	case 1:
		return whirl.Slow
	default:
		return whirl.Stop
	}
}

func filterFromPatch(s config.WhirlFilterState, prev whirl.FilterParams) whirl.FilterParams {
	if s == (config.WhirlFilterState{}) {
		return prev
	}
	return whirl.FilterParams{Type: whirl.FilterType(s.Type), Hz: s.Hz, Q: s.Q, Gain: s.Gain}
}

// Process runs one full block through the pipeline and writes stereo
// output (len(left)==len(right)==blockSize configured at New). This is
// the single audio-thread entry point: it must not allocate,
// block, or take locks.
func (e *Engine) Process(left, right []float32) {
	e.queue.Drain(func(ev control.Event) {
		manual := tonegen.Manual(ev.Manual)
		if ev.Kind == control.KeyOn {
			e.tone.KeyOn(manual, ev.Key)
		} else {
			e.tone.KeyOff(manual, ev.Key)
		}
	})

	e.tone.Process(e.mono)
	e.preamp.Process(e.mono, e.mono)
	e.tank.Process(e.mono, e.mono)
	e.cabinet.Process(e.mono, left, right)
}
