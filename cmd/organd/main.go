// organd runs the tonewheel organ engine against a portaudio stream:
// no input channel is opened (the organ generates its own signal), and
// the stereo output carries the rotary cabinet's mics. MIDI-style control
// arrives on stdin as "on|off <manual> <key>" and "set <name> <value>"
// lines, standing in for the host's control surface.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gordonklaus/portaudio"
	flag "github.com/spf13/pflag"

	"github.com/pantherb/gobfree/internal/config"
	"github.com/pantherb/gobfree/internal/control"
	"github.com/pantherb/gobfree/internal/organ"
	"github.com/pantherb/gobfree/internal/organlog"
	"github.com/pantherb/gobfree/internal/tonegen"
	"github.com/pantherb/gobfree/internal/tonewheel"
)

func main() {
	var (
		sampleRate  = flag.Float64("rate", 0, "sample rate in Hz (overrides config file)")
		blockSize   = flag.Int("block", 0, "audio block size in frames (overrides config file)")
		configPath  = flag.String("config", "", "engine config file (key = value lines)")
		bankPath    = flag.String("programs", "", "YAML patch bank to load")
		programNum  = flag.Int("program", 0, "patch index 1..128 to apply at startup")
		temperament = flag.String("temperament", "equal", "tuning: equal, gear60 or gear50")
		listCtrls   = flag.Bool("list-controls", false, "print registered control names and exit")
	)
	flag.Parse()

	cfg := config.DefaultEngineConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			organlog.Fatal("cannot open config", "path", *configPath, "err", err)
		}
		warnings, err := config.ParseEngineConfig(f, &cfg)
		f.Close()
		for _, w := range warnings {
			organlog.Warn(w.String())
		}
		if err != nil {
			organlog.Fatal("config rejected", "path", *configPath, "err", err)
		}
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	if *blockSize > 0 {
		cfg.BlockSize = *blockSize
	}

	var temp tonewheel.Temperament
	switch strings.ToLower(*temperament) {
	case "equal":
		temp = tonewheel.Equal
	case "gear60":
		temp = tonewheel.Gear60
	case "gear50":
		temp = tonewheel.Gear50
	default:
		organlog.Fatal("unknown temperament", "value", *temperament)
	}

	engine := organ.New(organ.Config{
		SampleRate:  cfg.SampleRate,
		BlockSize:   cfg.BlockSize,
		TuningOsc:   cfg.TuningOsc,
		ReferenceHz: cfg.ReferenceHz,
		Temperament: temp,
	})

	// push the effect tunables from the config file into the wired
	// components before audio starts
	engine.Cabinet().SetRPM(cfg.HornSlowRPM, cfg.HornFastRPM, cfg.DrumSlowRPM, cfg.DrumFastRPM)
	engine.Cabinet().SetInertia(cfg.HornAccel, cfg.HornDecel, cfg.DrumAccel, cfg.DrumDecel)
	engine.Cabinet().SetBrakePositions(cfg.HornBrakePos, cfg.DrumBrakePos)
	engine.Cabinet().SetBypass(cfg.WhirlBypass)
	engine.Scanner().SetRate(cfg.ScannerHz)
	engine.Reverb().SetMix(cfg.ReverbMix)
	od := engine.Preamp().Params()
	od.InputGain = cfg.OverdriveInputGain
	od.OutputGain = cfg.OverdriveOutputGain
	engine.Preamp().SetParams(od)

	if *listCtrls {
		for _, name := range engine.ControlNames() {
			fmt.Println(name)
		}
		return
	}

	if *bankPath != "" {
		f, err := os.Open(*bankPath)
		if err != nil {
			organlog.Fatal("cannot open patch bank", "path", *bankPath, "err", err)
		}
		bank, err := config.LoadBank(f)
		f.Close()
		if err != nil {
			organlog.Fatal("patch bank rejected", "err", err)
		}
		if *programNum > 0 {
			patch, ok := bank.Patches[*programNum]
			if !ok {
				organlog.Fatal("no such program", "index", *programNum)
			}
			engine.ApplyPatch(patch)
		}
	}

	if err := portaudio.Initialize(); err != nil {
		organlog.Fatal("portaudio init failed", "err", err)
	}
	defer portaudio.Terminate()

	stream, err := portaudio.OpenDefaultStream(0, 2, cfg.SampleRate, cfg.BlockSize,
		func(out [][]float32) {
			engine.Process(out[0], out[1])
		})
	if err != nil {
		organlog.Fatal("cannot open audio stream", "err", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		organlog.Fatal("cannot start audio stream", "err", err)
	}
	organlog.Info("audio running", "samplerate", cfg.SampleRate, "block", cfg.BlockSize)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	// the control thread: key events and named controls from stdin
	go controlLoop(engine)

	<-sig
	organlog.Info("shutting down")
	if err := stream.Stop(); err != nil {
		organlog.Warn("stream stop", "err", err)
	}
}

// controlLoop reads "on <manual> <key>", "off <manual> <key>" and
// "set <control-name> <0..127>" lines from stdin and forwards them to
// the engine. This stands in for the out-of-scope MIDI parser: it is
// the control thread, posting key events into the lock-free queue and
// dispatching named controls.
func controlLoop(engine *organ.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "on", "off":
			if len(fields) != 3 {
				organlog.Warn("usage: on|off <upper|lower|pedal> <key>")
				continue
			}
			manual, ok := parseManual(fields[1])
			if !ok {
				organlog.Warn("unknown manual", "name", fields[1])
				continue
			}
			key, err := strconv.Atoi(fields[2])
			if err != nil {
				organlog.Warn("bad key number", "value", fields[2])
				continue
			}
			kind := control.KeyOn
			if fields[0] == "off" {
				kind = control.KeyOff
			}
			if !engine.EnqueueKeyEvent(kind, manual, key) {
				organlog.Warn("key queue full, event dropped")
			}
		case "set":
			if len(fields) != 3 {
				organlog.Warn("usage: set <control> <0..127>")
				continue
			}
			value, err := strconv.Atoi(fields[2])
			if err != nil {
				organlog.Warn("bad control value", "value", fields[2])
				continue
			}
			if err := engine.Dispatch(fields[1], value); err != nil {
				organlog.Warn("control dispatch failed", "err", err)
			}
		default:
			organlog.Warn("unknown command", "cmd", fields[0])
		}
	}
}

func parseManual(s string) (tonegen.Manual, bool) {
	switch s {
	case "upper":
		return tonegen.Upper, true
	case "lower":
		return tonegen.Lower, true
	case "pedal":
		return tonegen.Pedal, true
	}
	return 0, false
}
