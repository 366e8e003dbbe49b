// patchdump loads a YAML patch bank and prints the resolved program
// state, for checking what a program will do to the engine without
// starting audio.
package main

import (
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/pantherb/gobfree/internal/config"
	"github.com/pantherb/gobfree/internal/organlog"
)

func main() {
	var program = flag.Int("program", 0, "print only this patch index (default: all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: patchdump [--program N] <bank.yaml>\n")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		organlog.Fatal("cannot open bank", "path", flag.Arg(0), "err", err)
	}
	bank, err := config.LoadBank(f)
	f.Close()
	if err != nil {
		organlog.Fatal("bank rejected", "err", err)
	}

	indices := make([]int, 0, len(bank.Patches))
	for idx := range bank.Patches {
		if *program > 0 && idx != *program {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		dump(idx, bank.Patches[idx])
	}
}

func dump(idx int, p config.Patch) {
	fmt.Printf("program %d: %s\n", idx, p.Name)
	fmt.Printf("  upper %v  lower %v  pedal %v\n", p.Upper, p.Lower, p.Pedal)
	fmt.Printf("  percussion: enabled=%v fast=%v soft=%v second=%v\n",
		p.Percussion.Enabled, p.Percussion.Fast, p.Percussion.Soft, p.Percussion.Second)
	fmt.Printf("  vibrato: depth=%d chorus=%v\n", p.Vibrato.Depth, p.Vibrato.Chorus)
	fmt.Printf("  whirl: speed=%d hornbrake=%.3f drumbrake=%.3f\n",
		p.Whirl.Speed, p.Whirl.HornBrake, p.Whirl.DrumBrake)
	fmt.Printf("  overdrive: clean=%v bias=%.3f gainin=%.3f gainout=%.3f\n",
		p.Overdrive.Clean, p.Overdrive.Bias, p.Overdrive.GainIn, p.Overdrive.GainOut)
}
