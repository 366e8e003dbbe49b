package tonegen

import (
	"math"
	"sort"
)

// NumBuses is the number of drawbar buses per manual.
const NumBuses = 9

// busTerminalOffset is the harmonic footage of each of the nine drawbars
// expressed as a terminal-number offset from the key's fundamental: 16',
// 5 1/3', 8', 4', 2 2/3', 2', 1 3/5', 1 1/3', 1'.
var busTerminalOffset = [NumBuses]int{-12, 7, 0, 12, 19, 24, 28, 31, 36}

// Tapering steps in dB. Later consoles implement a gross
// pre-equalization across the manuals through the resistance of the
// tapering wires; these are its quantized levels.
const (
	taperMinusThree = -10.0
	taperMinusTwo   = -7.0
	taperMinusOne   = -3.5
	taperReference  = 0.0
	taperPlusOne    = 3.5
	taperPlusTwo    = 7.0
)

// contributionFloor and contributionMin bound key_contrib entries:
// entries below the floor (~ -96dB) are dropped, surviving entries are
// clamped up to the minimum (0 disables the clamp).
const contributionFloor = 0.0000158
const contributionMin = 0.0

// Default crosstalk coefficients for the four physical leakage layers:
// key wiring, generator compartments, output transformers, and the
// terminal soldering strip. -40dB except the transformers, which are
// quiet enough to be off by default.
const (
	defaultWiringCrosstalk        = 0.01
	defaultCompartmentCrosstalk   = 0.01
	defaultTransformerCrosstalk   = 0.0
	defaultTerminalStripCrosstalk = 0.01
)

// wheelPairs maps each wheel to the one sharing its compartment; the
// pairing is the generator's physical layout, not an arithmetic rule.
// Index 0 unused; 0 means the wheel sits alone.
var wheelPairs = [92]int{
	0,
	49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60,
	61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 71, 72,
	73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 83, 84,
	0, 0, 0, 0, 0, 85, 86, 87, 88, 89, 90, 91,
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12,
	13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24,
	25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35, 36,
	42, 43, 44, 45, 46, 47, 48,
}

// northTransformers and southTransformers describe the two rows of
// output transformers mounted on top of the generator, in physical
// order.
var northTransformers = []int{
	85, 66, 90, 71, 47, 64, 86, 69, 45, 62, 86, 67, 91, 72, 48, 65, 89, 70,
	46, 63, 87, 68, 44, 61,
}

var southTransformers = []int{
	78, 54, 83, 59, 76, 52, 81, 57, 74, 50, 79, 55, 84, 60, 77, 53, 82, 58,
	75, 51, 80, 56, 73, 49,
}

// terminalStrip is the order of oscillator terminals on the soldering
// strip.
var terminalStrip = []int{
	85, 42, 30, 76, 66, 18, 6, 54, 90, 35, 83, 71, 23, 11, 59, 47, 40,
	28, 76, 64, 16, 4, 52, 88, 33, 81, 69, 21, 9, 57, 45, 34, 26, 74,
	62, 14, 2, 50, 86, 43, 31, 79, 67, 19, 7, 55, 91, 36, 84, 72, 24,
	12, 60, 48, 41, 29, 77, 65, 17, 5, 53, 89, 34, 82, 70, 22, 10, 58,
	46, 39, 27, 75, 63, 15, 3, 51, 87, 32, 80, 68, 20, 8, 56, 44, 37,
	25, 73, 61, 13, 1, 49,
}

// Contribution is one (wheel, bus, gain) entry in a key's contribution
// list.
type Contribution struct {
	Wheel int
	Bus   int
	Gain  float64
}

// Foldback selects the installed generator variant and how terminals
// outside its range are remapped.
type Foldback int

const (
	FB00 Foldback = iota // 91 wheels, C-based, no foldback
	FB09                 // 82 wheels, A-based
	FB12                 // 91 wheels, C-based, 12-note foldback
)

// ContribConfig parameterizes the contribution-graph build for one
// manual.
type ContribConfig struct {
	NumWheels int
	Foldback  Foldback
	// KeyWheel maps a manual-relative key index to its ideal
	// fundamental terminal number (1-based) before harmonic offset and
	// foldback.
	KeyWheel func(key int) int
	// Pedal switches to the pedal wiring: a single reference-level
	// taper, out-of-range terminals dropped instead of folded, and no
	// key-contact crosstalk.
	Pedal bool
}

// taperContact is one key contact: a terminal wired to a bus at a gain.
type taperContact struct {
	terminal int
	bus      int
	gain     float64
}

// taperingModel is the default tapering for the upper and lower
// manuals, in dB per (key, bus).
func taperingModel(key, bus int) float64 {
	switch bus {
	case 0: // 16'
		switch {
		case key < 12:
			return taperMinusThree
		case key < 17:
			return taperMinusTwo
		case key < 24:
			return taperMinusOne
		case key < 36:
			return taperReference
		case key < 48:
			return taperPlusOne
		default:
			return taperPlusTwo
		}
	case 1: // 5 1/3'
		switch {
		case key < 15:
			return taperMinusOne
		case key < 38:
			return taperReference
		case key < 50:
			return taperPlusOne
		default:
			return taperPlusTwo
		}
	case 2: // 8'
		switch {
		case key < 17:
			return taperMinusTwo
		case key < 22:
			return taperMinusOne
		case key < 37:
			return taperReference
		case key < 49:
			return taperPlusOne
		default:
			return taperPlusTwo
		}
	case 3: // 4'
		switch {
		case key < 17:
			return taperMinusOne
		case key < 39:
			return taperReference
		default:
			return taperMinusOne
		}
	case 4: // 2 2/3'
		switch {
		case key < 14:
			return taperPlusTwo
		case key < 20:
			return taperPlusOne
		case key < 40:
			return taperReference
		case key < 50:
			return taperMinusOne
		default:
			return taperMinusTwo
		}
	case 5: // 2'
		switch {
		case key < 12:
			return taperPlusTwo
		case key < 15:
			return taperPlusOne
		case key < 41:
			return taperReference
		case key < 54:
			return taperMinusOne
		default:
			return taperMinusTwo
		}
	case 6: // 1 3/5'
		switch {
		case key < 14:
			return taperPlusOne
		case key < 42:
			return taperReference
		case key < 50:
			return taperMinusOne
		default:
			return taperMinusTwo
		}
	case 7: // 1 1/3'
		switch {
		case key < 43:
			return taperReference
		case key < 48:
			return taperMinusOne
		default:
			return taperMinusTwo
		}
	default: // 1'
		if key < 43 {
			return taperReference
		}
		return taperMinusTwo
	}
}

// dbToLinear converts a dB offset to a linear multiplier relative to 0dB=1.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// foldbackBounds returns (leastTerminal, lowerFoldback) for the
// variant; the upper foldback bound is always terminal 91.
func foldbackBounds(fb Foldback) (least, lower int) {
	switch fb {
	case FB09:
		return 10, 10
	case FB12:
		return 1, 13
	default:
		return 1, 1
	}
}

// keyTaper builds the intended contact list for one key: each bus's
// ideal terminal, folded into the installed range, at the tapering
// model's gain.
func keyTaper(cfg ContribConfig, key int) []taperContact {
	fund := cfg.KeyWheel(key)
	contacts := make([]taperContact, 0, NumBuses)

	if cfg.Pedal {
		for b := 0; b < NumBuses; b++ {
			terminal := fund + busTerminalOffset[b]
			if terminal < 1 || terminal > cfg.NumWheels {
				continue
			}
			contacts = append(contacts, taperContact{terminal, b, dbToLinear(taperReference)})
		}
		return contacts
	}

	least, lower := foldbackBounds(cfg.Foldback)
	upper := 91
	if cfg.NumWheels < upper {
		upper = cfg.NumWheels
	}
	for b := 0; b < NumBuses; b++ {
		terminal := fund + busTerminalOffset[b]
		for terminal < least {
			terminal += 12
		}
		for terminal < lower {
			terminal += 12
		}
		for terminal > upper {
			terminal -= 12
		}
		contacts = append(contacts, taperContact{terminal, b, dbToLinear(taperingModel(key, b))})
	}
	return contacts
}

// keyCrosstalk models the vertical stack of contacts under each key:
// each bus picks up the signal wired to every other contact of the same
// key, divided by contact distance.
func keyCrosstalk(taper []taperContact) []taperContact {
	var leaks []taperContact
	for b := 0; b < NumBuses; b++ {
		for _, tc := range taper {
			if tc.bus == b {
				continue
			}
			leaks = append(leaks, taperContact{
				terminal: tc.terminal,
				bus:      b,
				gain:     defaultWiringCrosstalk * tc.gain / math.Abs(float64(b-tc.bus)),
			})
		}
	}
	return leaks
}

// mixEntry is one wheel's share of a terminal's signal.
type mixEntry struct {
	wheel int
	level float64
}

func eastWestNeighbours(row []int, w int) (east, west int) {
	for i, v := range row {
		if v == w {
			if i > 0 {
				east = row[i-1]
			}
			if i+1 < len(row) {
				west = row[i+1]
			}
			return
		}
	}
	return 0, 0
}

// buildTerminalMix compiles terminal->wheels: the wheel itself less the
// compartment share, the paired compartment wheel, and the transformer
// and terminal-strip neighbours. The neighbour contributions use the
// neighbour's primary wheel only; they are deliberately not re-mixed
// through the neighbour's own compartment share.
func buildTerminalMix(numWheels int) [][]mixEntry {
	mix := make([][]mixEntry, numWheels+1)
	for t := 1; t <= numWheels; t++ {
		mix[t] = append(mix[t], mixEntry{t, 1.0 - defaultCompartmentCrosstalk})
		if defaultCompartmentCrosstalk > 0 && t < len(wheelPairs) {
			if pair := wheelPairs[t]; pair > 0 && pair <= numWheels {
				mix[t] = append(mix[t], mixEntry{pair, defaultCompartmentCrosstalk})
			}
		}
	}

	if defaultTransformerCrosstalk > 0 {
		for t := 44; t <= numWheels; t++ {
			east, west := eastWestNeighbours(northTransformers, t)
			if east == 0 && west == 0 {
				east, west = eastWestNeighbours(southTransformers, t)
			}
			if east > 0 && east <= numWheels {
				mix[t] = append(mix[t], mixEntry{east, defaultTransformerCrosstalk})
			}
			if west > 0 && west <= numWheels {
				mix[t] = append(mix[t], mixEntry{west, defaultTransformerCrosstalk})
			}
		}
	}

	if defaultTerminalStripCrosstalk > 0 {
		for t := 1; t <= numWheels; t++ {
			east, west := eastWestNeighbours(terminalStrip, t)
			if east > 0 && east <= numWheels {
				mix[t] = append(mix[t], mixEntry{east, defaultTerminalStripCrosstalk})
			}
			if west > 0 && west <= numWheels {
				mix[t] = append(mix[t], mixEntry{west, defaultTerminalStripCrosstalk})
			}
		}
	}
	return mix
}

// BuildKeyContrib compiles key_contrib[key] for one manual's keys
// 0..n-1: the taper and crosstalk contact lists are resolved through
// the terminal mix into per-(wheel, bus) gains, filtered by
// contributionFloor, clamped to contributionMin, and sorted by
// (wheel, bus).
func BuildKeyContrib(cfg ContribConfig, numKeys int) [][]Contribution {
	terminalMix := buildTerminalMix(cfg.NumWheels)

	out := make([][]Contribution, numKeys)
	for key := 0; key < numKeys; key++ {
		taper := keyTaper(cfg, key)
		contacts := taper
		if !cfg.Pedal {
			contacts = append(append([]taperContact(nil), taper...), keyCrosstalk(taper)...)
		}

		byWheelBus := make(map[[2]int]float64)
		for _, tc := range contacts {
			for _, me := range terminalMix[tc.terminal] {
				g := tc.gain * me.level
				if g < contributionFloor {
					continue
				}
				byWheelBus[[2]int{me.wheel, tc.bus}] += g
			}
		}

		list := make([]Contribution, 0, len(byWheelBus))
		for k, g := range byWheelBus {
			if g < contributionFloor {
				continue
			}
			if g < contributionMin {
				g = contributionMin
			}
			list = append(list, Contribution{Wheel: k[0], Bus: k[1], Gain: g})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Wheel != list[j].Wheel {
				return list[i].Wheel < list[j].Wheel
			}
			return list[i].Bus < list[j].Bus
		})
		out[key] = list
	}
	return out
}
