package tonegen

import "github.com/pantherb/gobfree/internal/assertx"

// Flag marks what happened to a wheel's AOT entry during the last
// message-queue drain.
type Flag int

const (
	FlagNone Flag = iota
	FlagAdded
	FlagModified
	FlagRemoved
)

// aotEntry is one wheel's mixing state in the Active Oscillator Table:
// per-bus accumulated level and key count, a total reference
// count, and the cached group sums the instruction compiler reads.
type aotEntry struct {
	busLevel    [numManuals * NumBuses]float64
	keyCount    [numManuals * NumBuses]int
	refCount    int
	activeIndex int // -1 if not in the active list
	flag        Flag

	// group sums, recomputed only when the entry or the drawbars or the
	// routing changed
	sumUpper, sumLower, sumPedal float64
	sumSwell, sumScanr, sumPercn float64
}

// aotTable owns the 91-wheel AOT and the active list; it is touched
// only from the audio thread.
type aotTable struct {
	entries    []aotEntry
	activeList []int
}

func newAOTTable(numWheels int) *aotTable {
	t := &aotTable{entries: make([]aotEntry, numWheels+1), activeList: make([]int, 0, numWheels)}
	for i := range t.entries {
		t.entries[i].activeIndex = -1
	}
	return t
}

// keyOn adds contribution list c into the AOT and activates any newly
// touched wheels.
func (t *aotTable) keyOn(c []Contribution, busOffset int) {
	for i := range c {
		contrib := &c[i]
		e := &t.entries[contrib.Wheel]
		busIdx := busOffset + contrib.Bus
		if e.refCount == 0 {
			e.flag = FlagAdded
			t.activate(contrib.Wheel)
		} else if e.flag == FlagNone {
			e.flag = FlagModified
		}
		e.busLevel[busIdx] += contrib.Gain
		e.keyCount[busIdx]++
		e.refCount++
	}
}

// keyOff is keyOn's inverse; a wheel whose reference count returns to
// zero is flagged for a release envelope and later removal.
func (t *aotTable) keyOff(c []Contribution, busOffset int) {
	for i := range c {
		contrib := &c[i]
		e := &t.entries[contrib.Wheel]
		busIdx := busOffset + contrib.Bus
		e.busLevel[busIdx] -= contrib.Gain
		e.keyCount[busIdx]--
		e.refCount--
		assertx.NonNegative("aotEntry.refCount", e.refCount)
		if e.refCount <= 0 {
			e.refCount = 0
			e.flag = FlagRemoved
		} else if e.flag == FlagNone {
			e.flag = FlagModified
		}
	}
}

func (t *aotTable) activate(wheel int) {
	e := &t.entries[wheel]
	if e.activeIndex >= 0 {
		return
	}
	e.activeIndex = len(t.activeList)
	t.activeList = append(t.activeList, wheel)
	assertx.BoundedLen("aotTable.activeList", len(t.activeList), len(t.entries)-1)
}

// deactivate swap-pops wheel out of the active list.
func (t *aotTable) deactivate(wheel int) {
	e := &t.entries[wheel]
	if e.activeIndex < 0 {
		return
	}
	last := len(t.activeList) - 1
	moved := t.activeList[last]
	t.activeList[e.activeIndex] = moved
	t.entries[moved].activeIndex = e.activeIndex
	t.activeList = t.activeList[:last]
	e.activeIndex = -1
}

// wellFormed checks that entries[w].activeIndex == j iff
// activeList[j] == w.
func (t *aotTable) wellFormed() bool {
	for j, w := range t.activeList {
		if t.entries[w].activeIndex != j {
			return false
		}
	}
	for w := range t.entries {
		e := &t.entries[w]
		if e.activeIndex >= 0 {
			if e.activeIndex >= len(t.activeList) || t.activeList[e.activeIndex] != w {
				return false
			}
		}
	}
	return true
}

// quiescent checks that every refCount is zero and the active list is
// empty.
func (t *aotTable) quiescent() bool {
	if len(t.activeList) != 0 {
		return false
	}
	for i := range t.entries {
		if t.entries[i].refCount != 0 {
			return false
		}
	}
	return true
}
