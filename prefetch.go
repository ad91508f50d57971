package blit

import "fmt"

// MaxPrefetchEntries is the capacity of the hardware prefetch table:
// four single-plane slots plus the chroma planes of a two-plane source and
// destination.
const MaxPrefetchEntries = 6

// Direction tags a memory range as read or written by the device.
type Direction uint8

const (
	DirInput Direction = iota
	DirOutput
)

func (d Direction) String() string {
	if d == DirOutput {
		return "output"
	}
	return "input"
}

// Range is one contiguous buffer range of a slot.
type Range struct {
	Slot   Slot
	Addr   uint64
	Len    uint64
	Dir    Direction
	Chroma bool
}

// PrefetchEntry is one row of the prefetch buffer table.
type PrefetchEntry struct {
	Addr uint64
	Len  uint64
	Dir  Direction
	Slot Slot
}

// PlanPrefetch builds the prefetch table for j in fixed order: source,
// source chroma, mask, destination, destination chroma, secondary
// destination. Slots without memory are skipped, and so is a source that
// the selected operator does not read.
func PlanPrefetch(j *Job) ([]PrefetchEntry, error) {
	entries := make([]PrefetchEntry, 0, MaxPrefetchEntries)

	add := func(rs []Range) error {
		for _, r := range rs {
			if len(entries) == MaxPrefetchEntries {
				return fmt.Errorf("%w: %s plane at %#x", ErrPrefetchOverflow, r.Slot, r.Addr)
			}
			entries = append(entries, PrefetchEntry{Addr: r.Addr, Len: r.Len, Dir: r.Dir, Slot: r.Slot})
		}
		return nil
	}

	for _, slot := range []Slot{SlotSource, SlotMask, SlotDestination, SlotDestination2} {
		if slot == SlotSource && sourceSelector(j) != SelectMemory {
			continue
		}
		if err := add(j.Images[slot].Ranges(slot, slotDirection(slot))); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// slotDirection returns the device access direction of a slot.
func slotDirection(s Slot) Direction {
	if s == SlotDestination || s == SlotDestination2 {
		return DirOutput
	}
	return DirInput
}
