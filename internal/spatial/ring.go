package spatial

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"
)

// RingSet is the deduplicated set of cells within some grid distance of a
// center cell, center included.
type RingSet map[CellID]struct{}

func (s RingSet) Contains(id CellID) bool {
	_, ok := s[id]
	return ok
}

func (s RingSet) Len() int { return len(s) }

// Cells returns the members sorted by token so callers get stable output.
func (s RingSet) Cells() []CellID {
	out := make([]CellID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].c < out[j].c })
	return out
}

// Strings returns the sorted member tokens.
func (s RingSet) Strings() []string {
	cells := s.Cells()
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s RingSet) SubsetOf(other RingSet) bool {
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Ring returns every cell within grid distance k of center. Ring(c, 0) is
// {c} and Ring(c, k) is a subset of Ring(c, k+1). The result holds
// 3k(k+1)+1 cells away from pentagons.
func Ring(center CellID, k int) (RingSet, error) {
	if err := center.check(); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k=%d must be >= 0", ErrInvalidRingSize, k)
	}
	if k == 0 {
		return RingSet{center: {}}, nil
	}
	disk, err := h3.GridDisk(center.c, k)
	if err != nil {
		return nil, fmt.Errorf("%w: h3 grid disk %s k=%d: %v", ErrInvalidCellID, center, k, err)
	}
	out := make(RingSet, len(disk))
	for _, c := range disk {
		// GridDisk pads its output with zero indexes near pentagons.
		if c == 0 {
			continue
		}
		out[CellID{c: c}] = struct{}{}
	}
	out[center] = struct{}{}
	return out, nil
}

// MaxRingCells is the number of cells in a k-ring that touches no pentagon.
func MaxRingCells(k int) int {
	if k < 0 {
		return 0
	}
	return 3*k*(k+1) + 1
}
