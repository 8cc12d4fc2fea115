package spatial

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"
)

// ToParent returns the ancestor of id at parentRes. parentRes equal to the
// cell's own resolution returns id unchanged.
func ToParent(id CellID, parentRes int) (CellID, error) {
	if err := validateRes(parentRes); err != nil {
		return CellID{}, err
	}
	if err := id.check(); err != nil {
		return CellID{}, err
	}
	cur := id.Resolution()
	if parentRes > cur {
		return CellID{}, fmt.Errorf("%w: parent resolution %d is finer than cell resolution %d", ErrInvalidResolution, parentRes, cur)
	}
	if parentRes == cur {
		return id, nil
	}
	p, err := id.c.Parent(parentRes)
	if err != nil {
		return CellID{}, fmt.Errorf("%w: h3 parent %s: %v", ErrInvalidCellID, id, err)
	}
	return CellID{c: p}, nil
}

// ToChildren returns the descendants of id at childRes, sorted.
func ToChildren(id CellID, childRes int) ([]CellID, error) {
	if err := validateRes(childRes); err != nil {
		return nil, err
	}
	if err := id.check(); err != nil {
		return nil, err
	}
	cur := id.Resolution()
	if childRes < cur {
		return nil, fmt.Errorf("%w: child resolution %d is coarser than cell resolution %d", ErrInvalidResolution, childRes, cur)
	}
	if childRes == cur {
		return []CellID{id}, nil
	}
	kids, err := id.c.Children(childRes)
	if err != nil {
		return nil, fmt.Errorf("%w: h3 children %s: %v", ErrInvalidCellID, id, err)
	}
	seen := make(map[h3.Cell]struct{}, len(kids))
	out := make([]CellID, 0, len(kids))
	for _, k := range kids {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, CellID{c: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].c < out[j].c })
	return out, nil
}
