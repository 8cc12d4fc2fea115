// Package events carries facility change notifications over Kafka so every
// instance can drop the cache entries of the cells a write touched.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is the wire format. Seq is the producer's clock at publish time and
// is informational only; consumers dedupe on partition offsets.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	FacilityID string    `json:"facility_id"`
	Cells      []string  `json:"cells"`
	Res        int       `json:"res"`
	Seq        uint64    `json:"seq"`
	TS         time.Time `json:"ts"`
}

// NewEvent builds a version 1 event for the given cells. Zero cells are
// skipped and duplicates collapse.
func NewEvent(op, facilityID string, cells ...spatial.CellID) Event {
	now := time.Now().UTC()
	ev := Event{
		Version:    1,
		Op:         op,
		FacilityID: facilityID,
		Res:        spatial.IndexResolution,
		Seq:        uint64(now.UnixNano()),
		TS:         now,
	}
	seen := map[spatial.CellID]struct{}{}
	for _, c := range cells {
		if c.IsZero() {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		ev.Cells = append(ev.Cells, c.String())
		ev.Res = c.Resolution()
	}
	return ev
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return errors.New("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.FacilityID) == "" {
		return errors.New("facility_id is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if err := spatial.ValidateResolution(e.Res); err != nil {
		return err
	}
	if _, err := e.CellIDs(); err != nil {
		return err
	}
	return nil
}

// CellIDs parses Cells and checks every cell sits at Res.
func (e Event) CellIDs() ([]spatial.CellID, error) {
	ids, err := spatial.ParseCellIDs(e.Cells)
	if err != nil {
		return nil, fmt.Errorf("cells: %w", err)
	}
	for _, id := range ids {
		if id.Resolution() != e.Res {
			return nil, fmt.Errorf("cell %s is not at res %d", id, e.Res)
		}
	}
	return ids, nil
}
