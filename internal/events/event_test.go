package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

const (
	cellA = "871ec8a8effffff"
	cellB = "871ec8a8cffffff"
)

func TestNewEvent_DedupesAndValidates(t *testing.T) {
	a := spatial.MustParseCellID(cellA)
	b := spatial.MustParseCellID(cellB)

	ev := NewEvent(OpUpdate, "f-1", a, spatial.CellID{}, b, a)
	require.NoError(t, ev.Validate())
	assert.Equal(t, 1, ev.Version)
	assert.Equal(t, 7, ev.Res)
	assert.Equal(t, []string{cellA, cellB}, ev.Cells)
	assert.NotZero(t, ev.Seq)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"facility_id":"f-1"`)
	assert.Contains(t, string(raw), `"cells":["871ec8a8effffff","871ec8a8cffffff"]`)
}

func TestValidate_Rejects(t *testing.T) {
	good := Event{Version: 1, Op: OpInsert, FacilityID: "f", Cells: []string{cellA}, Res: 7, Seq: 1, TS: time.Now()}
	require.NoError(t, good.Validate())

	cases := map[string]func(*Event){
		"version":      func(e *Event) { e.Version = 2 },
		"op":           func(e *Event) { e.Op = "upsert" },
		"facility":     func(e *Event) { e.FacilityID = " " },
		"ts":           func(e *Event) { e.TS = time.Time{} },
		"res range":    func(e *Event) { e.Res = 16 },
		"bad cell":     func(e *Event) { e.Cells = []string{"nope"} },
		"res mismatch": func(e *Event) { e.Res = 8 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			ev := good
			ev.Cells = append([]string(nil), good.Cells...)
			mut(&ev)
			assert.Error(t, ev.Validate())
		})
	}
}

func TestOffsetDedupe(t *testing.T) {
	d := newOffsetDedupe(4)
	assert.False(t, d.seen("t", 0, 0))
	d.record("t", 0, 5)
	assert.True(t, d.seen("t", 0, 5))
	assert.True(t, d.seen("t", 0, 4))
	assert.False(t, d.seen("t", 0, 6))
	assert.False(t, d.seen("t", 1, 5), "partitions are tracked separately")

	d.record("t", 0, 3)
	assert.True(t, d.seen("t", 0, 5), "older record must not move the offset back")
}
