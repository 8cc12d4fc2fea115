package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

type cellResponse struct {
	H3Index     spatial.CellID     `json:"h3_index"`
	Resolution  int                `json:"resolution"`
	Center      spatial.Coordinate `json:"center"`
	AreaKm2     float64            `json:"area_km2"`
	IsPentagon  bool               `json:"is_pentagon"`
	Neighbors   []string           `json:"neighbors"`
	Description string             `json:"description"`
}

func (h *Handler) cellInfo(w http.ResponseWriter, r *http.Request) {
	id, err := spatial.ParseCellID(chi.URLParam(r, "cell"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	center, err := spatial.ToCoords(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	area, err := spatial.CellAreaKm2(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ring, err := spatial.Neighbors(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	info, err := spatial.Info(id.Resolution())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	neighbors := make([]string, 0, ring.Len()-1)
	for _, c := range ring.Cells() {
		if c != id {
			neighbors = append(neighbors, c.String())
		}
	}
	writeJSON(w, http.StatusOK, cellResponse{
		H3Index:     id,
		Resolution:  id.Resolution(),
		Center:      center,
		AreaKm2:     area,
		IsPentagon:  id.IsPentagon(),
		Neighbors:   neighbors,
		Description: info.Description,
	})
}

// maxRingK keeps a single request from expanding millions of cells.
const maxRingK = 100

func (h *Handler) cellRing(w http.ResponseWriter, r *http.Request) {
	id, err := spatial.ParseCellID(chi.URLParam(r, "cell"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	k := 1
	if v := r.URL.Query().Get("k"); v != "" {
		if k, err = strconv.Atoi(v); err != nil {
			badRequest(w, "k must be an integer")
			return
		}
	}
	if k > maxRingK {
		badRequest(w, "k must be <= "+strconv.Itoa(maxRingK))
		return
	}
	ring, err := spatial.Ring(id, k)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"h3_index": id,
		"k":        k,
		"count":    ring.Len(),
		"cells":    ring.Strings(),
	})
}

func (h *Handler) cellDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := spatial.ParseCellID(q.Get("a"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := spatial.ParseCellID(q.Get("b"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := spatial.GridDistance(a, b)
	if errors.Is(err, spatial.ErrIncompatibleCells) {
		writeJSON(w, http.StatusUnprocessableEntity, message{Status: "error", Message: "distance unknown: " + err.Error()})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"a": a, "b": b, "distance": d})
}
