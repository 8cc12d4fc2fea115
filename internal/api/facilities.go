package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/events"
	"github.com/mohammed-shakir/h3-facility-locator/internal/nearest"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

func (h *Handler) listFacilities(w http.ResponseWriter, r *http.Request) {
	fs, err := h.store.ListFacilities(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fs))
}

func (h *Handler) facilitiesByCountry(w http.ResponseWriter, r *http.Request) {
	fs, err := h.store.FacilitiesByCountry(r.Context(), chi.URLParam(r, "country"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fs))
}

func (h *Handler) facilitiesByType(w http.ResponseWriter, r *http.Request) {
	fs, err := h.store.FacilitiesByType(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fs))
}

func (h *Handler) getFacility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f, err := h.store.GetFacility(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) createFacility(w http.ResponseWriter, r *http.Request) {
	var in model.FacilityInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := model.NewFacility(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.store.CreateFacility(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, events.NewEvent(events.OpInsert, created.ID, created.H3Index))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateFacility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.FacilityPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	cur, err := h.store.GetFacility(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next, _, err := patch.Apply(cur)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.UpdateFacility(r.Context(), next)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, events.NewEvent(events.OpUpdate, updated.ID, cur.H3Index, updated.H3Index))
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteFacility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.store.DeleteFacility(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r, events.NewEvent(events.OpDelete, deleted.ID, deleted.H3Index))
	writeJSON(w, http.StatusOK, message{Status: "success", Message: "facility deleted"})
}

type nearestRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
	Rings         *int     `json:"rings,omitempty"`
}

type nearestResponse struct {
	Facility      model.Facility `json:"facility"`
	DistanceKm    float64        `json:"distance_km"`
	OriginCell    spatial.CellID `json:"origin_cell"`
	Rings         int            `json:"rings"`
	RingCells     int            `json:"ring_cells"`
	MaxDistanceKm float64        `json:"max_distance_km"`
	Truncated     bool           `json:"truncated"`
}

func (h *Handler) nearestFacility(w http.ResponseWriter, r *http.Request) {
	var req nearestRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		badRequest(w, "latitude and longitude are required")
		return
	}
	opts := nearest.Options{MaxDistanceKm: h.maxKm}
	if req.MaxDistanceKm != nil {
		// zero would silently mean "default" further down
		if *req.MaxDistanceKm <= 0 || math.IsNaN(*req.MaxDistanceKm) {
			badRequest(w, "max_distance_km must be > 0")
			return
		}
		opts.MaxDistanceKm = *req.MaxDistanceKm
	}
	if req.Rings != nil {
		if *req.Rings < 0 || *req.Rings > maxRingK {
			badRequest(w, "rings must be between 0 and "+strconv.Itoa(maxRingK))
			return
		}
		opts.Rings = *req.Rings
	}
	if opts.Rings == 0 {
		// long distances are searched up to maxRingK and reported truncated
		if k, err := spatial.RingsForDistance(opts.MaxDistanceKm, spatial.IndexResolution); err == nil && k > maxRingK {
			opts.Rings = maxRingK
		}
	}

	res, err := h.finder.Nearest(r.Context(), spatial.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude}, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Found() {
		writeJSON(w, http.StatusNotFound, message{
			Status:  "not_found",
			Message: "no facility within " + strconv.FormatFloat(res.MaxDistanceKm, 'f', -1, 64) + " km",
		})
		return
	}
	writeJSON(w, http.StatusOK, nearestResponse{
		Facility:      res.Match.Facility,
		DistanceKm:    res.Match.DistanceKm,
		OriginCell:    res.OriginCell,
		Rings:         res.Rings,
		RingCells:     res.RingCells,
		MaxDistanceKm: res.MaxDistanceKm,
		Truncated:     res.Truncated,
	})
}

// publish is best effort; the writer's own cache was already invalidated
// by the cached store.
func (h *Handler) publish(r *http.Request, ev events.Event) {
	if h.pub == nil {
		return
	}
	if !h.pub.Publish(ev) {
		h.log.WarnContext(r.Context(), "facility event dropped", "op", ev.Op, "facility_id", ev.FacilityID)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
