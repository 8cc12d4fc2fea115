package api

import (
	"net/http"
	"strconv"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/heatmap"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	us, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(us))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in model.UserInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := model.NewUser(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "user created", "user_id", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch model.UserPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	cur, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next, err := patch.Apply(cur)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.UpdateUser(r.Context(), next)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Status: "success", Message: "user deleted"})
}

// userHeatmap aggregates located users. ?resolution= picks the cell size,
// ?parent_res= rolls the result up and ?format=geojson returns polygons.
func (h *Handler) userHeatmap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := h.heatmapRes
	if v := q.Get("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "resolution must be an integer in [0,15]")
			return
		}
		res = n
	}

	pts, err := h.store.UserLocations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hm, err := heatmap.Build(pts, res)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if v := q.Get("parent_res"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "parent_res must be an integer")
			return
		}
		if hm, err = heatmap.RollUp(hm, p); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	switch q.Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, hm)
	case "geojson":
		fc, err := hm.FeatureCollection()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		b, err := fc.MarshalJSON()
		if err != nil {
			h.log.ErrorContext(r.Context(), "encode heatmap geojson", "err", err)
			return
		}
		_, _ = w.Write(b)
	default:
		badRequest(w, "format must be json or geojson")
	}
}
