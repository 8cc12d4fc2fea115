// Package api serves the facility locator's JSON HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/events"
	"github.com/mohammed-shakir/h3-facility-locator/internal/heatmap"
	"github.com/mohammed-shakir/h3-facility-locator/internal/nearest"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store"
)

// Publisher announces facility changes to other instances.
type Publisher interface {
	Publish(ev events.Event) bool
}

type Options struct {
	Store  store.Store
	Finder nearest.Finder
	// Publisher may be nil when events are disabled.
	Publisher Publisher
	Logger    *slog.Logger
	// HeatmapRes and MaxDistanceKm fall back to the package defaults when
	// nil. Callers validate them; 0 is a valid heatmap resolution.
	HeatmapRes    *int
	MaxDistanceKm *float64
	Service       string
	Version       string
}

type Handler struct {
	store      store.Store
	finder     nearest.Finder
	pub        Publisher
	log        *slog.Logger
	heatmapRes int
	maxKm      float64
	service    string
	version    string
}

func New(o Options) *Handler {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Finder == nil {
		o.Finder = nearest.New(o.Store)
	}
	heatRes := heatmap.DefaultResolution
	if o.HeatmapRes != nil {
		heatRes = *o.HeatmapRes
	}
	maxKm := nearest.DefaultMaxDistanceKm
	if o.MaxDistanceKm != nil {
		maxKm = *o.MaxDistanceKm
	}
	if o.Service == "" {
		o.Service = "h3-facility-locator"
	}
	return &Handler{
		store:      o.Store,
		finder:     o.Finder,
		pub:        o.Publisher,
		log:        o.Logger,
		heatmapRes: heatRes,
		maxKm:      maxKm,
		service:    o.Service,
		version:    o.Version,
	}
}

// Routes mounts every endpoint on r. Static segments are registered next
// to {id} so chi prefers them.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.index)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/resolutions", h.resolutions)

		r.Route("/facilities", func(r chi.Router) {
			r.Get("/", h.listFacilities)
			r.Post("/", h.createFacility)
			r.Post("/nearest", h.nearestFacility)
			r.Get("/country/{country}", h.facilitiesByCountry)
			r.Get("/type/{type}", h.facilitiesByType)
			r.Get("/{id}", h.getFacility)
			r.Put("/{id}", h.updateFacility)
			r.Delete("/{id}", h.deleteFacility)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.listUsers)
			r.Post("/", h.createUser)
			r.Get("/heatmap", h.userHeatmap)
			r.Get("/{id}", h.getUser)
			r.Put("/{id}", h.updateUser)
			r.Delete("/{id}", h.deleteUser)
		})

		r.Route("/cells", func(r chi.Router) {
			r.Get("/distance", h.cellDistance)
			r.Get("/{cell}", h.cellInfo)
			r.Get("/{cell}/ring", h.cellRing)
		})
	})
}

type message struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": h.service,
		"version": h.version,
		"status":  "success",
		"message": "nearest facility lookup over H3 cells",
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	facilities, err := h.store.CountFacilities(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Stats{TotalUsers: users, TotalFacilities: facilities, Status: "success"})
}

func (h *Handler) resolutions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, spatial.Resolutions())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps domain errors onto status codes. Validation is 400, unknown
// ids 404, uniqueness clashes 409; anything else is logged and hidden
// behind a 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput), spatial.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, message{Status: "error", Message: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, message{Status: "error", Message: "not found"})
	case errors.Is(err, model.ErrDuplicateCode), errors.Is(err, model.ErrDuplicateMail):
		writeJSON(w, http.StatusConflict, message{Status: "error", Message: err.Error()})
	default:
		h.log.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, message{Status: "error", Message: "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, message{Status: "error", Message: msg})
}

const maxBody = 1 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(model.ErrInvalidInput, err)
	}
	return nil
}

// pathID reads and validates the {id} segment.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		badRequest(w, "invalid id")
		return "", false
	}
	return id, true
}
