// Package store defines the persistence contracts the API and the nearest
// search depend on. Implementations live in the memory and postgres
// subpackages; cellindex adds a Redis read-through layer on top.
package store

import (
	"context"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

// Facilities is the facility repository. Create assigns ID and timestamps.
// Lookups of unknown ids return model.ErrNotFound; a clashing code returns
// model.ErrDuplicateCode.
type Facilities interface {
	CreateFacility(ctx context.Context, f model.Facility) (model.Facility, error)
	GetFacility(ctx context.Context, id string) (model.Facility, error)
	UpdateFacility(ctx context.Context, f model.Facility) (model.Facility, error)
	// DeleteFacility returns the removed row so callers can invalidate its cell.
	DeleteFacility(ctx context.Context, id string) (model.Facility, error)
	// ListFacilities is ordered by name.
	ListFacilities(ctx context.Context) ([]model.Facility, error)
	// FacilitiesByCountry matches country case-insensitively as a substring.
	FacilitiesByCountry(ctx context.Context, country string) ([]model.Facility, error)
	// FacilitiesByType is ordered by capacity, largest first, unknown last.
	FacilitiesByType(ctx context.Context, facilityType string) ([]model.Facility, error)
	CountFacilities(ctx context.Context) (int, error)
	// FacilitiesInCells returns every facility indexed in one of cells.
	FacilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error)
}

// Users is the user repository. A clashing email returns
// model.ErrDuplicateMail.
type Users interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) (model.User, error)
	DeleteUser(ctx context.Context, id string) error
	// ListUsers is ordered newest first.
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsers(ctx context.Context) (int, error)
	UsersInCells(ctx context.Context, cells []spatial.CellID) ([]model.User, error)
	// UserLocations returns the coordinates of every located user.
	UserLocations(ctx context.Context) ([]spatial.Coordinate, error)
}

type Store interface {
	Facilities
	Users
	Ping(ctx context.Context) error
	Close() error
}
