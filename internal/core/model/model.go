// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateCode = errors.New("facility code already exists")
	ErrDuplicateMail = errors.New("email already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// Facility is a point of service (port, depot, terminal) indexed at
// spatial.IndexResolution.
type Facility struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Code         string             `json:"code"`
	Country      string             `json:"country"`
	City         string             `json:"city"`
	Location     spatial.Coordinate `json:"-"`
	H3Index      spatial.CellID     `json:"h3_index"`
	FacilityType string             `json:"facility_type"`
	Capacity     *int               `json:"capacity"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type facilityAlias Facility

type facilityJSON struct {
	facilityAlias
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (f Facility) MarshalJSON() ([]byte, error) {
	return json.Marshal(facilityJSON{facilityAlias(f), f.Location.Lat, f.Location.Lng})
}

func (f *Facility) UnmarshalJSON(b []byte) error {
	var in facilityJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*f = Facility(in.facilityAlias)
	f.Location = spatial.Coordinate{Lat: in.Latitude, Lng: in.Longitude}
	return nil
}

// FacilityInput carries create fields.
type FacilityInput struct {
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Country      string  `json:"country"`
	City         string  `json:"city"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	FacilityType string  `json:"facility_type"`
	Capacity     *int    `json:"capacity,omitempty"`
}

func (in FacilityInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fieldErr("name is required")
	case strings.TrimSpace(in.Code) == "":
		return fieldErr("code is required")
	case strings.TrimSpace(in.FacilityType) == "":
		return fieldErr("facility_type is required")
	case in.Capacity != nil && *in.Capacity < 0:
		return fieldErr("capacity must be >= 0")
	}
	return spatial.Coordinate{Lat: in.Latitude, Lng: in.Longitude}.Validate()
}

// FacilityPatch carries optional update fields. Nil means unchanged.
type FacilityPatch struct {
	Name         *string  `json:"name,omitempty"`
	Code         *string  `json:"code,omitempty"`
	Country      *string  `json:"country,omitempty"`
	City         *string  `json:"city,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	FacilityType *string  `json:"facility_type,omitempty"`
	Capacity     *int     `json:"capacity,omitempty"`
}

// Apply returns a copy of f with the patch applied and its cell recomputed
// when the location moved. The second result reports the move.
func (p FacilityPatch) Apply(f Facility) (Facility, bool, error) {
	out := f
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return f, false, fieldErr("name must not be empty")
		}
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Code != nil {
		if strings.TrimSpace(*p.Code) == "" {
			return f, false, fieldErr("code must not be empty")
		}
		out.Code = strings.TrimSpace(*p.Code)
	}
	if p.Country != nil {
		out.Country = *p.Country
	}
	if p.City != nil {
		out.City = *p.City
	}
	if p.FacilityType != nil {
		out.FacilityType = *p.FacilityType
	}
	if p.Capacity != nil {
		if *p.Capacity < 0 {
			return f, false, fieldErr("capacity must be >= 0")
		}
		c := *p.Capacity
		out.Capacity = &c
	}
	if p.Latitude != nil {
		out.Location.Lat = *p.Latitude
	}
	if p.Longitude != nil {
		out.Location.Lng = *p.Longitude
	}
	moved := out.Location != f.Location
	if moved {
		cell, err := spatial.ToCell(out.Location, spatial.IndexResolution)
		if err != nil {
			return f, false, err
		}
		out.H3Index = cell
	}
	return out, moved, nil
}

// NewFacility builds a facility from validated input. The caller assigns
// ID and timestamps.
func NewFacility(in FacilityInput) (Facility, error) {
	if err := in.Validate(); err != nil {
		return Facility{}, err
	}
	loc := spatial.Coordinate{Lat: in.Latitude, Lng: in.Longitude}
	cell, err := spatial.ToCell(loc, spatial.IndexResolution)
	if err != nil {
		return Facility{}, err
	}
	f := Facility{
		Name:         strings.TrimSpace(in.Name),
		Code:         strings.TrimSpace(in.Code),
		Country:      strings.TrimSpace(in.Country),
		City:         strings.TrimSpace(in.City),
		Location:     loc,
		H3Index:      cell,
		FacilityType: strings.TrimSpace(in.FacilityType),
	}
	if in.Capacity != nil {
		c := *in.Capacity
		f.Capacity = &c
	}
	return f, nil
}

// User is an account with an optional home location.
type User struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Location  *spatial.Coordinate `json:"-"`
	H3Index   *spatial.CellID     `json:"h3_index"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type userAlias User

type userJSON struct {
	userAlias
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (u User) MarshalJSON() ([]byte, error) {
	out := userJSON{userAlias: userAlias(u)}
	if u.Location != nil {
		out.Latitude, out.Longitude = &u.Location.Lat, &u.Location.Lng
	}
	return json.Marshal(out)
}

type UserInput struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type UserPatch struct {
	Name      *string  `json:"name,omitempty"`
	Email     *string  `json:"email,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// NewUser builds a user. Coordinates must be given together or not at all.
func NewUser(in UserInput) (User, error) {
	if strings.TrimSpace(in.Name) == "" {
		return User{}, fieldErr("name is required")
	}
	if !strings.Contains(in.Email, "@") {
		return User{}, fieldErr("email is invalid")
	}
	u := User{Name: strings.TrimSpace(in.Name), Email: strings.ToLower(strings.TrimSpace(in.Email))}
	if err := u.locate(in.Latitude, in.Longitude); err != nil {
		return User{}, err
	}
	return u, nil
}

func (p UserPatch) Apply(u User) (User, error) {
	out := u
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return u, fieldErr("name must not be empty")
		}
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		if !strings.Contains(*p.Email, "@") {
			return u, fieldErr("email is invalid")
		}
		out.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Latitude != nil || p.Longitude != nil {
		lat, lng := p.Latitude, p.Longitude
		if u.Location != nil {
			if lat == nil {
				lat = &u.Location.Lat
			}
			if lng == nil {
				lng = &u.Location.Lng
			}
		}
		if err := out.locate(lat, lng); err != nil {
			return u, err
		}
	}
	return out, nil
}

func (u *User) locate(lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return fieldErr("latitude and longitude must be given together")
	}
	c, err := spatial.NewCoordinate(*lat, *lng)
	if err != nil {
		return err
	}
	cell, err := spatial.ToCell(c, spatial.IndexResolution)
	if err != nil {
		return err
	}
	u.Location = &c
	u.H3Index = &cell
	return nil
}

// NearestMatch is the winning facility of a proximity search.
type NearestMatch struct {
	Facility   Facility `json:"facility"`
	DistanceKm float64  `json:"distance_km"`
}

// HeatmapCell is one aggregated cell of a heatmap.
type HeatmapCell struct {
	H3Index spatial.CellID     `json:"h3_index"`
	Count   int                `json:"count"`
	Center  spatial.Coordinate `json:"center"`
	AreaKm2 float64            `json:"area_km2"`
}

type Stats struct {
	TotalUsers      int    `json:"total_users"`
	TotalFacilities int    `json:"total_facilities"`
	Status          string `json:"status"`
}

type fieldError string

func (e fieldError) Error() string { return string(e) }
func (e fieldError) Unwrap() error { return ErrInvalidInput }

func fieldErr(msg string) error { return fieldError(msg) }
