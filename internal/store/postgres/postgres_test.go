package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, model.ErrNotFound},
		{"dup code", &pq.Error{Code: "23505", Constraint: "facilities_code_key"}, model.ErrDuplicateCode},
		{"dup email", &pq.Error{Code: "23505", Constraint: "users_email_key"}, model.ErrDuplicateMail},
		{"bad uuid", &pq.Error{Code: "22P02"}, model.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(fmt.Errorf("wrapped: %w", tc.in), "op"), tc.want)
		})
	}

	assert.NoError(t, translate(nil, "op"))
	other := errors.New("boom")
	assert.ErrorIs(t, translate(other, "op"), other)
}

func TestLikeEscape(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, likeEscape(` 50%_off\ `))
}

// openTest connects to TEST_DATABASE_URL and starts from empty tables.
func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.EnsureSchema(ctx))
	_, err = s.db.ExecContext(ctx, `TRUNCATE facilities, users`)
	require.NoError(t, err)
	return s
}

func newFacility(t *testing.T, name, code, typ string, lat, lng float64, capacity *int) model.Facility {
	t.Helper()
	f, err := model.NewFacility(model.FacilityInput{
		Name: name, Code: code, Country: "Turkey", City: "Istanbul",
		Latitude: lat, Longitude: lng, FacilityType: typ, Capacity: capacity,
	})
	require.NoError(t, err)
	return f
}

func TestFacilities_RoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	big := 900

	a, err := s.CreateFacility(ctx, newFacility(t, "Haydarpasa", "TRHAY", "port", 40.9961, 29.0178, &big))
	require.NoError(t, err)
	_, err = s.CreateFacility(ctx, newFacility(t, "Ambarli", "TRAMB", "port", 40.9667, 28.6833, nil))
	require.NoError(t, err)

	_, err = s.CreateFacility(ctx, newFacility(t, "Copy", "trhay", "port", 41, 29, nil))
	assert.ErrorIs(t, err, model.ErrDuplicateCode)

	got, err := s.GetFacility(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.H3Index, got.H3Index)
	require.NotNil(t, got.Capacity)
	assert.Equal(t, 900, *got.Capacity)

	list, err := s.ListFacilities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ambarli", list[0].Name)

	byType, err := s.FacilitiesByType(ctx, "port")
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, "Haydarpasa", byType[0].Name)

	byCountry, err := s.FacilitiesByCountry(ctx, "TURK")
	require.NoError(t, err)
	assert.Len(t, byCountry, 2)

	inCells, err := s.FacilitiesInCells(ctx, []spatial.CellID{a.H3Index})
	require.NoError(t, err)
	require.Len(t, inCells, 1)
	assert.Equal(t, a.ID, inCells[0].ID)

	removed, err := s.DeleteFacility(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.H3Index, removed.H3Index)

	_, err = s.GetFacility(ctx, a.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetFacility(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUsers_RoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	lat, lng := 59.3293, 18.0686

	located, err := model.NewUser(model.UserInput{Name: "Ada", Email: "ada@example.com", Latitude: &lat, Longitude: &lng})
	require.NoError(t, err)
	u1, err := s.CreateUser(ctx, located)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	plain, err := model.NewUser(model.UserInput{Name: "Bo", Email: "bo@example.com"})
	require.NoError(t, err)
	u2, err := s.CreateUser(ctx, plain)
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, plain)
	assert.ErrorIs(t, err, model.ErrDuplicateMail)

	list, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, u2.ID, list[0].ID)

	locs, err := s.UserLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.InDelta(t, lat, locs[0].Lat, 1e-9)

	inCells, err := s.UsersInCells(ctx, []spatial.CellID{*u1.H3Index})
	require.NoError(t, err)
	require.Len(t, inCells, 1)

	require.NoError(t, s.DeleteUser(ctx, u1.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, u1.ID), model.ErrNotFound)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
