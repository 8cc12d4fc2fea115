// Package postgres is the lib/pq backed store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(max(maxConns/2, 1))
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

const facilityCols = `id, name, code, country, city, latitude, longitude, h3_index, facility_type, capacity, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFacility(sc scanner) (model.Facility, error) {
	var (
		f        model.Facility
		cell     string
		capacity sql.NullInt64
	)
	err := sc.Scan(&f.ID, &f.Name, &f.Code, &f.Country, &f.City,
		&f.Location.Lat, &f.Location.Lng, &cell, &f.FacilityType, &capacity,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return model.Facility{}, err
	}
	if f.H3Index, err = spatial.ParseCellID(cell); err != nil {
		return model.Facility{}, fmt.Errorf("facility %s: %w", f.ID, err)
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		f.Capacity = &c
	}
	return f, nil
}

func (s *Store) queryFacilities(ctx context.Context, q string, args ...any) ([]model.Facility, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.Facility, 0)
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableCapacity(c *int) any {
	if c == nil {
		return nil
	}
	return int64(*c)
}

func (s *Store) CreateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	now := s.now()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt, f.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `INSERT INTO facilities (`+facilityCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, f.Name, f.Code, f.Country, f.City, f.Location.Lat, f.Location.Lng,
		f.H3Index.String(), f.FacilityType, nullableCapacity(f.Capacity), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return model.Facility{}, translate(err, "create facility")
	}
	return f, nil
}

func (s *Store) GetFacility(ctx context.Context, id string) (model.Facility, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+facilityCols+` FROM facilities WHERE id = $1`, id)
	f, err := scanFacility(row)
	if err != nil {
		return model.Facility{}, translate(err, "get facility")
	}
	return f, nil
}

func (s *Store) UpdateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	f.UpdatedAt = s.now()
	row := s.db.QueryRowContext(ctx, `UPDATE facilities
		SET name = $2, code = $3, country = $4, city = $5, latitude = $6, longitude = $7,
		    h3_index = $8, facility_type = $9, capacity = $10, updated_at = $11
		WHERE id = $1
		RETURNING `+facilityCols,
		f.ID, f.Name, f.Code, f.Country, f.City, f.Location.Lat, f.Location.Lng,
		f.H3Index.String(), f.FacilityType, nullableCapacity(f.Capacity), f.UpdatedAt)
	out, err := scanFacility(row)
	if err != nil {
		return model.Facility{}, translate(err, "update facility")
	}
	return out, nil
}

func (s *Store) DeleteFacility(ctx context.Context, id string) (model.Facility, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM facilities WHERE id = $1 RETURNING `+facilityCols, id)
	f, err := scanFacility(row)
	if err != nil {
		return model.Facility{}, translate(err, "delete facility")
	}
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context) ([]model.Facility, error) {
	fs, err := s.queryFacilities(ctx, `SELECT `+facilityCols+` FROM facilities ORDER BY name COLLATE "C", id`)
	return fs, translate(err, "list facilities")
}

func (s *Store) FacilitiesByCountry(ctx context.Context, country string) ([]model.Facility, error) {
	fs, err := s.queryFacilities(ctx, `SELECT `+facilityCols+` FROM facilities
		WHERE country ILIKE '%' || $1 || '%' ORDER BY name COLLATE "C", id`, likeEscape(country))
	return fs, translate(err, "facilities by country")
}

func (s *Store) FacilitiesByType(ctx context.Context, facilityType string) ([]model.Facility, error) {
	fs, err := s.queryFacilities(ctx, `SELECT `+facilityCols+` FROM facilities
		WHERE facility_type = $1 ORDER BY capacity DESC NULLS LAST, name COLLATE "C", id`, facilityType)
	return fs, translate(err, "facilities by type")
}

func (s *Store) CountFacilities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM facilities`).Scan(&n)
	return n, translate(err, "count facilities")
}

func (s *Store) FacilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	start := time.Now()
	fs, err := s.queryFacilities(ctx, `SELECT `+facilityCols+` FROM facilities
		WHERE h3_index = ANY($1)`, pq.Array(cellStrings(cells)))
	observability.ObserveStoreLookup("postgres", err, time.Since(start).Seconds())
	if err != nil {
		return nil, translate(err, "facilities in cells")
	}
	return fs, nil
}

func cellStrings(cells []spatial.CellID) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(s))
}

// translate maps driver errors onto the model sentinels and adds op
// context. A nil err stays nil.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "email"):
			return fmt.Errorf("%s: %w", op, model.ErrDuplicateMail)
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w", op, model.ErrDuplicateCode)
		case pqErr.Code == "22P02":
			// malformed uuid
			return fmt.Errorf("%s: %w", op, model.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
