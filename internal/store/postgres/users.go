package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

const userCols = `id, name, email, latitude, longitude, h3_index, created_at, updated_at`

func scanUser(sc scanner) (model.User, error) {
	var (
		u        model.User
		lat, lng sql.NullFloat64
		cell     sql.NullString
	)
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &lat, &lng, &cell, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	if lat.Valid && lng.Valid {
		u.Location = &spatial.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	if cell.Valid {
		id, err := spatial.ParseCellID(cell.String)
		if err != nil {
			return model.User{}, fmt.Errorf("user %s: %w", u.ID, err)
		}
		u.H3Index = &id
	}
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// userArgs flattens the optional location into nullable columns.
func userArgs(u model.User) (lat, lng, cell any) {
	if u.Location != nil {
		lat, lng = u.Location.Lat, u.Location.Lng
	}
	if u.H3Index != nil {
		cell = u.H3Index.String()
	}
	return lat, lng, cell
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	now := s.now()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt, u.UpdatedAt = now, now

	lat, lng, cell := userArgs(u)
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, lat, lng, cell, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return model.User{}, translate(err, "create user")
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, translate(err, "get user")
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	lat, lng, cell := userArgs(u)
	row := s.db.QueryRowContext(ctx, `UPDATE users
		SET name = $2, email = $3, latitude = $4, longitude = $5, h3_index = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+userCols,
		u.ID, u.Name, u.Email, lat, lng, cell, s.now())
	out, err := scanUser(row)
	if err != nil {
		return model.User{}, translate(err, "update user")
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, "delete user")
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	us, err := s.queryUsers(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC, id`)
	return us, translate(err, "list users")
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, translate(err, "count users")
}

func (s *Store) UsersInCells(ctx context.Context, cells []spatial.CellID) ([]model.User, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	us, err := s.queryUsers(ctx, `SELECT `+userCols+` FROM users WHERE h3_index = ANY($1)`,
		pq.Array(cellStrings(cells)))
	return us, translate(err, "users in cells")
}

func (s *Store) UserLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT latitude, longitude FROM users
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, translate(err, "user locations")
	}
	defer func() { _ = rows.Close() }()

	out := make([]spatial.Coordinate, 0)
	for rows.Next() {
		var c spatial.Coordinate
		if err := rows.Scan(&c.Lat, &c.Lng); err != nil {
			return nil, translate(err, "user locations")
		}
		out = append(out, c)
	}
	return out, translate(rows.Err(), "user locations")
}
