// Package memory is an in-process store keeping a cell -> ids index next
// to the rows, so FacilitiesInCells never scans the whole table.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store"
)

type cellIndex map[spatial.CellID]map[string]struct{}

func (ix cellIndex) add(c spatial.CellID, id string) {
	if c.IsZero() {
		return
	}
	m := ix[c]
	if m == nil {
		m = make(map[string]struct{})
		ix[c] = m
	}
	m[id] = struct{}{}
}

func (ix cellIndex) remove(c spatial.CellID, id string) {
	m := ix[c]
	if m == nil {
		return
	}
	delete(m, id)
	if len(m) == 0 {
		delete(ix, c)
	}
}

// ids returns the ids indexed under cells, sorted per cell, in cell order.
func (ix cellIndex) ids(cells []spatial.CellID) []string {
	seen := make(map[spatial.CellID]struct{}, len(cells))
	var out []string
	for _, c := range cells {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		m := ix[c]
		if len(m) == 0 {
			continue
		}
		start := len(out)
		for id := range m {
			out = append(out, id)
		}
		sort.Strings(out[start:])
	}
	return out
}

type Store struct {
	mu sync.RWMutex

	facilities map[string]model.Facility
	facByCell  cellIndex
	codes      map[string]string

	users      map[string]model.User
	userByCell cellIndex
	emails     map[string]string

	now   func() time.Time
	newID func() string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		facilities: make(map[string]model.Facility),
		facByCell:  make(cellIndex),
		codes:      make(map[string]string),
		users:      make(map[string]model.User),
		userByCell: make(cellIndex),
		emails:     make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func codeKey(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (s *Store) CreateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return model.Facility{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.codes[codeKey(f.Code)]; dup {
		return model.Facility{}, fmt.Errorf("create facility %q: %w", f.Code, model.ErrDuplicateCode)
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	n := s.now()
	f.CreatedAt, f.UpdatedAt = n, n

	s.facilities[f.ID] = f
	s.codes[codeKey(f.Code)] = f.ID
	s.facByCell.add(f.H3Index, f.ID)
	return f, nil
}

func (s *Store) GetFacility(ctx context.Context, id string) (model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return model.Facility{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	if !ok {
		return model.Facility{}, fmt.Errorf("facility %s: %w", id, model.ErrNotFound)
	}
	return f, nil
}

func (s *Store) UpdateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return model.Facility{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.facilities[f.ID]
	if !ok {
		return model.Facility{}, fmt.Errorf("facility %s: %w", f.ID, model.ErrNotFound)
	}
	if owner, dup := s.codes[codeKey(f.Code)]; dup && owner != f.ID {
		return model.Facility{}, fmt.Errorf("update facility %q: %w", f.Code, model.ErrDuplicateCode)
	}
	f.CreatedAt = old.CreatedAt
	f.UpdatedAt = s.now()

	delete(s.codes, codeKey(old.Code))
	s.codes[codeKey(f.Code)] = f.ID
	s.facByCell.remove(old.H3Index, f.ID)
	s.facByCell.add(f.H3Index, f.ID)
	s.facilities[f.ID] = f
	return f, nil
}

func (s *Store) DeleteFacility(ctx context.Context, id string) (model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return model.Facility{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facilities[id]
	if !ok {
		return model.Facility{}, fmt.Errorf("facility %s: %w", id, model.ErrNotFound)
	}
	delete(s.facilities, id)
	delete(s.codes, codeKey(f.Code))
	s.facByCell.remove(f.H3Index, id)
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context) ([]model.Facility, error) {
	return s.filterFacilities(ctx, func(model.Facility) bool { return true }, byName)
}

func (s *Store) FacilitiesByCountry(ctx context.Context, country string) ([]model.Facility, error) {
	needle := strings.ToLower(strings.TrimSpace(country))
	return s.filterFacilities(ctx, func(f model.Facility) bool {
		return strings.Contains(strings.ToLower(f.Country), needle)
	}, byName)
}

func (s *Store) FacilitiesByType(ctx context.Context, facilityType string) ([]model.Facility, error) {
	return s.filterFacilities(ctx, func(f model.Facility) bool {
		return f.FacilityType == facilityType
	}, byCapacityDesc)
}

func (s *Store) CountFacilities(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facilities), nil
}

func (s *Store) FacilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.facByCell.ids(cells)
	out := make([]model.Facility, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.facilities[id])
	}
	return out, nil
}

func (s *Store) filterFacilities(ctx context.Context, keep func(model.Facility) bool, less func(a, b model.Facility) bool) ([]model.Facility, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		if keep(f) {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func byName(a, b model.Facility) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func byCapacityDesc(a, b model.Facility) bool {
	switch {
	case a.Capacity == nil && b.Capacity == nil:
		return byName(a, b)
	case a.Capacity == nil:
		return false
	case b.Capacity == nil:
		return true
	case *a.Capacity != *b.Capacity:
		return *a.Capacity > *b.Capacity
	default:
		return byName(a, b)
	}
}

func mailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.emails[mailKey(u.Email)]; dup {
		return model.User{}, fmt.Errorf("create user %q: %w", u.Email, model.ErrDuplicateMail)
	}
	if u.ID == "" {
		u.ID = s.newID()
	}
	n := s.now()
	u.CreatedAt, u.UpdatedAt = n, n

	s.users[u.ID] = u
	s.emails[mailKey(u.Email)] = u.ID
	if u.H3Index != nil {
		s.userByCell.add(*u.H3Index, u.ID)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[u.ID]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", u.ID, model.ErrNotFound)
	}
	if owner, dup := s.emails[mailKey(u.Email)]; dup && owner != u.ID {
		return model.User{}, fmt.Errorf("update user %q: %w", u.Email, model.ErrDuplicateMail)
	}
	u.CreatedAt = old.CreatedAt
	u.UpdatedAt = s.now()

	delete(s.emails, mailKey(old.Email))
	s.emails[mailKey(u.Email)] = u.ID
	if old.H3Index != nil {
		s.userByCell.remove(*old.H3Index, u.ID)
	}
	if u.H3Index != nil {
		s.userByCell.add(*u.H3Index, u.ID)
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	delete(s.users, id)
	delete(s.emails, mailKey(u.Email))
	if u.H3Index != nil {
		s.userByCell.remove(*u.H3Index, id)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) UsersInCells(ctx context.Context, cells []spatial.CellID) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.userByCell.ids(cells)
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.users[id])
	}
	return out, nil
}

func (s *Store) UserLocations(ctx context.Context) ([]spatial.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]spatial.Coordinate, 0, len(s.users))
	for _, u := range s.users {
		if u.Location != nil {
			out = append(out, *u.Location)
		}
	}
	return out, nil
}
