// Package cellindex puts a per-cell Redis read-through cache in front of a
// store.Store. Only FacilitiesInCells is cached; every other call goes
// straight to the backing store, and facility writes drop the keys of the
// cells they touch.
package cellindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/h3-facility-locator/internal/cache/keys"
	"github.com/mohammed-shakir/h3-facility-locator/internal/cache/redisstore"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/model"
	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness"
	mylog "github.com/mohammed-shakir/h3-facility-locator/internal/logger"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
	"github.com/mohammed-shakir/h3-facility-locator/internal/store"
)

// Cache is the subset of redisstore.Client the cached store uses.
type Cache interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, entries []redisstore.Entry) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

var _ Cache = (*redisstore.Client)(nil)

type Options struct {
	TTL time.Duration
	// OpTimeout bounds every Redis round trip. Zero means 150ms.
	OpTimeout time.Duration
	// Hot, when set, doubles the TTL of cells it reports hot, and of every
	// cell fetched for a hot search origin.
	Hot    hotness.Classifier
	Logger *zerolog.Logger
}

// genStripes must be a power of two.
const genStripes = 1024

type CachedStore struct {
	store.Store
	cache Cache
	opts  Options
	// gens counts invalidations per cell stripe. A backfill whose cells were
	// invalidated while the backing read was in flight is dropped.
	gens [genStripes]atomic.Uint64
}

var _ store.Store = (*CachedStore)(nil)

func New(backing store.Store, cache Cache, opts Options) *CachedStore {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 150 * time.Millisecond
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &CachedStore{Store: backing, cache: cache, opts: opts}
}

func (s *CachedStore) gen(c spatial.CellID) *atomic.Uint64 {
	return &s.gens[xxhash.Sum64String(c.String())&(genStripes-1)]
}

func (s *CachedStore) FacilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error) {
	start := time.Now()
	out, err := s.facilitiesInCells(ctx, cells)
	observability.ObserveStoreLookup("cache", err, time.Since(start).Seconds())
	return out, err
}

func (s *CachedStore) facilitiesInCells(ctx context.Context, cells []spatial.CellID) ([]model.Facility, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	cells = dedupe(cells)
	ks := keys.CellKeys(keys.NSFacilities, cells)

	cctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	raw, err := s.cache.MGet(cctx, ks)
	cancel()
	if err != nil {
		observability.IncCacheBypass()
		s.log(ctx).Warn().Err(err).Int("cells", len(cells)).Msg("cache read failed, using backing store")
		return s.Store.FacilitiesInCells(ctx, cells)
	}

	out := make([]model.Facility, 0)
	missed := make([]spatial.CellID, 0)
	for i, c := range cells {
		b, ok := raw[ks[i]]
		if !ok {
			missed = append(missed, c)
			continue
		}
		var fs []model.Facility
		if err := json.Unmarshal(b, &fs); err != nil {
			s.log(ctx).Warn().Err(err).Str("cell", c.String()).Msg("dropping undecodable cache entry")
			missed = append(missed, c)
			continue
		}
		out = append(out, fs...)
	}
	if len(missed) == 0 {
		return out, nil
	}

	before := make([]uint64, len(missed))
	for i, c := range missed {
		before[i] = s.gen(c).Load()
	}
	fetched, err := s.Store.FacilitiesInCells(ctx, missed)
	if err != nil {
		return nil, err
	}
	out = append(out, fetched...)
	s.backfill(ctx, missed, before, fetched)
	return out, nil
}

// backfill caches every missed cell, including the empty ones, unless the
// cell was invalidated since before was taken.
func (s *CachedStore) backfill(ctx context.Context, missed []spatial.CellID, before []uint64, fetched []model.Facility) {
	byCell := make(map[spatial.CellID][]model.Facility, len(missed))
	for _, c := range missed {
		byCell[c] = []model.Facility{}
	}
	for _, f := range fetched {
		if _, ok := byCell[f.H3Index]; ok {
			byCell[f.H3Index] = append(byCell[f.H3Index], f)
		}
	}

	originHot := s.isHot(hotness.OriginFrom(ctx))
	entries := make([]redisstore.Entry, 0, len(missed))
	for i, c := range missed {
		if s.gen(c).Load() != before[i] {
			continue
		}
		b, err := json.Marshal(byCell[c])
		if err != nil {
			s.log(ctx).Warn().Err(err).Str("cell", c.String()).Msg("encode cache entry")
			continue
		}
		ttl := s.opts.TTL
		if originHot || s.isHot(c.String()) {
			ttl *= 2
		}
		entries = append(entries, redisstore.Entry{
			Key: keys.CellKey(keys.NSFacilities, c.Resolution(), c.String()),
			Val: b,
			TTL: ttl,
		})
	}

	if len(entries) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.OpTimeout)
	defer cancel()
	if err := s.cache.MSet(cctx, entries); err != nil {
		s.log(ctx).Warn().Err(err).Int("cells", len(entries)).Msg("cache backfill failed")
	}
}

func (s *CachedStore) isHot(cell string) bool {
	return s.opts.Hot != nil && cell != "" && s.opts.Hot.IsHot(cell)
}

// Invalidate drops the cached entries of cells.
func (s *CachedStore) Invalidate(ctx context.Context, cells ...spatial.CellID) error {
	cells = dedupe(cells)
	if len(cells) == 0 {
		return nil
	}
	for _, c := range cells {
		s.gen(c).Add(1)
	}
	cctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	if err := s.cache.Del(cctx, keys.CellKeys(keys.NSFacilities, cells)...); err != nil {
		return fmt.Errorf("invalidate %d cells: %w", len(cells), err)
	}
	return nil
}

func (s *CachedStore) CreateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	created, err := s.Store.CreateFacility(ctx, f)
	if err != nil {
		return created, err
	}
	s.invalidate(ctx, created.H3Index)
	return created, nil
}

func (s *CachedStore) UpdateFacility(ctx context.Context, f model.Facility) (model.Facility, error) {
	prev, err := s.Store.GetFacility(ctx, f.ID)
	if err != nil {
		return model.Facility{}, err
	}
	updated, err := s.Store.UpdateFacility(ctx, f)
	if err != nil {
		return updated, err
	}
	s.invalidate(ctx, prev.H3Index, updated.H3Index)
	return updated, nil
}

func (s *CachedStore) DeleteFacility(ctx context.Context, id string) (model.Facility, error) {
	deleted, err := s.Store.DeleteFacility(ctx, id)
	if err != nil {
		return deleted, err
	}
	s.invalidate(ctx, deleted.H3Index)
	return deleted, nil
}

// a failed invalidation is logged only; entries still expire by TTL
func (s *CachedStore) invalidate(ctx context.Context, cells ...spatial.CellID) {
	if err := s.Invalidate(context.WithoutCancel(ctx), cells...); err != nil {
		s.log(ctx).Warn().Err(err).Msg("cache invalidation failed")
	}
}

func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

func (s *CachedStore) log(ctx context.Context) *zerolog.Logger {
	return mylog.FromContext(mylog.WithComponent(ctx, "cellindex"), s.opts.Logger)
}

func dedupe(cells []spatial.CellID) []spatial.CellID {
	seen := make(map[spatial.CellID]struct{}, len(cells))
	out := make([]spatial.CellID, 0, len(cells))
	for _, c := range cells {
		if c.IsZero() {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
