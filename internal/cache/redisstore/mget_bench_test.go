package redisstore

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/h3-facility-locator/internal/cache/keys"
	"github.com/mohammed-shakir/h3-facility-locator/internal/spatial"
)

// ringKeys returns the cache keys of a k-ring, i.e. one nearest search's
// worth of MGET.
func ringKeys(b *testing.B, k int) []string {
	ring, err := spatial.Ring(spatial.MustParseCellID("871ec8a8effffff"), k)
	if err != nil {
		b.Fatalf("Ring: %v", err)
	}
	return keys.CellKeys(keys.NSFacilities, ring.Cells())
}

func prepRing(b *testing.B, k int, fill bool) (*Client, []string) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis: %v", err)
	}
	b.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rc, err := New(ctx, mr.Addr())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.Cleanup(func() { _ = rc.Close() })

	ks := ringKeys(b, k)
	if fill {
		entries := make([]Entry, len(ks))
		for i, key := range ks {
			entries[i] = Entry{Key: key, Val: []byte(`[]`), TTL: time.Hour}
		}
		if err := rc.MSet(ctx, entries); err != nil {
			b.Fatalf("MSet: %v", err)
		}
	}
	return rc, ks
}

func BenchmarkRingMGet(b *testing.B) {
	for _, k := range []int{1, 5, 12, 41} {
		b.Run("k="+strconv.Itoa(k), func(b *testing.B) {
			rc, ks := prepRing(b, k, true)
			ctx := context.Background()
			b.ReportAllocs()
			for b.Loop() {
				if _, err := rc.MGet(ctx, ks); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRingBackfill(b *testing.B) {
	for _, k := range []int{1, 12, 41} {
		b.Run("k="+strconv.Itoa(k), func(b *testing.B) {
			rc, ks := prepRing(b, k, false)
			entries := make([]Entry, len(ks))
			for i, key := range ks {
				entries[i] = Entry{Key: key, Val: []byte(`[]`), TTL: time.Minute}
			}
			ctx := context.Background()
			b.ReportAllocs()
			for b.Loop() {
				if err := rc.MSet(ctx, entries); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
