// Package hotness tracks how often cells are used as search origins.
package hotness

import "context"

type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
}

// Classifier is implemented by trackers that know a hot threshold.
type Classifier interface {
	IsHot(cell string) bool
}

type ctxKey struct{}

// WithOrigin records the search origin cell for layers below the search
// (the cell cache uses it to pick a TTL).
func WithOrigin(ctx context.Context, cell string) context.Context {
	if cell == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, cell)
}

func OriginFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}
