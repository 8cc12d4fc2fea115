// Package metricswrap wraps a hotness tracker with Prometheus metrics and
// sampled logging of cells crossing the hot threshold.
package metricswrap

import (
	xx "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/h3-facility-locator/internal/core/observability"
	"github.com/mohammed-shakir/h3-facility-locator/internal/hotness"
)

type Sizer interface{ Size() int }

type Options struct {
	Tier      string
	Threshold float64
	// LogSample is the fraction of threshold crossings that are logged.
	LogSample float64
	Logger    *zerolog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Tier == "" {
		opts.Tier = "origin"
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(cell)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, cell) {
			w.opts.Logger.Info().
				Str("event", "hotness_threshold").
				Float64("score", score).
				Str("tier", w.opts.Tier).
				Str("cell", cell).
				Msg("hot cell above threshold")
		}
	}
	w.size()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

// IsHot reports whether cell's score is at or above the threshold. With
// no threshold configured nothing is hot.
func (w *WithMetrics) IsHot(cell string) bool {
	return w.opts.Threshold > 0 && w.inner.Score(cell) >= w.opts.Threshold
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.size()
}

func (w *WithMetrics) size() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotCells(w.opts.Tier, s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
