package ranking

import (
	"context"
	"fmt"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/metrics"
	"go.uber.org/zap"
)

// Loader fetches the full (score, member) contents of a ranked set from
// the authoritative store.
type Loader func(ctx context.Context) ([]cache.ScoredMember, error)

// Warmer lazily repopulates ranked sets from the relational store on first
// access. Concurrent warmers for the same cold set may race and load
// redundantly; both populate the same contents, so the last writer
// converges. There is deliberately no single-flight guard and no retry: a
// failed load leaves the set cold and the caller falls back to the
// relational store for that request.
type Warmer struct {
	sets    *cache.ScoredSetStore
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewWarmer creates a warmer over an explicit store handle.
func NewWarmer(sets *cache.ScoredSetStore, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmer{
		sets:    sets,
		log:     log,
		metrics: metrics.Get(),
	}
}

// EnsureWarm warms the named set if it is cold. A loader that returns zero
// members still marks the set warm, so empty sets do not trigger a loader
// call per read.
func (w *Warmer) EnsureWarm(ctx context.Context, set, kind string, loader Loader) error {
	warm, err := w.sets.Exists(ctx, set)
	if err != nil {
		w.metrics.CacheErrorsTotal.WithLabelValues(kind, "exists").Inc()
		return fmt.Errorf("check %s: %w", set, err)
	}
	if warm {
		w.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
		return nil
	}

	w.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	w.log.Debug("Warming ranked set", zap.String("set", set))

	members, err := loader(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", set, err)
	}

	if err := w.sets.Populate(ctx, set, members); err != nil {
		w.metrics.CacheErrorsTotal.WithLabelValues(kind, "populate").Inc()
		return err
	}

	w.metrics.CacheWarmupsTotal.WithLabelValues(kind).Inc()
	w.log.Info("Ranked set warmed",
		zap.String("set", set),
		zap.Int("members", len(members)),
	)
	return nil
}
