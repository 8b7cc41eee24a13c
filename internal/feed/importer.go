package feed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

// Store persists imported restrooms.
type Store interface {
	Import(ctx context.Context, rec repository.RestroomImport) (domain.Restroom, error)
	SyncIDSequence(ctx context.Context) error
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Total    int
	Imported int64
	Skipped  int64
	Failed   int64
}

// Importer loads a feed into the restroom store with a bounded worker pool.
type Importer struct {
	store    Store
	workers  int
	maxScore float64
	logger   *zap.Logger
}

// NewImporter returns an Importer running at most workers concurrent writes.
// Ratings above maxScore are rejected; zero means DefaultMaxScore.
func NewImporter(store Store, workers int, maxScore float64, logger *zap.Logger) *Importer {
	if workers <= 0 {
		workers = 1
	}
	return &Importer{store: store, workers: workers, maxScore: maxScore, logger: logging.OrNop(logger).Named("import")}
}

// Run fetches src and writes every valid record. Invalid records are skipped
// and logged; write failures are counted and the first one is returned after
// all workers finish.
func (im *Importer) Run(ctx context.Context, src Source) (ImportResult, error) {
	records, err := src.Fetch(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("fetch feed: %w", err)
	}

	result := ImportResult{Total: len(records)}
	var imported, skipped, failed atomic.Int64

	p := pool.New().WithContext(ctx).WithMaxGoroutines(im.workers)
	for i, rec := range records {
		p.Go(func(ctx context.Context) error {
			params, err := ToImport(rec, im.maxScore)
			if err != nil {
				skipped.Add(1)
				im.logger.Warn("skipping record", zap.Int("index", i), zap.Error(err))
				return nil
			}
			if _, err := im.store.Import(ctx, params); err != nil {
				failed.Add(1)
				return fmt.Errorf("import record %d: %w", i, err)
			}
			imported.Add(1)
			return nil
		})
	}
	runErr := p.Wait()

	result.Imported = imported.Load()
	result.Skipped = skipped.Load()
	result.Failed = failed.Load()

	if result.Imported > 0 {
		if err := im.store.SyncIDSequence(ctx); err != nil && runErr == nil {
			runErr = err
		}
	}

	im.logger.Info("import finished",
		zap.Int("total", result.Total),
		zap.Int64("imported", result.Imported),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
	)
	return result, runErr
}
