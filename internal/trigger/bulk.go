package trigger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/presales-cli/internal/resilience"
	"github.com/sells-group/presales-cli/internal/store"
)

// BulkResult summarizes one bulk recalculation pass.
type BulkResult struct {
	Total        int           `json:"total"`
	Recalculated int           `json:"recalculated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Elapsed      time.Duration `json:"elapsed"`
}

// BulkOptions controls a bulk recalculation pass.
type BulkOptions struct {
	// Force recomputes submissions that already have a score. Without it,
	// only submissions missing a score result are processed.
	Force bool

	// Concurrency is the number of submissions scored in parallel.
	// Defaults to 4.
	Concurrency int

	// MaxBatch caps the batch size. A survey with more completed
	// submissions than this is rejected. Defaults to 10000. Zero means
	// the default, not unlimited.
	MaxBatch int
}

func (o BulkOptions) withDefaults() BulkOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 10000
	}
	return o
}

// BulkRecalculator recomputes scores for every completed active submission
// of a survey. Individual failures are counted, not fatal.
type BulkRecalculator struct {
	store  store.Store
	scorer Scorer
}

func NewBulkRecalculator(s store.Store, scorer Scorer) *BulkRecalculator {
	return &BulkRecalculator{store: s, scorer: scorer}
}

// RecalculateSurvey scores every completed active submission of the survey.
// A batch larger than opts.MaxBatch is rejected outright rather than
// processed partially.
func (b *BulkRecalculator) RecalculateSurvey(ctx context.Context, surveyID string, opts BulkOptions) (*BulkResult, error) {
	opts = opts.withDefaults()
	start := time.Now()

	subs, err := b.store.ListCompletedActive(ctx, surveyID)
	if err != nil {
		return nil, eris.Wrapf(err, "trigger: list submissions for survey %s", surveyID)
	}
	if len(subs) > opts.MaxBatch {
		return nil, eris.Errorf("trigger: survey %s has %d completed submissions, over the batch cap of %d",
			surveyID, len(subs), opts.MaxBatch)
	}

	var recalculated, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("bulk_recalculate")

	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if !opts.Force {
				existing, err := b.store.GetScoreResult(gctx, sub.ID)
				if err != nil {
					failed.Add(1)
					zap.L().Error("bulk recalculation lookup failed",
						zap.String("submission_id", sub.ID),
						zap.Error(err),
					)
					return nil // don't abort batch on individual failure
				}
				if existing != nil {
					skipped.Add(1)
					return nil
				}
			}

			err := resilience.Do(gctx, retry, func(ctx context.Context) error {
				_, err := b.scorer.ComputeScore(ctx, sub.ID)
				return err
			})
			if err != nil {
				failed.Add(1)
				zap.L().Error("bulk recalculation failed",
					zap.String("submission_id", sub.ID),
					zap.Error(err),
				)
				return nil // don't abort batch on individual failure
			}
			recalculated.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "trigger: bulk recalculation")
	}

	result := &BulkResult{
		Total:        len(subs),
		Recalculated: int(recalculated.Load()),
		Skipped:      int(skipped.Load()),
		Failed:       int(failed.Load()),
		Elapsed:      time.Since(start),
	}
	zap.L().Info("bulk recalculation finished",
		zap.String("survey_id", surveyID),
		zap.Int("total", result.Total),
		zap.Int("recalculated", result.Recalculated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}
