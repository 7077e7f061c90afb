package trigger

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/resilience"
	"github.com/sells-group/presales-cli/internal/scoring"
)

// Scorer computes and persists the score for one submission.
type Scorer interface {
	ComputeScore(ctx context.Context, submissionID string) (*model.ScoreResult, error)
}

// Recalculator applies the recalculation rules to incoming events: a score
// is recomputed when a submission completes, when an answer on a completed
// active submission changes or is deleted, and when a disabled submission is
// re-enabled. Events on incomplete or inactive submissions are skipped, not
// failed.
type Recalculator struct {
	scorer Scorer
	retry  resilience.RetryConfig
}

func NewRecalculator(scorer Scorer) *Recalculator {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("recalculate_score")
	return &Recalculator{scorer: scorer, retry: cfg}
}

// Handle is the Bus handler. It decides per event type whether a
// recalculation is due and runs it with retry on transient store errors.
func (r *Recalculator) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case SubmissionCompleted:
		return r.recalculate(ctx, e.Submission)

	case ResponseChanged:
		return r.recalculate(ctx, e.Submission)

	case ResponseDeleted:
		return r.recalculate(ctx, e.Submission)

	case SubmissionStatusChanged:
		// Re-enabling brings the submission back into aggregates, so its
		// score must be fresh. Disabling keeps the stored score; it is
		// simply excluded from listings and stats.
		if e.NewStatus == model.SubmissionActive && e.OldStatus != model.SubmissionActive {
			return r.recalculate(ctx, e.Submission)
		}
		return nil

	default:
		return nil
	}
}

func (r *Recalculator) recalculate(ctx context.Context, submissionID string) error {
	err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		_, err := r.scorer.ComputeScore(ctx, submissionID)
		return err
	})
	switch {
	case err == nil:
		return nil
	case eris.Is(err, scoring.ErrNotCompleted), eris.Is(err, scoring.ErrNotActive):
		// Mutations on drafts and disabled submissions are normal; the
		// score will be computed when the submission qualifies.
		zap.L().Debug("recalculation skipped",
			zap.String("submission_id", submissionID),
			zap.String("reason", err.Error()),
		)
		return nil
	default:
		return eris.Wrapf(err, "trigger: recalculate submission %s", submissionID)
	}
}
