package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/store"
)

// Caller contract violations. Scoring an unfinished or non-active submission
// is refused rather than producing a misleading result.
var (
	ErrNotCompleted = eris.New("scoring: submission is not completed")
	ErrNotActive    = eris.New("scoring: submission is not active")
)

// Engine computes and persists ScoreResults. ComputeScore is a deterministic
// function of the submission's responses, the survey schema, and the risk
// configuration: re-running it with unchanged inputs produces an identical
// result.
type Engine struct {
	store store.Store
}

// NewEngine creates an Engine backed by the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// ComputeScore scores a completed, ACTIVE submission and upserts its
// ScoreResult. The response reads, the risk-config default synthesis, and the
// result write run in a single transaction, so a concurrent recompute can
// never observe or produce a partially written score.
func (e *Engine) ComputeScore(ctx context.Context, submissionID string) (*model.ScoreResult, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: load submission %s", submissionID)
	}
	if !sub.IsCompleted() {
		return nil, ErrNotCompleted
	}
	if sub.Status != model.SubmissionActive {
		return nil, ErrNotActive
	}

	var result *model.ScoreResult
	err = e.store.Atomically(ctx, func(tx store.Store) error {
		survey, err := tx.GetSurvey(ctx, sub.SurveyID)
		if err != nil {
			return eris.Wrapf(err, "scoring: load survey %s", sub.SurveyID)
		}

		cfg, err := tx.GetOrCreateRiskConfig(ctx, survey.ID)
		if err != nil {
			return eris.Wrapf(err, "scoring: risk config for survey %s", survey.ID)
		}

		responses, err := tx.ResponsesFor(ctx, sub.ID)
		if err != nil {
			return eris.Wrapf(err, "scoring: responses for submission %s", sub.ID)
		}

		totalPoints := 0
		for _, r := range responses {
			totalPoints += r.PointsEarned
		}

		// Percentage is 0 by convention when the survey declares no ceiling.
		pct := 0.0
		if survey.MaxScore > 0 {
			pct = RoundPercent(float64(totalPoints) / float64(survey.MaxScore) * 100)
		}

		tier := TierFor(*cfg, pct)

		primary := model.PackageEssential
		var secondary *model.Package
		rec, err := tx.GetPackageRecommendation(ctx, survey.ID, tier)
		if err != nil {
			return eris.Wrapf(err, "scoring: package recommendation for survey %s", survey.ID)
		}
		if rec != nil {
			primary = rec.Primary
			secondary = rec.Secondary
		}

		sectionScores, err := e.sectionRollup(ctx, tx, survey.ID, responses)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		result = &model.ScoreResult{
			SubmissionID:    sub.ID,
			TotalPoints:     totalPoints,
			ScorePercentage: pct,
			RiskTier:        tier,
			PrimaryPackage:  primary,
			SecondaryPkg:    secondary,
			SectionScores:   sectionScores,
			CalculatedAt:    now,
			RecalculatedAt:  now,
		}
		if err := tx.UpsertScoreResult(ctx, result); err != nil {
			return eris.Wrapf(err, "scoring: upsert score for submission %s", sub.ID)
		}

		// Re-read so the returned snapshot carries the original CalculatedAt
		// when this was a recalculation.
		stored, err := tx.GetScoreResult(ctx, sub.ID)
		if err != nil {
			return eris.Wrapf(err, "scoring: reload score for submission %s", sub.ID)
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("scoring: score computed",
		zap.String("submission_id", sub.ID),
		zap.Int("total_points", result.TotalPoints),
		zap.Float64("percentage", result.ScorePercentage),
		zap.String("risk_tier", string(result.RiskTier)),
	)
	return result, nil
}

// sectionRollup groups response points by the owning question's section,
// keyed by section_{order}. The rollup spans every question the submission
// answered, so the section sums always add up to the submission total.
func (e *Engine) sectionRollup(ctx context.Context, tx store.Store, surveyID string, responses []model.Response) (map[string]model.SectionScore, error) {
	sections, err := tx.SectionsFor(ctx, surveyID)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: sections for survey %s", surveyID)
	}
	questions, err := tx.QuestionsFor(ctx, surveyID, false)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: questions for survey %s", surveyID)
	}

	sectionByID := make(map[string]model.Section, len(sections))
	for _, sec := range sections {
		sectionByID[sec.ID] = sec
	}
	sectionOfQuestion := make(map[string]string, len(questions))
	for _, q := range questions {
		sectionOfQuestion[q.ID] = q.SectionID
	}

	points := make(map[string]int)
	for _, r := range responses {
		secID, ok := sectionOfQuestion[r.QuestionID]
		if !ok {
			return nil, eris.Errorf("scoring: response %s references unknown question %s", r.ID, r.QuestionID)
		}
		points[secID] += r.PointsEarned
	}

	rollup := make(map[string]model.SectionScore, len(points))
	for secID, pts := range points {
		sec := sectionByID[secID]
		pct := 0.0
		if sec.MaxPoints > 0 {
			pct = RoundPercent(float64(pts) / float64(sec.MaxPoints) * 100)
		}
		rollup[fmt.Sprintf("section_%d", sec.Order)] = model.SectionScore{
			Title:      sec.Title,
			Points:     pts,
			MaxPoints:  sec.MaxPoints,
			Percentage: pct,
		}
	}
	return rollup, nil
}
