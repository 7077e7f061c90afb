package scoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/store"
)

type fixture struct {
	store    store.Store
	survey   *model.Survey
	sections []model.Section
	question map[string]*model.Question // by text
}

// newFixture builds a two-section survey: Infrastructure holds a 20-point
// single-choice question and an inverse-count question, Contact holds an
// unscored email question.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	sv := &model.Survey{Code: "it-health", Title: "IT Health Check", MaxScore: 100, IsActive: true}
	require.NoError(t, s.UpsertSurvey(ctx, sv))

	infra := &model.Section{SurveyID: sv.ID, Title: "Infrastructure", Order: 1, MaxPoints: 25}
	contact := &model.Section{SurveyID: sv.ID, Title: "Contact", Order: 2, MaxPoints: 0}
	require.NoError(t, s.UpsertSection(ctx, infra))
	require.NoError(t, s.UpsertSection(ctx, contact))

	backups := &model.Question{
		SurveyID: sv.ID, SectionID: infra.ID, Text: "How often do you test backups?",
		Type: model.QuestionSingleChoice, Order: 1, Active: true, MaxPoints: 20,
		Strategy: model.StrategySum,
	}
	require.NoError(t, s.UpsertQuestion(ctx, backups))
	for i, o := range []struct {
		text string
		pts  int
	}{{"Monthly", 20}, {"Yearly", 10}, {"Never", 0}} {
		require.NoError(t, s.UpsertOption(ctx, &model.Option{
			QuestionID: backups.ID, Text: o.text, Order: i + 1, Points: o.pts, Active: true,
		}))
	}

	risks := &model.Question{
		SurveyID: sv.ID, SectionID: infra.ID, Text: "Which of these apply?",
		Type: model.QuestionMultipleChoice, Order: 2, Active: true, MaxPoints: 5,
		Strategy: model.StrategyInverseCount,
	}
	require.NoError(t, s.UpsertQuestion(ctx, risks))
	for i, text := range []string{"No firewall", "Flat network", "Shared passwords"} {
		require.NoError(t, s.UpsertOption(ctx, &model.Option{
			QuestionID: risks.ID, Text: text, Order: i + 1, Active: true,
		}))
	}

	email := &model.Question{
		SurveyID: sv.ID, SectionID: contact.ID, Text: "Work email",
		Type: model.QuestionEmail, Order: 1, Active: true,
	}
	require.NoError(t, s.UpsertQuestion(ctx, email))

	questions, err := s.QuestionsFor(ctx, sv.ID, true)
	require.NoError(t, err)
	byText := make(map[string]*model.Question)
	for i := range questions {
		byText[questions[i].Text] = &questions[i]
	}

	return &fixture{
		store:    s,
		survey:   sv,
		sections: []model.Section{*infra, *contact},
		question: byText,
	}
}

func (f *fixture) newSubmission(t *testing.T, email string, completed bool) *model.Submission {
	t.Helper()
	ctx := context.Background()

	p, err := f.store.UpsertProspect(ctx, &model.Prospect{Email: email, Name: "Prospect"})
	require.NoError(t, err)
	sub := &model.Submission{ProspectID: p.ID, SurveyID: f.survey.ID}
	if completed {
		now := time.Now().UTC()
		sub.CompletedAt = &now
	}
	require.NoError(t, f.store.CreateSubmission(ctx, sub))
	return sub
}

func (f *fixture) answer(t *testing.T, sub *model.Submission, q *model.Question, sel model.Selection) {
	t.Helper()
	pts, err := ScoreResponse(q, sel)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveResponse(context.Background(), &model.Response{
		SubmissionID: sub.ID,
		QuestionID:   q.ID,
		Selection:    sel,
		PointsEarned: pts,
	}))
}

func TestComputeScore_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	backups := f.question["How often do you test backups?"]
	risks := f.question["Which of these apply?"]
	email := f.question["Work email"]

	sub := f.newSubmission(t, "jane@acme.com", true)
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[1].ID})                           // Yearly: 10
	f.answer(t, sub, risks, model.MultiChoice{OptionIDs: []string{risks.Options[0].ID, risks.Options[1].ID}}) // 2 selections: 3
	f.answer(t, sub, email, model.TextAnswer{Text: "jane@acme.com"})                                          // 0

	result, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, 13, result.TotalPoints)
	assert.Equal(t, 13.0, result.ScorePercentage)
	assert.Equal(t, model.TierCritical, result.RiskTier)
	assert.Equal(t, model.PackageEssential, result.PrimaryPackage)
	assert.Nil(t, result.SecondaryPkg)

	require.Len(t, result.SectionScores, 2)
	infra := result.SectionScores["section_1"]
	assert.Equal(t, "Infrastructure", infra.Title)
	assert.Equal(t, 13, infra.Points)
	assert.Equal(t, 25, infra.MaxPoints)
	assert.Equal(t, 52.0, infra.Percentage)
	contact := result.SectionScores["section_2"]
	assert.Zero(t, contact.Points)
	assert.Zero(t, contact.Percentage)
}

func TestComputeScore_UsesPackageRecommendation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	secondary := model.PackageProactive
	require.NoError(t, f.store.UpsertPackageRecommendation(ctx, &model.PackageRecommendation{
		SurveyID:  f.survey.ID,
		RiskTier:  model.TierCritical,
		Primary:   model.PackageIntegral,
		Secondary: &secondary,
	}))

	backups := f.question["How often do you test backups?"]
	sub := f.newSubmission(t, "bob@acme.com", true)
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[2].ID}) // Never: 0

	result, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierCritical, result.RiskTier)
	assert.Equal(t, model.PackageIntegral, result.PrimaryPackage)
	require.NotNil(t, result.SecondaryPkg)
	assert.Equal(t, model.PackageProactive, *result.SecondaryPkg)
}

func TestComputeScore_RefusesIncompleteSubmission(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.store)

	sub := f.newSubmission(t, "draft@acme.com", false)

	_, err := engine.ComputeScore(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrNotCompleted)
}

func TestComputeScore_RefusesDisabledSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	sub := f.newSubmission(t, "disabled@acme.com", true)
	require.NoError(t, f.store.UpdateSubmissionStatus(ctx, sub.ID, model.SubmissionDisabled, "spam"))

	_, err := engine.ComputeScore(ctx, sub.ID)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestComputeScore_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	backups := f.question["How often do you test backups?"]
	sub := f.newSubmission(t, "same@acme.com", true)
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[0].ID})

	first, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)
	second, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, first.TotalPoints, second.TotalPoints)
	assert.Equal(t, first.ScorePercentage, second.ScorePercentage)
	assert.Equal(t, first.RiskTier, second.RiskTier)
	assert.Equal(t, first.SectionScores, second.SectionScores)
}

func TestComputeScore_RecalculationPreservesCalculatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	backups := f.question["How often do you test backups?"]
	sub := f.newSubmission(t, "recalc@acme.com", true)
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[0].ID})

	first, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)

	// mutate the answer and recalculate
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[2].ID})
	second, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, second.TotalPoints)
	assert.Equal(t, first.CalculatedAt.Unix(), second.CalculatedAt.Unix())
	assert.True(t, second.RecalculatedAt.After(second.CalculatedAt) || second.RecalculatedAt.Equal(second.CalculatedAt))
}

func TestComputeScore_ZeroMaxScoreSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := NewEngine(f.store)

	f.survey.MaxScore = 0
	require.NoError(t, f.store.UpsertSurvey(ctx, f.survey))

	backups := f.question["How often do you test backups?"]
	sub := f.newSubmission(t, "zero@acme.com", true)
	f.answer(t, sub, backups, model.SingleChoice{OptionID: backups.Options[0].ID})

	result, err := engine.ComputeScore(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, result.TotalPoints)
	assert.Zero(t, result.ScorePercentage)
	assert.Equal(t, model.TierCritical, result.RiskTier)
}

func TestComputeScore_NoResponses(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.store)

	sub := f.newSubmission(t, "empty@acme.com", true)

	result, err := engine.ComputeScore(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Zero(t, result.TotalPoints)
	assert.Zero(t, result.ScorePercentage)
	assert.Equal(t, model.TierCritical, result.RiskTier)
	assert.Empty(t, result.SectionScores)
}
