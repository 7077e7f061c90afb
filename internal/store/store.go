// Package store provides persistence for surveys, submissions, responses, and
// score results, with Postgres and SQLite backends behind a common interface.
package store

import (
	"context"

	"github.com/sells-group/presales-cli/internal/model"
)

// Store defines the persistence interface for the scoring service.
//
// Atomically runs fn against a transaction-scoped Store; every read and write
// inside fn commits or rolls back together. Score computation relies on this
// to keep the risk-config upsert and the ScoreResult write in one transaction.
type Store interface {
	// Surveys
	UpsertSurvey(ctx context.Context, s *model.Survey) error
	GetSurvey(ctx context.Context, id string) (*model.Survey, error)
	GetSurveyByCode(ctx context.Context, code string) (*model.Survey, error)
	GetFeaturedSurvey(ctx context.Context) (*model.Survey, error)

	// Schema
	UpsertSection(ctx context.Context, sec *model.Section) error
	UpsertQuestion(ctx context.Context, q *model.Question) error
	UpsertOption(ctx context.Context, o *model.Option) error
	SectionsFor(ctx context.Context, surveyID string) ([]model.Section, error)
	// QuestionsFor returns a survey's questions with nested options, ordered
	// by section order then question order. activeOnly filters both questions
	// and options to active rows.
	QuestionsFor(ctx context.Context, surveyID string, activeOnly bool) ([]model.Question, error)

	// Risk configuration
	GetOrCreateRiskConfig(ctx context.Context, surveyID string) (*model.RiskTierConfig, error)
	UpsertRiskConfig(ctx context.Context, c *model.RiskTierConfig) error
	// GetPackageRecommendation returns nil when no mapping exists for the pair.
	GetPackageRecommendation(ctx context.Context, surveyID string, tier model.RiskTier) (*model.PackageRecommendation, error)
	UpsertPackageRecommendation(ctx context.Context, pr *model.PackageRecommendation) error

	// Prospects
	UpsertProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error)

	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, note string) error
	ListCompletedActive(ctx context.Context, surveyID string) ([]model.Submission, error)

	// Responses
	SaveResponse(ctx context.Context, r *model.Response) error
	DeleteResponse(ctx context.Context, submissionID, questionID string) error
	ResponsesFor(ctx context.Context, submissionID string) ([]model.Response, error)

	// Score results
	// GetScoreResult returns nil when no score exists for the submission.
	GetScoreResult(ctx context.Context, submissionID string) (*model.ScoreResult, error)
	UpsertScoreResult(ctx context.Context, sr *model.ScoreResult) error
	ListScores(ctx context.Context, surveyID string) ([]model.ScoreListing, error)
	TierDistribution(ctx context.Context, surveyID string) (map[model.RiskTier]int, error)

	// Lifecycle
	Atomically(ctx context.Context, fn func(Store) error) error
	Migrate(ctx context.Context) error
	Close() error
}
