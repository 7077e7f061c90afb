package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/presales-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, q: mock}
	return s, mock
}

func TestPostgresStore_GetScoreResult_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM score_results WHERE submission_id = \$1`).
		WithArgs("no-such-submission").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.GetScoreResult(context.Background(), "no-such-submission")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPackageRecommendation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM package_recommendations`).
		WithArgs("survey-1", "EXCELLENT").
		WillReturnError(pgx.ErrNoRows)

	pr, err := s.GetPackageRecommendation(context.Background(), "survey-1", model.TierExcellent)
	require.NoError(t, err)
	assert.Nil(t, pr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSubmission_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM submissions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSubmission(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get submission")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSubmissionStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE submissions SET status`).
		WithArgs("DISABLED", "spam entry", "nonexistent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSubmissionStatus(context.Background(), "nonexistent", model.SubmissionDisabled, "spam entry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertScoreResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO score_results .+ ON CONFLICT`).
		WithArgs("sub-1", 45, 45.0, "MODERATE", "PROACTIVE", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.UpsertScoreResult(context.Background(), &model.ScoreResult{
		SubmissionID:    "sub-1",
		TotalPoints:     45,
		ScorePercentage: 45,
		RiskTier:        model.TierModerate,
		PrimaryPackage:  model.PackageProactive,
		SectionScores:   map[string]model.SectionScore{},
		CalculatedAt:    now,
		RecalculatedAt:  now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrCreateRiskConfig_SeedsDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM risk_tier_configs`).
		WithArgs("survey-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO risk_tier_configs .+ DO NOTHING`).
		WithArgs("survey-1", model.DefaultCriticalMax, model.DefaultHighMax, model.DefaultModerateMax, model.DefaultGoodMax, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT .+ FROM risk_tier_configs`).
		WithArgs("survey-1").
		WillReturnRows(pgxmock.NewRows([]string{"survey_id", "critical_max", "high_max", "moderate_max", "good_max", "created_at"}).
			AddRow("survey-1", model.DefaultCriticalMax, model.DefaultHighMax, model.DefaultModerateMax, model.DefaultGoodMax, time.Now().UTC()))

	cfg, err := s.GetOrCreateRiskConfig(context.Background(), "survey-1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCriticalMax, cfg.CriticalMax)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteResponse(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM responses`).
		WithArgs("sub-1", "q-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := s.DeleteResponse(context.Background(), "sub-1", "q-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Atomically_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM responses`).
		WithArgs("sub-1", "q-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectRollback()

	err := s.Atomically(context.Background(), func(tx Store) error {
		if err := tx.DeleteResponse(context.Background(), "sub-1", "q-1"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Atomically_Commits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM responses`).
		WithArgs("sub-1", "q-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.Atomically(context.Background(), func(tx Store) error {
		return tx.DeleteResponse(context.Background(), "sub-1", "q-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
