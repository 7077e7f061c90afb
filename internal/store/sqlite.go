package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/presales-cli/internal/model"
)

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and as the backend for the behavioral test suite.
type SQLiteStore struct {
	db *sql.DB // nil when this store is transaction-scoped
	q  sqlQuerier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS surveys (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	version     TEXT NOT NULL DEFAULT '1.0',
	max_score   INTEGER NOT NULL DEFAULT 100,
	is_active   INTEGER NOT NULL DEFAULT 1,
	is_featured INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS survey_sections (
	id            TEXT PRIMARY KEY,
	survey_id     TEXT NOT NULL REFERENCES surveys(id),
	title         TEXT NOT NULL,
	section_order INTEGER NOT NULL,
	max_points    INTEGER NOT NULL DEFAULT 0,
	UNIQUE (survey_id, section_order)
);

CREATE TABLE IF NOT EXISTS questions (
	id               TEXT PRIMARY KEY,
	survey_id        TEXT NOT NULL REFERENCES surveys(id),
	section_id       TEXT NOT NULL REFERENCES survey_sections(id),
	question_text    TEXT NOT NULL,
	question_type    TEXT NOT NULL,
	question_order   INTEGER NOT NULL,
	is_required      INTEGER NOT NULL DEFAULT 1,
	is_active        INTEGER NOT NULL DEFAULT 1,
	max_points       INTEGER NOT NULL DEFAULT 0,
	scoring_strategy TEXT NOT NULL DEFAULT 'sum',
	UNIQUE (section_id, question_order)
);

CREATE TABLE IF NOT EXISTS question_options (
	id           TEXT PRIMARY KEY,
	question_id  TEXT NOT NULL REFERENCES questions(id),
	option_text  TEXT NOT NULL,
	option_order INTEGER NOT NULL,
	points       INTEGER NOT NULL DEFAULT 0,
	is_exclusive INTEGER NOT NULL DEFAULT 0,
	is_active    INTEGER NOT NULL DEFAULT 1,
	UNIQUE (question_id, option_order)
);

CREATE TABLE IF NOT EXISTS prospects (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'LEAD',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	prospect_id  TEXT NOT NULL REFERENCES prospects(id),
	survey_id    TEXT NOT NULL REFERENCES surveys(id),
	status       TEXT NOT NULL DEFAULT 'ACTIVE',
	admin_notes  TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	ip_address   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS responses (
	id               TEXT PRIMARY KEY,
	submission_id    TEXT NOT NULL REFERENCES submissions(id),
	question_id      TEXT NOT NULL REFERENCES questions(id),
	selected_option  TEXT,
	selected_options TEXT,
	text_response    TEXT,
	points_earned    INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (submission_id, question_id)
);

CREATE TABLE IF NOT EXISTS risk_tier_configs (
	survey_id    TEXT PRIMARY KEY REFERENCES surveys(id),
	critical_max REAL NOT NULL,
	high_max     REAL NOT NULL,
	moderate_max REAL NOT NULL,
	good_max     REAL NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS package_recommendations (
	id                TEXT PRIMARY KEY,
	survey_id         TEXT NOT NULL REFERENCES surveys(id),
	risk_tier         TEXT NOT NULL,
	primary_package   TEXT NOT NULL,
	secondary_package TEXT,
	UNIQUE (survey_id, risk_tier)
);

CREATE TABLE IF NOT EXISTS score_results (
	submission_id     TEXT PRIMARY KEY REFERENCES submissions(id),
	total_points      INTEGER NOT NULL,
	score_percentage  REAL NOT NULL,
	risk_tier         TEXT NOT NULL,
	primary_package   TEXT NOT NULL,
	secondary_package TEXT,
	section_scores    TEXT NOT NULL,
	calculated_at     DATETIME NOT NULL,
	recalculated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_survey ON questions(survey_id);
CREATE INDEX IF NOT EXISTS idx_options_question ON question_options(question_id);
CREATE INDEX IF NOT EXISTS idx_submissions_survey_status ON submissions(survey_id, status);
CREATE INDEX IF NOT EXISTS idx_responses_submission ON responses(submission_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Atomically runs fn against a transaction-scoped store. Nested calls reuse
// the enclosing transaction.
func (s *SQLiteStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteStore{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit transaction")
}

// Surveys

func (s *SQLiteStore) UpsertSurvey(ctx context.Context, sv *model.Survey) error {
	if sv.ID == "" {
		sv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sv.CreatedAt.IsZero() {
		sv.CreatedAt = now
	}
	sv.UpdatedAt = now

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO surveys (id, code, title, version, max_score, is_active, is_featured, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   title = excluded.title, version = excluded.version, max_score = excluded.max_score,
		   is_active = excluded.is_active, is_featured = excluded.is_featured, updated_at = excluded.updated_at`,
		sv.ID, sv.Code, sv.Title, sv.Version, sv.MaxScore, sv.IsActive, sv.IsFeatured, sv.CreatedAt, sv.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert survey %s", sv.Code)
}

func (s *SQLiteStore) scanSurveyRow(row *sql.Row) (*model.Survey, error) {
	var sv model.Survey
	err := row.Scan(&sv.ID, &sv.Code, &sv.Title, &sv.Version, &sv.MaxScore, &sv.IsActive, &sv.IsFeatured, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id string) (*model.Survey, error) {
	sv, err := s.scanSurveyRow(s.q.QueryRowContext(ctx,
		`SELECT id, code, title, version, max_score, is_active, is_featured, created_at, updated_at
		 FROM surveys WHERE id = ?`, id))
	return sv, eris.Wrapf(err, "sqlite: get survey %s", id)
}

func (s *SQLiteStore) GetSurveyByCode(ctx context.Context, code string) (*model.Survey, error) {
	sv, err := s.scanSurveyRow(s.q.QueryRowContext(ctx,
		`SELECT id, code, title, version, max_score, is_active, is_featured, created_at, updated_at
		 FROM surveys WHERE code = ?`, code))
	return sv, eris.Wrapf(err, "sqlite: get survey by code %s", code)
}

func (s *SQLiteStore) GetFeaturedSurvey(ctx context.Context) (*model.Survey, error) {
	sv, err := s.scanSurveyRow(s.q.QueryRowContext(ctx,
		`SELECT id, code, title, version, max_score, is_active, is_featured, created_at, updated_at
		 FROM surveys WHERE is_active = 1
		 ORDER BY is_featured DESC, created_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sv, eris.Wrap(err, "sqlite: get featured survey")
}

// Schema

func (s *SQLiteStore) UpsertSection(ctx context.Context, sec *model.Section) error {
	if sec.ID == "" {
		sec.ID = uuid.New().String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO survey_sections (id, survey_id, title, section_order, max_points)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (survey_id, section_order) DO UPDATE SET
		   title = excluded.title, max_points = excluded.max_points`,
		sec.ID, sec.SurveyID, sec.Title, sec.Order, sec.MaxPoints,
	)
	return eris.Wrapf(err, "sqlite: upsert section %d of survey %s", sec.Order, sec.SurveyID)
}

func (s *SQLiteStore) UpsertQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Strategy == "" {
		q.Strategy = model.StrategySum
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO questions (id, survey_id, section_id, question_text, question_type, question_order, is_required, is_active, max_points, scoring_strategy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (section_id, question_order) DO UPDATE SET
		   question_text = excluded.question_text, question_type = excluded.question_type,
		   is_required = excluded.is_required, is_active = excluded.is_active,
		   max_points = excluded.max_points, scoring_strategy = excluded.scoring_strategy`,
		q.ID, q.SurveyID, q.SectionID, q.Text, string(q.Type), q.Order, q.Required, q.Active, q.MaxPoints, string(q.Strategy),
	)
	return eris.Wrapf(err, "sqlite: upsert question %d of section %s", q.Order, q.SectionID)
}

func (s *SQLiteStore) UpsertOption(ctx context.Context, o *model.Option) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO question_options (id, question_id, option_text, option_order, points, is_exclusive, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (question_id, option_order) DO UPDATE SET
		   option_text = excluded.option_text, points = excluded.points,
		   is_exclusive = excluded.is_exclusive, is_active = excluded.is_active`,
		o.ID, o.QuestionID, o.Text, o.Order, o.Points, o.IsExclusive, o.Active,
	)
	return eris.Wrapf(err, "sqlite: upsert option %d of question %s", o.Order, o.QuestionID)
}

func (s *SQLiteStore) SectionsFor(ctx context.Context, surveyID string) ([]model.Section, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, survey_id, title, section_order, max_points
		 FROM survey_sections WHERE survey_id = ? ORDER BY section_order`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.SurveyID, &sec.Title, &sec.Order, &sec.MaxPoints); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan section")
		}
		sections = append(sections, sec)
	}
	return sections, eris.Wrap(rows.Err(), "sqlite: iterate sections")
}

func (s *SQLiteStore) QuestionsFor(ctx context.Context, surveyID string, activeOnly bool) ([]model.Question, error) {
	qSQL := `SELECT q.id, q.survey_id, q.section_id, q.question_text, q.question_type, q.question_order,
	                q.is_required, q.is_active, q.max_points, q.scoring_strategy
	         FROM questions q
	         JOIN survey_sections sec ON sec.id = q.section_id
	         WHERE q.survey_id = ?`
	if activeOnly {
		qSQL += ` AND q.is_active = 1`
	}
	qSQL += ` ORDER BY sec.section_order, q.question_order`

	rows, err := s.q.QueryContext(ctx, qSQL, surveyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list questions")
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[string]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.SectionID, &q.Text, &q.Type, &q.Order,
			&q.Required, &q.Active, &q.MaxPoints, &q.Strategy); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan question")
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate questions")
	}

	oSQL := `SELECT o.id, o.question_id, o.option_text, o.option_order, o.points, o.is_exclusive, o.is_active
	         FROM question_options o
	         JOIN questions q ON q.id = o.question_id
	         WHERE q.survey_id = ?`
	if activeOnly {
		oSQL += ` AND o.is_active = 1`
	}
	oSQL += ` ORDER BY o.question_id, o.option_order`

	oRows, err := s.q.QueryContext(ctx, oSQL, surveyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list options")
	}
	defer oRows.Close()

	for oRows.Next() {
		var o model.Option
		if err := oRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Order, &o.Points, &o.IsExclusive, &o.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan option")
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, eris.Wrap(oRows.Err(), "sqlite: iterate options")
}

// Risk configuration

func (s *SQLiteStore) GetOrCreateRiskConfig(ctx context.Context, surveyID string) (*model.RiskTierConfig, error) {
	cfg, err := s.getRiskConfig(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	def := model.DefaultRiskTierConfig(surveyID)
	def.CreatedAt = time.Now().UTC()
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO risk_tier_configs (survey_id, critical_max, high_max, moderate_max, good_max, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (survey_id) DO NOTHING`,
		def.SurveyID, def.CriticalMax, def.HighMax, def.ModerateMax, def.GoodMax, def.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create default risk config for survey %s", surveyID)
	}
	return s.getRiskConfig(ctx, surveyID)
}

func (s *SQLiteStore) getRiskConfig(ctx context.Context, surveyID string) (*model.RiskTierConfig, error) {
	var c model.RiskTierConfig
	err := s.q.QueryRowContext(ctx,
		`SELECT survey_id, critical_max, high_max, moderate_max, good_max, created_at
		 FROM risk_tier_configs WHERE survey_id = ?`,
		surveyID,
	).Scan(&c.SurveyID, &c.CriticalMax, &c.HighMax, &c.ModerateMax, &c.GoodMax, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get risk config for survey %s", surveyID)
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertRiskConfig(ctx context.Context, c *model.RiskTierConfig) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO risk_tier_configs (survey_id, critical_max, high_max, moderate_max, good_max, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (survey_id) DO UPDATE SET
		   critical_max = excluded.critical_max, high_max = excluded.high_max,
		   moderate_max = excluded.moderate_max, good_max = excluded.good_max`,
		c.SurveyID, c.CriticalMax, c.HighMax, c.ModerateMax, c.GoodMax, c.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert risk config for survey %s", c.SurveyID)
}

func (s *SQLiteStore) GetPackageRecommendation(ctx context.Context, surveyID string, tier model.RiskTier) (*model.PackageRecommendation, error) {
	var pr model.PackageRecommendation
	var secondary *string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, survey_id, risk_tier, primary_package, secondary_package
		 FROM package_recommendations WHERE survey_id = ? AND risk_tier = ?`,
		surveyID, string(tier),
	).Scan(&pr.ID, &pr.SurveyID, &pr.RiskTier, &pr.Primary, &secondary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get package recommendation %s/%s", surveyID, tier)
	}
	if secondary != nil {
		p := model.Package(*secondary)
		pr.Secondary = &p
	}
	return &pr, nil
}

func (s *SQLiteStore) UpsertPackageRecommendation(ctx context.Context, pr *model.PackageRecommendation) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	var secondary *string
	if pr.Secondary != nil {
		v := string(*pr.Secondary)
		secondary = &v
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO package_recommendations (id, survey_id, risk_tier, primary_package, secondary_package)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (survey_id, risk_tier) DO UPDATE SET
		   primary_package = excluded.primary_package, secondary_package = excluded.secondary_package`,
		pr.ID, pr.SurveyID, string(pr.RiskTier), string(pr.Primary), secondary,
	)
	return eris.Wrapf(err, "sqlite: upsert package recommendation %s/%s", pr.SurveyID, pr.RiskTier)
}

// Prospects

func (s *SQLiteStore) UpsertProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error) {
	if p.Status == "" {
		p.Status = model.ProspectLead
	}
	now := time.Now().UTC()

	var existing model.Prospect
	err := s.q.QueryRowContext(ctx,
		`SELECT id, email, name, company_name, status, created_at, updated_at FROM prospects WHERE email = ?`,
		p.Email,
	).Scan(&existing.ID, &existing.Email, &existing.Name, &existing.CompanyName, &existing.Status, &existing.CreatedAt, &existing.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: get prospect %s", p.Email)
	}

	if errors.Is(err, sql.ErrNoRows) {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO prospects (id, email, name, company_name, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Email, p.Name, p.CompanyName, string(p.Status), p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert prospect %s", p.Email)
		}
		out := *p
		return &out, nil
	}

	existing.Name = p.Name
	if p.CompanyName != "" {
		existing.CompanyName = p.CompanyName
	}
	if existing.Status == model.ProspectLead {
		existing.Status = p.Status
	}
	existing.UpdatedAt = now
	_, err = s.q.ExecContext(ctx,
		`UPDATE prospects SET name = ?, company_name = ?, status = ?, updated_at = ? WHERE id = ?`,
		existing.Name, existing.CompanyName, string(existing.Status), existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update prospect %s", p.Email)
	}
	return &existing, nil
}

// Submissions

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = model.SubmissionActive
	}
	if sub.StartedAt.IsZero() {
		sub.StartedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO submissions (id, prospect_id, survey_id, status, admin_notes, started_at, completed_at, ip_address)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ProspectID, sub.SurveyID, string(sub.Status), sub.AdminNotes, sub.StartedAt, sub.CompletedAt, sub.IPAddress,
	)
	return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := s.q.QueryRowContext(ctx,
		`SELECT id, prospect_id, survey_id, status, admin_notes, started_at, completed_at, ip_address
		 FROM submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.ProspectID, &sub.SurveyID, &sub.Status, &sub.AdminNotes, &sub.StartedAt, &sub.CompletedAt, &sub.IPAddress)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}
	return &sub, nil
}

func (s *SQLiteStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, note string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE submissions SET status = ?,
		   admin_notes = CASE
		     WHEN ? = '' THEN admin_notes
		     WHEN admin_notes = '' THEN ?
		     ELSE admin_notes || char(10) || ?
		   END
		 WHERE id = ?`,
		string(status), note, note, note, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update submission status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("submission not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListCompletedActive(ctx context.Context, surveyID string) ([]model.Submission, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, prospect_id, survey_id, status, admin_notes, started_at, completed_at, ip_address
		 FROM submissions
		 WHERE survey_id = ? AND status = 'ACTIVE' AND completed_at IS NOT NULL
		 ORDER BY started_at`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list completed active submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.ProspectID, &sub.SurveyID, &sub.Status, &sub.AdminNotes, &sub.StartedAt, &sub.CompletedAt, &sub.IPAddress); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

// Responses

func (s *SQLiteStore) SaveResponse(ctx context.Context, r *model.Response) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	single, multi, text, err := selectionColumns(r.Selection)
	if err != nil {
		return eris.Wrapf(err, "sqlite: response %s", r.ID)
	}
	var multiStr *string
	if multi != nil {
		v := string(multi)
		multiStr = &v
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO responses (id, submission_id, question_id, selected_option, selected_options, text_response, points_earned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (submission_id, question_id) DO UPDATE SET
		   selected_option = excluded.selected_option, selected_options = excluded.selected_options,
		   text_response = excluded.text_response, points_earned = excluded.points_earned,
		   updated_at = excluded.updated_at`,
		r.ID, r.SubmissionID, r.QuestionID, single, multiStr, text, r.PointsEarned, r.CreatedAt, r.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save response for question %s", r.QuestionID)
}

func (s *SQLiteStore) DeleteResponse(ctx context.Context, submissionID, questionID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM responses WHERE submission_id = ? AND question_id = ?`,
		submissionID, questionID,
	)
	return eris.Wrapf(err, "sqlite: delete response for question %s", questionID)
}

func (s *SQLiteStore) ResponsesFor(ctx context.Context, submissionID string) ([]model.Response, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, submission_id, question_id, selected_option, selected_options, text_response, points_earned, created_at, updated_at
		 FROM responses WHERE submission_id = ? ORDER BY created_at`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list responses")
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var r model.Response
		var single, multiStr, text *string
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.QuestionID, &single, &multiStr, &text, &r.PointsEarned, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan response")
		}
		var multi []byte
		if multiStr != nil {
			multi = []byte(*multiStr)
		}
		sel, err := selectionFrom(single, multi, text)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: response %s", r.ID)
		}
		r.Selection = sel
		responses = append(responses, r)
	}
	return responses, eris.Wrap(rows.Err(), "sqlite: iterate responses")
}

// Score results

func (s *SQLiteStore) GetScoreResult(ctx context.Context, submissionID string) (*model.ScoreResult, error) {
	var sr model.ScoreResult
	var secondary *string
	var sectionsJSON string
	err := s.q.QueryRowContext(ctx,
		`SELECT submission_id, total_points, score_percentage, risk_tier, primary_package, secondary_package, section_scores, calculated_at, recalculated_at
		 FROM score_results WHERE submission_id = ?`,
		submissionID,
	).Scan(&sr.SubmissionID, &sr.TotalPoints, &sr.ScorePercentage, &sr.RiskTier, &sr.PrimaryPackage, &secondary, &sectionsJSON, &sr.CalculatedAt, &sr.RecalculatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get score result %s", submissionID)
	}
	if secondary != nil {
		p := model.Package(*secondary)
		sr.SecondaryPkg = &p
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &sr.SectionScores); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal section scores")
	}
	return &sr, nil
}

func (s *SQLiteStore) UpsertScoreResult(ctx context.Context, sr *model.ScoreResult) error {
	sectionsJSON, err := json.Marshal(sr.SectionScores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal section scores")
	}
	var secondary *string
	if sr.SecondaryPkg != nil {
		v := string(*sr.SecondaryPkg)
		secondary = &v
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO score_results (submission_id, total_points, score_percentage, risk_tier, primary_package, secondary_package, section_scores, calculated_at, recalculated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (submission_id) DO UPDATE SET
		   total_points = excluded.total_points, score_percentage = excluded.score_percentage,
		   risk_tier = excluded.risk_tier, primary_package = excluded.primary_package,
		   secondary_package = excluded.secondary_package, section_scores = excluded.section_scores,
		   recalculated_at = excluded.recalculated_at`,
		sr.SubmissionID, sr.TotalPoints, sr.ScorePercentage, string(sr.RiskTier), string(sr.PrimaryPackage), secondary, string(sectionsJSON), sr.CalculatedAt, sr.RecalculatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert score result %s", sr.SubmissionID)
}

func (s *SQLiteStore) ListScores(ctx context.Context, surveyID string) ([]model.ScoreListing, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT sr.submission_id, p.name, p.email, sv.title, sr.total_points, sr.score_percentage,
		        sr.risk_tier, sr.primary_package, sr.secondary_package, sr.calculated_at
		 FROM score_results sr
		 JOIN submissions sub ON sub.id = sr.submission_id
		 JOIN prospects p ON p.id = sub.prospect_id
		 JOIN surveys sv ON sv.id = sub.survey_id
		 WHERE (? = '' OR sub.survey_id = ?) AND sub.status = 'ACTIVE'
		 ORDER BY sr.calculated_at DESC`,
		surveyID, surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var listings []model.ScoreListing
	for rows.Next() {
		var l model.ScoreListing
		var secondary *string
		if err := rows.Scan(&l.SubmissionID, &l.ProspectName, &l.ProspectEmail, &l.SurveyTitle,
			&l.TotalPoints, &l.ScorePercentage, &l.RiskTier, &l.PrimaryPackage, &secondary, &l.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score listing")
		}
		if secondary != nil {
			p := model.Package(*secondary)
			l.SecondaryPkg = &p
		}
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "sqlite: iterate score listings")
}

func (s *SQLiteStore) TierDistribution(ctx context.Context, surveyID string) (map[model.RiskTier]int, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT sr.risk_tier, COUNT(*)
		 FROM score_results sr
		 JOIN submissions sub ON sub.id = sr.submission_id
		 WHERE sub.survey_id = ? AND sub.status = 'ACTIVE' AND sub.completed_at IS NOT NULL
		 GROUP BY sr.risk_tier`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tier distribution")
	}
	defer rows.Close()

	dist := make(map[model.RiskTier]int)
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier count")
		}
		dist[model.RiskTier(tier)] = count
	}
	return dist, eris.Wrap(rows.Err(), "sqlite: iterate tier counts")
}
