package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/presales-cli/internal/db"
	"github.com/sells-group/presales-cli/internal/model"
)

// pgQuerier is the query surface shared by db.Pool and pgx.Tx, so store
// methods run unchanged inside and outside a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool // nil when this store is transaction-scoped
	q       pgQuerier
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS surveys (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	version     TEXT NOT NULL DEFAULT '1.0',
	max_score   INTEGER NOT NULL DEFAULT 100,
	is_active   BOOLEAN NOT NULL DEFAULT true,
	is_featured BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
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
	is_required      BOOLEAN NOT NULL DEFAULT true,
	is_active        BOOLEAN NOT NULL DEFAULT true,
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
	is_exclusive BOOLEAN NOT NULL DEFAULT false,
	is_active    BOOLEAN NOT NULL DEFAULT true,
	UNIQUE (question_id, option_order)
);

CREATE TABLE IF NOT EXISTS prospects (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'LEAD',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	prospect_id  TEXT NOT NULL REFERENCES prospects(id),
	survey_id    TEXT NOT NULL REFERENCES surveys(id),
	status       TEXT NOT NULL DEFAULT 'ACTIVE',
	admin_notes  TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	ip_address   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS responses (
	id               TEXT PRIMARY KEY,
	submission_id    TEXT NOT NULL REFERENCES submissions(id),
	question_id      TEXT NOT NULL REFERENCES questions(id),
	selected_option  TEXT,
	selected_options JSONB,
	text_response    TEXT,
	points_earned    INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (submission_id, question_id)
);

CREATE TABLE IF NOT EXISTS risk_tier_configs (
	survey_id    TEXT PRIMARY KEY REFERENCES surveys(id),
	critical_max NUMERIC(5,2) NOT NULL,
	high_max     NUMERIC(5,2) NOT NULL,
	moderate_max NUMERIC(5,2) NOT NULL,
	good_max     NUMERIC(5,2) NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
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
	submission_id    TEXT PRIMARY KEY REFERENCES submissions(id),
	total_points     INTEGER NOT NULL,
	score_percentage NUMERIC(5,2) NOT NULL,
	risk_tier        TEXT NOT NULL,
	primary_package  TEXT NOT NULL,
	secondary_package TEXT,
	section_scores   JSONB NOT NULL,
	calculated_at    TIMESTAMPTZ NOT NULL,
	recalculated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_survey ON questions(survey_id);
CREATE INDEX IF NOT EXISTS idx_options_question ON question_options(question_id);
CREATE INDEX IF NOT EXISTS idx_submissions_survey_status ON submissions(survey_id, status);
CREATE INDEX IF NOT EXISTS idx_responses_submission ON responses(submission_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Atomically runs fn against a transaction-scoped store. Nested calls reuse
// the enclosing transaction.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit transaction")
}

// Surveys

func (s *PostgresStore) UpsertSurvey(ctx context.Context, sv *model.Survey) error {
	if sv.ID == "" {
		sv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sv.CreatedAt.IsZero() {
		sv.CreatedAt = now
	}
	sv.UpdatedAt = now

	_, err := s.q.Exec(ctx,
		`INSERT INTO surveys (id, code, title, version, max_score, is_active, is_featured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (code) DO UPDATE SET
		   title = EXCLUDED.title, version = EXCLUDED.version, max_score = EXCLUDED.max_score,
		   is_active = EXCLUDED.is_active, is_featured = EXCLUDED.is_featured, updated_at = EXCLUDED.updated_at`,
		sv.ID, sv.Code, sv.Title, sv.Version, sv.MaxScore, sv.IsActive, sv.IsFeatured, sv.CreatedAt, sv.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert survey %s", sv.Code)
}

const surveyColumns = `id, code, title, version, max_score, is_active, is_featured, created_at, updated_at`

func scanSurvey(row pgx.Row) (*model.Survey, error) {
	var sv model.Survey
	err := row.Scan(&sv.ID, &sv.Code, &sv.Title, &sv.Version, &sv.MaxScore, &sv.IsActive, &sv.IsFeatured, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

func (s *PostgresStore) GetSurvey(ctx context.Context, id string) (*model.Survey, error) {
	sv, err := scanSurvey(s.q.QueryRow(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE id = $1`, id))
	return sv, eris.Wrapf(err, "postgres: get survey %s", id)
}

func (s *PostgresStore) GetSurveyByCode(ctx context.Context, code string) (*model.Survey, error) {
	sv, err := scanSurvey(s.q.QueryRow(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE code = $1`, code))
	return sv, eris.Wrapf(err, "postgres: get survey by code %s", code)
}

// GetFeaturedSurvey returns the featured active survey, falling back to the
// most recently created active survey, or nil when none exists.
func (s *PostgresStore) GetFeaturedSurvey(ctx context.Context) (*model.Survey, error) {
	sv, err := scanSurvey(s.q.QueryRow(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE is_active = true
		 ORDER BY is_featured DESC, created_at DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sv, eris.Wrap(err, "postgres: get featured survey")
}

// Schema

func (s *PostgresStore) UpsertSection(ctx context.Context, sec *model.Section) error {
	if sec.ID == "" {
		sec.ID = uuid.New().String()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO survey_sections (id, survey_id, title, section_order, max_points)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (survey_id, section_order) DO UPDATE SET
		   title = EXCLUDED.title, max_points = EXCLUDED.max_points`,
		sec.ID, sec.SurveyID, sec.Title, sec.Order, sec.MaxPoints,
	)
	return eris.Wrapf(err, "postgres: upsert section %d of survey %s", sec.Order, sec.SurveyID)
}

func (s *PostgresStore) UpsertQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Strategy == "" {
		q.Strategy = model.StrategySum
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO questions (id, survey_id, section_id, question_text, question_type, question_order, is_required, is_active, max_points, scoring_strategy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (section_id, question_order) DO UPDATE SET
		   question_text = EXCLUDED.question_text, question_type = EXCLUDED.question_type,
		   is_required = EXCLUDED.is_required, is_active = EXCLUDED.is_active,
		   max_points = EXCLUDED.max_points, scoring_strategy = EXCLUDED.scoring_strategy`,
		q.ID, q.SurveyID, q.SectionID, q.Text, string(q.Type), q.Order, q.Required, q.Active, q.MaxPoints, string(q.Strategy),
	)
	return eris.Wrapf(err, "postgres: upsert question %d of section %s", q.Order, q.SectionID)
}

func (s *PostgresStore) UpsertOption(ctx context.Context, o *model.Option) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO question_options (id, question_id, option_text, option_order, points, is_exclusive, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (question_id, option_order) DO UPDATE SET
		   option_text = EXCLUDED.option_text, points = EXCLUDED.points,
		   is_exclusive = EXCLUDED.is_exclusive, is_active = EXCLUDED.is_active`,
		o.ID, o.QuestionID, o.Text, o.Order, o.Points, o.IsExclusive, o.Active,
	)
	return eris.Wrapf(err, "postgres: upsert option %d of question %s", o.Order, o.QuestionID)
}

func (s *PostgresStore) SectionsFor(ctx context.Context, surveyID string) ([]model.Section, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, survey_id, title, section_order, max_points
		 FROM survey_sections WHERE survey_id = $1 ORDER BY section_order`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.SurveyID, &sec.Title, &sec.Order, &sec.MaxPoints); err != nil {
			return nil, eris.Wrap(err, "postgres: scan section")
		}
		sections = append(sections, sec)
	}
	return sections, eris.Wrap(rows.Err(), "postgres: iterate sections")
}

func (s *PostgresStore) QuestionsFor(ctx context.Context, surveyID string, activeOnly bool) ([]model.Question, error) {
	qSQL := `SELECT q.id, q.survey_id, q.section_id, q.question_text, q.question_type, q.question_order,
	                q.is_required, q.is_active, q.max_points, q.scoring_strategy
	         FROM questions q
	         JOIN survey_sections sec ON sec.id = q.section_id
	         WHERE q.survey_id = $1`
	if activeOnly {
		qSQL += ` AND q.is_active = true`
	}
	qSQL += ` ORDER BY sec.section_order, q.question_order`

	rows, err := s.q.Query(ctx, qSQL, surveyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list questions")
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[string]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.SectionID, &q.Text, &q.Type, &q.Order,
			&q.Required, &q.Active, &q.MaxPoints, &q.Strategy); err != nil {
			return nil, eris.Wrap(err, "postgres: scan question")
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate questions")
	}

	oSQL := `SELECT o.id, o.question_id, o.option_text, o.option_order, o.points, o.is_exclusive, o.is_active
	         FROM question_options o
	         JOIN questions q ON q.id = o.question_id
	         WHERE q.survey_id = $1`
	if activeOnly {
		oSQL += ` AND o.is_active = true`
	}
	oSQL += ` ORDER BY o.question_id, o.option_order`

	oRows, err := s.q.Query(ctx, oSQL, surveyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list options")
	}
	defer oRows.Close()

	for oRows.Next() {
		var o model.Option
		if err := oRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Order, &o.Points, &o.IsExclusive, &o.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan option")
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, eris.Wrap(oRows.Err(), "postgres: iterate options")
}

// Risk configuration

func (s *PostgresStore) GetOrCreateRiskConfig(ctx context.Context, surveyID string) (*model.RiskTierConfig, error) {
	cfg, err := s.getRiskConfig(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	// Synthesize defaults. DO NOTHING keeps a concurrent writer's row.
	def := model.DefaultRiskTierConfig(surveyID)
	def.CreatedAt = time.Now().UTC()
	_, err = s.q.Exec(ctx,
		`INSERT INTO risk_tier_configs (survey_id, critical_max, high_max, moderate_max, good_max, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (survey_id) DO NOTHING`,
		def.SurveyID, def.CriticalMax, def.HighMax, def.ModerateMax, def.GoodMax, def.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create default risk config for survey %s", surveyID)
	}
	return s.getRiskConfig(ctx, surveyID)
}

func (s *PostgresStore) getRiskConfig(ctx context.Context, surveyID string) (*model.RiskTierConfig, error) {
	var c model.RiskTierConfig
	err := s.q.QueryRow(ctx,
		`SELECT survey_id, critical_max, high_max, moderate_max, good_max, created_at
		 FROM risk_tier_configs WHERE survey_id = $1`,
		surveyID,
	).Scan(&c.SurveyID, &c.CriticalMax, &c.HighMax, &c.ModerateMax, &c.GoodMax, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get risk config for survey %s", surveyID)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertRiskConfig(ctx context.Context, c *model.RiskTierConfig) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO risk_tier_configs (survey_id, critical_max, high_max, moderate_max, good_max, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (survey_id) DO UPDATE SET
		   critical_max = EXCLUDED.critical_max, high_max = EXCLUDED.high_max,
		   moderate_max = EXCLUDED.moderate_max, good_max = EXCLUDED.good_max`,
		c.SurveyID, c.CriticalMax, c.HighMax, c.ModerateMax, c.GoodMax, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert risk config for survey %s", c.SurveyID)
}

func (s *PostgresStore) GetPackageRecommendation(ctx context.Context, surveyID string, tier model.RiskTier) (*model.PackageRecommendation, error) {
	var pr model.PackageRecommendation
	var secondary *string
	err := s.q.QueryRow(ctx,
		`SELECT id, survey_id, risk_tier, primary_package, secondary_package
		 FROM package_recommendations WHERE survey_id = $1 AND risk_tier = $2`,
		surveyID, string(tier),
	).Scan(&pr.ID, &pr.SurveyID, &pr.RiskTier, &pr.Primary, &secondary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get package recommendation %s/%s", surveyID, tier)
	}
	if secondary != nil {
		p := model.Package(*secondary)
		pr.Secondary = &p
	}
	return &pr, nil
}

func (s *PostgresStore) UpsertPackageRecommendation(ctx context.Context, pr *model.PackageRecommendation) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	var secondary *string
	if pr.Secondary != nil {
		v := string(*pr.Secondary)
		secondary = &v
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO package_recommendations (id, survey_id, risk_tier, primary_package, secondary_package)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (survey_id, risk_tier) DO UPDATE SET
		   primary_package = EXCLUDED.primary_package, secondary_package = EXCLUDED.secondary_package`,
		pr.ID, pr.SurveyID, string(pr.RiskTier), string(pr.Primary), secondary,
	)
	return eris.Wrapf(err, "postgres: upsert package recommendation %s/%s", pr.SurveyID, pr.RiskTier)
}

// Prospects

// UpsertProspect creates or updates a prospect keyed by email. An existing
// LEAD is promoted to the incoming status; other statuses are preserved.
func (s *PostgresStore) UpsertProspect(ctx context.Context, p *model.Prospect) (*model.Prospect, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.ProspectLead
	}
	now := time.Now().UTC()

	var out model.Prospect
	err := s.q.QueryRow(ctx,
		`INSERT INTO prospects (id, email, name, company_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (email) DO UPDATE SET
		   name = EXCLUDED.name,
		   company_name = CASE WHEN EXCLUDED.company_name <> '' THEN EXCLUDED.company_name ELSE prospects.company_name END,
		   status = CASE WHEN prospects.status = 'LEAD' THEN EXCLUDED.status ELSE prospects.status END,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, email, name, company_name, status, created_at, updated_at`,
		p.ID, p.Email, p.Name, p.CompanyName, string(p.Status), now,
	).Scan(&out.ID, &out.Email, &out.Name, &out.CompanyName, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert prospect %s", p.Email)
	}
	return &out, nil
}

// Submissions

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = model.SubmissionActive
	}
	if sub.StartedAt.IsZero() {
		sub.StartedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO submissions (id, prospect_id, survey_id, status, admin_notes, started_at, completed_at, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.ProspectID, sub.SurveyID, string(sub.Status), sub.AdminNotes, sub.StartedAt, sub.CompletedAt, sub.IPAddress,
	)
	return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
}

const submissionColumns = `id, prospect_id, survey_id, status, admin_notes, started_at, completed_at, ip_address`

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := s.q.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id,
	).Scan(&sub.ID, &sub.ProspectID, &sub.SurveyID, &sub.Status, &sub.AdminNotes, &sub.StartedAt, &sub.CompletedAt, &sub.IPAddress)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return &sub, nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, note string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE submissions SET status = $1,
		   admin_notes = CASE
		     WHEN $2 = '' THEN admin_notes
		     WHEN admin_notes = '' THEN $2
		     ELSE admin_notes || E'\n' || $2
		   END
		 WHERE id = $3`,
		string(status), note, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update submission status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("submission not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListCompletedActive(ctx context.Context, surveyID string) ([]model.Submission, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE survey_id = $1 AND status = 'ACTIVE' AND completed_at IS NOT NULL
		 ORDER BY started_at`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list completed active submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.ProspectID, &sub.SurveyID, &sub.Status, &sub.AdminNotes, &sub.StartedAt, &sub.CompletedAt, &sub.IPAddress); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}

// Responses

func selectionColumns(sel model.Selection) (single *string, multi []byte, text *string, err error) {
	switch v := sel.(type) {
	case model.SingleChoice:
		return &v.OptionID, nil, nil, nil
	case model.MultiChoice:
		ids := v.OptionIDs
		if ids == nil {
			ids = []string{}
		}
		multi, err = json.Marshal(ids)
		return nil, multi, nil, eris.Wrap(err, "marshal selected options")
	case model.TextAnswer:
		return nil, nil, &v.Text, nil
	default:
		return nil, nil, nil, eris.New("response has no selection")
	}
}

func selectionFrom(single *string, multi []byte, text *string) (model.Selection, error) {
	switch {
	case single != nil:
		return model.SingleChoice{OptionID: *single}, nil
	case multi != nil:
		var ids []string
		if err := json.Unmarshal(multi, &ids); err != nil {
			return nil, eris.Wrap(err, "unmarshal selected options")
		}
		return model.MultiChoice{OptionIDs: ids}, nil
	case text != nil:
		return model.TextAnswer{Text: *text}, nil
	default:
		return nil, eris.New("response row has no selection")
	}
}

// SaveResponse upserts a response keyed by (submission, question).
func (s *PostgresStore) SaveResponse(ctx context.Context, r *model.Response) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	single, multi, text, err := selectionColumns(r.Selection)
	if err != nil {
		return eris.Wrapf(err, "postgres: response %s", r.ID)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.q.Exec(ctx,
		`INSERT INTO responses (id, submission_id, question_id, selected_option, selected_options, text_response, points_earned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (submission_id, question_id) DO UPDATE SET
		   selected_option = EXCLUDED.selected_option, selected_options = EXCLUDED.selected_options,
		   text_response = EXCLUDED.text_response, points_earned = EXCLUDED.points_earned,
		   updated_at = EXCLUDED.updated_at`,
		r.ID, r.SubmissionID, r.QuestionID, single, multi, text, r.PointsEarned, r.CreatedAt, r.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save response for question %s", r.QuestionID)
}

func (s *PostgresStore) DeleteResponse(ctx context.Context, submissionID, questionID string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM responses WHERE submission_id = $1 AND question_id = $2`,
		submissionID, questionID,
	)
	return eris.Wrapf(err, "postgres: delete response for question %s", questionID)
}

func (s *PostgresStore) ResponsesFor(ctx context.Context, submissionID string) ([]model.Response, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, submission_id, question_id, selected_option, selected_options, text_response, points_earned, created_at, updated_at
		 FROM responses WHERE submission_id = $1 ORDER BY created_at`,
		submissionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list responses")
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var r model.Response
		var single, text *string
		var multi []byte
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.QuestionID, &single, &multi, &text, &r.PointsEarned, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan response")
		}
		sel, err := selectionFrom(single, multi, text)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: response %s", r.ID)
		}
		r.Selection = sel
		responses = append(responses, r)
	}
	return responses, eris.Wrap(rows.Err(), "postgres: iterate responses")
}

// Score results

func (s *PostgresStore) GetScoreResult(ctx context.Context, submissionID string) (*model.ScoreResult, error) {
	var sr model.ScoreResult
	var secondary *string
	var sectionsJSON []byte
	err := s.q.QueryRow(ctx,
		`SELECT submission_id, total_points, score_percentage, risk_tier, primary_package, secondary_package, section_scores, calculated_at, recalculated_at
		 FROM score_results WHERE submission_id = $1`,
		submissionID,
	).Scan(&sr.SubmissionID, &sr.TotalPoints, &sr.ScorePercentage, &sr.RiskTier, &sr.PrimaryPackage, &secondary, &sectionsJSON, &sr.CalculatedAt, &sr.RecalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get score result %s", submissionID)
	}
	if secondary != nil {
		p := model.Package(*secondary)
		sr.SecondaryPkg = &p
	}
	if err := json.Unmarshal(sectionsJSON, &sr.SectionScores); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal section scores")
	}
	return &sr, nil
}

// UpsertScoreResult writes the single score snapshot for a submission. On
// conflict every field is overwritten except calculated_at, which keeps the
// first computation's timestamp.
func (s *PostgresStore) UpsertScoreResult(ctx context.Context, sr *model.ScoreResult) error {
	sectionsJSON, err := json.Marshal(sr.SectionScores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal section scores")
	}
	var secondary *string
	if sr.SecondaryPkg != nil {
		v := string(*sr.SecondaryPkg)
		secondary = &v
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO score_results (submission_id, total_points, score_percentage, risk_tier, primary_package, secondary_package, section_scores, calculated_at, recalculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (submission_id) DO UPDATE SET
		   total_points = EXCLUDED.total_points, score_percentage = EXCLUDED.score_percentage,
		   risk_tier = EXCLUDED.risk_tier, primary_package = EXCLUDED.primary_package,
		   secondary_package = EXCLUDED.secondary_package, section_scores = EXCLUDED.section_scores,
		   recalculated_at = EXCLUDED.recalculated_at`,
		sr.SubmissionID, sr.TotalPoints, sr.ScorePercentage, string(sr.RiskTier), string(sr.PrimaryPackage), secondary, sectionsJSON, sr.CalculatedAt, sr.RecalculatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert score result %s", sr.SubmissionID)
}

func (s *PostgresStore) ListScores(ctx context.Context, surveyID string) ([]model.ScoreListing, error) {
	rows, err := s.q.Query(ctx,
		`SELECT sr.submission_id, p.name, p.email, sv.title, sr.total_points, sr.score_percentage,
		        sr.risk_tier, sr.primary_package, sr.secondary_package, sr.calculated_at
		 FROM score_results sr
		 JOIN submissions sub ON sub.id = sr.submission_id
		 JOIN prospects p ON p.id = sub.prospect_id
		 JOIN surveys sv ON sv.id = sub.survey_id
		 WHERE ($1 = '' OR sub.survey_id = $1) AND sub.status = 'ACTIVE'
		 ORDER BY sr.calculated_at DESC`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var listings []model.ScoreListing
	for rows.Next() {
		var l model.ScoreListing
		var secondary *string
		if err := rows.Scan(&l.SubmissionID, &l.ProspectName, &l.ProspectEmail, &l.SurveyTitle,
			&l.TotalPoints, &l.ScorePercentage, &l.RiskTier, &l.PrimaryPackage, &secondary, &l.CalculatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score listing")
		}
		if secondary != nil {
			p := model.Package(*secondary)
			l.SecondaryPkg = &p
		}
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "postgres: iterate score listings")
}

// TierDistribution counts ACTIVE completed submissions per risk tier.
func (s *PostgresStore) TierDistribution(ctx context.Context, surveyID string) (map[model.RiskTier]int, error) {
	rows, err := s.q.Query(ctx,
		`SELECT sr.risk_tier, COUNT(*)
		 FROM score_results sr
		 JOIN submissions sub ON sub.id = sr.submission_id
		 WHERE sub.survey_id = $1 AND sub.status = 'ACTIVE' AND sub.completed_at IS NOT NULL
		 GROUP BY sr.risk_tier`,
		surveyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tier distribution")
	}
	defer rows.Close()

	dist := make(map[model.RiskTier]int)
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier count")
		}
		dist[model.RiskTier(tier)] = count
	}
	return dist, eris.Wrap(rows.Err(), "postgres: iterate tier counts")
}
