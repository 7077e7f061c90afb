package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/store"
)

type serveFixture struct {
	api     *api
	handler http.Handler
	store   store.Store
	survey  *model.Survey
	backups *model.Question
	email   *model.Question
}

func newServeFixture(t *testing.T) *serveFixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	sv := &model.Survey{Code: "it-health", Title: "IT Health Check", MaxScore: 20, IsActive: true, IsFeatured: true}
	require.NoError(t, s.UpsertSurvey(ctx, sv))
	sec := &model.Section{SurveyID: sv.ID, Title: "Infrastructure", Order: 1, MaxPoints: 20}
	require.NoError(t, s.UpsertSection(ctx, sec))

	backups := &model.Question{
		SurveyID: sv.ID, SectionID: sec.ID, Text: "How often do you test backups?",
		Type: model.QuestionSingleChoice, Order: 1, Required: true, Active: true, MaxPoints: 20,
		Strategy: model.StrategySum,
	}
	require.NoError(t, s.UpsertQuestion(ctx, backups))
	for i, o := range []struct {
		text string
		pts  int
	}{{"Monthly", 20}, {"Never", 0}} {
		require.NoError(t, s.UpsertOption(ctx, &model.Option{
			QuestionID: backups.ID, Text: o.text, Order: i + 1, Points: o.pts, Active: true,
		}))
	}

	email := &model.Question{
		SurveyID: sv.ID, SectionID: sec.ID, Text: "Work email",
		Type: model.QuestionEmail, Order: 2, Active: true,
	}
	require.NoError(t, s.UpsertQuestion(ctx, email))

	questions, err := s.QuestionsFor(ctx, sv.ID, true)
	require.NoError(t, err)

	a := newAPI(s, 100, 100)
	return &serveFixture{
		api:     a,
		handler: a.router(),
		store:   s,
		survey:  sv,
		backups: &questions[0],
		email:   &questions[1],
	}
}

func (f *serveFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *serveFixture) submit(t *testing.T, email string) (string, map[string]any) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"prospect": map[string]string{"email": email, "name": "Jane Doe", "company": "Acme"},
		"responses": []map[string]any{
			{"question_id": f.backups.ID, "option_id": f.backups.Options[0].ID},
			{"question_id": f.email.ID, "text": email},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["submission_id"].(string), resp
}

func TestServe_Health(t *testing.T) {
	f := newServeFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestServe_FeaturedSurvey(t *testing.T) {
	f := newServeFixture(t)

	w := f.do(t, http.MethodGet, "/api/surveys/featured", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Survey    model.Survey     `json:"survey"`
		Questions []model.Question `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "it-health", resp.Survey.Code)
	assert.Len(t, resp.Questions, 2)
}

func TestServe_SubmitScoresImmediately(t *testing.T) {
	f := newServeFixture(t)

	subID, resp := f.submit(t, "jane@acme.com")
	require.NotNil(t, resp["score"])

	score := resp["score"].(map[string]any)
	assert.Equal(t, float64(20), score["total_points"])
	assert.Equal(t, "EXCELLENT", score["risk_tier"])

	// prospect was promoted to QUALIFIED on completion
	p, err := f.store.UpsertProspect(context.Background(), &model.Prospect{Email: "jane@acme.com", Name: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, model.ProspectQualified, p.Status)

	w := f.do(t, http.MethodGet, "/api/submissions/"+subID+"/score", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServe_SubmitMissingRequired(t *testing.T) {
	f := newServeFixture(t)

	w := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"prospect":  map[string]string{"email": "x@acme.com", "name": "X"},
		"responses": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "required question")
}

func TestServe_SubmitMissingProspect(t *testing.T) {
	f := newServeFixture(t)

	w := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"responses": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_SubmitToInactiveSurvey(t *testing.T) {
	f := newServeFixture(t)

	f.survey.IsActive = false
	require.NoError(t, f.store.UpsertSurvey(context.Background(), f.survey))

	w := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"prospect": map[string]string{"email": "x@acme.com", "name": "X"},
	})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestServe_ScoreNotFound(t *testing.T) {
	f := newServeFixture(t)

	w := f.do(t, http.MethodGet, "/api/submissions/nonexistent/score", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServe_UpdateResponseRecalculates(t *testing.T) {
	f := newServeFixture(t)

	subID, _ := f.submit(t, "jane@acme.com")

	w := f.do(t, http.MethodPut,
		fmt.Sprintf("/api/submissions/%s/responses/%s", subID, f.backups.ID),
		map[string]any{"option_id": f.backups.Options[1].ID}, // Never: 0
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		PointsEarned int               `json:"points_earned"`
		Score        model.ScoreResult `json:"score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.PointsEarned)
	assert.Zero(t, resp.Score.TotalPoints)
	assert.Equal(t, model.TierCritical, resp.Score.RiskTier)
}

func TestServe_DeleteResponseRecalculates(t *testing.T) {
	f := newServeFixture(t)

	subID, _ := f.submit(t, "jane@acme.com")

	w := f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/submissions/%s/responses/%s", subID, f.backups.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	score, err := f.store.GetScoreResult(context.Background(), subID)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Zero(t, score.TotalPoints)
}

func TestServe_StatusChangeAndStats(t *testing.T) {
	f := newServeFixture(t)

	subID, _ := f.submit(t, "jane@acme.com")

	w := f.do(t, http.MethodGet, "/api/surveys/it-health/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"EXCELLENT":1`)

	w = f.do(t, http.MethodPatch, "/api/submissions/"+subID+"/status",
		map[string]string{"status": "DISABLED", "note": "test entry"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/surveys/it-health/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"EXCELLENT":1`)
}

func TestServe_StatusRejectsUnknownValue(t *testing.T) {
	f := newServeFixture(t)

	subID, _ := f.submit(t, "jane@acme.com")

	w := f.do(t, http.MethodPatch, "/api/submissions/"+subID+"/status",
		map[string]string{"status": "ARCHIVED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServe_BulkRecalculate(t *testing.T) {
	f := newServeFixture(t)

	f.submit(t, "a@acme.com")
	f.submit(t, "b@acme.com")

	w := f.do(t, http.MethodPost, "/api/surveys/it-health/recalculate",
		map[string]bool{"force": true})
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Total        int `json:"total"`
		Recalculated int `json:"recalculated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Recalculated)
}

func TestServe_RateLimitsIntake(t *testing.T) {
	f := newServeFixture(t)
	f.api.rateLimit = 1
	f.api.rateBurst = 1

	first := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"prospect": map[string]string{"email": "a@acme.com", "name": "A"},
		"responses": []map[string]any{
			{"question_id": f.backups.ID, "option_id": f.backups.Options[0].ID},
		},
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/surveys/it-health/submissions", map[string]any{
		"prospect": map[string]string{"email": "b@acme.com", "name": "B"},
	})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// a different client IP is not throttled
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
		"prospect": map[string]string{"email": "c@acme.com", "name": "C"},
		"responses": []map[string]any{
			{"question_id": f.backups.ID, "option_id": f.backups.Options[0].ID},
		},
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/surveys/it-health/submissions", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "10.1.2.3")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}
