package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/scoring"
	"github.com/sells-group/presales-cli/internal/store"
	"github.com/sells-group/presales-cli/internal/trigger"
)

var servePort int

// api bundles the dependencies behind the HTTP handlers.
type api struct {
	store  store.Store
	engine *scoring.Engine
	bus    *trigger.Bus
	bulk   *trigger.BulkRecalculator

	rateLimit rate.Limit
	rateBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newAPI(s store.Store, limit float64, burst int) *api {
	engine := scoring.NewEngine(s)
	bus := trigger.NewBus()
	bus.Subscribe(trigger.NewRecalculator(engine).Handle)

	return &api{
		store:     s,
		engine:    engine,
		bus:       bus,
		bulk:      trigger.NewBulkRecalculator(s, engine),
		rateLimit: rate.Limit(limit),
		rateBurst: burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (a *api) limiterFor(ip string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[ip]
	if !ok {
		l = rate.NewLimiter(a.rateLimit, a.rateBurst)
		a.limiters[ip] = l
	}
	return l
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *api) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiterFor(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/surveys/featured", a.handleFeaturedSurvey)
	r.Post("/api/surveys/{code}/submissions", a.rateLimited(a.handleSubmit))
	r.Post("/api/surveys/{code}/recalculate", a.handleRecalculate)
	r.Get("/api/surveys/{code}/stats", a.handleStats)

	r.Get("/api/submissions/{id}/score", a.handleGetScore)
	r.Put("/api/submissions/{id}/responses/{questionID}", a.handleUpdateResponse)
	r.Delete("/api/submissions/{id}/responses/{questionID}", a.handleDeleteResponse)
	r.Patch("/api/submissions/{id}/status", a.handleUpdateStatus)

	return r
}

// handleFeaturedSurvey returns the survey a public intake form should render,
// with its sections, questions, and options.
func (a *api) handleFeaturedSurvey(w http.ResponseWriter, r *http.Request) {
	sv, err := a.store.GetFeaturedSurvey(r.Context())
	if err != nil {
		zap.L().Error("featured survey lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sv == nil {
		writeError(w, http.StatusNotFound, "no active survey")
		return
	}

	sections, err := a.store.SectionsFor(r.Context(), sv.ID)
	if err != nil {
		zap.L().Error("section lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	questions, err := a.store.QuestionsFor(r.Context(), sv.ID, true)
	if err != nil {
		zap.L().Error("question lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"survey":    sv,
		"sections":  sections,
		"questions": questions,
	})
}

type responsePayload struct {
	QuestionID string   `json:"question_id"`
	OptionID   string   `json:"option_id,omitempty"`
	OptionIDs  []string `json:"option_ids,omitempty"`
	Text       string   `json:"text,omitempty"`
}

type submitRequest struct {
	Prospect struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Company string `json:"company,omitempty"`
	} `json:"prospect"`
	Responses []responsePayload `json:"responses"`
}

// selectionFor builds the typed selection for a question from the request
// payload, enforcing the payload shape the question type expects.
func selectionFor(q *model.Question, p responsePayload) (model.Selection, error) {
	switch q.Type {
	case model.QuestionSingleChoice:
		if p.OptionID == "" {
			return nil, eris.Errorf("question %s requires option_id", q.ID)
		}
		return model.SingleChoice{OptionID: p.OptionID}, nil
	case model.QuestionMultipleChoice:
		return model.MultiChoice{OptionIDs: p.OptionIDs}, nil
	case model.QuestionText, model.QuestionEmail:
		return model.TextAnswer{Text: p.Text}, nil
	default:
		return nil, eris.Errorf("unknown question type %s", q.Type)
	}
}

// handleSubmit accepts a completed questionnaire: it upserts the prospect,
// records the submission and its responses atomically, then triggers scoring.
// The submission commits even when scoring fails; the score field is null in
// that case and a later recalculation fills it in.
func (a *api) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prospect.Email == "" || req.Prospect.Name == "" {
		writeError(w, http.StatusBadRequest, "prospect email and name are required")
		return
	}

	sv, err := a.store.GetSurveyByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusNotFound, "survey not found")
		return
	}
	if !sv.IsActive {
		writeError(w, http.StatusGone, "survey is no longer accepting submissions")
		return
	}

	questions, err := a.store.QuestionsFor(ctx, sv.ID, true)
	if err != nil {
		zap.L().Error("question lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	questionByID := make(map[string]*model.Question, len(questions))
	for i := range questions {
		questionByID[questions[i].ID] = &questions[i]
	}

	var sub *model.Submission
	err = a.store.Atomically(ctx, func(tx store.Store) error {
		prospect, err := tx.UpsertProspect(ctx, &model.Prospect{
			Email:       req.Prospect.Email,
			Name:        req.Prospect.Name,
			CompanyName: req.Prospect.Company,
			Status:      model.ProspectQualified,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sub = &model.Submission{
			ProspectID:  prospect.ID,
			SurveyID:    sv.ID,
			CompletedAt: &now,
			IPAddress:   clientIP(r),
		}
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}

		answered := make(map[string]bool, len(req.Responses))
		for _, p := range req.Responses {
			q, ok := questionByID[p.QuestionID]
			if !ok {
				return eris.Errorf("unknown question %s", p.QuestionID)
			}
			sel, err := selectionFor(q, p)
			if err != nil {
				return err
			}
			pts, err := scoring.ScoreResponse(q, sel)
			if err != nil {
				return err
			}
			if err := tx.SaveResponse(ctx, &model.Response{
				SubmissionID: sub.ID,
				QuestionID:   q.ID,
				Selection:    sel,
				PointsEarned: pts,
			}); err != nil {
				return err
			}
			answered[q.ID] = true
		}

		for _, q := range questions {
			if q.Required && !answered[q.ID] {
				return eris.Errorf("required question not answered: %s", q.ID)
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Scoring happens after the submission committed. A failure here leaves
	// the submission without a score result, which bulk recalculation picks
	// up later.
	var score *model.ScoreResult
	if err := a.bus.Publish(ctx, trigger.SubmissionCompleted{Submission: sub.ID}); err != nil {
		zap.L().Error("scoring after submission failed",
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
	} else if score, err = a.store.GetScoreResult(ctx, sub.ID); err != nil {
		zap.L().Error("score lookup after submission failed",
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
		score = nil
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"submission_id": sub.ID,
		"score":         score,
	})
}

func (a *api) handleGetScore(w http.ResponseWriter, r *http.Request) {
	score, err := a.store.GetScoreResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("score lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if score == nil {
		writeError(w, http.StatusNotFound, "no score for submission")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

type responseUpdateRequest struct {
	OptionID  string   `json:"option_id,omitempty"`
	OptionIDs []string `json:"option_ids,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// handleUpdateResponse replaces one answer of an existing submission and
// recalculates its score.
func (a *api) handleUpdateResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := chi.URLParam(r, "id")
	questionID := chi.URLParam(r, "questionID")

	var req responseUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := a.store.GetSubmission(ctx, submissionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	questions, err := a.store.QuestionsFor(ctx, sub.SurveyID, true)
	if err != nil {
		zap.L().Error("question lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var question *model.Question
	for i := range questions {
		if questions[i].ID == questionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}

	sel, err := selectionFor(question, responsePayload{
		QuestionID: questionID,
		OptionID:   req.OptionID,
		OptionIDs:  req.OptionIDs,
		Text:       req.Text,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pts, err := scoring.ScoreResponse(question, sel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.SaveResponse(ctx, &model.Response{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Selection:    sel,
		PointsEarned: pts,
	}); err != nil {
		zap.L().Error("save response failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := a.bus.Publish(ctx, trigger.ResponseChanged{Submission: submissionID, QuestionID: questionID}); err != nil {
		zap.L().Error("recalculation after response change failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "response saved but recalculation failed")
		return
	}

	score, err := a.store.GetScoreResult(ctx, submissionID)
	if err != nil {
		zap.L().Error("score lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points_earned": pts,
		"score":         score,
	})
}

func (a *api) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := chi.URLParam(r, "id")
	questionID := chi.URLParam(r, "questionID")

	if _, err := a.store.GetSubmission(ctx, submissionID); err != nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	if err := a.store.DeleteResponse(ctx, submissionID, questionID); err != nil {
		zap.L().Error("delete response failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := a.bus.Publish(ctx, trigger.ResponseDeleted{Submission: submissionID, QuestionID: questionID}); err != nil {
		zap.L().Error("recalculation after response delete failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "response deleted but recalculation failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (a *api) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := chi.URLParam(r, "id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newStatus := model.SubmissionStatus(req.Status)
	switch newStatus {
	case model.SubmissionActive, model.SubmissionDisabled, model.SubmissionDeleted:
	default:
		writeError(w, http.StatusBadRequest, "status must be ACTIVE, DISABLED, or DELETED")
		return
	}

	sub, err := a.store.GetSubmission(ctx, submissionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	oldStatus := sub.Status

	if err := a.store.UpdateSubmissionStatus(ctx, submissionID, newStatus, req.Note); err != nil {
		zap.L().Error("status update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := a.bus.Publish(ctx, trigger.SubmissionStatusChanged{
		Submission: submissionID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
	}); err != nil {
		zap.L().Error("recalculation after status change failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"submission_id": submissionID,
		"status":        string(newStatus),
	})
}

type recalculateRequest struct {
	Force bool `json:"force"`
}

func (a *api) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recalculateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sv, err := a.store.GetSurveyByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusNotFound, "survey not found")
		return
	}

	result, err := a.bulk.RecalculateSurvey(ctx, sv.ID, trigger.BulkOptions{Force: req.Force})
	if err != nil {
		zap.L().Error("bulk recalculation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sv, err := a.store.GetSurveyByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusNotFound, "survey not found")
		return
	}

	dist, err := a.store.TierDistribution(ctx, sv.ID)
	if err != nil {
		zap.L().Error("tier distribution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"survey_id":    sv.ID,
		"distribution": dist,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake and scoring API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		a := newAPI(s, cfg.Server.RateLimit, cfg.Server.RateBurst)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: a.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
