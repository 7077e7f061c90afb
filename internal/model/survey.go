// Package model defines the survey schema, submission, and scoring entities.
package model

import "time"

// QuestionType identifies how a question is answered and scored.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionText           QuestionType = "text"
	QuestionEmail          QuestionType = "email"
)

// ScoringStrategy selects the multiple-choice scoring rule for a question.
type ScoringStrategy string

const (
	// StrategySum awards the sum of the selected options' points.
	StrategySum ScoringStrategy = "sum"

	// StrategyInverseCount awards points from a fixed table keyed by how few
	// options were selected (fewer selections score higher). Used for
	// exposure-style questions such as "what sensitive data do you handle".
	StrategyInverseCount ScoringStrategy = "inverse_count"
)

// Survey is a versioned diagnostic questionnaire.
type Survey struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"` // unique, used in URLs
	Title      string    `json:"title"`
	Version    string    `json:"version"`
	MaxScore   int       `json:"max_score"` // ceiling for percentage normalization
	IsActive   bool      `json:"is_active"`
	IsFeatured bool      `json:"is_featured"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Section groups questions within a survey. Order is unique per survey.
type Section struct {
	ID        string `json:"id"`
	SurveyID  string `json:"survey_id"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	MaxPoints int    `json:"max_points"` // informational sub-ceiling for section breakdown
}

// Question is a single survey question. MaxPoints is informational; actual
// points always come from the selected options.
type Question struct {
	ID        string          `json:"id"`
	SurveyID  string          `json:"survey_id"`
	SectionID string          `json:"section_id"`
	Text      string          `json:"text"`
	Type      QuestionType    `json:"type"`
	Order     int             `json:"order"` // unique within section
	Required  bool            `json:"required"`
	Active    bool            `json:"active"`
	MaxPoints int             `json:"max_points"`
	Strategy  ScoringStrategy `json:"strategy"`
	Options   []Option        `json:"options,omitempty"`
}

// Option is an answer choice. Points may be negative to penalize undesirable
// answers. An exclusive option suppresses all other selections when scoring.
type Option struct {
	ID          string `json:"id"`
	QuestionID  string `json:"question_id"`
	Text        string `json:"text"`
	Order       int    `json:"order"`
	Points      int    `json:"points"`
	IsExclusive bool   `json:"is_exclusive"`
	Active      bool   `json:"active"`
}

// OptionByID returns the option with the given id, or nil.
func (q *Question) OptionByID(id string) *Option {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}
