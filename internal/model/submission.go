package model

import "time"

// SubmissionStatus controls whether a submission participates in scoring and
// statistics. DISABLED and DELETED submissions are kept for audit.
type SubmissionStatus string

const (
	SubmissionActive   SubmissionStatus = "ACTIVE"
	SubmissionDisabled SubmissionStatus = "DISABLED"
	SubmissionDeleted  SubmissionStatus = "DELETED"
)

// ProspectStatus tracks a prospect through the sales pipeline.
type ProspectStatus string

const (
	ProspectLead      ProspectStatus = "LEAD"
	ProspectQualified ProspectStatus = "QUALIFIED"
)

// Prospect is a potential customer. Email is the unique identifier: repeat
// submissions with the same email update the existing record.
type Prospect struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	CompanyName string         `json:"company_name,omitempty"`
	Status      ProspectStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Submission is one prospect's attempt at a survey. CompletedAt being set is
// the sole "finished" signal.
type Submission struct {
	ID          string           `json:"id"`
	ProspectID  string           `json:"prospect_id"`
	SurveyID    string           `json:"survey_id"`
	Status      SubmissionStatus `json:"status"`
	AdminNotes  string           `json:"admin_notes,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	IPAddress   string           `json:"ip_address,omitempty"`
}

// IsCompleted reports whether the submission is finished.
func (s *Submission) IsCompleted() bool {
	return s.CompletedAt != nil
}

// Selection is the answer payload of a response. Exactly one variant applies
// per question type, which rules out invalid combinations such as a text
// response carrying a selected option.
type Selection interface {
	isSelection()
}

// SingleChoice is the selection for a single-choice question.
type SingleChoice struct {
	OptionID string `json:"option_id"`
}

// MultiChoice is the selection for a multiple-choice question.
type MultiChoice struct {
	OptionIDs []string `json:"option_ids"`
}

// TextAnswer is the selection for text and email questions. It never
// contributes points.
type TextAnswer struct {
	Text string `json:"text"`
}

func (SingleChoice) isSelection() {}
func (MultiChoice) isSelection()  {}
func (TextAnswer) isSelection()   {}

// Response is one answer within a submission. The (submission, question) pair
// is unique. PointsEarned is derived from the selection and persisted; it is
// recomputed whenever the selection changes and is the single source of truth
// for per-question points when the submission is scored.
type Response struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	QuestionID   string    `json:"question_id"`
	Selection    Selection `json:"selection"`
	PointsEarned int       `json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
