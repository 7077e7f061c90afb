package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionIsCompleted(t *testing.T) {
	sub := Submission{Status: SubmissionActive}
	assert.False(t, sub.IsCompleted())

	now := time.Now().UTC()
	sub.CompletedAt = &now
	assert.True(t, sub.IsCompleted())
}

func TestSelectionVariants(t *testing.T) {
	// compile-time check that all variants satisfy Selection
	var selections = []Selection{
		SingleChoice{OptionID: "opt-1"},
		MultiChoice{OptionIDs: []string{"opt-1", "opt-2"}},
		TextAnswer{Text: "hello"},
	}
	assert.Len(t, selections, 3)
}

func TestOptionByID(t *testing.T) {
	q := Question{
		Options: []Option{
			{ID: "a", Points: 5},
			{ID: "b", Points: 10},
		},
	}

	opt := q.OptionByID("b")
	if assert.NotNil(t, opt) {
		assert.Equal(t, 10, opt.Points)
	}
	assert.Nil(t, q.OptionByID("missing"))
}

func TestDefaultRiskTierConfig(t *testing.T) {
	cfg := DefaultRiskTierConfig("survey-1")

	assert.Equal(t, "survey-1", cfg.SurveyID)
	assert.Equal(t, 20.0, cfg.CriticalMax)
	assert.Equal(t, 40.0, cfg.HighMax)
	assert.Equal(t, 60.0, cfg.ModerateMax)
	assert.Equal(t, 80.0, cfg.GoodMax)
}
