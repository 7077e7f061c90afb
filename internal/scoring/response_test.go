package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/presales-cli/internal/model"
)

func singleChoiceQuestion() *model.Question {
	return &model.Question{
		ID:   "q-single",
		Type: model.QuestionSingleChoice,
		Options: []model.Option{
			{ID: "opt-good", Points: 10},
			{ID: "opt-mid", Points: 5},
			{ID: "opt-bad", Points: 0},
			{ID: "opt-penalty", Points: -5},
		},
	}
}

func multiChoiceQuestion(strategy model.ScoringStrategy) *model.Question {
	return &model.Question{
		ID:       "q-multi",
		Type:     model.QuestionMultipleChoice,
		Strategy: strategy,
		Options: []model.Option{
			{ID: "opt-a", Points: 3},
			{ID: "opt-b", Points: 4},
			{ID: "opt-c", Points: 2},
			{ID: "opt-none", Points: 5, IsExclusive: true},
		},
	}
}

func TestScoreResponse_SingleChoice(t *testing.T) {
	q := singleChoiceQuestion()

	pts, err := ScoreResponse(q, model.SingleChoice{OptionID: "opt-good"})
	require.NoError(t, err)
	assert.Equal(t, 10, pts)

	pts, err = ScoreResponse(q, model.SingleChoice{OptionID: "opt-penalty"})
	require.NoError(t, err)
	assert.Equal(t, -5, pts)
}

func TestScoreResponse_SingleChoiceUnknownOption(t *testing.T) {
	q := singleChoiceQuestion()

	_, err := ScoreResponse(q, model.SingleChoice{OptionID: "opt-missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown option")
}

func TestScoreResponse_TextAndEmailScoreZero(t *testing.T) {
	for _, typ := range []model.QuestionType{model.QuestionText, model.QuestionEmail} {
		q := &model.Question{ID: "q-text", Type: typ}
		pts, err := ScoreResponse(q, model.TextAnswer{Text: "hello"})
		require.NoError(t, err)
		assert.Zero(t, pts)
	}
}

func TestScoreResponse_SelectionTypeMismatch(t *testing.T) {
	q := singleChoiceQuestion()

	_, err := ScoreResponse(q, model.MultiChoice{OptionIDs: []string{"opt-good"}})
	require.Error(t, err)

	_, err = ScoreResponse(q, model.TextAnswer{Text: "x"})
	require.Error(t, err)

	_, err = ScoreResponse(q, nil)
	require.Error(t, err)
}

func TestScoreResponse_MultiChoiceSum(t *testing.T) {
	q := multiChoiceQuestion(model.StrategySum)

	pts, err := ScoreResponse(q, model.MultiChoice{OptionIDs: []string{"opt-a", "opt-b"}})
	require.NoError(t, err)
	assert.Equal(t, 7, pts)

	pts, err = ScoreResponse(q, model.MultiChoice{OptionIDs: nil})
	require.NoError(t, err)
	assert.Zero(t, pts)
}

func TestScoreResponse_ExclusiveOverridesOthers(t *testing.T) {
	q := multiChoiceQuestion(model.StrategySum)

	// opt-none is exclusive: the regular selections contribute nothing.
	pts, err := ScoreResponse(q, model.MultiChoice{OptionIDs: []string{"opt-a", "opt-b", "opt-none"}})
	require.NoError(t, err)
	assert.Equal(t, 5, pts)
}

func TestScoreResponse_ExclusiveOverridesInverseCount(t *testing.T) {
	q := multiChoiceQuestion(model.StrategyInverseCount)

	pts, err := ScoreResponse(q, model.MultiChoice{OptionIDs: []string{"opt-a", "opt-none"}})
	require.NoError(t, err)
	assert.Equal(t, 5, pts)
}

func TestScoreResponse_InverseCountTable(t *testing.T) {
	q := &model.Question{
		ID:       "q-risks",
		Type:     model.QuestionMultipleChoice,
		Strategy: model.StrategyInverseCount,
		Options: []model.Option{
			{ID: "r1"}, {ID: "r2"}, {ID: "r3"}, {ID: "r4"}, {ID: "r5"},
		},
	}

	cases := []struct {
		selected []string
		want     int
	}{
		{nil, 5},
		{[]string{"r1"}, 4},
		{[]string{"r1", "r2"}, 3},
		{[]string{"r1", "r2", "r3"}, 2},
		{[]string{"r1", "r2", "r3", "r4"}, 1},
		{[]string{"r1", "r2", "r3", "r4", "r5"}, 1},
	}
	for _, tc := range cases {
		pts, err := ScoreResponse(q, model.MultiChoice{OptionIDs: tc.selected})
		require.NoError(t, err)
		assert.Equal(t, tc.want, pts, "selected %d options", len(tc.selected))
	}
}

func TestScoreResponse_MultiChoiceUnknownOption(t *testing.T) {
	q := multiChoiceQuestion(model.StrategySum)

	_, err := ScoreResponse(q, model.MultiChoice{OptionIDs: []string{"opt-a", "opt-missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown option")
}
