package scoring

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/presales-cli/internal/model"
)

// inverseCountPoints maps the number of non-exclusive selections to points for
// inverse-count questions. Fewer selections mean less exposure and score
// higher; four or more selections floor at 1.
var inverseCountPoints = map[int]int{
	0: 5,
	1: 4,
	2: 3,
	3: 2,
}

const inverseCountFloor = 1

// ScoreResponse computes the points earned for one response. It must be
// invoked every time a response's selection changes, before the submission is
// (re)scored.
//
// Rules by question type:
//   - single choice: the selected option's points (may be negative);
//   - text/email: always 0;
//   - multiple choice: if any selected option is exclusive, only exclusive
//     selections count; otherwise inverse-count questions score from a fixed
//     table by selection count, and all other questions sum the selected
//     options' points.
func ScoreResponse(q *model.Question, sel model.Selection) (int, error) {
	switch s := sel.(type) {
	case model.SingleChoice:
		if q.Type != model.QuestionSingleChoice {
			return 0, eris.Errorf("scoring: single-choice selection for %s question %s", q.Type, q.ID)
		}
		opt := q.OptionByID(s.OptionID)
		if opt == nil {
			return 0, eris.Errorf("scoring: unknown option %s for question %s", s.OptionID, q.ID)
		}
		return opt.Points, nil

	case model.MultiChoice:
		if q.Type != model.QuestionMultipleChoice {
			return 0, eris.Errorf("scoring: multi-choice selection for %s question %s", q.Type, q.ID)
		}
		return scoreMultiChoice(q, s.OptionIDs)

	case model.TextAnswer:
		if q.Type != model.QuestionText && q.Type != model.QuestionEmail {
			return 0, eris.Errorf("scoring: text selection for %s question %s", q.Type, q.ID)
		}
		return 0, nil

	default:
		return 0, eris.Errorf("scoring: nil selection for question %s", q.ID)
	}
}

func scoreMultiChoice(q *model.Question, optionIDs []string) (int, error) {
	var exclusive, regular []*model.Option
	for _, id := range optionIDs {
		opt := q.OptionByID(id)
		if opt == nil {
			return 0, eris.Errorf("scoring: unknown option %s for question %s", id, q.ID)
		}
		if opt.IsExclusive {
			exclusive = append(exclusive, opt)
		} else {
			regular = append(regular, opt)
		}
	}

	// An exclusive selection (e.g. "we handle no sensitive data") overrides
	// everything else in the response.
	if len(exclusive) > 0 {
		total := 0
		for _, opt := range exclusive {
			total += opt.Points
		}
		return total, nil
	}

	if q.Strategy == model.StrategyInverseCount {
		if pts, ok := inverseCountPoints[len(regular)]; ok {
			return pts, nil
		}
		return inverseCountFloor, nil
	}

	total := 0
	for _, opt := range regular {
		total += opt.Points
	}
	return total, nil
}
