// Package loader reads survey definitions from YAML files and installs them
// into the store. Loading the same file twice is idempotent: surveys are
// keyed by code, sections and questions by their order.
package loader

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/presales-cli/internal/model"
	"github.com/sells-group/presales-cli/internal/scoring"
	"github.com/sells-group/presales-cli/internal/store"
)

// SurveyFile is the YAML schema for a survey definition.
type SurveyFile struct {
	Code       string         `yaml:"code"`
	Title      string         `yaml:"title"`
	Version    string         `yaml:"version"`
	MaxScore   int            `yaml:"max_score"`
	Featured   bool           `yaml:"featured"`
	RiskConfig *RiskConfigDef `yaml:"risk_config"`
	Packages   []PackageDef   `yaml:"packages"`
	Sections   []SectionDef   `yaml:"sections"`
}

type RiskConfigDef struct {
	CriticalMax float64 `yaml:"critical_max"`
	HighMax     float64 `yaml:"high_max"`
	ModerateMax float64 `yaml:"moderate_max"`
	GoodMax     float64 `yaml:"good_max"`
}

func (rc *RiskConfigDef) toModel(surveyID string) model.RiskTierConfig {
	return model.RiskTierConfig{
		SurveyID:    surveyID,
		CriticalMax: rc.CriticalMax,
		HighMax:     rc.HighMax,
		ModerateMax: rc.ModerateMax,
		GoodMax:     rc.GoodMax,
	}
}

type PackageDef struct {
	Tier      string `yaml:"tier"`
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

type SectionDef struct {
	Title     string        `yaml:"title"`
	MaxPoints int           `yaml:"max_points"`
	Questions []QuestionDef `yaml:"questions"`
}

type QuestionDef struct {
	Text      string      `yaml:"text"`
	Type      string      `yaml:"type"`
	Strategy  string      `yaml:"strategy"`
	Required  *bool       `yaml:"required"`
	MaxPoints int         `yaml:"max_points"`
	Options   []OptionDef `yaml:"options"`
}

type OptionDef struct {
	Text      string `yaml:"text"`
	Points    int    `yaml:"points"`
	Exclusive bool   `yaml:"exclusive"`
}

var validQuestionTypes = map[string]model.QuestionType{
	"single_choice":   model.QuestionSingleChoice,
	"multiple_choice": model.QuestionMultipleChoice,
	"text":            model.QuestionText,
	"email":           model.QuestionEmail,
}

var validTiers = map[string]model.RiskTier{
	"CRITICAL":  model.TierCritical,
	"HIGH":      model.TierHigh,
	"MODERATE":  model.TierModerate,
	"GOOD":      model.TierGood,
	"EXCELLENT": model.TierExcellent,
}

var validPackages = map[string]model.Package{
	"ESSENTIAL":   model.PackageEssential,
	"PROACTIVE":   model.PackageProactive,
	"INTEGRAL":    model.PackageIntegral,
	"MAINTENANCE": model.PackageMaintenance,
}

// Parse reads and validates a survey definition file.
func Parse(path string) (*SurveyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}
	var sf SurveyFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, eris.Wrapf(err, "loader: parse %s", path)
	}
	if err := sf.validate(); err != nil {
		return nil, eris.Wrapf(err, "loader: validate %s", path)
	}
	return &sf, nil
}

func (sf *SurveyFile) validate() error {
	var errs []string

	if sf.Code == "" {
		errs = append(errs, "code is required")
	}
	if sf.Title == "" {
		errs = append(errs, "title is required")
	}
	if sf.MaxScore <= 0 {
		errs = append(errs, "max_score must be > 0")
	}
	if len(sf.Sections) == 0 {
		errs = append(errs, "at least one section is required")
	}
	if sf.RiskConfig != nil {
		if err := scoring.ValidateRiskTierConfig(sf.RiskConfig.toModel("")); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for _, p := range sf.Packages {
		if _, ok := validTiers[p.Tier]; !ok {
			errs = append(errs, "unknown risk tier: "+p.Tier)
		}
		if _, ok := validPackages[p.Primary]; !ok {
			errs = append(errs, "unknown package: "+p.Primary)
		}
		if p.Secondary != "" {
			if _, ok := validPackages[p.Secondary]; !ok {
				errs = append(errs, "unknown package: "+p.Secondary)
			}
		}
	}
	for _, sec := range sf.Sections {
		if sec.Title == "" {
			errs = append(errs, "section title is required")
		}
		if len(sec.Questions) == 0 {
			errs = append(errs, "section "+sec.Title+" has no questions")
		}
		for _, q := range sec.Questions {
			qt, ok := validQuestionTypes[q.Type]
			if !ok {
				errs = append(errs, "unknown question type: "+q.Type)
				continue
			}
			if q.Strategy != "" && q.Strategy != string(model.StrategySum) && q.Strategy != string(model.StrategyInverseCount) {
				errs = append(errs, "unknown scoring strategy: "+q.Strategy)
			}
			choice := qt == model.QuestionSingleChoice || qt == model.QuestionMultipleChoice
			if choice && len(q.Options) == 0 {
				errs = append(errs, "choice question has no options")
			}
			if !choice && len(q.Options) > 0 {
				errs = append(errs, "non-choice question has options")
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("invalid survey definition:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Load parses the file and upserts the survey, its schema, risk configuration,
// and package recommendations in one transaction. It returns the stored survey.
func Load(ctx context.Context, s store.Store, path string) (*model.Survey, error) {
	sf, err := Parse(path)
	if err != nil {
		return nil, err
	}

	version := sf.Version
	if version == "" {
		version = "1.0"
	}

	var sv *model.Survey
	err = s.Atomically(ctx, func(tx store.Store) error {
		sv = &model.Survey{
			Code:       sf.Code,
			Title:      sf.Title,
			Version:    version,
			MaxScore:   sf.MaxScore,
			IsActive:   true,
			IsFeatured: sf.Featured,
		}
		if err := tx.UpsertSurvey(ctx, sv); err != nil {
			return err
		}
		// Upsert by code may keep an existing id; re-read for the real one.
		stored, err := tx.GetSurveyByCode(ctx, sf.Code)
		if err != nil {
			return err
		}
		sv = stored

		if sf.RiskConfig != nil {
			cfg := sf.RiskConfig.toModel(sv.ID)
			if err := tx.UpsertRiskConfig(ctx, &cfg); err != nil {
				return err
			}
		}

		for _, p := range sf.Packages {
			rec := &model.PackageRecommendation{
				SurveyID: sv.ID,
				RiskTier: validTiers[p.Tier],
				Primary:  validPackages[p.Primary],
			}
			if p.Secondary != "" {
				sec := validPackages[p.Secondary]
				rec.Secondary = &sec
			}
			if err := tx.UpsertPackageRecommendation(ctx, rec); err != nil {
				return err
			}
		}

		for si, secDef := range sf.Sections {
			sec := &model.Section{
				SurveyID:  sv.ID,
				Title:     secDef.Title,
				Order:     si + 1,
				MaxPoints: secDef.MaxPoints,
			}
			if err := tx.UpsertSection(ctx, sec); err != nil {
				return err
			}
			existing, err := tx.SectionsFor(ctx, sv.ID)
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e.Order == sec.Order {
					sec.ID = e.ID
				}
			}

			for qi, qDef := range secDef.Questions {
				strategy := model.ScoringStrategy(qDef.Strategy)
				if strategy == "" {
					strategy = model.StrategySum
				}
				required := true
				if qDef.Required != nil {
					required = *qDef.Required
				}
				q := &model.Question{
					SurveyID:  sv.ID,
					SectionID: sec.ID,
					Text:      qDef.Text,
					Type:      validQuestionTypes[qDef.Type],
					Order:     qi + 1,
					Required:  required,
					Active:    true,
					MaxPoints: qDef.MaxPoints,
					Strategy:  strategy,
				}
				if err := tx.UpsertQuestion(ctx, q); err != nil {
					return err
				}
				qID, err := questionIDByOrder(ctx, tx, sv.ID, sec.ID, q.Order)
				if err != nil {
					return err
				}

				for oi, oDef := range qDef.Options {
					o := &model.Option{
						QuestionID:  qID,
						Text:        oDef.Text,
						Order:       oi + 1,
						Points:      oDef.Points,
						IsExclusive: oDef.Exclusive,
						Active:      true,
					}
					if err := tx.UpsertOption(ctx, o); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: install survey %s", sf.Code)
	}

	zap.L().Info("survey loaded",
		zap.String("code", sv.Code),
		zap.String("survey_id", sv.ID),
		zap.Int("sections", len(sf.Sections)),
	)
	return sv, nil
}

// questionIDByOrder resolves the stored question id after an upsert that may
// have kept a pre-existing row.
func questionIDByOrder(ctx context.Context, tx store.Store, surveyID, sectionID string, order int) (string, error) {
	questions, err := tx.QuestionsFor(ctx, surveyID, false)
	if err != nil {
		return "", err
	}
	for _, q := range questions {
		if q.SectionID == sectionID && q.Order == order {
			return q.ID, nil
		}
	}
	return "", eris.Errorf("question %d of section %s not found after upsert", order, sectionID)
}
