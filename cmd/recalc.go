package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/presales-cli/internal/scoring"
	"github.com/sells-group/presales-cli/internal/trigger"
)

var (
	recalcForce       bool
	recalcConcurrency int
)

var recalcCmd = &cobra.Command{
	Use:   "recalc <survey-code>",
	Short: "Recalculate scores for every completed submission of a survey",
	Long: `Recomputes score results for all completed, active submissions of the
given survey. Without --force, submissions that already have a score are
skipped; with it, every score is recomputed (use after changing option
points or risk tier boundaries).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("recalc"); err != nil {
			return err
		}
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		sv, err := s.GetSurveyByCode(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "survey %s", args[0])
		}

		concurrency := recalcConcurrency
		if concurrency == 0 {
			concurrency = cfg.Scoring.RecalcConcurrency
		}

		bulk := trigger.NewBulkRecalculator(s, scoring.NewEngine(s))
		result, err := bulk.RecalculateSurvey(cmd.Context(), sv.ID, trigger.BulkOptions{
			Force:       recalcForce,
			Concurrency: concurrency,
			MaxBatch:    cfg.Scoring.MaxBatch,
		})
		if err != nil {
			return err
		}

		fmt.Printf("recalculated %d, skipped %d, failed %d of %d submissions in %s\n",
			result.Recalculated, result.Skipped, result.Failed, result.Total, result.Elapsed.Round(time.Millisecond))
		if result.Failed > 0 {
			return eris.Errorf("%d submissions failed to score", result.Failed)
		}
		return nil
	},
}

func init() {
	recalcCmd.Flags().BoolVar(&recalcForce, "force", false, "recompute submissions that already have a score")
	recalcCmd.Flags().IntVar(&recalcConcurrency, "concurrency", 0, "parallel scoring workers (default from config)")
	rootCmd.AddCommand(recalcCmd)
}
