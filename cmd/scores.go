package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/presales-cli/internal/export"
)

var (
	scoresFormat string
	scoresOutput string
)

var scoresCmd = &cobra.Command{
	Use:   "scores [survey-code]",
	Short: "List score results, optionally exporting to CSV or XLSX",
	Long: `Lists score results for active submissions, newest first. With a survey
code only that survey's scores are shown. Use --format csv or --format xlsx
with --output to export for the sales team.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		surveyID := ""
		if len(args) == 1 {
			sv, err := s.GetSurveyByCode(cmd.Context(), args[0])
			if err != nil {
				return eris.Wrapf(err, "survey %s", args[0])
			}
			surveyID = sv.ID
		}

		listings, err := s.ListScores(cmd.Context(), surveyID)
		if err != nil {
			return err
		}

		switch scoresFormat {
		case "table":
			return export.WriteTable(os.Stdout, listings)
		case "csv":
			out := os.Stdout
			if scoresOutput != "" {
				f, err := os.Create(scoresOutput)
				if err != nil {
					return eris.Wrapf(err, "create %s", scoresOutput)
				}
				defer f.Close()
				out = f
			}
			return export.WriteCSV(out, listings)
		case "xlsx":
			if scoresOutput == "" {
				return eris.New("--output is required with --format xlsx")
			}
			return export.WriteXLSX(scoresOutput, listings)
		default:
			return eris.Errorf("unknown format: %s", scoresFormat)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <survey-code>",
	Short: "Show the risk tier distribution for a survey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
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

		dist, err := s.TierDistribution(cmd.Context(), sv.ID)
		if err != nil {
			return err
		}
		return export.WriteDistribution(os.Stdout, dist)
	},
}

func init() {
	scoresCmd.Flags().StringVar(&scoresFormat, "format", "table", "output format: table, csv, xlsx")
	scoresCmd.Flags().StringVar(&scoresOutput, "output", "", "output file path")
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(statsCmd)
}
