package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/presales-cli/internal/loader"
)

var loadCmd = &cobra.Command{
	Use:   "load <survey.yaml>...",
	Short: "Install survey definitions from YAML files",
	Long: `Parses survey definition files and installs them into the store.
Loading the same file again updates the survey in place: surveys are keyed
by code, sections and questions by their order.

Example definition:

  code: it-health
  title: IT Health Check
  max_score: 100
  sections:
    - title: Infrastructure
      max_points: 20
      questions:
        - text: How often do you test backups?
          type: single_choice
          max_points: 20
          options:
            - {text: Monthly, points: 20}
            - {text: Never, points: 0}`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		s, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		for _, path := range args {
			sv, err := loader.Load(cmd.Context(), s, path)
			if err != nil {
				return err
			}
			fmt.Printf("loaded %s (%s)\n", sv.Code, sv.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
