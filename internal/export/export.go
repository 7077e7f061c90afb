// Package export renders score listings as text tables, CSV, and XLSX
// workbooks for handoff to the sales team.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/presales-cli/internal/model"
)

var header = []string{
	"Submission", "Prospect", "Email", "Survey",
	"Points", "Percentage", "Risk Tier", "Package", "Secondary", "Calculated",
}

func listingRow(l model.ScoreListing) []string {
	secondary := ""
	if l.SecondaryPkg != nil {
		secondary = string(*l.SecondaryPkg)
	}
	return []string{
		l.SubmissionID,
		l.ProspectName,
		l.ProspectEmail,
		l.SurveyTitle,
		strconv.Itoa(l.TotalPoints),
		fmt.Sprintf("%.2f", l.ScorePercentage),
		string(l.RiskTier),
		string(l.PrimaryPackage),
		secondary,
		l.CalculatedAt.Format("2006-01-02 15:04"),
	}
}

// WriteTable renders listings as an aligned text table.
func WriteTable(w io.Writer, listings []model.ScoreListing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROSPECT\tEMAIL\tSURVEY\tPOINTS\tPCT\tTIER\tPACKAGE")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%s\t%s\n",
			l.ProspectName, l.ProspectEmail, l.SurveyTitle,
			l.TotalPoints, l.ScorePercentage, l.RiskTier, l.PrimaryPackage,
		)
	}
	return eris.Wrap(tw.Flush(), "export: flush table")
}

// WriteCSV renders listings as CSV with a header row.
func WriteCSV(w io.Writer, listings []model.ScoreListing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range listings {
		if err := cw.Write(listingRow(l)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX renders listings as a single-sheet workbook at path.
func WriteXLSX(path string, listings []model.ScoreListing) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, l := range listings {
		row := sheet.AddRow()
		row.AddCell().SetString(l.SubmissionID)
		row.AddCell().SetString(l.ProspectName)
		row.AddCell().SetString(l.ProspectEmail)
		row.AddCell().SetString(l.SurveyTitle)
		row.AddCell().SetInt(l.TotalPoints)
		row.AddCell().SetFloatWithFormat(l.ScorePercentage, "0.00")
		row.AddCell().SetString(string(l.RiskTier))
		row.AddCell().SetString(string(l.PrimaryPackage))
		secondary := ""
		if l.SecondaryPkg != nil {
			secondary = string(*l.SecondaryPkg)
		}
		row.AddCell().SetString(secondary)
		row.AddCell().SetString(l.CalculatedAt.Format("2006-01-02 15:04"))
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// WriteDistribution renders a tier distribution as an aligned text table,
// in tier order from worst to best.
func WriteDistribution(w io.Writer, dist map[model.RiskTier]int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tCOUNT")
	for _, tier := range []model.RiskTier{
		model.TierCritical, model.TierHigh, model.TierModerate, model.TierGood, model.TierExcellent,
	} {
		fmt.Fprintf(tw, "%s\t%d\n", tier, dist[tier])
	}
	return eris.Wrap(tw.Flush(), "export: flush distribution")
}
