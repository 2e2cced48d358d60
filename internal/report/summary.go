package report

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"caravel/internal/validation"
)

// maxSummaryIssues caps the issues listed per validator in the text table.
const maxSummaryIssues = 5

// Summary renders r as a plain-text table suitable for a mail body.
func Summary(r validation.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Validator", "Issues", "Details"})
	for _, name := range r.Validators() {
		issues := r.Issues(name)
		details := "passed"
		if len(issues) > 0 {
			shown := issues
			if len(shown) > maxSummaryIssues {
				shown = shown[:maxSummaryIssues]
			}
			details = strings.Join(shown, "\n")
			if extra := len(issues) - len(shown); extra > 0 {
				details += "\n… and " + strconv.Itoa(extra) + " more"
			}
		}
		tw.AppendRow(table.Row{name, strconv.Itoa(len(issues)), details})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, WidthMax: 100},
	})
	return tw.Render()
}
