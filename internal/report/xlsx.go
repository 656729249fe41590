package report

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

var runsHeader = []string{
	"Run ID",
	"Case",
	"Status",
	"Success Rate",
	"Average Score",
	"Quality",
	"Duration (s)",
	"Created At",
}

// ExportRunsXLSX writes a run-history workbook with one row per run.
// Runs without a stored result leave the metric columns empty.
func ExportRunsXLSX(runs []model.Run, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "report: add runs sheet")
	}

	header := sheet.AddRow()
	for _, h := range runsHeader {
		header.AddCell().SetString(h)
	}

	for _, run := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(run.ID)
		row.AddCell().SetString(run.CaseName)
		row.AddCell().SetString(string(run.Status))

		if run.Result != nil {
			m := run.Result.Metrics
			row.AddCell().SetFloat(m.SuccessRate)
			row.AddCell().SetFloat(m.AverageScore)
			row.AddCell().SetString(m.PipelineQuality)
			row.AddCell().SetFloat(m.TotalDurationSeconds)
		} else {
			for i := 0; i < 4; i++ {
				row.AddCell()
			}
		}

		row.AddCell().SetString(run.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save runs workbook")
	}
	return nil
}
