package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tikun-labs/sefirot-cli/internal/model"
)

// ExportRunsCSV writes run history as CSV with the same columns as the
// workbook export. Runs without a stored result leave the metric columns
// empty.
func ExportRunsCSV(runs []model.Run, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create runs csv")
	}

	w := csv.NewWriter(f)
	if err := w.Write(runsHeader); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "report: write csv header")
	}

	for _, run := range runs {
		rec := []string{run.ID, run.CaseName, string(run.Status), "", "", "", "", run.CreatedAt.UTC().Format(time.RFC3339)}
		if run.Result != nil {
			m := run.Result.Metrics
			rec[3] = strconv.FormatFloat(m.SuccessRate, 'f', -1, 64)
			rec[4] = strconv.FormatFloat(m.AverageScore, 'f', -1, 64)
			rec[5] = m.PipelineQuality
			rec[6] = strconv.FormatFloat(m.TotalDurationSeconds, 'f', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrap(err, "report: write csv row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "report: flush csv")
	}
	return eris.Wrap(f.Close(), "report: close runs csv")
}
