package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"tremor/pkg/contracts/domain"
)

// StudyExporter renders one causal test result as an xlsx workbook or a
// flat CSV of its per-event details.
type StudyExporter struct {
	csvWriter *CSVWriter
}

// NewStudyExporter creates a study exporter writing under baseDir.
func NewStudyExporter(baseDir string) *StudyExporter {
	return &StudyExporter{csvWriter: NewCSVWriter(baseDir)}
}

const (
	sheetSummary = "Summary"
	sheetEvents  = "Events"
)

// WriteWorkbook streams an xlsx workbook for the result to w.
func (e *StudyExporter) WriteWorkbook(result domain.CausalTestResult, transform domain.SignalTransform, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := buildSummarySheet(f, result, transform); err != nil {
		return err
	}
	if err := buildEventsSheet(f, result); err != nil {
		return err
	}

	// Drop the default sheet and promote Summary.
	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func buildSummarySheet(f *excelize.File, result domain.CausalTestResult, transform domain.SignalTransform) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}

	rows := [][]any{
		{"Result ID", result.ID},
		{"Transform", transform.Name},
		{"Target node", result.TargetNode},
		{"Run at", result.CreatedAt.Format(time.RFC3339)},
		{},
		{"Pre window (days)", result.PreWindowDays},
		{"Post window (days)", result.PostWindowDays},
		{"Gap (days)", result.GapDays},
		{},
		{"Events total", result.NumEvents},
		{"Events used", result.NumEventsUsed},
		{"Events excluded", result.NumEventsExcluded},
		{},
		{"Coefficient", result.Regression.Coefficient},
		{"Std error (HC1)", result.Regression.StdError},
		{"t statistic", result.Regression.TStatistic},
		{"p-value", result.Regression.PValue},
		{"R squared", result.Regression.RSquared},
		{"95% CI lower", result.Regression.ConfIntervalLower},
		{"95% CI upper", result.Regression.ConfIntervalUpper},
		{},
		{"Pre-drift placebo", placeboCell(result.PlaceboPreDrift)},
		{"Zero-surprise placebo", placeboCell(result.PlaceboZeroSurprise)},
		{},
		{"Causal", result.IsCausal},
		{"Confidence", string(result.ConfidenceLevel)},
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("addressing summary row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return fmt.Errorf("writing summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func buildEventsSheet(f *excelize.File, result domain.CausalTestResult) error {
	if _, err := f.NewSheet(sheetEvents); err != nil {
		return fmt.Errorf("creating events sheet: %w", err)
	}

	header := []any{"Event ID", "Timestamp", "Surprise", "Pre return", "Post return", "Excluded", "Exclusion reason"}
	if err := f.SetSheetRow(sheetEvents, "A1", &header); err != nil {
		return fmt.Errorf("writing events header: %w", err)
	}

	for i, detail := range result.EventDetails {
		row := []any{
			detail.EventID,
			detail.EventTimestamp.Format("2006-01-02"),
			detail.SurpriseValue,
			optionalCell(detail.PreWindowReturn),
			optionalCell(detail.PostWindowReturn),
			detail.Excluded,
			detail.ExclusionReason,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing event row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheetEvents, cell, &row); err != nil {
			return fmt.Errorf("writing event row %d: %w", i+2, err)
		}
	}
	return nil
}

// ExportEventDetailsCSV writes the per-event breakdown as a CSV file and
// returns its name.
func (e *StudyExporter) ExportEventDetailsCSV(result domain.CausalTestResult) (string, error) {
	records := make([][]string, 0, len(result.EventDetails))
	for _, detail := range result.EventDetails {
		records = append(records, []string{
			detail.EventID,
			detail.EventTimestamp.Format("2006-01-02"),
			formatFloat(detail.SurpriseValue),
			formatOptional(detail.PreWindowReturn),
			formatOptional(detail.PostWindowReturn),
			formatBool(detail.Excluded),
			detail.ExclusionReason,
		})
	}

	fileName := fmt.Sprintf("study_%s_events.csv", result.ID)
	err := e.csvWriter.WriteCSV(fileName, WriteOptions{
		Headers:   []string{"event_id", "timestamp", "surprise", "pre_return", "post_return", "excluded", "exclusion_reason"},
		Records:   records,
		BOMPrefix: true,
	})
	if err != nil {
		return "", err
	}
	return fileName, nil
}

func placeboCell(p domain.PlaceboResult) string {
	if !p.Available() {
		return "inconclusive"
	}
	if *p.Passed {
		return "passed"
	}
	return "failed"
}

func optionalCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
