package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tremor/pkg/contracts/domain"
)

func sampleResult() domain.CausalTestResult {
	pre := -0.001
	post := 0.032
	passed := true
	return domain.CausalTestResult{
		ID:             "r-42",
		TransformID:    "t-1",
		TargetNode:     "sp500_ret",
		PreWindowDays:  5,
		PostWindowDays: 5,
		GapDays:        1,
		NumEvents:      8,
		NumEventsUsed:  7,
		Regression: domain.RegressionResult{
			Coefficient: 0.048,
			StdError:    0.006,
			TStatistic:  8.0,
			PValue:      0.0002,
			RSquared:    0.51,
		},
		PlaceboPreDrift: domain.PlaceboResult{Passed: &passed},
		IsCausal:        true,
		ConfidenceLevel: domain.ConfidenceHigh,
		EventDetails: []domain.EventStudyDetail{
			{
				EventID:          "e-1",
				EventTimestamp:   time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
				SurpriseValue:    0.25,
				PreWindowReturn:  &pre,
				PostWindowReturn: &post,
			},
			{
				EventID:         "e-2",
				EventTimestamp:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
				Excluded:        true,
				ExclusionReason: "no tradable price near boundary",
			},
		},
		CreatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWriteWorkbook(t *testing.T) {
	exp := NewStudyExporter(t.TempDir())
	var buf bytes.Buffer
	transform := domain.SignalTransform{Name: "fomc_rate_surprise"}

	require.NoError(t, exp.WriteWorkbook(sampleResult(), transform, &buf))
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Summary")
	assert.Contains(t, sheets, "Events")
	assert.NotContains(t, sheets, "Sheet1")

	name, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "fomc_rate_surprise", name)

	eventID, err := f.GetCellValue("Events", "A2")
	require.NoError(t, err)
	assert.Equal(t, "e-1", eventID)

	reason, err := f.GetCellValue("Events", "G3")
	require.NoError(t, err)
	assert.Equal(t, "no tradable price near boundary", reason)
}

func TestExportEventDetailsCSV(t *testing.T) {
	dir := t.TempDir()
	exp := NewStudyExporter(dir)

	fileName, err := exp.ExportEventDetailsCSV(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "study_r-42_events.csv", fileName)

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "\xef\xbb\xbf"), "expected UTF-8 BOM")
	assert.Contains(t, content, "event_id,timestamp,surprise")
	assert.Contains(t, content, "e-1,2024-03-20,0.25")
	assert.Contains(t, content, "e-2,2024-05-01,0,,,true,no tradable price near boundary")
}
