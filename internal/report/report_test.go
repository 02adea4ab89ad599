package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rneatherway/gh-apitest/internal/request"
	"github.com/rneatherway/gh-apitest/internal/runner"
)

func sampleRun() Run {
	return Run{
		Name:     "users",
		RunID:    "0b1d2c3e-0000-4000-8000-000000000000",
		Started:  time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Duration: 750 * time.Millisecond,
		Cases: []runner.Case{
			{
				ID: 1, Name: "list", Request: request.New("GET", "https://api.test/users", "", ""),
				ExpectedStatus: 200, Status: runner.Passed, ActualStatus: 200,
				ActualBody: `{"users":[]}`, ResponseTime: 40 * time.Millisecond,
			},
			{
				ID: 2, Name: "create", Request: request.New("POST", "https://api.test/users", "Content-Type: application/json", "{}"),
				ExpectedStatus: 201, Status: runner.Failed, ActualStatus: 400,
				ResponseTime: 20 * time.Millisecond, Reason: "expected status 201 but received 400",
			},
			{
				ID: 3, Name: "report", Request: request.New("GET", "https://api.test/report", "", ""),
				Status: runner.Passed, ActualStatus: 200, ResponseTime: 900 * time.Millisecond,
			},
			{
				ID: 4, Name: "down", Request: request.New("GET", "http://down.test", "", ""),
				Status: runner.Failed, ActualStatus: -1, Error: "connection refused",
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun().Cases)
	assert.Equal(t, Summary{Total: 4, Passed: 2, Failed: 2, Slow: 1, ResponseTime: 960 * time.Millisecond}, s)
	assert.False(t, s.OK())

	assert.True(t, Summarize(nil).OK())
	assert.False(t, Summarize([]runner.Case{{ID: 1}}).OK())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleRun())

	out := buf.String()
	assert.Contains(t, out, "https://api.test/users")
	assert.Contains(t, out, "expected status 201 but received 400")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "12 B")
	assert.Contains(t, out, "4 cases, 2 passed, 2 failed in 750ms")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRun()))

	var got struct {
		RunID      string  `json:"run_id"`
		DurationMS int64   `json:"duration_ms"`
		Summary    Summary `json:"summary"`
		Cases      []struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
			Curl   string `json:"curl"`
			Error  string `json:"error"`
		} `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "0b1d2c3e-0000-4000-8000-000000000000", got.RunID)
	assert.EqualValues(t, 750, got.DurationMS)
	assert.Equal(t, 2, got.Summary.Failed)
	require.Len(t, got.Cases, 4)
	assert.Equal(t, "failed", got.Cases[1].Status)
	assert.Equal(t, "curl -X POST -H 'Content-Type: application/json' -d '{}' 'https://api.test/users'", got.Cases[1].Curl)
	assert.Equal(t, "connection refused", got.Cases[3].Error)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	run := sampleRun()

	sheet, err := WriteXLSX(path, run)
	require.NoError(t, err)
	assert.Equal(t, "Run 2024-03-01_12-30-00 0b1d2c", sheet)

	run.Started = run.Started.Add(time.Hour)
	second, err := WriteXLSX(path, run)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheet, second}, f.GetSheetList())

	v, err := f.GetCellValue(sheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "create", v)

	v, err = f.GetCellValue(sheet, "J2")
	require.NoError(t, err)
	assert.Equal(t, "passed", v)

	v, err = f.GetCellValue(sheet, "A7")
	require.NoError(t, err)
	assert.Equal(t, "Summary", v)

	passedStyle, err := f.GetCellStyle(sheet, "A2")
	require.NoError(t, err)
	failedStyle, err := f.GetCellStyle(sheet, "A3")
	require.NoError(t, err)
	slowStyle, err := f.GetCellStyle(sheet, "A4")
	require.NoError(t, err)
	assert.Zero(t, passedStyle)
	assert.NotZero(t, failedStyle)
	assert.NotZero(t, slowStyle)
	assert.NotEqual(t, failedStyle, slowStyle)
}

func TestWriteXLSXRunsInTheSameSecond(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	run := sampleRun()

	first, err := WriteXLSX(path, run)
	require.NoError(t, err)

	run.RunID = "77aa0000-0000-4000-8000-000000000000"
	second, err := WriteXLSX(path, run)
	require.NoError(t, err)

	third, err := WriteXLSX(path, run)
	require.NoError(t, err)

	run.RunID = ""
	fourth, err := WriteXLSX(path, run)
	require.NoError(t, err)

	assert.Equal(t, "Run 2024-03-01_12-30-00 77aa00", second)
	assert.Equal(t, "Run 2024-03-01_12-30-00 77aa00 2", third)
	assert.Equal(t, "Run 2024-03-01_12-30-00", fourth)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{first, second, third, fourth}, f.GetSheetList())
	for _, sheet := range f.GetSheetList() {
		assert.LessOrEqual(t, len(sheet), excelize.MaxSheetNameLength)
		v, err := f.GetCellValue(sheet, "B3")
		require.NoError(t, err)
		assert.Equal(t, "create", v)
	}
}
