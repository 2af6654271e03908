package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	anomaly "coldstorage/internal/anomaly/domain"
)

// BuildSensorXLSX renders the sensor report workbook.
func BuildSensorXLSX(r Report) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	samplesSheet := "samples"
	robustSheet := "robust"
	alertsSheet := "alerts"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{samplesSheet, robustSheet, alertsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	counts := r.Counts()
	summary := [][]any{
		{"Cold Storage Sensor Report"},
		{},
		{"Sensor", r.SensorID},
		{"Generated", r.generatedAt().Format(time.RFC3339)},
		{"State", r.Snapshot.State},
		{"Samples", r.Snapshot.SampleCount},
		{"Delay", r.Config.Delay.String()},
		{"Robust Cycle", r.Config.RobustCycle.String()},
		{"Robust Width", r.Config.RobustWidth.String()},
		{"Bound Windows", r.Config.WindowCount()},
		{"MMAD", r.Config.MMAD},
		{"Bound Min Value", r.Config.BoundMinVal},
		{"Storage Max Temp", r.MaxTemp},
		{"In Band", counts[anomaly.ClassInBand]},
		{"Above", counts[anomaly.ClassAbove]},
		{"Below", counts[anomaly.ClassBelow]},
		{"Insufficient History", counts[anomaly.ClassInsufficientHistory]},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}

	header := []any{"Time", "Unix", "Temperature", "Bound Time", "Upper", "Lower", "Level", "Classification"}
	if err := f.SetSheetRow(samplesSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range r.Rows() {
		values := []any{
			row.At.Format(time.RFC3339),
			row.At.Unix(),
			row.Value,
			unixTime(row.Bound.TS).Format(time.RFC3339),
			row.Bound.Upper,
			row.Bound.Lower,
			row.Bound.Level,
			string(row.Classification),
		}
		if err := f.SetSheetRow(samplesSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return nil, err
		}
	}

	robustHeader := []any{"Time", "Max Deviation", "Min Deviation", "MAD"}
	if err := f.SetSheetRow(robustSheet, "A1", &robustHeader); err != nil {
		return nil, err
	}
	for i, s := range r.Snapshot.Robust {
		values := []any{unixTime(s.TS).Format(time.RFC3339), s.MaxDeviation, s.MinDeviation, s.MAD}
		if err := f.SetSheetRow(robustSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return nil, err
		}
	}

	alertHeader := []any{"Created", "Event", "Classification", "Value", "Upper", "Lower", "Over Limit"}
	if err := f.SetSheetRow(alertsSheet, "A1", &alertHeader); err != nil {
		return nil, err
	}
	for i, a := range r.Alerts {
		values := []any{a.SampleAt.UTC().Format(time.RFC3339), a.Type, string(a.Classification), a.Value, a.Upper, a.Lower, a.OverLimit}
		if err := f.SetSheetRow(alertsSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
