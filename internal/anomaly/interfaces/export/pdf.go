package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	anomaly "coldstorage/internal/anomaly/domain"
)

const pdfSampleRows = 60

// BuildSensorPDF renders a one-sensor summary with its alerts and the most
// recent samples.
func BuildSensorPDF(r Report) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Cold Storage Sensor Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	counts := r.Counts()
	lines := []string{
		fmt.Sprintf("Sensor: %s", r.SensorID),
		fmt.Sprintf("Generated: %s", r.generatedAt().Format(time.RFC3339)),
		fmt.Sprintf("State: %s", r.Snapshot.State),
		fmt.Sprintf("Samples: %d", r.Snapshot.SampleCount),
		fmt.Sprintf("Delay: %s  Cycle: %s  Width: %s  Windows: %d", r.Config.Delay, r.Config.RobustCycle, r.Config.RobustWidth, r.Config.WindowCount()),
		fmt.Sprintf("MMAD: %.2f  Bound min value: %.2f  Storage max temp: %.2f", r.Config.MMAD, r.Config.BoundMinVal, r.MaxTemp),
		fmt.Sprintf("In band: %d  Above: %d  Below: %d  Insufficient history: %d",
			counts[anomaly.ClassInBand], counts[anomaly.ClassAbove], counts[anomaly.ClassBelow], counts[anomaly.ClassInsufficientHistory]),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Alerts")
	pdf.Ln(7)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Event", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Class", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Band", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, a := range r.Alerts {
		pdf.CellFormat(45, 6, a.SampleAt.UTC().Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, a.Type, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, string(a.Classification), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", a.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f .. %.2f", a.Lower, a.Upper), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	rows := r.Rows()
	if len(rows) > pdfSampleRows {
		rows = rows[len(rows)-pdfSampleRows:]
	}
	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Latest %d samples", len(rows)))
	pdf.Ln(7)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Lower", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Upper", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Class", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		pdf.CellFormat(45, 6, row.At.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", row.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", row.Bound.Lower), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", row.Bound.Upper), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, string(row.Classification), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
