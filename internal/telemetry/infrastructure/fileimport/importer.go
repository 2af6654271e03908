package fileimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	telemetry "coldstorage/internal/telemetry/domain"
)

const (
	columnTime        = "unix_time"
	columnTemperature = "temperature"
)

// ErrMissingColumns indicates a file without the unix_time and temperature columns.
var ErrMissingColumns = errors.New("fileimport: file should have columns 'temperature' and 'unix_time'")

// Importer reads recorded sensor data and turns it into events for one device.
type Importer struct {
	deviceID string
	logger   *log.Logger
}

// NewImporter constructs an importer. An empty device id uses the local file device.
func NewImporter(deviceID string, logger *log.Logger) *Importer {
	if deviceID == "" {
		deviceID = telemetry.LocalFileDevice
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{deviceID: deviceID, logger: logger}
}

// ImportFile reads a .csv or .xlsx file.
func (im *Importer) ImportFile(path string) ([]telemetry.Event, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return im.importWorkbook(f)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return im.ImportCSV(file)
	}
}

// ImportCSV reads comma separated rows with a header line.
func (im *Importer) ImportCSV(r io.Reader) ([]telemetry.Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("fileimport: read csv: %w", err)
	}
	return im.fromRows(rows)
}

// ImportXLSX reads the first sheet of a workbook.
func (im *Importer) ImportXLSX(r io.Reader) ([]telemetry.Event, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("fileimport: open workbook: %w", err)
	}
	defer f.Close()
	return im.importWorkbook(f)
}

func (im *Importer) importWorkbook(f *excelize.File) ([]telemetry.Event, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("fileimport: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("fileimport: read sheet %s: %w", sheets[0], err)
	}
	return im.fromRows(rows)
}

func (im *Importer) fromRows(rows [][]string) ([]telemetry.Event, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}
	timeCol, tempCol := -1, -1
	for i, name := range rows[0] {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case columnTime:
			timeCol = i
		case columnTemperature:
			tempCol = i
		}
	}
	if timeCol < 0 || tempCol < 0 {
		return nil, ErrMissingColumns
	}

	events := make([]telemetry.Event, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if timeCol >= len(row) || tempCol >= len(row) {
			im.logger.Printf("fileimport: row %d: missing fields", line)
			continue
		}
		ts, err := parseUnix(row[timeCol])
		if err != nil {
			im.logger.Printf("fileimport: row %d: invalid unix_time %q", line, row[timeCol])
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[tempCol]), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			im.logger.Printf("fileimport: row %d: invalid temperature %q", line, row[tempCol])
			continue
		}
		events = append(events, telemetry.Event{DeviceID: im.deviceID, Timestamp: ts, Value: value})
	}
	telemetry.SortEvents(events)
	return events, nil
}

// parseUnix accepts integer or fractional seconds; fractions are truncated.
func parseUnix(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return time.Time{}, fmt.Errorf("fileimport: invalid unix time %q", raw)
	}
	return time.Unix(int64(f), 0).UTC(), nil
}
