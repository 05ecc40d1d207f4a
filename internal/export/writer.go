// Package export renders canonical incidents as clean CSV or XLSX tables.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/incidentetl/internal/domain"
)

// TimestampLayout is the layout used for timestamps in exported files.
const TimestampLayout = "2006-01-02 15:04:05"

// Format names an export file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name, defaulting to csv.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Write renders records in the given format.
func Write(w io.Writer, format Format, records []domain.Incident) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, records)
	default:
		return WriteCSV(w, records)
	}
}

// Header returns the canonical column names in store order.
func Header() []string {
	header := make([]string, len(domain.Fields))
	for i, f := range domain.Fields {
		header[i] = string(f)
	}
	return header
}

// Row renders one incident as cells; nulls become empty cells.
func Row(incident domain.Incident) []string {
	row := make([]string, len(domain.Fields))
	for i, f := range domain.Fields {
		switch {
		case f == domain.FieldNumber:
			row[i] = incident.Number
		case f.IsTimestamp():
			row[i] = formatTime(incident.Time(f))
		default:
			row[i] = formatText(incident.Text(f))
		}
	}
	return row
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []domain.Incident) error {
	buffered := bufio.NewWriter(w)
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := csvWriter.Write(Row(record)); err != nil {
			return fmt.Errorf("write incident row %s: %w", record.Number, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush buffered csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the same table as WriteCSV to a single-sheet workbook.
func WriteXLSX(w io.Writer, records []domain.Incident) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	if err := sw.SetRow("A1", toCells(Header())); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(Row(record))); err != nil {
			return fmt.Errorf("write incident row %s: %w", record.Number, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func formatText(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(TimestampLayout)
}
