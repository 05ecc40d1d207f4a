package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned for uploads without a single byte or row.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoHeader is returned when no non-blank header row exists.
	ErrNoHeader = errors.New("no header row detected")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// SourceRow is one raw data row as read from the upload. Values are aligned
// with Table.Headers, so duplicate header texts keep both cells.
type SourceRow struct {
	RowNumber int
	Values    []string
}

// Get returns the cell under the first header equal to name.
func (r SourceRow) Get(headers []string, name string) (string, bool) {
	for idx, header := range headers {
		if header == name && idx < len(r.Values) {
			return r.Values[idx], true
		}
	}
	return "", false
}

// Table is a parsed upload: original header texts plus data rows.
type Table struct {
	Headers []string
	Rows    []SourceRow
	// Substituted counts bytes that were not valid UTF-8 and were decoded as Windows-1252.
	Substituted int
}

// ReadTable parses an upload by file extension.
func ReadTable(fileName string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{}, ErrEmptyFile
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", "":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (Table, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	decoded, substituted := decodePermissive(payload)

	csvReader := csv.NewReader(strings.NewReader(decoded))
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	var records []rawRecord
	for {
		cells, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, rawRecord{line: line, cells: cells})
	}

	table, err := normalizeTable(records)
	if err != nil {
		return Table{}, err
	}
	table.Substituted = substituted
	return table, nil
}

// decodePermissive keeps valid UTF-8 as is and decodes every byte that is not
// part of a valid sequence as Windows-1252, so legacy exports never abort a read.
func decodePermissive(payload []byte) (string, int) {
	if utf8.Valid(payload) {
		return string(payload), 0
	}

	var b strings.Builder
	b.Grow(len(payload) + len(payload)/8)
	substituted := 0
	for len(payload) > 0 {
		r, size := utf8.DecodeRune(payload)
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(charmap.Windows1252.DecodeByte(payload[0]))
			substituted++
			payload = payload[1:]
			continue
		}
		b.Write(payload[:size])
		payload = payload[size:]
	}
	return b.String(), substituted
}

func parseExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	records := make([]rawRecord, len(rows))
	for i, cells := range rows {
		records[i] = rawRecord{line: i + 1, cells: cells}
	}
	return normalizeTable(records)
}

// rawRecord is a parsed record with its 1-based position in the source.
type rawRecord struct {
	line  int
	cells []string
}

// normalizeTable takes the first non-blank record as the header and pads or
// truncates every data row to the header width.
func normalizeTable(records []rawRecord) (Table, error) {
	if len(records) == 0 {
		return Table{}, ErrEmptyFile
	}

	var headerRow []string
	var rows []SourceRow
	for _, record := range records {
		if isBlankRow(record.cells) {
			continue
		}
		if headerRow == nil {
			headerRow = record.cells
			continue
		}
		rows = append(rows, SourceRow{RowNumber: record.line, Values: record.cells})
	}

	if headerRow == nil {
		return Table{}, ErrNoHeader
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = strings.TrimSpace(value)
	}

	for i := range rows {
		rows[i].Values = padRow(rows[i].Values, len(headers))
	}

	return Table{Headers: headers, Rows: rows}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
