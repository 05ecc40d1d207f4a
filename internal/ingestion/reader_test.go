package ingestion

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func TestReadTable_CSVStripsBOMAndTracksLines(t *testing.T) {
	data := "\xEF\xBB\xBFNumber,State\n\nINC001,Open\n,\nINC002\n"

	table, err := ReadTable("incident.csv", []byte(data))
	if err != nil {
		t.Fatalf("ReadTable returned error: %v", err)
	}

	if diff := cmp.Diff([]string{"Number", "State"}, table.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	want := []SourceRow{
		{RowNumber: 3, Values: []string{"INC001", "Open"}},
		{RowNumber: 5, Values: []string{"INC002", ""}},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if table.Substituted != 0 {
		t.Fatalf("expected no substitutions, got %d", table.Substituted)
	}
}

func TestReadTable_CSVDecodesWindows1252Bytes(t *testing.T) {
	data := []byte("Number,Affected User\nINC001,Jos\xe9 P\xe9rez\n")

	table, err := ReadTable("legacy.csv", data)
	if err != nil {
		t.Fatalf("ReadTable returned error: %v", err)
	}
	if table.Substituted != 2 {
		t.Fatalf("expected 2 substituted bytes, got %d", table.Substituted)
	}
	if got := table.Rows[0].Values[1]; got != "José Pérez" {
		t.Fatalf("unexpected decoded value %q", got)
	}
}

func TestReadTable_TruncatesLongRows(t *testing.T) {
	table, err := ReadTable("x.csv", []byte("Number\nINC001,extra\n"))
	if err != nil {
		t.Fatalf("ReadTable returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"INC001"}, table.Rows[0].Values); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_Errors(t *testing.T) {
	if _, err := ReadTable("incident.csv", nil); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
	if _, err := ReadTable("incident.json", []byte("{}")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := ReadTable("blank.csv", []byte(",,\n , \n")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}

func TestReadTable_XLSXFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Number", "State", "Created"}); err != nil {
		t.Fatalf("set header: %v", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &[]any{"INC001", "Open", "01-15-2024 10:00:00"}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	table, err := ReadTable("Incidents.XLSX", buf.Bytes())
	if err != nil {
		t.Fatalf("ReadTable returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Number", "State", "Created"}, table.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	if len(table.Rows) != 1 || table.Rows[0].RowNumber != 2 {
		t.Fatalf("unexpected rows: %+v", table.Rows)
	}
	if got, ok := table.Rows[0].Get(table.Headers, "Created"); !ok || got != "01-15-2024 10:00:00" {
		t.Fatalf("unexpected created cell %q", got)
	}
}
