package sampler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestSampleCSVPreview(t *testing.T) {
	data := []byte("order_date,item,qty\n2024-01-01,latte,3\n2024-01-01,mocha,5\n\n2024-01-02,latte,4\n2024-01-02,mocha,2\n")

	table, err := Sample(data, "sales.csv", "text/csv", PreviewRows)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if got, want := table.Columns, []string{"order_date", "item", "qty"}; !equalStrings(got, want) {
		t.Fatalf("columns: want=%v got=%v", want, got)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("preview rows: want=3 got=%d", len(table.Rows))
	}
	if table.TotalRows != 4 {
		t.Fatalf("total rows: want=4 got=%d", table.TotalRows)
	}
	if table.Value(1, "item") != "mocha" {
		t.Fatalf("row 1 item: got=%q", table.Value(1, "item"))
	}
	if table.Format != FormatCSV {
		t.Fatalf("format: want=csv got=%s", table.Format)
	}
}

func TestSampleCSVUnboundedPadsShortRows(t *testing.T) {
	data := []byte("\ufeffdate,sales,menu\n2024-01-01,10\n")

	table, err := Sample(data, "s.csv", "", 0)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if table.Columns[0] != "date" {
		t.Fatalf("header not cleaned: %q", table.Columns[0])
	}
	if v, ok := table.Rows[0]["menu"]; !ok || v != "" {
		t.Fatalf("short row not padded: %#v", table.Rows[0])
	}
}

func TestSampleDeduplicatesHeaders(t *testing.T) {
	table, err := Sample([]byte("a,a,,b\n1,2,3,4\n"), "x.csv", "", 0)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	want := []string{"a", "a.1", "Unnamed: 2", "b"}
	if !equalStrings(table.Columns, want) {
		t.Fatalf("columns: want=%v got=%v", want, table.Columns)
	}
}

func TestSampleErrors(t *testing.T) {
	cases := []struct {
		name        string
		data        []byte
		filename    string
		contentType string
		want        error
	}{
		{name: "pdf extension", data: []byte("%PDF"), filename: "report.pdf", want: ErrUnsupportedFormat},
		{name: "unknown content type", data: []byte("a,b"), filename: "blob", contentType: "application/json", want: ErrUnsupportedFormat},
		{name: "empty csv", data: []byte(""), filename: "e.csv", want: ErrEmptyFile},
		{name: "blank header", data: []byte(" , ,\n1,2,3\n"), filename: "e.csv", want: ErrEmptyFile},
		{name: "bad quoting", data: []byte("a,b\n\"unterminated,1\n2,3\"x\n"), filename: "c.csv", want: ErrCorruptFile},
		{name: "garbage xlsx", data: []byte("not a zip"), filename: "c.xlsx", want: ErrCorruptFile},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Sample(tc.data, tc.filename, tc.contentType, PreviewRows)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v got %v", tc.want, err)
			}
		})
	}
}

func TestSampleXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Date", "Product", "Revenue"},
		{"2024-02-01", "bagel", 12.5},
		{"2024-02-02", "bagel", 9},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	table, err := Sample(buf.Bytes(), "sales.xlsx", ContentTypeXLSX, PreviewRows)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !equalStrings(table.Columns, []string{"Date", "Product", "Revenue"}) {
		t.Fatalf("columns: %v", table.Columns)
	}
	if table.TotalRows != 2 || table.Value(0, "Revenue") != "12.5" {
		t.Fatalf("unexpected table: total=%d first=%q", table.TotalRows, table.Value(0, "Revenue"))
	}
}

func TestSampleXLS(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "sales.xls"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	table, err := Sample(data, "sales.xls", "", 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if table.Format != FormatXLS {
		t.Fatalf("format: want=xls got=%s", table.Format)
	}
	if got, want := table.Columns, []string{"Date", "Menu", "Sales"}; !equalStrings(got, want) {
		t.Fatalf("columns: want=%v got=%v", want, got)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("preview rows: want=2 got=%d", len(table.Rows))
	}
	// The sheet has a blank row between the third and fourth data rows.
	if table.TotalRows != 4 {
		t.Fatalf("total rows: want=4 got=%d", table.TotalRows)
	}
	if table.Value(0, "Date") != "2025-01-01" || table.Value(0, "Menu") != "latte" || table.Value(0, "Sales") != "12" {
		t.Fatalf("row 0: %#v", table.Rows[0])
	}

	all, err := Sample(data, "upload", ContentTypeXLS, 0)
	if err != nil {
		t.Fatalf("Sample(all): %v", err)
	}
	if len(all.Rows) != 4 || all.Value(3, "Sales") != "9.5" || all.Value(3, "Menu") != "mocha" {
		t.Fatalf("rows: %#v", all.Rows)
	}
}

func TestSampleXLSGarbage(t *testing.T) {
	_, err := Sample([]byte("this is not a workbook at all, just some text padded out"), "sales.xls", "", 0)
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("want ErrCorruptFile got %v", err)
	}
}

func TestDetectFormatFallsBackToContentType(t *testing.T) {
	got, err := DetectFormat("upload", "text/csv; charset=utf-8")
	if err != nil || got != FormatCSV {
		t.Fatalf("want csv got=%q err=%v", got, err)
	}
	// Windows browsers label .csv files as ms-excel; the extension wins.
	got, err = DetectFormat("sales.CSV", ContentTypeXLS)
	if err != nil || got != FormatCSV {
		t.Fatalf("want csv got=%q err=%v", got, err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
