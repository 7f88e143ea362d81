// Package sampler reads uploaded tabular files into a RawTable.
//
// CSV goes through encoding/csv, XLSX through excelize and legacy XLS through
// extrame/xls. Only the first worksheet of a workbook is read.
package sampler

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("corrupt file")
	ErrEmptyFile         = errors.New("file has no columns")
)

// PreviewRows is the row cap used when sampling for column suggestions.
const PreviewRows = 3

type Row map[string]string

type RawTable struct {
	Format    Format
	Columns   []string
	Rows      []Row
	TotalRows int
}

// Value returns the cell for column in row i, or "" when either is out of range.
func (t *RawTable) Value(i int, column string) string {
	if t == nil || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][column]
}

func (t *RawTable) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Sample parses data and keeps at most rowCap data rows. rowCap <= 0 keeps every row.
// TotalRows always counts every non-blank data row in the file.
func Sample(data []byte, filename, contentType string, rowCap int) (*RawTable, error) {
	format, err := DetectFormat(filename, contentType)
	if err != nil {
		return nil, err
	}
	var records recordSource
	switch format {
	case FormatCSV:
		records = newCSVSource(data)
	case FormatXLSX:
		records, err = newXLSXSource(data)
	case FormatXLS:
		records, err = newXLSSource(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	defer records.Close()

	table, err := collect(records, rowCap)
	if err != nil {
		return nil, err
	}
	table.Format = format
	return table, nil
}

type recordSource interface {
	// Next returns io.EOF after the last record.
	Next() ([]string, error)
	Close() error
}

func collect(src recordSource, rowCap int) (*RawTable, error) {
	header, err := src.Next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}
	columns := normalizeHeader(header)
	if len(columns) == 0 {
		return nil, ErrEmptyFile
	}

	table := &RawTable{Columns: columns}
	for line := 2; ; line++ {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorruptFile, line, err)
		}
		if blank(rec) {
			continue
		}
		table.TotalRows++
		if rowCap > 0 && len(table.Rows) >= rowCap {
			continue
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// normalizeHeader trims names, drops trailing empty header cells and makes
// duplicates unique with a ".N" suffix.
func normalizeHeader(raw []string) []string {
	last := len(raw) - 1
	for last >= 0 && cleanHeader(raw[last]) == "" {
		last--
	}
	if last < 0 {
		return nil
	}
	seen := make(map[string]int, last+1)
	out := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		name := cleanHeader(raw[i])
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}
		out = append(out, name)
	}
	return out
}

func cleanHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

type csvSource struct {
	r *csv.Reader
}

func newCSVSource(data []byte) *csvSource {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	return &csvSource{r: r}
}

func (s *csvSource) Next() ([]string, error) { return s.r.Read() }
func (s *csvSource) Close() error            { return nil }

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
}

func newXLSXSource(data []byte) (*xlsxSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &xlsxSource{file: f, rows: rows}, nil
}

func (s *xlsxSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *xlsxSource) Close() error {
	_ = s.rows.Close()
	return s.file.Close()
}

type xlsSource struct {
	sheet *xls.WorkSheet
	next  int
}

func newXLSSource(data []byte) (src *xlsSource, err error) {
	// extrame/xls panics on some malformed BIFF streams.
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("xls parse panic: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}
	return &xlsSource{sheet: sheet}, nil
}

func (s *xlsSource) Next() (rec []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("xls row %d: %v", s.next, r)
		}
	}()
	if s.next > int(s.sheet.MaxRow) {
		return nil, io.EOF
	}
	row := sheetRow(s.sheet, s.next)
	s.next++
	if row == nil {
		return []string{}, nil
	}
	out := make([]string, 0, row.LastCol())
	for i := 0; i < row.LastCol(); i++ {
		out = append(out, row.Col(i))
	}
	return out, nil
}

func (s *xlsSource) Close() error { return nil }

// sheetRow is nil for rows the sheet never stored. WorkSheet.Row dereferences
// the missing row instead of returning nil.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
