package parse

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadFile loads rows from a .csv, .xlsx, or plain text file and returns them in
// the pipe row format. Sheet selects a workbook sheet; empty means the first one.
func ReadFile(path, sheet string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, sheet)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadCSV converts comma separated records into pipe rows. Line numbers match the input.
func ReadCSV(r io.Reader) (string, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var lines []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		for len(lines) < line-1 {
			lines = append(lines, "")
		}
		lines = append(lines, joinRecord(rec))
	}
	return strings.Join(lines, "\n"), nil
}

// ReadXLSX converts one worksheet into pipe rows, one per spreadsheet row.
func ReadXLSX(path, sheet string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return "", fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return "", fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, joinRecord(rec))
	}
	return strings.Join(lines, "\n"), nil
}

func joinRecord(rec []string) string {
	cells := make([]string, len(rec))
	for i, c := range rec {
		cells[i] = strings.NewReplacer("|", "/", "\r\n", " ", "\n", " ").Replace(strings.TrimSpace(c))
	}
	return joinCells(cells...)
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
