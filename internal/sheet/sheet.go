// Package sheet parses, validates and normalises the CSV itineraries the
// assistant and users edit.
package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	apperrors "tripgen/internal/common/errors"
)

const (
	MaxColumns = 26
	MaxRows    = 500
)

var DefaultHeader = []string{"Day", "Date", "Time", "Activity", "Location", "Notes", "Estimated Cost"}

type Sheet struct {
	Header []string
	Rows   [][]string
}

// Parse accepts raw CSV, optionally wrapped in a markdown code fence, and
// returns the normalised sheet.
func Parse(input string) (*Sheet, error) {
	body := stripFence(input)
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewInvalidCSVError("sheet is empty")
	}

	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewInvalidCSVError(err.Error())
		}
		trimmed := make([]string, len(rec))
		blank := true
		for i, cell := range rec {
			trimmed[i] = strings.TrimSpace(cell)
			if trimmed[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		records = append(records, trimmed)
	}
	if len(records) == 0 {
		return nil, apperrors.NewInvalidCSVError("sheet is empty")
	}

	header := trimTrailingEmpty(records[0])
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	rows := records[1:]
	if len(rows) > MaxRows {
		return nil, apperrors.NewInvalidCSVError(fmt.Sprintf("sheet has %d rows, at most %d allowed", len(rows), MaxRows))
	}

	s := &Sheet{Header: header, Rows: make([][]string, 0, len(rows))}
	for i, row := range rows {
		row = trimTrailingEmpty(row)
		if len(row) > len(header) {
			return nil, apperrors.NewInvalidCSVError(
				fmt.Sprintf("row %d has %d cells but the header has %d columns", i+2, len(row), len(header)))
		}
		padded := make([]string, len(header))
		copy(padded, row)
		s.Rows = append(s.Rows, padded)
	}
	return s, nil
}

// Normalize parses input and renders it back as canonical CSV.
func Normalize(input string) (string, error) {
	s, err := Parse(input)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// String renders the sheet as RFC 4180 CSV with \n line endings.
func (s *Sheet) String() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(s.Header)
	_ = w.WriteAll(s.Rows)
	return buf.String()
}

// Values returns header and rows as a grid, the shape spreadsheet APIs take.
func (s *Sheet) Values() [][]interface{} {
	out := make([][]interface{}, 0, len(s.Rows)+1)
	for _, rec := range append([][]string{s.Header}, s.Rows...) {
		row := make([]interface{}, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		out = append(out, row)
	}
	return out
}

func validateHeader(header []string) error {
	if len(header) < 2 {
		return apperrors.NewInvalidCSVError("header needs at least 2 columns")
	}
	if len(header) > MaxColumns {
		return apperrors.NewInvalidCSVError(fmt.Sprintf("header has %d columns, at most %d allowed", len(header), MaxColumns))
	}
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		if name == "" {
			return apperrors.NewInvalidCSVError(fmt.Sprintf("header column %d is empty", i+1))
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return apperrors.NewInvalidCSVError(fmt.Sprintf("duplicate header column %q", name))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func trimTrailingEmpty(rec []string) []string {
	end := len(rec)
	for end > 0 && rec[end-1] == "" {
		end--
	}
	return rec[:end]
}

// stripFence removes a surrounding ``` or ```csv fence.
func stripFence(input string) string {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return s
}
