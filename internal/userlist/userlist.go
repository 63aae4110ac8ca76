// Package userlist reads the tabular list of usernames to submit. CSV and
// XLSX files are accepted; the first non-blank row is the header and must
// name the username column.
package userlist

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is wrapped by InputError for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Record is one data row of the input.
type Record struct {
	Username string
	// Row is the 1-based line (CSV) or row (XLSX) number in the file.
	Row int
	// Team is the value of the optional team column, or "".
	Team string
}

// Options selects the columns to read.
type Options struct {
	// Column is the header of the username column, matched
	// case-insensitively. Defaults to "username".
	Column string
	// TeamColumn is an optional per-row team column. Missing is not an error.
	TeamColumn string
}

// InputError reports an input file that is missing, empty or malformed.
type InputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("invalid input %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() error { return e.Err }

// row is a raw table row with its position in the file.
type row struct {
	num    int
	fields []string
}

// Load reads the user list at path. It never returns an empty list without
// an error.
func Load(path string, opts Options, logger *slog.Logger) ([]Record, error) {
	if logger == nil {
		logger = slog.Default()
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Path: path, Reason: "cannot read file", Err: err}
	}
	records, err := Parse(path, payload, opts)
	if err != nil {
		return nil, err
	}

	if dups := countDuplicates(records); dups > 0 {
		logger.Warn("Input contains duplicate usernames; each row is submitted", "path", path, "duplicates", dups)
	}
	logger.Info("Loaded user list", "path", path, "users", len(records))
	return records, nil
}

// Parse decodes payload according to the extension of name.
func Parse(name string, payload []byte, opts Options) ([]Record, error) {
	var (
		rows []row
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt", "":
		rows, err = readCSV(payload)
	case ".xlsx":
		rows, err = readExcel(payload)
	default:
		return nil, &InputError{Path: name, Reason: "expected .csv or .xlsx", Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)}
	}
	if err != nil {
		return nil, &InputError{Path: name, Reason: "malformed file", Err: err}
	}
	return toRecords(name, rows, opts)
}

func readCSV(payload []byte) ([]row, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	var rows []row
	for {
		fields, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := csvReader.FieldPos(0)
		rows = append(rows, row{num: line, fields: fields})
	}
	return rows, nil
}

func readExcel(payload []byte) ([]row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading rows from sheet %q: %w", sheets[0], err)
	}
	rows := make([]row, 0, len(cells))
	for i, fields := range cells {
		rows = append(rows, row{num: i + 1, fields: fields})
	}
	return rows, nil
}

// toRecords locates the header and extracts the configured columns from
// every non-blank data row.
func toRecords(name string, rows []row, opts Options) ([]Record, error) {
	column := strings.TrimSpace(opts.Column)
	if column == "" {
		column = "username"
	}

	var header *row
	var data []row
	for i := range rows {
		if isBlank(rows[i].fields) {
			continue
		}
		if header == nil {
			header = &rows[i]
			continue
		}
		data = append(data, rows[i])
	}
	if header == nil {
		return nil, &InputError{Path: name, Reason: "file is empty"}
	}

	userIdx := columnIndex(header.fields, column)
	if userIdx < 0 {
		return nil, &InputError{Path: name, Reason: fmt.Sprintf("header row (line %d) has no %q column; found %q",
			header.num, column, header.fields)}
	}
	teamIdx := -1
	if opts.TeamColumn != "" {
		teamIdx = columnIndex(header.fields, opts.TeamColumn)
	}

	if len(data) == 0 {
		return nil, &InputError{Path: name, Reason: "no data rows after the header"}
	}

	records := make([]Record, 0, len(data))
	for _, r := range data {
		username := cell(r.fields, userIdx)
		if username == "" {
			return nil, &InputError{Path: name, Reason: fmt.Sprintf("line %d has an empty %q value", r.num, column)}
		}
		records = append(records, Record{
			Username: username,
			Row:      r.num,
			Team:     cell(r.fields, teamIdx),
		})
	}
	return records, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Usernames returns the usernames of records in order.
func Usernames(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Username
	}
	return out
}

func countDuplicates(records []Record) int {
	seen := make(map[string]bool, len(records))
	dups := 0
	for _, r := range records {
		key := strings.ToLower(r.Username)
		if seen[key] {
			dups++
			continue
		}
		seen[key] = true
	}
	return dups
}

// GroupByTeam groups usernames by their row's team, falling back to
// defaultTeam for rows without one. Teams are returned in first-seen order.
// Rows with neither are returned separately.
func GroupByTeam(records []Record, defaultTeam string) (teams []string, members map[string][]string, unassigned []Record) {
	members = make(map[string][]string)
	for _, r := range records {
		team := r.Team
		if team == "" {
			team = defaultTeam
		}
		if team == "" {
			unassigned = append(unassigned, r)
			continue
		}
		if _, ok := members[team]; !ok {
			teams = append(teams, team)
		}
		members[team] = append(members[team], r.Username)
	}
	return teams, members, unassigned
}
