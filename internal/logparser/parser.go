// Package logparser turns interlock device CSV exports into test statistics.
package logparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sjperalta/interlock-api/internal/models"
)

// ErrMalformedInput is returned when the stream cannot be read at all
var ErrMalformedInput = errors.New("malformed input")

// Column names, matched case-insensitively
const (
	ColumnTestResult   = "testresult"
	ColumnDeviceStatus = "devicestatus"
	ColumnAlcoholLevel = "alcohollevel"
)

// DefaultMaxRows bounds a parse when the caller does not set one
const DefaultMaxRows = 100000

// Result is the outcome of parsing one log file
type Result struct {
	Statistics models.Statistics
	// Unrecognized counts rows whose test result is not PASS, FAIL or SKIP
	Unrecognized int
	// MalformedRows counts records the CSV reader rejected. Each still counts
	// as a test with an unrecognized result.
	MalformedRows int
	// Truncated is set when parsing stopped at MaxRows
	Truncated bool
	// MissingColumns lists expected columns absent from the header
	MissingColumns []string
}

// Parser reads device logs row by row
type Parser struct {
	MaxRows int
}

// New creates a parser bounded to maxRows data rows
func New(maxRows int) *Parser {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Parser{MaxRows: maxRows}
}

type columns struct {
	testResult   int
	deviceStatus int
	alcoholLevel int
}

func (c columns) missing() []string {
	var out []string
	if c.testResult < 0 {
		out = append(out, ColumnTestResult)
	}
	if c.deviceStatus < 0 {
		out = append(out, ColumnDeviceStatus)
	}
	if c.alcoholLevel < 0 {
		out = append(out, ColumnAlcoholLevel)
	}
	return out
}

// Parse streams r and aggregates its rows. It fails only when the stream
// itself cannot be read; individual bad rows are skipped or counted.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	return p.aggregate(reader)
}

// recordReader is the subset of *csv.Reader the aggregation needs
type recordReader interface {
	Read() ([]string, error)
}

func (p *Parser) aggregate(reader recordReader) (Result, error) {
	var res Result

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%w: reading header: %v", ErrMalformedInput, err)
	}
	cols := indexColumns(header)
	res.MissingColumns = cols.missing()

	maxRows := p.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	var (
		bacSum   float64
		bacCount int
		bacMax   float64
	)
	stats := &res.Statistics

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return res, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}

		if stats.TotalTests >= maxRows {
			res.Truncated = true
			break
		}
		stats.TotalTests++

		// A rejected record is a test whose fields cannot be trusted
		if parseErr != nil {
			res.MalformedRows++
			res.Unrecognized++
			continue
		}

		switch strings.ToUpper(field(record, cols.testResult)) {
		case "PASS":
			stats.PassedTests++
		case "FAIL":
			stats.FailedTests++
		case "SKIP":
			stats.SkippedTests++
		default:
			res.Unrecognized++
		}

		switch strings.ToUpper(field(record, cols.deviceStatus)) {
		case "TAMPERING", "BYPASS":
			stats.TamperingAttempts++
		}

		if bac, ok := parseBAC(field(record, cols.alcoholLevel)); ok {
			bacSum += bac
			if bacCount == 0 || bac > bacMax {
				bacMax = bac
			}
			bacCount++
		}
	}

	if bacCount > 0 {
		stats.AverageBAC = round4(bacSum / float64(bacCount))
		stats.MaxBAC = round4(bacMax)
	}
	return res, nil
}

func indexColumns(header []string) columns {
	cols := columns{testResult: -1, deviceStatus: -1, alcoholLevel: -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case ColumnTestResult:
			if cols.testResult < 0 {
				cols.testResult = i
			}
		case ColumnDeviceStatus:
			if cols.deviceStatus < 0 {
				cols.deviceStatus = i
			}
		case ColumnAlcoholLevel:
			if cols.alcoholLevel < 0 {
				cols.alcoholLevel = i
			}
		}
	}
	return cols
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseBAC(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
