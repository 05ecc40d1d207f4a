package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/incidentetl/internal/domain"
)

// DefaultLayouts are tried in order; the first match wins. Month-first
// layouts come before ISO ones and day-first layouts are never guessed.
var DefaultLayouts = []string{
	"01-02-2006 15:04:05",
	"01-02-2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

var nullTokens = map[string]struct{}{
	"":     {},
	"null": {},
	"NULL": {},
	"NaN":  {},
	"nan":  {},
	"None": {},
	"N/A":  {},
	"NaT":  {},
}

// IsNullToken reports whether a raw cell stands for a missing value.
func IsNullToken(value string) bool {
	_, ok := nullTokens[strings.TrimSpace(value)]
	return ok
}

// Candidate is a coerced row awaiting validation.
type Candidate struct {
	RowNumber int
	Record    domain.Incident
	Warnings  []Warning
}

// Coercer turns normalized text into typed incident values.
type Coercer struct {
	layouts  []string
	location *time.Location
}

// NewCoercer builds a coercer. Empty layouts fall back to DefaultLayouts and a
// nil location to UTC.
func NewCoercer(layouts []string, loc *time.Location) *Coercer {
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Coercer{layouts: append([]string(nil), layouts...), location: loc}
}

// Layouts returns the layouts in match order.
func (c *Coercer) Layouts() []string {
	return append([]string(nil), c.layouts...)
}

// Text trims a cell and maps null tokens to nil.
func (c *Coercer) Text(value string) *string {
	if IsNullToken(value) {
		return nil
	}
	trimmed := strings.TrimSpace(value)
	return &trimmed
}

// ParseTime parses a timestamp cell. A null token returns (nil, nil); text
// matching no layout returns an error. Zoneless text is read in the
// configured location. The result is always UTC, since the timestamp columns
// store wall time without a zone.
func (c *Coercer) ParseTime(value string) (*time.Time, error) {
	if IsNullToken(value) {
		return nil, nil
	}
	trimmed := strings.TrimSpace(value)
	for _, layout := range c.layouts {
		if ts, err := time.ParseInLocation(layout, trimmed, c.location); err == nil {
			utc := ts.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%q matches no accepted date layout", trimmed)
}

// Coerce converts a normalized row. It never fails: bad values become null
// and are reported as warnings on the candidate.
func (c *Coercer) Coerce(row NormalizedRow) Candidate {
	candidate := Candidate{RowNumber: row.RowNumber}
	record := domain.Incident{}

	for _, field := range domain.Fields {
		raw, present := row.Values[field]

		if field.IsTimestamp() {
			ts, err := c.ParseTime(raw)
			if err != nil {
				candidate.Warnings = append(candidate.Warnings, rowWarning(row.RowNumber, field, fmt.Sprintf("%s set to null: %v", field, err)))
			}
			if ts == nil && err == nil && field == domain.FieldCreated {
				candidate.Warnings = append(candidate.Warnings, rowWarning(row.RowNumber, field, "created is empty"))
			}
			record = record.WithTime(field, ts)
			continue
		}

		if !present {
			continue
		}
		record = record.WithText(field, c.Text(raw))
	}

	candidate.Record = record
	return candidate
}
