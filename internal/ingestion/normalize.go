package ingestion

import (
	"fmt"
	"strings"

	"github.com/rpattn/incidentetl/internal/domain"
)

// ConflictPolicy decides what happens to ambiguous header rows.
type ConflictPolicy string

const (
	ConflictReject ConflictPolicy = "reject"
	ConflictWarn   ConflictPolicy = "warn"
)

// ParseConflictPolicy validates a policy name. An empty name means reject.
func ParseConflictPolicy(value string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return ConflictReject, nil
	case ConflictReject, ConflictWarn:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", value)
	}
}

// NormalizerOptions configures header resolution.
type NormalizerOptions struct {
	Profile    Profile
	OnConflict ConflictPolicy
}

// Warning is a soft, non-fatal issue attached to a batch or a row.
type Warning struct {
	Row     *int   `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func batchWarning(format string, args ...any) Warning {
	return Warning{Message: fmt.Sprintf(format, args...)}
}

func rowWarning(row int, field domain.Field, message string) Warning {
	r := row
	return Warning{Row: &r, Field: string(field), Message: message}
}

// HeaderConflict describes one ambiguity in a header row.
type HeaderConflict struct {
	Field   domain.Field `json:"field,omitempty"`
	Columns []string     `json:"columns"`
	Reason  string       `json:"reason"`
}

// HeaderConflictError is returned when a header row cannot be resolved
// unambiguously and the policy is reject.
type HeaderConflictError struct {
	Conflicts []HeaderConflict
}

func (e *HeaderConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s)", c.Reason, strings.Join(c.Columns, ", ")))
	}
	return "ambiguous header row: " + strings.Join(parts, "; ")
}

// HeaderMapping is the resolved header row. Fields is aligned with the
// source headers; an empty entry means the column is ignored.
type HeaderMapping struct {
	Profile   Profile
	Version   string
	Fields    []domain.Field
	HasNumber bool
	Warnings  []Warning
}

// ResolveHeaders maps source headers to canonical fields.
func ResolveHeaders(headers []string, opts NormalizerOptions) (HeaderMapping, error) {
	profile := opts.Profile
	if profile == "" {
		profile = ProfileAuto
	}
	policy := opts.OnConflict
	if policy == "" {
		policy = ConflictReject
	}

	var conflicts []HeaderConflict
	var warnings []Warning

	legacy, current := detectGeneration(headers)
	mixed := len(legacy) > 0 && len(current) > 0
	if mixed {
		conflicts = append(conflicts, HeaderConflict{
			Columns: append(append([]string{}, legacy...), current...),
			Reason:  "header row mixes legacy and current export generations",
		})
	}
	if profile == ProfileAuto {
		switch {
		case mixed:
			profile = ProfileCurrent
		case len(legacy) > 0:
			profile = ProfileLegacy
		default:
			profile = ProfileCurrent
		}
	}

	table := aliasTableFor(profile)
	mapping := HeaderMapping{
		Profile: profile,
		Version: table.Version,
		Fields:  make([]domain.Field, len(headers)),
	}

	firstColumn := map[domain.Field]int{}
	for idx, header := range headers {
		field, folded, ok := table.resolve(header)
		if !ok {
			if header == "" {
				warnings = append(warnings, batchWarning("column %d has no header and was dropped", idx+1))
			} else {
				warnings = append(warnings, batchWarning("unknown column %q was dropped", header))
			}
			continue
		}
		if first, seen := firstColumn[field]; seen {
			conflicts = append(conflicts, HeaderConflict{
				Field:   field,
				Columns: []string{headers[first], header},
				Reason:  fmt.Sprintf("columns resolve to the same field %s", field),
			})
			continue
		}
		firstColumn[field] = idx
		mapping.Fields[idx] = field
		if folded && profile == ProfileCurrent {
			warnings = append(warnings, Warning{
				Field:   string(field),
				Message: fmt.Sprintf("column %q matched %s by loose spelling only; use profile legacy if this is a legacy export", header, field),
			})
		}
	}

	if len(conflicts) > 0 {
		if policy == ConflictReject {
			return HeaderMapping{}, &HeaderConflictError{Conflicts: conflicts}
		}
		for _, c := range conflicts {
			if c.Field == "" {
				warnings = append(warnings, batchWarning("%s (%s); using %s aliases", c.Reason, strings.Join(c.Columns, ", "), table.Version))
				continue
			}
			warnings = append(warnings, Warning{
				Field:   string(c.Field),
				Message: fmt.Sprintf("column %q dropped: %q already maps to %s", c.Columns[1], c.Columns[0], c.Field),
			})
		}
	}

	_, mapping.HasNumber = firstColumn[domain.FieldNumber]
	if !mapping.HasNumber {
		warnings = append(warnings, Warning{Field: string(domain.FieldNumber), Message: "no column maps to number; every row will be rejected"})
	}
	mapping.Warnings = warnings
	return mapping, nil
}

// NormalizedRow holds one row keyed by canonical field. Only mapped columns
// are present.
type NormalizedRow struct {
	RowNumber int
	Values    map[domain.Field]string
}

// Normalize projects a source row onto the canonical fields of mapping.
func Normalize(row SourceRow, mapping HeaderMapping) NormalizedRow {
	values := make(map[domain.Field]string, len(mapping.Fields))
	for idx, field := range mapping.Fields {
		if field == "" || idx >= len(row.Values) {
			continue
		}
		values[field] = row.Values[idx]
	}
	return NormalizedRow{RowNumber: row.RowNumber, Values: values}
}
