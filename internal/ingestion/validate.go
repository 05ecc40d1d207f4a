package ingestion

import (
	"fmt"
	"strings"
)

// Rejection explains why a row was kept out of the load.
type Rejection struct {
	Row    int    `json:"row"`
	Number string `json:"number,omitempty"`
	Reason string `json:"reason"`
}

// ReasonMissingNumber is the rejection reason for rows without an identifier.
const ReasonMissingNumber = "missing required field: number"

// Validator enforces the minimum field set and number uniqueness within one
// batch. It is not safe for concurrent use.
type Validator struct {
	seen map[string]int
}

// NewValidator returns a validator with no numbers seen.
func NewValidator() *Validator {
	return &Validator{seen: map[string]int{}}
}

// Check accepts or rejects one candidate. Candidates must be checked in
// source order so the first occurrence of a number wins.
func (v *Validator) Check(c Candidate) (Rejection, bool) {
	number := strings.TrimSpace(c.Record.Number)
	if number == "" {
		return Rejection{Row: c.RowNumber, Reason: ReasonMissingNumber}, false
	}
	if first, ok := v.seen[number]; ok {
		return Rejection{
			Row:    c.RowNumber,
			Number: number,
			Reason: fmt.Sprintf("duplicate number %q (first seen on row %d)", number, first),
		}, false
	}
	v.seen[number] = c.RowNumber
	return Rejection{}, true
}

// ValidateBatch splits candidates into accepted records, in source order, and
// rejections.
func ValidateBatch(candidates []Candidate) ([]Candidate, []Rejection) {
	v := NewValidator()
	accepted := make([]Candidate, 0, len(candidates))
	var rejected []Rejection
	for _, c := range candidates {
		if r, ok := v.Check(c); !ok {
			rejected = append(rejected, r)
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, rejected
}
