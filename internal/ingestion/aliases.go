package ingestion

import (
	"fmt"
	"strings"

	"github.com/rpattn/incidentetl/internal/domain"
)

// Profile selects which alias table resolves an upload's headers.
type Profile string

const (
	ProfileAuto    Profile = "auto"
	ProfileCurrent Profile = "current"
	ProfileLegacy  Profile = "legacy"
)

// ParseProfile validates a profile name. An empty name means auto.
func ParseProfile(value string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return ProfileAuto, nil
	case ProfileAuto, ProfileCurrent, ProfileLegacy:
		return p, nil
	default:
		return "", fmt.Errorf("unknown profile %q", value)
	}
}

// AliasTable maps source header texts to canonical fields for one
// generation of export files.
type AliasTable struct {
	Version string
	Aliases map[string]domain.Field
	folded  map[string]domain.Field
}

func newAliasTable(version string, aliases map[string]domain.Field) AliasTable {
	folded := make(map[string]domain.Field, len(aliases))
	ambiguous := map[string]bool{}
	for header, field := range aliases {
		key := foldHeader(header)
		if existing, ok := folded[key]; ok && existing != field {
			ambiguous[key] = true
			continue
		}
		folded[key] = field
	}
	for key := range ambiguous {
		delete(folded, key)
	}
	return AliasTable{Version: version, Aliases: aliases, folded: folded}
}

// Lookup resolves a header: exact text first, then its folded form.
func (t AliasTable) Lookup(header string) (domain.Field, bool) {
	field, _, ok := t.resolve(header)
	return field, ok
}

// resolve is Lookup that also reports whether only the folded form matched.
func (t AliasTable) resolve(header string) (field domain.Field, folded bool, ok bool) {
	if field, ok := t.Aliases[header]; ok {
		return field, false, true
	}
	field, ok = t.folded[foldHeader(header)]
	return field, ok, ok
}

// foldHeader lowercases and turns spaces and hyphens into underscores.
func foldHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, header)
}

// CurrentAliases covers the title-case headers of present-day exports.
var CurrentAliases = newAliasTable("v2", map[string]domain.Field{
	"Number":           domain.FieldNumber,
	"State":            domain.FieldState,
	"Created":          domain.FieldCreated,
	"Last update":      domain.FieldLastUpdate,
	"Incident CI type": domain.FieldIncidentCIType,
	"Affected User":    domain.FieldAffectedUser,
	"User location":    domain.FieldUserLocation,
	"Assignment Group": domain.FieldAssignmentGroup,
	"Assigned to":      domain.FieldAssignedTo,
	"Urgency":          domain.FieldUrgency,
	"Severity":         domain.FieldSeverity,
	"Created By":       domain.FieldCreatedBy,
	"Updated By":       domain.FieldUpdatedBy,
})

// LegacyAliases covers the snake-case exports, where "severity" held the
// urgency and "severity_1" the severity.
var LegacyAliases = newAliasTable("v1", map[string]domain.Field{
	"number":           domain.FieldNumber,
	"state":            domain.FieldState,
	"created":          domain.FieldCreated,
	"last_update":      domain.FieldLastUpdate,
	"incident_ci_type": domain.FieldIncidentCIType,
	"affected_user":    domain.FieldAffectedUser,
	"user_location":    domain.FieldUserLocation,
	"assignment_group": domain.FieldAssignmentGroup,
	"assigned_to":      domain.FieldAssignedTo,
	"urgency":          domain.FieldUrgency,
	"severity":         domain.FieldUrgency,
	"severity_1":       domain.FieldSeverity,
	"created_by":       domain.FieldCreatedBy,
	"updated_by":       domain.FieldUpdatedBy,
	"updated-by":       domain.FieldUpdatedBy,
})

// legacyMarkers only ever appear in legacy exports.
var legacyMarkers = map[string]struct{}{
	"severity_1": {},
	"updated-by": {},
}

func aliasTableFor(p Profile) AliasTable {
	if p == ProfileLegacy {
		return LegacyAliases
	}
	return CurrentAliases
}

// detectGeneration reports which generation markers a header row carries.
// A current marker is an exact title-case header of the current table.
func detectGeneration(headers []string) (legacy []string, current []string) {
	for _, header := range headers {
		if _, ok := legacyMarkers[header]; ok {
			legacy = append(legacy, header)
			continue
		}
		if _, ok := CurrentAliases.Aliases[header]; ok {
			current = append(current, header)
		}
	}
	return legacy, current
}
