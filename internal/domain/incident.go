package domain

import (
	"fmt"
	"strings"
	"time"
)

// Field names a canonical incident attribute as stored in the incidents table.
type Field string

const (
	FieldNumber          Field = "number"
	FieldState           Field = "state"
	FieldCreated         Field = "created"
	FieldLastUpdate      Field = "last_update"
	FieldIncidentCIType  Field = "incident_ci_type"
	FieldAffectedUser    Field = "affected_user"
	FieldUserLocation    Field = "user_location"
	FieldAssignmentGroup Field = "assignment_group"
	FieldAssignedTo      Field = "assigned_to"
	FieldUrgency         Field = "urgency"
	FieldSeverity        Field = "severity"
	FieldCreatedBy       Field = "created_by"
	FieldUpdatedBy       Field = "updated_by"
)

// Fields lists every canonical field in store column order.
var Fields = []Field{
	FieldNumber,
	FieldState,
	FieldCreated,
	FieldLastUpdate,
	FieldIncidentCIType,
	FieldAffectedUser,
	FieldUserLocation,
	FieldAssignmentGroup,
	FieldAssignedTo,
	FieldUrgency,
	FieldSeverity,
	FieldCreatedBy,
	FieldUpdatedBy,
}

var fieldSet = func() map[Field]struct{} {
	set := make(map[Field]struct{}, len(Fields))
	for _, f := range Fields {
		set[f] = struct{}{}
	}
	return set
}()

// ParseField resolves a canonical field name.
func ParseField(name string) (Field, bool) {
	f := Field(strings.TrimSpace(name))
	_, ok := fieldSet[f]
	return f, ok
}

// IsTimestamp reports whether the field holds a timestamp.
func (f Field) IsTimestamp() bool {
	return f == FieldCreated || f == FieldLastUpdate
}

func (f Field) String() string { return string(f) }

// Incident is the canonical incident record. Nullable columns are pointers.
type Incident struct {
	Number          string     `json:"number"`
	State           *string    `json:"state"`
	Created         *time.Time `json:"created"`
	LastUpdate      *time.Time `json:"last_update"`
	IncidentCIType  *string    `json:"incident_ci_type"`
	AffectedUser    *string    `json:"affected_user"`
	UserLocation    *string    `json:"user_location"`
	AssignmentGroup *string    `json:"assignment_group"`
	AssignedTo      *string    `json:"assigned_to"`
	Urgency         *string    `json:"urgency"`
	Severity        *string    `json:"severity"`
	CreatedBy       *string    `json:"created_by"`
	UpdatedBy       *string    `json:"updated_by"`
}

// Text returns the value of a text field. Number is returned as a non-nil pointer
// when set. Timestamp fields always return nil.
func (i Incident) Text(f Field) *string {
	switch f {
	case FieldNumber:
		if i.Number == "" {
			return nil
		}
		n := i.Number
		return &n
	case FieldState:
		return i.State
	case FieldIncidentCIType:
		return i.IncidentCIType
	case FieldAffectedUser:
		return i.AffectedUser
	case FieldUserLocation:
		return i.UserLocation
	case FieldAssignmentGroup:
		return i.AssignmentGroup
	case FieldAssignedTo:
		return i.AssignedTo
	case FieldUrgency:
		return i.Urgency
	case FieldSeverity:
		return i.Severity
	case FieldCreatedBy:
		return i.CreatedBy
	case FieldUpdatedBy:
		return i.UpdatedBy
	}
	return nil
}

// Time returns the value of a timestamp field.
func (i Incident) Time(f Field) *time.Time {
	switch f {
	case FieldCreated:
		return i.Created
	case FieldLastUpdate:
		return i.LastUpdate
	}
	return nil
}

// WithText returns a copy of the incident with the text field replaced.
func (i Incident) WithText(f Field, value *string) Incident {
	switch f {
	case FieldNumber:
		i.Number = ""
		if value != nil {
			i.Number = *value
		}
	case FieldState:
		i.State = value
	case FieldIncidentCIType:
		i.IncidentCIType = value
	case FieldAffectedUser:
		i.AffectedUser = value
	case FieldUserLocation:
		i.UserLocation = value
	case FieldAssignmentGroup:
		i.AssignmentGroup = value
	case FieldAssignedTo:
		i.AssignedTo = value
	case FieldUrgency:
		i.Urgency = value
	case FieldSeverity:
		i.Severity = value
	case FieldCreatedBy:
		i.CreatedBy = value
	case FieldUpdatedBy:
		i.UpdatedBy = value
	}
	return i
}

// WithTime returns a copy of the incident with the timestamp field replaced.
func (i Incident) WithTime(f Field, value *time.Time) Incident {
	switch f {
	case FieldCreated:
		i.Created = value
	case FieldLastUpdate:
		i.LastUpdate = value
	}
	return i
}

// Values returns the column values in Fields order, suitable as statement arguments.
func (i Incident) Values() []any {
	values := make([]any, 0, len(Fields))
	for _, f := range Fields {
		if f.IsTimestamp() {
			values = append(values, i.Time(f))
			continue
		}
		if f == FieldNumber {
			values = append(values, i.Number)
			continue
		}
		values = append(values, i.Text(f))
	}
	return values
}

// IncidentPatch carries a partial update. A field present in the patch is
// overwritten; a nil value clears the column.
type IncidentPatch struct {
	texts map[Field]*string
	times map[Field]*time.Time
}

// NewIncidentPatch returns an empty patch.
func NewIncidentPatch() IncidentPatch {
	return IncidentPatch{
		texts: map[Field]*string{},
		times: map[Field]*time.Time{},
	}
}

// SetText stages a text field change. Number is immutable and rejected.
func (p IncidentPatch) SetText(f Field, value *string) error {
	if f == FieldNumber {
		return fmt.Errorf("field %s is immutable", f)
	}
	if f.IsTimestamp() {
		return fmt.Errorf("field %s is a timestamp", f)
	}
	if _, ok := fieldSet[f]; !ok {
		return fmt.Errorf("unknown field %q", f)
	}
	p.texts[f] = value
	return nil
}

// SetTime stages a timestamp field change.
func (p IncidentPatch) SetTime(f Field, value *time.Time) error {
	if !f.IsTimestamp() {
		return fmt.Errorf("field %s is not a timestamp", f)
	}
	p.times[f] = value
	return nil
}

// Empty reports whether the patch changes nothing.
func (p IncidentPatch) Empty() bool {
	return len(p.texts) == 0 && len(p.times) == 0
}

// Changes returns the staged fields in Fields order with their values.
func (p IncidentPatch) Changes() ([]Field, []any) {
	var fields []Field
	var values []any
	for _, f := range Fields {
		if v, ok := p.texts[f]; ok {
			fields = append(fields, f)
			values = append(values, v)
			continue
		}
		if v, ok := p.times[f]; ok {
			fields = append(fields, f)
			values = append(values, v)
		}
	}
	return fields, values
}

// Apply returns a copy of the incident with the patch applied.
func (p IncidentPatch) Apply(i Incident) Incident {
	for f, v := range p.texts {
		i = i.WithText(f, v)
	}
	for f, v := range p.times {
		i = i.WithTime(f, v)
	}
	return i
}
