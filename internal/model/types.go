package model

import (
	"fmt"
	"strings"
)

// FieldID identifies one fillable field within a screen's field tree. It is
// opaque to the session core and stable for the lifetime of one session.
type FieldID string

// ValueKind discriminates the Value union.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueText
	ValueToggle
	ValueList
	ValueDate
)

// Value is the typed content of a field: text, a toggle state, a list
// selection index, or a date (unix millis). The zero Value means "no value".
type Value struct {
	Kind   ValueKind
	Text   string
	Toggle bool
	List   int
	Date   int64
}

func TextValue(s string) Value  { return Value{Kind: ValueText, Text: s} }
func ToggleValue(b bool) Value  { return Value{Kind: ValueToggle, Toggle: b} }
func ListValue(index int) Value { return Value{Kind: ValueList, List: index} }
func DateValue(ms int64) Value  { return Value{Kind: ValueDate, Date: ms} }

// IsEmpty reports whether the value carries nothing worth saving: either no
// value at all, or a text value with zero length.
func (v Value) IsEmpty() bool {
	return v.Kind == ValueNone || (v.Kind == ValueText && v.Text == "")
}

func (v Value) IsText() bool { return v.Kind == ValueText }

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueText:
		return v.Text == o.Text
	case ValueToggle:
		return v.Toggle == o.Toggle
	case ValueList:
		return v.List == o.List
	case ValueDate:
		return v.Date == o.Date
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueText:
		return fmt.Sprintf("text(%q)", v.Text)
	case ValueToggle:
		return fmt.Sprintf("toggle(%v)", v.Toggle)
	case ValueList:
		return fmt.Sprintf("list(%d)", v.List)
	case ValueDate:
		return fmt.Sprintf("date(%d)", v.Date)
	default:
		return "none"
	}
}

// Rect is the virtual bounds of a field rendered inside a custom-drawn
// surface. Fields backed by real widgets carry no bounds.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d-%d,%d]", r.Left, r.Top, r.Right, r.Bottom)
}

// AuthChallenge is an opaque handle to a provider authentication flow. The
// core never inspects it; it only forwards it to the host surface.
type AuthChallenge struct {
	Ref string
}

// DatasetField is one (field, value) pair inside a Dataset.
type DatasetField struct {
	ID    FieldID
	Value Value
}

// Dataset is a named set of field values a user may choose to apply. A
// dataset may carry its own authentication challenge; such a dataset must be
// unlocked before it can be applied.
type Dataset struct {
	Name   string
	Fields []DatasetField
	Auth   *AuthChallenge
}

// ValueFor returns the value the dataset assigns to id, if any.
func (d *Dataset) ValueFor(id FieldID) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	for _, f := range d.Fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return Value{}, false
}

// SaveSpec declares which fields gate the save prompt. Every required field
// must end up non-empty and at least one field (required or optional) must
// reflect a real user change for save to be offered.
type SaveSpec struct {
	RequiredIDs []FieldID
	OptionalIDs []FieldID
	Description string
}

// FillResponse is the provider's answer to a fill request. Datasets are kept
// as pointers: authentication results rebind a dataset slot by identity.
type FillResponse struct {
	Auth     *AuthChallenge
	Datasets []*Dataset
	Save     *SaveSpec
	Extras   map[string]string
}

// Actionable reports whether the response can drive any UI at all: an auth
// challenge or at least one dataset.
func (r *FillResponse) Actionable() bool {
	return r != nil && (r.Auth != nil || len(r.Datasets) > 0)
}

// Empty reports the inverse of Actionable for a non-nil response.
func (r *FillResponse) Empty() bool {
	return r != nil && r.Auth == nil && len(r.Datasets) == 0
}

// AuthResult is the outcome of an authentication round-trip: either a full
// replacement FillResponse or a single unlocked Dataset. Exactly one variant
// is set.
type AuthResult struct {
	response *FillResponse
	dataset  *Dataset
}

func AuthResultFromResponse(r *FillResponse) AuthResult { return AuthResult{response: r} }
func AuthResultFromDataset(d *Dataset) AuthResult       { return AuthResult{dataset: d} }

func (r AuthResult) Response() (*FillResponse, bool) { return r.response, r.response != nil }
func (r AuthResult) Dataset() (*Dataset, bool)       { return r.dataset, r.dataset != nil }

// UpdateFlags discriminate session update events. The event flags are
// mutually exclusive per call; ManualRequest is a start modifier.
type UpdateFlags uint32

const (
	FlagStartSession UpdateFlags = 1 << iota
	FlagViewEntered
	FlagViewExited
	FlagValueChanged
	FlagManualRequest
)

func (f UpdateFlags) Has(mask UpdateFlags) bool { return f&mask != 0 }

func (f UpdateFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, e := range []struct {
		mask UpdateFlags
		name string
	}{
		{FlagStartSession, "start_session"},
		{FlagViewEntered, "view_entered"},
		{FlagViewExited, "view_exited"},
		{FlagValueChanged, "value_changed"},
		{FlagManualRequest, "manual_request"},
	} {
		if f.Has(e.mask) {
			parts = append(parts, e.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("unknown(0x%x)", uint32(f))
	}
	return strings.Join(parts, "|")
}

// SessionInfo is the diagnostic snapshot of one live session.
type SessionInfo struct {
	Token       string  `json:"token"`
	OwnerLabel  string  `json:"owner_label"`
	ActiveField FieldID `json:"active_field,omitempty"`
	FieldCount  int     `json:"field_count"`
	HasResponse bool    `json:"has_response"`
	HasTree     bool    `json:"has_tree"`
	Filled      bool    `json:"filled"`
	SavePending bool    `json:"save_pending"`
	Flags       string  `json:"flags"`
}
