package session

import "github.com/fillmgr/fillmgr/internal/model"

// Decision is the outcome of the save gate.
type Decision int

const (
	DecisionNoSave Decision = iota
	DecisionOfferSave
)

func (d Decision) String() string {
	if d == DecisionOfferSave {
		return "offer_save"
	}
	return "no_save"
}

// FieldSnapshot is the save-relevant view of one interacted field.
type FieldSnapshot struct {
	Value model.Value
	Dirty bool
}

// FieldLookup resolves the tracked state of a field, if the user ever
// interacted with it.
type FieldLookup func(model.FieldID) (FieldSnapshot, bool)

// ValueLookup resolves a value for a field: the tree's captured value, or
// the value the applied dataset assigned.
type ValueLookup func(model.FieldID) (model.Value, bool)

// ShouldOfferSave decides whether a save prompt is warranted. Pure: no I/O,
// no locking. The save prompt is offered only when every required field ends
// up non-empty and at least one field (required or optional) reflects a real
// user change, i.e. an edit whose value differs from whatever the applied
// dataset assigned to that field.
//
// The scan order and short-circuits are load-bearing:
//  1. an empty required list means nothing to save;
//  2. required fields are scanned in list order; a field that was never
//     interacted with (or whose current value is empty) falls back to the
//     tree's captured value, and an empty captured value aborts the scan;
//  3. a never-interacted field with a non-empty captured value satisfies the
//     requirement and contributes no change signal;
//  4. an interacted, unedited field with an empty value aborts the scan;
//  5. optional fields are scanned only when the required scan completed
//     without detecting a change, stopping at the first real change.
func ShouldOfferSave(required, optional []model.FieldID, fields FieldLookup, original ValueLookup, applied ValueLookup) Decision {
	if len(required) == 0 {
		return DecisionNoSave
	}

	atLeastOneChanged := false
	for _, id := range required {
		st, known := fields(id)
		if !known || st.Value.IsEmpty() {
			initial, ok := original(id)
			if !ok || initial.IsEmpty() {
				return DecisionNoSave
			}
			if !known {
				continue
			}
		}
		if st.Dirty {
			filled, _ := applied(id)
			if !st.Value.Equal(filled) {
				atLeastOneChanged = true
			}
		} else if st.Value.IsEmpty() {
			return DecisionNoSave
		}
	}

	if !atLeastOneChanged {
		for _, id := range optional {
			st, known := fields(id)
			if !known || !st.Dirty || st.Value.Kind == model.ValueNone {
				continue
			}
			filled, _ := applied(id)
			if !st.Value.Equal(filled) {
				atLeastOneChanged = true
				break
			}
		}
	}

	if atLeastOneChanged {
		return DecisionOfferSave
	}
	return DecisionNoSave
}
