// pkg/core/events.go
package core

import "fmt"

// EventKind distinguishes a single field write from a wholesale buffer change.
type EventKind int

const (
	// FieldChanged is published for one field/index write.
	FieldChanged EventKind = iota
	// DataReplaced is published when a slot or the whole buffer changes at once
	// (load, new, clone, delete). Field is empty and Index is -1.
	DataReplaced
)

func (k EventKind) String() string {
	switch k {
	case FieldChanged:
		return "field_changed"
	case DataReplaced:
		return "data_replaced"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ChangeEvent describes one mutation of the active profile.
type ChangeEvent struct {
	Kind  EventKind
	Field string
	Index int
	Old   any
	New   any
}

// FieldChange builds a FieldChanged event.
func FieldChange(field string, index int, old, new any) ChangeEvent {
	return ChangeEvent{Kind: FieldChanged, Field: field, Index: index, Old: old, New: new}
}

// DataReplace builds a DataReplaced event.
func DataReplace(old, new any) ChangeEvent {
	return ChangeEvent{Kind: DataReplaced, Index: -1, Old: old, New: new}
}

func (e ChangeEvent) String() string {
	if e.Kind == DataReplaced {
		return fmt.Sprintf("%s(%v -> %v)", e.Kind, e.Old, e.New)
	}
	return fmt.Sprintf("%s %s[%d]: %v -> %v", e.Kind, e.Field, e.Index, e.Old, e.New)
}
