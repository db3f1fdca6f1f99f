package profile

import "github.com/cavestory-tools/cse/pkg/core"

// MethodFunc is the body of a registered method. Args arrive converted to the
// method's declared argument types.
type MethodFunc func(rec *Recorder, args []any) (any, error)

// Method describes one named method.
type Method struct {
	Name    string
	Args    []ValueType
	Returns ValueType
	Body    MethodFunc
}

// convertArgs checks arity and converts each argument to its declared type.
func (m *Method) convertArgs(args []any) ([]any, bool) {
	if len(args) != len(m.Args) {
		return nil, false
	}
	out := make([]any, len(args))
	for i, t := range m.Args {
		v, ok := t.Convert(args[i])
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Recorder accumulates the change events of one method call. Nothing is
// published until the call returns successfully.
type Recorder struct {
	events []core.ChangeEvent
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Field records a single field change.
func (r *Recorder) Field(name string, index int, old, new any) {
	r.events = append(r.events, core.FieldChange(name, index, old, new))
}

// Replaced records a wholesale data change.
func (r *Recorder) Replaced(old, new any) {
	r.events = append(r.events, core.DataReplace(old, new))
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []core.ChangeEvent {
	return r.events
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	return len(r.events)
}
