package profile

import "fmt"

// Registry maps names to field and method descriptors for one profile
// instance. Descriptors are validated when added; after Seal the registry is
// read-only.
type Registry struct {
	length   int
	sections int
	correct  Corrector

	fields      map[string]*Field
	fieldOrder  []string
	methods     map[string]*Method
	methodOrder []string
	sealed      bool
}

// NewRegistry creates a registry for a buffer of length bytes whose offsets
// resolve through correct into one of sections sections.
func NewRegistry(length, sections int, correct Corrector) *Registry {
	if correct == nil {
		correct = Direct
	}
	if sections < 1 {
		sections = 1
	}
	return &Registry{
		length:   length,
		sections: sections,
		correct:  correct,
		fields:   make(map[string]*Field),
		methods:  make(map[string]*Method),
	}
}

// AddField validates and registers f.
func (r *Registry) AddField(f Field) error {
	if r.sealed {
		return fmt.Errorf("%w: field %s", ErrRegistrySealed, f.Name)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidValue)
	}
	if _, ok := r.fields[f.Name]; ok {
		return fmt.Errorf("%w: field %s", ErrDuplicateName, f.Name)
	}
	if f.Type == TypeNone {
		return fmt.Errorf("field %s has no type", f.Name)
	}
	if f.Count < 0 {
		return fmt.Errorf("%w: field %s count %d", ErrInvalidIndex, f.Name, f.Count)
	}

	switch f.Kind {
	case KindScalar:
		if f.Type == TypeString && f.Length < 1 {
			return fmt.Errorf("string field %s has no length", f.Name)
		}
	case KindArray, KindBits:
		if f.Count == 0 {
			return fmt.Errorf("%s field %s has no elements", f.Kind, f.Name)
		}
	case KindCustom:
		if f.Get == nil || f.Set == nil {
			return fmt.Errorf("custom field %s is missing an accessor", f.Name)
		}
	default:
		return fmt.Errorf("field %s has unknown kind %s", f.Name, f.Kind)
	}

	if f.Kind != KindCustom {
		for s := 0; s < r.sections; s++ {
			lo, hi := f.span(r.correct, s)
			if lo < 0 || hi > r.length {
				return fmt.Errorf("%w: field %s spans [%#x, %#x) in section %d, buffer is %#x",
					ErrOffsetOutOfRange, f.Name, lo, hi, s, r.length)
			}
		}
	}

	r.fields[f.Name] = &f
	r.fieldOrder = append(r.fieldOrder, f.Name)
	return nil
}

// AddMethod validates and registers m.
func (r *Registry) AddMethod(m Method) error {
	if r.sealed {
		return fmt.Errorf("%w: method %s", ErrRegistrySealed, m.Name)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidValue)
	}
	if _, ok := r.methods[m.Name]; ok {
		return fmt.Errorf("%w: method %s", ErrDuplicateName, m.Name)
	}
	if m.Body == nil {
		return fmt.Errorf("method %s has no body", m.Name)
	}
	for i, t := range m.Args {
		if t == TypeNone {
			return fmt.Errorf("method %s argument %d has no type", m.Name, i)
		}
	}
	r.methods[m.Name] = &m
	r.methodOrder = append(r.methodOrder, m.Name)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed = true
}

// Field looks up a field descriptor.
func (r *Registry) Field(name string) (*Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Method looks up a method descriptor.
func (r *Registry) Method(name string) (*Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Fields returns field names in registration order.
func (r *Registry) Fields() []string {
	return append([]string(nil), r.fieldOrder...)
}

// Methods returns method names in registration order.
func (r *Registry) Methods() []string {
	return append([]string(nil), r.methodOrder...)
}

// Length is the buffer length the registry was validated against.
func (r *Registry) Length() int {
	return r.length
}

// Sections is the number of sections offsets may resolve into.
func (r *Registry) Sections() int {
	return r.sections
}
