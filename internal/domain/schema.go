package domain

import "strings"

// Field describes one column of a Schema: a name and a logical type.
type Field struct {
	Name     string  `json:"name" yaml:"name"`
	Type     TypeTag `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable" yaml:"nullable"`
}

// Schema is an ordered list of Fields. Order matters for select/sort/union
// and is preserved by every operation that doesn't explicitly reorder.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// NewSchema builds a Schema from the given fields, copying the slice so the
// caller's backing array can be mutated safely afterwards.
func NewSchema(fields ...Field) Schema {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Schema{Fields: out}
}

// Column returns the Field named name and true, or the zero Field and false.
func (s Schema) Column(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether s contains a column named name.
func (s Schema) Has(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// Names returns the ordered column names of s.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Equal reports whether s and other have the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		o := other.Fields[i]
		if f.Name != o.Name || f.Type != o.Type || f.Nullable != o.Nullable {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	return NewSchema(s.Fields...)
}

// WithColumns returns a new Schema keeping only the named columns, in the
// order given, used by the "select" node kind.
func (s Schema) WithColumns(names []string) Schema {
	out := make([]Field, 0, len(names))
	for _, n := range names {
		if f, ok := s.Column(n); ok {
			out = append(out, f)
		}
	}
	return Schema{Fields: out}
}

// String renders a compact "name:type, ..." representation, used in log
// lines and error messages.
func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return strings.Join(parts, ", ")
}
