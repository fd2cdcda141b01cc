package listquery

import (
	"strconv"
	"strings"
)

// Kind is the value type of a queryable field; it drives value coercion.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindInteger
	KindBool
	KindTime
	// KindList fields are projected but cannot be filtered or sorted.
	KindList
)

// Field maps a public field name to its column. Bits bounds KindInteger
// values to the column width; zero means 64.
type Field struct {
	Name   string
	Column string
	Kind   Kind
	Bits   int
}

// Schema describes the fields a collection exposes to list requests. Columns
// that are not listed (such as the internal version counter) can never be
// filtered, sorted or projected.
type Schema struct {
	fields    []Field
	byName    map[string]Field
	idField   string
	createdAt string
}

// NewSchema builds a schema. idField is always projected and used as the final
// sort tiebreaker; createdAtField backs the default newest-first ordering.
func NewSchema(idField, createdAtField string, fields ...Field) *Schema {
	s := &Schema{
		fields:    fields,
		byName:    make(map[string]Field, len(fields)),
		idField:   idField,
		createdAt: createdAtField,
	}
	for _, f := range fields {
		s.byName[f.Name] = f
	}
	return s
}

// Lookup returns the field registered under name.
func (s *Schema) Lookup(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Fields returns every public field in declaration order.
func (s *Schema) Fields() []Field {
	return s.fields
}

func (s *Schema) field(param, name string) (Field, error) {
	f, ok := s.byName[name]
	if !ok {
		return Field{}, requestErrorf(param, "unknown field %q", name)
	}
	return f, nil
}

func coerce(f Field, param, raw string) (interface{}, error) {
	switch f.Kind {
	case KindNumber:
		v, err := parseNumber(raw)
		if err != nil {
			return nil, requestErrorf(param, "value %q is not a number", raw)
		}
		return v, nil
	case KindInteger:
		bits := f.Bits
		if bits == 0 {
			bits = 64
		}
		v, err := strconv.ParseInt(raw, 10, bits)
		if err != nil {
			return nil, requestErrorf(param, "value %q is not an integer", raw)
		}
		return v, nil
	case KindBool:
		v, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, requestErrorf(param, "value %q is not a boolean", raw)
		}
		return v, nil
	case KindTime:
		v, err := parseDate(raw)
		if err != nil {
			return nil, requestErrorf(param, "value %q is not a date", raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}
