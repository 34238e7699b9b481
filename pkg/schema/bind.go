package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissing marks a required field the caller did not supply.
	ErrMissing = errors.New("missing required field")
	// ErrType marks a value of the wrong JSON type.
	ErrType = errors.New("wrong type")
	// ErrNotAllowed marks a value outside the field's constraints.
	ErrNotAllowed = errors.New("value not allowed")
)

// FieldError reports which field of an argument object failed to bind.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

// Values holds arguments bound against a Shape. Every field of the shape is
// present, either from the caller or from its default.
type Values struct {
	values map[string]any
}

// String returns a string field, or "" if name is not a string field.
func (v Values) String(name string) string {
	s, _ := v.values[name].(string)
	return s
}

// Int returns an integer field, or 0 if name is not an integer field.
func (v Values) Int(name string) int64 {
	n, _ := v.values[name].(int64)
	return n
}

// Map returns a copy of the bound values, keyed by field name.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Bind validates an untyped argument object against the resolved schema and
// fills in defaults. Keys the shape does not declare are ignored and a JSON
// null counts as omitted. Fields are checked in declaration order, so the
// first failing field is the one reported.
func (s *Shape) Bind(args map[string]any) (Values, error) {
	obj := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		raw, ok := args[f.name]
		if !ok || raw == nil {
			if f.Required() {
				return Values{}, &FieldError{Field: f.name, Err: ErrMissing}
			}
			continue
		}
		v := normalize(raw)
		if err := f.check(v); err != nil {
			return Values{}, &FieldError{Field: f.name, Err: err}
		}
		obj[f.name] = v
	}

	if err := s.resolved.ApplyDefaults(&obj); err != nil {
		return Values{}, fmt.Errorf("schema: %s: apply defaults: %w", s.title, err)
	}

	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, err := f.native(obj[f.name])
		if err != nil {
			return Values{}, &FieldError{Field: f.name, Err: err}
		}
		out[f.name] = v
	}
	return Values{values: out}, nil
}

// check validates one decoded JSON value against the field's resolved
// schema and then against its Validate hook.
func (f *Field) check(v any) error {
	s, isString := v.(string)
	if err := f.resolved.Validate(v); err != nil {
		if !f.typeMatches(v) {
			return fmt.Errorf("%w: expected %s, got %s", ErrType, f.typ, kindOf(v))
		}
		if isString && f.validate != nil {
			if verr := f.validate(s); verr != nil {
				return verr
			}
		}
		return fmt.Errorf("%w: %v", ErrNotAllowed, err)
	}
	if isString && f.validate != nil {
		return f.validate(s)
	}
	return nil
}

func (f *Field) typeMatches(v any) bool {
	switch f.typ {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		n, ok := v.(float64)
		return ok && !math.IsInf(n, 0) && n == math.Trunc(n)
	default:
		return false
	}
}

// native converts a validated JSON value to the field's Go representation:
// string or int64.
func (f *Field) native(v any) (any, error) {
	if f.typ != TypeInteger {
		return v, nil
	}
	n, ok := v.(float64)
	if !ok || n < math.MinInt64 || n >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %v is out of range", ErrNotAllowed, v)
	}
	return int64(n), nil
}

// normalize maps Go numeric types to float64, the form encoding/json decodes
// numbers into and the form the validator expects.
func normalize(raw any) any {
	switch n := raw.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return raw
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
