// Package schema describes tool parameter shapes declaratively and derives
// JSON Schema documents from them.
//
// A Shape is the single source of truth for one parameter structure: the same
// field list becomes the jsonschema.Schema advertised in tools/list and, once
// resolved, validates the arguments received in tools/call (see Bind).
//
//	var txShape = schema.NewShape("TransactionParams",
//		schema.String("txid", "Transaction id").Pattern(`^[0-9a-f]{64}$`),
//		schema.Enum("network", "Bitcoin network", "mainnet", "testnet").Default("mainnet"),
//	)
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

const draft07 = "http://json-schema.org/draft-07/schema#"

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
)

// Field is one named entry of a Shape. Fields are built with String, Integer
// or Enum and refined with the chained modifiers.
type Field struct {
	name        string
	typ         Type
	description string
	enum        []string
	def         any
	hasDefault  bool
	pattern     string
	min         *int64
	validate    func(string) error

	prop     *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// String declares a required string field.
func String(name, description string) *Field {
	return &Field{name: name, typ: TypeString, description: description}
}

// Integer declares a required integer field.
func Integer(name, description string) *Field {
	return &Field{name: name, typ: TypeInteger, description: description}
}

// Enum declares a string field restricted to a closed set of tags.
func Enum(name, description string, tags ...string) *Field {
	return &Field{
		name:        name,
		typ:         TypeString,
		description: description,
		enum:        append([]string(nil), tags...),
	}
}

// Default makes the field optional; v is used when the caller omits it.
func (f *Field) Default(v any) *Field {
	f.def = v
	f.hasDefault = true
	return f
}

// Pattern restricts a string field to values matching expr.
func (f *Field) Pattern(expr string) *Field {
	f.pattern = expr
	return f
}

// Min sets the inclusive lower bound of an integer field.
func (f *Field) Min(n int64) *Field {
	f.min = &n
	return f
}

// Validate adds a check that runs after the schema accepts a string value.
// When the schema rejects a value, fn is asked first so its error can name
// the reason; for an enum field fn must reject every tag outside the enum.
func (f *Field) Validate(fn func(string) error) *Field {
	f.validate = fn
	return f
}

// Name returns the field's property name.
func (f *Field) Name() string { return f.name }

// Type returns the field's primitive type.
func (f *Field) Type() Type { return f.typ }

// Required reports whether the caller must supply the field.
func (f *Field) Required() bool { return !f.hasDefault }

// DefaultValue returns the declared default and whether there is one.
func (f *Field) DefaultValue() (any, bool) { return f.def, f.hasDefault }

// property builds the field's JSON Schema.
func (f *Field) property() (*jsonschema.Schema, error) {
	p := &jsonschema.Schema{
		Type:        string(f.typ),
		Description: f.description,
		Pattern:     f.pattern,
	}
	for _, tag := range f.enum {
		p.Enum = append(p.Enum, tag)
	}
	if f.min != nil {
		m := float64(*f.min)
		p.Minimum = &m
	}
	if f.hasDefault {
		raw, err := json.Marshal(f.def)
		if err != nil {
			return nil, err
		}
		p.Default = raw
	}
	return p, nil
}

// build resolves the field's schema and checks its default against it.
func (f *Field) build() error {
	p, err := f.property()
	if err != nil {
		return err
	}
	resolved, err := p.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return err
	}
	f.prop, f.resolved = p, resolved
	if !f.hasDefault {
		return nil
	}

	var def any
	if err := json.Unmarshal(p.Default, &def); err != nil {
		return err
	}
	if err := f.check(def); err != nil {
		return fmt.Errorf("bad default: %w", err)
	}
	f.def, err = f.native(def)
	return err
}

// Shape is an ordered, immutable parameter structure.
type Shape struct {
	title  string
	fields []*Field
	byName map[string]*Field

	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	doc      json.RawMessage
}

// NewShape builds a shape from fields in declaration order. It panics on
// duplicate or empty field names, on schemas the resolver rejects and on
// defaults the field itself would reject, since those are authoring mistakes.
func NewShape(title string, fields ...*Field) *Shape {
	s := &Shape{
		title:  title,
		fields: make([]*Field, 0, len(fields)),
		byName: make(map[string]*Field, len(fields)),
		schema: &jsonschema.Schema{
			Schema:     draft07,
			Title:      title,
			Type:       "object",
			Properties: make(map[string]*jsonschema.Schema, len(fields)),
		},
	}
	for _, f := range fields {
		if f.name == "" {
			panic(fmt.Sprintf("schema: shape %q: field with empty name", title))
		}
		if _, dup := s.byName[f.name]; dup {
			panic(fmt.Sprintf("schema: shape %q: duplicate field %q", title, f.name))
		}
		if err := f.build(); err != nil {
			panic(fmt.Sprintf("schema: shape %q: field %q: %v", title, f.name, err))
		}
		s.fields = append(s.fields, f)
		s.byName[f.name] = f
		s.schema.Properties[f.name] = f.prop
		s.schema.PropertyOrder = append(s.schema.PropertyOrder, f.name)
		if f.Required() {
			s.schema.Required = append(s.schema.Required, f.name)
		}
	}

	// The resolver only needs the vocabulary, not the dialect marker.
	root := *s.schema
	root.Schema = ""
	resolved, err := root.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		panic(fmt.Sprintf("schema: shape %q: %v", title, err))
	}
	s.resolved = resolved

	doc, err := json.Marshal(s.schema)
	if err != nil {
		panic(fmt.Sprintf("schema: shape %q: marshal: %v", title, err))
	}
	s.doc = doc
	return s
}

// Title returns the shape's name.
func (s *Shape) Title() string { return s.title }

// Fields returns the fields in declaration order.
func (s *Shape) Fields() []*Field {
	return append([]*Field(nil), s.fields...)
}

// Field returns the named field.
func (s *Shape) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Schema returns the JSON Schema document for the shape. Properties keep
// declaration order and the same bytes are returned on every call; callers
// must not modify them.
func (s *Shape) Schema() json.RawMessage { return s.doc }
