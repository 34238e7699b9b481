package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func lookupShape() *Shape {
	return NewShape("LookupParams",
		String("txid", "Transaction id").Pattern(`^[0-9a-f]{64}$`),
		Integer("height", "Block height").Min(0).Default(0),
		Enum("network", "Network", "mainnet", "testnet", "signet").Default("mainnet"),
	)
}

const txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestSchema_Document(t *testing.T) {
	got := lookupShape().Schema()
	want := `{"$schema":"http://json-schema.org/draft-07/schema#","title":"LookupParams","type":"object","properties":{` +
		`"txid":{"type":"string","description":"Transaction id","pattern":"^[0-9a-f]{64}$"},` +
		`"height":{"type":"integer","description":"Block height","default":0,"minimum":0},` +
		`"network":{"type":"string","description":"Network","enum":["mainnet","testnet","signet"],"default":"mainnet"}},` +
		`"required":["txid"]}`

	var gotDoc, wantDoc map[string]any
	if err := json.Unmarshal(got, &gotDoc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(want), &wantDoc); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gotDoc, wantDoc) {
		t.Fatalf("unexpected schema:\n got: %s\nwant: %s", got, want)
	}

	// properties are published in declaration order
	text := string(got)
	txidAt, heightAt, networkAt := strings.Index(text, `"txid":{`), strings.Index(text, `"height":{`), strings.Index(text, `"network":{`)
	if txidAt < 0 || txidAt > heightAt || heightAt > networkAt {
		t.Fatalf("properties out of declaration order: %s", text)
	}
}

func TestSchema_ConsumableByResolver(t *testing.T) {
	var doc jsonschema.Schema
	if err := json.Unmarshal(lookupShape().Schema(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc.Schema = ""
	resolved, err := doc.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := resolved.Validate(map[string]any{"txid": txid, "network": "signet"}); err != nil {
		t.Fatalf("valid arguments rejected: %v", err)
	}
	if err := resolved.Validate(map[string]any{"network": "signet"}); err == nil {
		t.Fatal("expected missing txid to be rejected")
	}
}

func TestSchema_Deterministic(t *testing.T) {
	first := string(lookupShape().Schema())
	for i := 0; i < 20; i++ {
		if got := string(lookupShape().Schema()); got != first {
			t.Fatalf("generation %d differs:\n%s\n%s", i, got, first)
		}
	}

	s := lookupShape()
	a, b := s.Schema(), s.Schema()
	if &a[0] != &b[0] {
		t.Fatal("expected memoized schema bytes")
	}
}

func TestSchema_NoRequired(t *testing.T) {
	s := NewShape("Empty", Enum("network", "", "mainnet").Default("mainnet"))
	if strings.Contains(string(s.Schema()), "required") {
		t.Fatalf("unexpected required list: %s", s.Schema())
	}
}

func TestNewShape_Panics(t *testing.T) {
	cases := map[string]func(){
		"duplicate": func() { NewShape("x", String("a", ""), String("a", "")) },
		"empty":     func() { NewShape("x", String("", "")) },
		"default":   func() { NewShape("x", Enum("n", "", "a", "b").Default("c")) },
		"type":      func() { NewShape("x", Integer("n", "").Default("1")) },
		"minimum":   func() { NewShape("x", Integer("n", "").Min(1).Default(0)) },
		"pattern":   func() { NewShape("x", String("s", "").Pattern(`[`)) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestBind_Defaults(t *testing.T) {
	v, err := lookupShape().Bind(map[string]any{"txid": txid, "extra": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String("txid") != txid {
		t.Fatalf("expected txid, got %q", v.String("txid"))
	}
	if v.String("network") != "mainnet" {
		t.Fatalf("expected default network, got %q", v.String("network"))
	}
	if v.Int("height") != 0 {
		t.Fatalf("expected default height, got %d", v.Int("height"))
	}
	if _, ok := v.Map()["extra"]; ok {
		t.Fatal("unknown field should be ignored")
	}
}

func TestBind_NullIsOmitted(t *testing.T) {
	v, err := lookupShape().Bind(map[string]any{"txid": txid, "network": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String("network") != "mainnet" {
		t.Fatalf("expected default network, got %q", v.String("network"))
	}
}

func TestBind_Integer(t *testing.T) {
	for _, raw := range []any{float64(840000), 840000, int64(840000), json.Number("840000")} {
		v, err := lookupShape().Bind(map[string]any{"txid": txid, "height": raw})
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", raw, err)
		}
		if v.Int("height") != 840000 {
			t.Fatalf("%T: expected 840000, got %d", raw, v.Int("height"))
		}
	}
}

func TestBind_Errors(t *testing.T) {
	cases := []struct {
		name  string
		args  map[string]any
		field string
		err   error
	}{
		{"missing", map[string]any{}, "txid", ErrMissing},
		{"null required", map[string]any{"txid": nil}, "txid", ErrMissing},
		{"wrong type", map[string]any{"txid": 12}, "txid", ErrType},
		{"pattern", map[string]any{"txid": "xyz"}, "txid", ErrNotAllowed},
		{"fraction", map[string]any{"txid": txid, "height": 1.5}, "height", ErrType},
		{"string height", map[string]any{"txid": txid, "height": "10"}, "height", ErrType},
		{"negative", map[string]any{"txid": txid, "height": float64(-1)}, "height", ErrNotAllowed},
		{"enum", map[string]any{"txid": txid, "network": "regtest"}, "network", ErrNotAllowed},
		{"enum type", map[string]any{"txid": txid, "network": true}, "network", ErrType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lookupShape().Bind(tc.args)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, fe.Field)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestBind_Validator(t *testing.T) {
	errOnly := errors.New("only mainnet")
	s := NewShape("V", Enum("network", "", "mainnet", "testnet").
		Validate(func(tag string) error {
			if tag != "mainnet" {
				return fmt.Errorf("%w: %s", errOnly, tag)
			}
			return nil
		}).Default("mainnet"))

	_, err := s.Bind(map[string]any{"network": "testnet"})
	if !errors.Is(err, errOnly) {
		t.Fatalf("expected validator error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "network: ") {
		t.Fatalf("expected field prefix, got %q", err.Error())
	}
}

func TestBind_ValidatorNamesSchemaRejections(t *testing.T) {
	errUnsupported := errors.New("unsupported network")
	var calls []string
	s := NewShape("V", Enum("network", "", "mainnet", "testnet").
		Validate(func(tag string) error {
			calls = append(calls, tag)
			if tag != "mainnet" && tag != "testnet" {
				return fmt.Errorf("%w %q", errUnsupported, tag)
			}
			return nil
		}).Default("mainnet"))
	calls = nil

	_, err := s.Bind(map[string]any{"network": "signet"})
	if !errors.Is(err, errUnsupported) {
		t.Fatalf("expected validator error for enum rejection, got %v", err)
	}

	_, err = s.Bind(map[string]any{"network": 3})
	if !errors.Is(err, ErrType) {
		t.Fatalf("expected type error, got %v", err)
	}
	if len(calls) != 1 || calls[0] != "signet" {
		t.Fatalf("validator must only see strings, saw %v", calls)
	}
}
