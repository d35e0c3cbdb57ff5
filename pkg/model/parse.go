package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/devassist/agentcore/pkg/orcherr"
)

// SchemaDescription renders an exemplar value as the JSON text interpolated
// into the system-prompt directive when a response schema is declared, so
// the model sees the concrete shape it must produce rather than a Go type
// name.
func SchemaDescription(exemplar any) string {
	data, err := json.Marshal(exemplar)
	if err != nil {
		return fmt.Sprintf("%T", exemplar)
	}
	return string(data)
}

// StripCodeFence removes a single ```json ... ``` or ``` ... ``` wrapper
// from s, if present. It is idempotent: calling it on an already-stripped
// string is a no-op.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(t[:nl])
		// Drop a bare language tag ("json") on the fence's opening line.
		if firstLine == "" || isLanguageTag(firstLine) {
			t = t[nl+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimRight(t, "\n\t "), "```")
	return strings.TrimSpace(t)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

// SanitizeControlChars escapes raw newline/CR/tab and unicode-escapes any
// other byte below 0x20 that appears inside a JSON string literal, so that
// otherwise-valid JSON emitted by a model that embedded a literal newline in
// a string value still parses. Decoding the sanitized string with
// json.Unmarshal yields semantically the same text the model intended.
func SanitizeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				b.WriteByte(c)
				escaped = false
				continue
			}
			switch c {
			case '\\':
				b.WriteByte(c)
				escaped = true
				continue
			case '"':
				b.WriteByte(c)
				inString = false
				continue
			case '\n':
				b.WriteString(`\n`)
				continue
			case '\r':
				b.WriteString(`\r`)
				continue
			case '\t':
				b.WriteString(`\t`)
				continue
			default:
				if c < 0x20 {
					fmt.Fprintf(&b, `\u%04x`, c)
					continue
				}
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// firstNonWhitespace returns the first non-whitespace byte of s, or 0 if s
// is entirely whitespace.
func firstNonWhitespace(s string) byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

// Clean runs the full response-normalization pipeline:
// strip a code fence, sanitize control characters, and verify the result
// begins with '{' or '['.
func Clean(raw string) (string, error) {
	stripped := StripCodeFence(raw)
	sanitized := SanitizeControlChars(stripped)
	switch firstNonWhitespace(sanitized) {
	case '{', '[':
		return sanitized, nil
	default:
		return "", orcherr.SchemaViolation("response is not JSON object or array", nil)
	}
}

// ParseInto decodes cleaned JSON into a value shaped like exemplar,
// dispatching by the exemplar's shape:
//   - a non-nil slice/array exemplar with len>0 decodes as an array of that
//     element type;
//   - an empty slice exemplar decodes as an untyped []any;
//   - anything else decodes as that single object type.
//
// Unknown fields in the response are ignored; fields missing from the
// response keep the exemplar's zero value (Go's json.Unmarshal semantics
// already provide this once ParseInto allocates a fresh zero value of the
// target type rather than reusing exemplar).
func ParseInto(cleaned string, exemplar any) (any, error) {
	rv := reflect.ValueOf(exemplar)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elemType := rv.Type().Elem()
		if rv.Len() == 0 {
			var generic []any
			if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
				return nil, orcherr.SchemaViolation("decode untyped array", err)
			}
			return generic, nil
		}
		sliceType := reflect.SliceOf(elemType)
		out := reflect.New(sliceType)
		if err := json.Unmarshal([]byte(cleaned), out.Interface()); err != nil {
			return nil, orcherr.SchemaViolation("decode typed array", err)
		}
		return out.Elem().Interface(), nil
	default:
		t := rv.Type()
		out := reflect.New(t)
		if err := json.Unmarshal([]byte(cleaned), out.Interface()); err != nil {
			return nil, orcherr.SchemaViolation("decode object", err)
		}
		return out.Elem().Interface(), nil
	}
}

// SchemaFor compiles a JSON Schema (draft 2020-12) from an exemplar value's
// marshalled shape. The derived schema constrains structure — object vs
// array per field, scalar types where the exemplar declares them — without
// forbidding unknown fields, which ParseInto ignores anyway. Fields whose
// exemplar value marshals to null are left unconstrained.
func SchemaFor(exemplar any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(exemplar)
	if err != nil {
		return nil, orcherr.SchemaViolation("marshal schema exemplar", err)
	}
	var shape any
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, orcherr.SchemaViolation("decode schema exemplar", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("exemplar.json", schemaShape(shape)); err != nil {
		return nil, orcherr.SchemaViolation("register exemplar schema", err)
	}
	schema, err := compiler.Compile("exemplar.json")
	if err != nil {
		return nil, orcherr.SchemaViolation("compile exemplar schema", err)
	}
	return schema, nil
}

// schemaShape maps a decoded exemplar value onto a JSON Schema fragment.
func schemaShape(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		doc := map[string]any{"type": "object"}
		if len(t) > 0 {
			props := make(map[string]any, len(t))
			for k, val := range t {
				props[k] = schemaShape(val)
			}
			doc["properties"] = props
		}
		return doc
	case []any:
		doc := map[string]any{"type": "array"}
		if len(t) > 0 {
			doc["items"] = schemaShape(t[0])
		}
		return doc
	case string:
		return map[string]any{"type": "string"}
	case bool:
		return map[string]any{"type": "boolean"}
	case float64:
		return map[string]any{"type": "number"}
	default:
		// null (a nil slice/pointer in the exemplar): accept anything.
		return map[string]any{}
	}
}

// ValidateSchema validates cleaned JSON against a compiled schema before
// ParseInto decodes it, so a structurally wrong response fails as a
// SchemaViolation (retryable at the planner) instead of decoding into a
// silently zero-valued struct.
func ValidateSchema(schema *jsonschema.Schema, cleaned string) error {
	if schema == nil {
		return nil
	}
	var doc any
	if err := json.NewDecoder(bytes.NewReader([]byte(cleaned))).Decode(&doc); err != nil {
		return orcherr.SchemaViolation("decode for schema validation", err)
	}
	if err := schema.Validate(doc); err != nil {
		return orcherr.SchemaViolation("response failed schema validation", err)
	}
	return nil
}
