package validation

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

const patternMatchTimeout = 250 * time.Millisecond

// Compiled is a checked schema with its patterns compiled. It is immutable
// and safe for concurrent use.
type Compiled struct {
	root compiledSchema
}

type compiledSchema struct {
	keys   []string
	fields map[string]compiledNode
}

type compiledNode struct {
	rule    *Rule
	pattern *regexp2.Regexp
	nested  *compiledSchema
}

// Validate compiles schema and validates values against it.
func Validate(values Values, schema Schema) (ErrorMap, error) {
	c, err := Compile(schema)
	if err != nil {
		return nil, err
	}
	return c.Validate(values)
}

// Compile checks every rule of schema and compiles its patterns.
func Compile(schema Schema) (*Compiled, error) {
	root, err := compileSchema(schema, "")
	if err != nil {
		return nil, err
	}
	return &Compiled{root: root}, nil
}

// MustCompile is like Compile but panics on error. Intended for built-in
// schemas declared at package level.
func MustCompile(schema Schema) *Compiled {
	c, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return c
}

func compileSchema(schema Schema, prefix string) (compiledSchema, error) {
	out := compiledSchema{
		keys:   slices.Sorted(maps.Keys(schema)),
		fields: make(map[string]compiledNode, len(schema)),
	}
	for _, key := range out.keys {
		path := joinPath(prefix, key)
		node := schema[key]
		switch {
		case node.rule != nil:
			cn, err := compileRule(*node.rule, path)
			if err != nil {
				return compiledSchema{}, err
			}
			out.fields[key] = cn
		case node.nested != nil:
			nested, err := compileSchema(node.nested, path)
			if err != nil {
				return compiledSchema{}, err
			}
			out.fields[key] = compiledNode{nested: &nested}
		default:
			return compiledSchema{}, &SchemaError{Path: path, Reason: "node is neither a rule nor a nested schema"}
		}
	}
	return out, nil
}

func compileRule(rule Rule, path string) (compiledNode, error) {
	rule.Kind = rule.kind()
	switch rule.Kind {
	case KindString:
		if rule.Min != nil {
			return compiledNode{}, &SchemaError{Path: path, Reason: "min applies to number fields only"}
		}
	case KindNumber, KindBool:
		if rule.Pattern != "" || rule.MinLength != nil || rule.MaxLength != nil {
			return compiledNode{}, &SchemaError{Path: path, Reason: "pattern and length bounds apply to string fields only"}
		}
		if rule.Kind == KindBool && rule.Min != nil {
			return compiledNode{}, &SchemaError{Path: path, Reason: "min applies to number fields only"}
		}
	default:
		return compiledNode{}, &SchemaError{Path: path, Reason: fmt.Sprintf("unknown kind %q", rule.Kind)}
	}

	if rule.MinLength != nil && *rule.MinLength < 0 {
		return compiledNode{}, &SchemaError{Path: path, Reason: "minLength must not be negative"}
	}
	if rule.MaxLength != nil && *rule.MaxLength < 0 {
		return compiledNode{}, &SchemaError{Path: path, Reason: "maxLength must not be negative"}
	}
	if rule.MinLength != nil && rule.MaxLength != nil && *rule.MinLength > *rule.MaxLength {
		return compiledNode{}, &SchemaError{Path: path, Reason: "minLength exceeds maxLength"}
	}

	cn := compiledNode{rule: &rule}
	if rule.Pattern != "" {
		re, err := regexp2.Compile("^(?:"+rule.Pattern+")$", regexp2.ECMAScript)
		if err != nil {
			return compiledNode{}, &SchemaError{Path: path, Reason: fmt.Sprintf("invalid pattern: %v", err)}
		}
		re.MatchTimeout = patternMatchTimeout
		cn.pattern = re
	}
	return cn, nil
}

// Validate returns the rule violations of values. Keys of values that the
// schema does not declare are ignored.
func (c *Compiled) Validate(values Values) (ErrorMap, error) {
	return c.root.validate(values, "")
}

// Child returns the nested schema declared at key.
func (c *Compiled) Child(key string) (*Compiled, bool) {
	node, ok := c.root.fields[key]
	if !ok || node.nested == nil {
		return nil, false
	}
	return &Compiled{root: *node.nested}, true
}

// Without returns a copy of c that does not declare the given top-level keys.
func (c *Compiled) Without(keys ...string) *Compiled {
	out := compiledSchema{
		keys:   make([]string, 0, len(c.root.keys)),
		fields: make(map[string]compiledNode, len(c.root.fields)),
	}
	for _, key := range c.root.keys {
		if slices.Contains(keys, key) {
			continue
		}
		out.keys = append(out.keys, key)
		out.fields[key] = c.root.fields[key]
	}
	return &Compiled{root: out}
}

// Absent returns the dotted paths of declared keys that values does not hold.
// Nested schemas are followed where values holds an object.
func (c *Compiled) Absent(values Values) []string {
	return c.root.absent(values, "", nil)
}

func (s compiledSchema) absent(values Values, prefix string, out []string) []string {
	for _, key := range s.keys {
		path := joinPath(prefix, key)
		value, ok := values[key]
		if !ok {
			out = append(out, path)
			continue
		}
		if node := s.fields[key]; node.nested != nil {
			if sub, isObject := value.(map[string]any); isObject {
				out = node.nested.absent(sub, path, out)
			}
		}
	}
	return out
}

func (s compiledSchema) validate(values Values, prefix string) (ErrorMap, error) {
	errs := ErrorMap{}
	for _, key := range s.keys {
		node := s.fields[key]
		path := joinPath(prefix, key)
		value := values[key]

		if node.nested != nil {
			sub, err := asValues(value, path)
			if err != nil {
				return nil, err
			}
			nested, err := node.nested.validate(sub, path)
			if err != nil {
				return nil, err
			}
			if !nested.Empty() {
				errs[key] = FieldError{Nested: nested}
			}
			continue
		}

		msg, err := node.check(value, path)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			errs[key] = FieldError{Message: msg}
		}
	}
	return errs, nil
}

// check evaluates one leaf and returns the first failing message.
func (n compiledNode) check(value any, path string) (string, error) {
	r := n.rule
	if isMissing(value) {
		if r.Required {
			return MsgRequired, nil
		}
		return "", nil
	}

	switch r.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return "", &TypeError{Path: path, Want: "string", Got: describe(value)}
		}
		if n.pattern != nil {
			matched, err := n.pattern.MatchString(s)
			if err != nil {
				return "", fmt.Errorf("field %q: match pattern: %w", path, err)
			}
			if !matched {
				return MsgInvalidFormat, nil
			}
		}
		length := utf8.RuneCountInString(s)
		if r.MinLength != nil && length < *r.MinLength {
			return fmt.Sprintf("Minimum length is %d", *r.MinLength), nil
		}
		if r.MaxLength != nil && length > *r.MaxLength {
			return fmt.Sprintf("Maximum length is %d", *r.MaxLength), nil
		}
	case KindNumber:
		f, ok := toFloat(value)
		if !ok {
			return "", &TypeError{Path: path, Want: "number", Got: describe(value)}
		}
		if r.Min != nil && f < *r.Min {
			return "Minimum value is " + formatNumber(*r.Min), nil
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return "", &TypeError{Path: path, Want: "bool", Got: describe(value)}
		}
	}
	return "", nil
}

// isMissing reports absent values. Zero and false are present.
func isMissing(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

func asValues(value any, path string) (Values, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}
	return nil, &TypeError{Path: path, Want: "object", Got: describe(value)}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(value); ok {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
