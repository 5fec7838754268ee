// Package validation checks nested settings values against a nested rule
// schema and reports violations as an ErrorMap that mirrors the input shape.
//
// A Schema maps field names to Nodes. A Node is either a nested Schema or a
// leaf Rule; which one is fixed when the Node is built with Nest or Field.
//
//	schema := validation.Schema{
//		"app": validation.Nest(validation.Schema{
//			"name": validation.Field(validation.Rule{Required: true, MinLength: validation.Ptr(3)}),
//		}),
//	}
//	errs, err := validation.Validate(values, schema)
//
// Rule violations are data (the returned ErrorMap). The error return is
// reserved for calls that cannot be evaluated: inconsistent rules, values
// whose type does not match the rule kind, and pattern timeouts.
package validation

// Kind is the value type a Rule applies to.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
)

// Rule holds the constraints of one field. The zero Kind means KindString.
type Rule struct {
	Kind      Kind
	Required  bool
	Pattern   string
	MinLength *int
	MaxLength *int
	Min       *float64
}

func (r Rule) kind() Kind {
	if r.Kind == "" {
		return KindString
	}
	return r.Kind
}

// Node is one schema entry: a leaf Rule or a nested Schema.
type Node struct {
	rule   *Rule
	nested Schema
}

// Field returns a leaf node.
func Field(rule Rule) Node {
	r := rule
	return Node{rule: &r}
}

// Nest returns a node that descends into a nested object.
func Nest(schema Schema) Node {
	if schema == nil {
		schema = Schema{}
	}
	return Node{nested: schema}
}

// Rule returns the leaf rule and true when n is a leaf.
func (n Node) Rule() (Rule, bool) {
	if n.rule == nil {
		return Rule{}, false
	}
	return *n.rule, true
}

// Schema returns the nested schema and true when n is a nested node.
func (n Node) Schema() (Schema, bool) {
	if n.rule != nil || n.nested == nil {
		return nil, false
	}
	return n.nested, true
}

// Schema describes the rules for a (possibly nested) object shape.
type Schema map[string]Node

// Values is a decoded settings object: nested objects are map[string]any,
// leaves are strings, numbers or booleans.
type Values = map[string]any

// Ptr returns a pointer to v, for the optional Rule bounds.
func Ptr[T any](v T) *T {
	return &v
}
