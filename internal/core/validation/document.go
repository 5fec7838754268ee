package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Schema documents mirror the settings shape. A leaf is an object with a
// string "kind" member; every other object is a nested schema:
//
//	{
//	  "app": {
//	    "name":  {"kind": "string", "required": true, "minLength": 3},
//	    "email": {"kind": "string", "pattern": "^[^\\s@]+@[^\\s@]+\\.[^\\s@]+$"}
//	  },
//	  "wallet": {"minimumBalance": {"kind": "number", "min": 0}}
//	}

const kindKey = "kind"

// ParseSchemaJSON parses a JSON schema document.
func ParseSchemaJSON(data []byte) (Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}
	return ParseSchema(doc)
}

// ParseSchemaYAML parses a YAML schema document.
func ParseSchemaYAML(data []byte) (Schema, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}
	return ParseSchema(doc)
}

// ParseSchema builds a Schema from a decoded document.
func ParseSchema(doc map[string]any) (Schema, error) {
	return parseSchema(doc, "")
}

func parseSchema(doc map[string]any, prefix string) (Schema, error) {
	schema := make(Schema, len(doc))
	for key, raw := range doc {
		path := joinPath(prefix, key)
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: path, Reason: fmt.Sprintf("expected object, got %s", describe(raw))}
		}
		if _, leaf := obj[kindKey].(string); leaf {
			rule, err := parseRule(obj, path)
			if err != nil {
				return nil, err
			}
			schema[key] = Field(rule)
			continue
		}
		nested, err := parseSchema(obj, path)
		if err != nil {
			return nil, err
		}
		schema[key] = Nest(nested)
	}
	return schema, nil
}

func parseRule(obj map[string]any, path string) (Rule, error) {
	var rule Rule
	for attr, raw := range obj {
		switch attr {
		case kindKey:
			rule.Kind = Kind(raw.(string))
		case "required":
			b, ok := raw.(bool)
			if !ok {
				return Rule{}, &SchemaError{Path: path, Reason: "required must be a boolean"}
			}
			rule.Required = b
		case "pattern":
			s, ok := raw.(string)
			if !ok {
				return Rule{}, &SchemaError{Path: path, Reason: "pattern must be a string"}
			}
			rule.Pattern = s
		case "minLength", "maxLength":
			n, err := parseLength(raw)
			if err != nil {
				return Rule{}, &SchemaError{Path: path, Reason: attr + " " + err.Error()}
			}
			if attr == "minLength" {
				rule.MinLength = &n
			} else {
				rule.MaxLength = &n
			}
		case "min":
			f, ok := toFloat(raw)
			if !ok {
				return Rule{}, &SchemaError{Path: path, Reason: "min must be a number"}
			}
			rule.Min = &f
		default:
			return Rule{}, &SchemaError{Path: path, Reason: fmt.Sprintf("unknown rule attribute %q", attr)}
		}
	}
	return rule, nil
}

func parseLength(raw any) (int, error) {
	f, ok := toFloat(raw)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("must be an integer")
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("must not exceed %d", math.MaxInt32)
	}
	return int(f), nil
}

// Document renders s in the schema document format accepted by ParseSchema.
func (s Schema) Document() map[string]any {
	doc := make(map[string]any, len(s))
	for key, node := range s {
		if rule, ok := node.Rule(); ok {
			doc[key] = ruleDocument(rule)
			continue
		}
		nested, _ := node.Schema()
		doc[key] = nested.Document()
	}
	return doc
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

func ruleDocument(rule Rule) map[string]any {
	doc := map[string]any{kindKey: string(rule.kind())}
	if rule.Required {
		doc["required"] = true
	}
	if rule.Pattern != "" {
		doc["pattern"] = rule.Pattern
	}
	if rule.MinLength != nil {
		doc["minLength"] = *rule.MinLength
	}
	if rule.MaxLength != nil {
		doc["maxLength"] = *rule.MaxLength
	}
	if rule.Min != nil {
		doc["min"] = *rule.Min
	}
	return doc
}
