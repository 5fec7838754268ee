package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const (
	MsgRequired      = "This field is required"
	MsgInvalidFormat = "Invalid format"
)

// ErrInvalidSchema matches every *SchemaError.
var ErrInvalidSchema = errors.New("invalid validation schema")

// SchemaError reports a rule that cannot be compiled.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema field %q: %s", e.Path, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// TypeError reports a value whose type does not match its rule.
type TypeError struct {
	Path string
	Want string
	Got  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("field %q: expected %s, got %s", e.Path, e.Want, e.Got)
}

// FieldError is a single entry of an ErrorMap: a message for a leaf or a
// nested ErrorMap for an object.
type FieldError struct {
	Message string
	Nested  ErrorMap
}

func (e FieldError) MarshalJSON() ([]byte, error) {
	if e.Nested != nil {
		return json.Marshal(e.Nested)
	}
	return json.Marshal(e.Message)
}

func (e *FieldError) UnmarshalJSON(data []byte) error {
	var nested ErrorMap
	if err := json.Unmarshal(data, &nested); err == nil {
		e.Nested = nested
		e.Message = ""
		return nil
	}
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("field error must be a string or an object: %w", err)
	}
	e.Message = msg
	e.Nested = nil
	return nil
}

// ErrorMap mirrors the validated values, holding entries only where a rule
// failed. An empty map means the values are valid.
type ErrorMap map[string]FieldError

func (m ErrorMap) Empty() bool {
	return len(m) == 0
}

// Flatten returns the leaf messages keyed by dotted path.
func (m ErrorMap) Flatten() map[string]string {
	out := make(map[string]string)
	m.flatten("", out)
	return out
}

func (m ErrorMap) flatten(prefix string, out map[string]string) {
	for key, fe := range m {
		path := joinPath(prefix, key)
		if fe.Nested != nil {
			fe.Nested.flatten(path, out)
			continue
		}
		out[path] = fe.Message
	}
}

// Messages returns "path: message" lines sorted by path.
func (m ErrorMap) Messages() []string {
	flat := m.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p+": "+flat[p])
	}
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
