package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaWithoutRules(t *testing.T) {
	schema := Schema{
		"app":   Nest(Schema{}),
		"theme": Nest(Schema{"colors": Nest(nil)}),
	}
	for _, values := range []Values{
		nil,
		{},
		{"app": map[string]any{"name": ""}, "unknown": 42},
	} {
		errs, err := Validate(values, schema)
		require.NoError(t, err)
		assert.True(t, errs.Empty())
	}
}

func TestValidateRequired(t *testing.T) {
	schema := Schema{"name": Field(Rule{Required: true})}

	for name, values := range map[string]Values{
		"empty string": {"name": ""},
		"nil":          {"name": nil},
		"absent":       {},
	} {
		t.Run(name, func(t *testing.T) {
			errs, err := Validate(values, schema)
			require.NoError(t, err)
			assert.Equal(t, ErrorMap{"name": {Message: "This field is required"}}, errs)
		})
	}
}

func TestValidateRequiredAcceptsZeroAndFalse(t *testing.T) {
	schema := Schema{
		"balance": Field(Rule{Kind: KindNumber, Required: true, Min: Ptr(0.0)}),
		"enabled": Field(Rule{Kind: KindBool, Required: true}),
	}
	errs, err := Validate(Values{"balance": 0.0, "enabled": false}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
}

func TestValidatePattern(t *testing.T) {
	schema := Schema{"code": Field(Rule{Pattern: `^\d+$`})}

	errs, err := Validate(Values{"code": "abc"}, schema)
	require.NoError(t, err)
	assert.Equal(t, "Invalid format", errs["code"].Message)

	errs, err = Validate(Values{"code": "123"}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
}

func TestValidatePatternMatchesWholeString(t *testing.T) {
	schema := Schema{"code": Field(Rule{Pattern: `\d+`})}

	errs, err := Validate(Values{"code": "12ab"}, schema)
	require.NoError(t, err)
	assert.Equal(t, MsgInvalidFormat, errs["code"].Message)

	errs, err = Validate(Values{"code": "12"}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
}

func TestValidateLengthBounds(t *testing.T) {
	schema := Schema{"name": Field(Rule{MinLength: Ptr(3), MaxLength: Ptr(5)})}

	errs, err := Validate(Values{"name": "ab"}, schema)
	require.NoError(t, err)
	assert.Equal(t, "Minimum length is 3", errs["name"].Message)

	errs, err = Validate(Values{"name": "abc"}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())

	errs, err = Validate(Values{"name": "abcdef"}, schema)
	require.NoError(t, err)
	assert.Equal(t, "Maximum length is 5", errs["name"].Message)
}

func TestValidateLengthCountsCodePoints(t *testing.T) {
	schema := Schema{"name": Field(Rule{MaxLength: Ptr(3)})}
	errs, err := Validate(Values{"name": "äöü"}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
}

func TestValidateMin(t *testing.T) {
	schema := Schema{"balance": Field(Rule{Kind: KindNumber, Min: Ptr(0.0)})}

	errs, err := Validate(Values{"balance": -1}, schema)
	require.NoError(t, err)
	assert.Equal(t, "Minimum value is 0", errs["balance"].Message)

	errs, err = Validate(Values{"balance": 0}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())

	errs, err = Validate(Values{"balance": json.Number("999.5")}, Schema{"balance": Field(Rule{Kind: KindNumber, Min: Ptr(1000.0)})})
	require.NoError(t, err)
	assert.Equal(t, "Minimum value is 1000", errs["balance"].Message)
}

func TestValidateStopsAtFirstFailure(t *testing.T) {
	schema := Schema{"name": Field(Rule{Required: true, Pattern: `^[a-z]+$`, MinLength: Ptr(5)})}

	errs, err := Validate(Values{"name": "AB"}, schema)
	require.NoError(t, err)
	assert.Equal(t, MsgInvalidFormat, errs["name"].Message)

	errs, err = Validate(Values{"name": "ab"}, schema)
	require.NoError(t, err)
	assert.Equal(t, "Minimum length is 5", errs["name"].Message)
}

func TestValidateOptionalEmptySkipsRules(t *testing.T) {
	schema := Schema{"website": Field(Rule{Pattern: `^https://.+$`, MinLength: Ptr(10)})}
	errs, err := Validate(Values{"website": ""}, schema)
	require.NoError(t, err)
	assert.True(t, errs.Empty())
}

func TestValidateNested(t *testing.T) {
	schema := Schema{"a": Nest(Schema{"b": Field(Rule{Required: true})})}

	errs, err := Validate(Values{"a": map[string]any{"b": ""}}, schema)
	require.NoError(t, err)
	assert.Equal(t, ErrorMap{"a": {Nested: ErrorMap{"b": {Message: MsgRequired}}}}, errs)

	encoded, err := json.Marshal(errs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b":"This field is required"}}`, string(encoded))
}

func TestValidateNestedAbsentObjectIsEmpty(t *testing.T) {
	schema := Schema{"a": Nest(Schema{"b": Field(Rule{Required: true}), "c": Field(Rule{})})}

	errs, err := Validate(Values{}, schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.b": MsgRequired}, errs.Flatten())
}

func TestValidateOmitsValidNestedObjects(t *testing.T) {
	schema := Schema{
		"app":   Nest(Schema{"name": Field(Rule{Required: true})}),
		"theme": Nest(Schema{"color": Field(Rule{Required: true})}),
	}
	errs, err := Validate(Values{
		"app":   map[string]any{"name": "Handyman"},
		"theme": map[string]any{},
	}, schema)
	require.NoError(t, err)
	_, hasApp := errs["app"]
	assert.False(t, hasApp)
	assert.Contains(t, errs, "theme")
}

func TestValidateTypeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		values Values
		path   string
	}{
		{"number for string", Schema{"name": Field(Rule{})}, Values{"name": 12}, "name"},
		{"string for number", Schema{"min": Field(Rule{Kind: KindNumber})}, Values{"min": "5"}, "min"},
		{"string for bool", Schema{"on": Field(Rule{Kind: KindBool})}, Values{"on": "true"}, "on"},
		{"scalar for object", Schema{"app": Nest(Schema{"name": Field(Rule{})})}, Values{"app": "x"}, "app"},
		{"nested path", Schema{"app": Nest(Schema{"name": Field(Rule{})})}, Values{"app": map[string]any{"name": []any{}}}, "app.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := Validate(tt.values, tt.schema)
			assert.Nil(t, errs)
			var typeErr *TypeError
			require.True(t, errors.As(err, &typeErr), "got %v", err)
			assert.Equal(t, tt.path, typeErr.Path)
		})
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	schema := Schema{
		"app": Nest(Schema{
			"name":  Field(Rule{Required: true, MinLength: Ptr(3)}),
			"email": Field(Rule{Required: true, Pattern: `^[^\s@]+@[^\s@]+\.[^\s@]+$`}),
		}),
		"wallet": Nest(Schema{"minimumBalance": Field(Rule{Kind: KindNumber, Min: Ptr(0.0)})}),
	}
	values := Values{
		"app":    map[string]any{"name": "ab", "email": "nope"},
		"wallet": map[string]any{"minimumBalance": -5.0},
	}
	c, err := Compile(schema)
	require.NoError(t, err)

	first, err := c.Validate(values)
	require.NoError(t, err)
	second, err := c.Validate(values)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.Flatten(), 3)
}

func TestCompileRejectsInconsistentRules(t *testing.T) {
	tests := map[string]Schema{
		"min on string":       {"x": Field(Rule{Min: Ptr(1.0)})},
		"pattern on number":   {"x": Field(Rule{Kind: KindNumber, Pattern: `\d`})},
		"length on bool":      {"x": Field(Rule{Kind: KindBool, MinLength: Ptr(1)})},
		"negative length":     {"x": Field(Rule{MinLength: Ptr(-1)})},
		"crossed bounds":      {"x": Field(Rule{MinLength: Ptr(4), MaxLength: Ptr(2)})},
		"bad pattern":         {"x": Field(Rule{Pattern: `(`})},
		"unknown kind":        {"x": Field(Rule{Kind: "date"})},
		"empty node":          {"x": Node{}},
		"nested invalid rule": {"a": Nest(Schema{"x": Field(Rule{Kind: KindBool, Min: Ptr(0.0)})})},
	}
	for name, schema := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(schema)
			require.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestCompiledChildAndWithout(t *testing.T) {
	c := MustCompile(Schema{
		"stripe": Nest(Schema{"key": Field(Rule{Required: true})}),
		"wallet": Nest(Schema{"min": Field(Rule{Kind: KindNumber, Required: true})}),
	})

	stripe, ok := c.Child("stripe")
	require.True(t, ok)
	errs, err := stripe.Validate(Values{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"key": MsgRequired}, errs.Flatten())

	_, ok = c.Child("missing")
	assert.False(t, ok)

	errs, err = c.Without("stripe").Validate(Values{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wallet.min": MsgRequired}, errs.Flatten())

	errs, err = c.Validate(Values{})
	require.NoError(t, err)
	assert.Len(t, errs.Flatten(), 2)
}

func TestCompiledAbsent(t *testing.T) {
	c := MustCompile(Schema{
		"app": Nest(Schema{
			"name": Field(Rule{Required: true}),
			"nmae": Field(Rule{Required: true}),
		}),
		"extra": Field(Rule{}),
		"theme": Nest(Schema{"primary": Field(Rule{})}),
	})

	absent := c.Absent(Values{
		"app":   map[string]any{"name": "x"},
		"theme": "flat",
	})
	assert.Equal(t, []string{"app.nmae", "extra"}, absent)

	assert.Empty(t, c.Absent(Values{
		"app":   map[string]any{"name": "", "nmae": nil},
		"extra": 1,
		"theme": map[string]any{"primary": "#fff"},
	}))
}

func TestPatternTimeoutFailsCall(t *testing.T) {
	c := MustCompile(Schema{"x": Field(Rule{Pattern: `(a+)+b`})})
	c.root.fields["x"].pattern.MatchTimeout = time.Millisecond

	_, err := c.Validate(Values{"x": strings.Repeat("a", 64)})
	require.Error(t, err)
}

func TestErrorMapMessagesSorted(t *testing.T) {
	errs := ErrorMap{
		"theme": {Nested: ErrorMap{"primaryColor": {Message: MsgInvalidFormat}}},
		"app":   {Nested: ErrorMap{"name": {Message: MsgRequired}}},
	}
	assert.Equal(t, []string{
		"app.name: This field is required",
		"theme.primaryColor: Invalid format",
	}, errs.Messages())
}

func TestErrorMapJSONRoundTrip(t *testing.T) {
	raw := `{"app":{"name":"This field is required"},"wallet":{"minimumBalance":"Minimum value is 0"}}`
	var errs ErrorMap
	require.NoError(t, json.Unmarshal([]byte(raw), &errs))
	assert.Equal(t, MsgRequired, errs["app"].Nested["name"].Message)

	out, err := json.Marshal(errs)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
