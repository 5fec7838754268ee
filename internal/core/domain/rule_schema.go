package domain

import (
	"encoding/json"
	"time"
)

// RuleSchema is a tenant override of the built-in rules of one section.
// Schema holds the rule document in the format read by
// validation.ParseSchemaJSON.
type RuleSchema struct {
	TenantID  string
	Section   Section
	Schema    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
