package httpapi

func sectionParameter() map[string]any {
	return map[string]any{
		"name":     "section",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string", "enum": []string{"general", "service", "payment"}},
	}
}

func openapiSpec() map[string]any {
	section := []any{sectionParameter()}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "adminsettings",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
				"bearer": map[string]any{"type": "http", "scheme": "bearer"},
			},
		},
		"security": []any{map[string]any{"apiKey": []string{}}, map[string]any{"bearer": []string{}}},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{"summary": "Health check", "security": []any{}},
			},
			"/v1/settings": map[string]any{
				"get": map[string]any{"summary": "Get all settings sections"},
			},
			"/v1/settings:reset": map[string]any{
				"post": map[string]any{"summary": "Reset every section to its defaults"},
			},
			"/v1/settings/{section}": map[string]any{
				"parameters": section,
				"get":        map[string]any{"summary": "Get one settings section"},
				"put": map[string]any{
					"summary": "Replace one settings section",
					"responses": map[string]any{
						"200": map[string]any{"description": "Stored"},
						"422": map[string]any{"description": "Validation failed; fields mirrors the section shape"},
					},
				},
			},
			"/v1/settings/{section}:validate": map[string]any{
				"parameters": section,
				"post":       map[string]any{"summary": "Validate a section without storing it"},
			},
			"/v1/payment-methods": map[string]any{
				"get": map[string]any{"summary": "List enabled payment methods and mobile money providers"},
			},
			"/v1/rule-schemas/{section}": map[string]any{
				"parameters": section,
				"get":        map[string]any{"summary": "Get the effective rule document"},
				"put":        map[string]any{"summary": "Override the rules of a section"},
				"delete":     map[string]any{"summary": "Drop the override and use the built-in rules"},
			},
			"/v1/audit": map[string]any{
				"get": map[string]any{"summary": "List settings audit events, newest first"},
			},
		},
	}
}
