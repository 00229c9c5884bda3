package masking

import (
	"encoding/json"
	"strings"
)

// FieldKeyMasker is a code-based Masker that redacts any JSON string value
// whose key matches sensitiveFieldKey (authorization, api_key, apikey,
// token, secret, password, pat); non-string values under such keys are
// not replaced, only searched for nested sensitive keys. It only
// applies to data that parses as JSON; non-JSON text is left for the regex
// patterns to catch.
type FieldKeyMasker struct{}

func (FieldKeyMasker) Name() string { return "field_key" }

// AppliesTo is a cheap heuristic: looks like a JSON object or array and
// mentions at least one sensitive key name.
func (FieldKeyMasker) AppliesTo(data string) bool {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	return sensitiveFieldKey.MatchString(data)
}

// Mask walks a parsed JSON value and replaces string values at sensitive
// keys with "[REDACTED]". Returns the original data unchanged on any parse
// error, per the Masker contract.
func (FieldKeyMasker) Mask(data string) string {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return data
	}
	redactFields(v)
	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return string(out)
}

func redactFields(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if sensitiveFieldKey.MatchString(k) {
				if _, isString := val.(string); isString {
					t[k] = "[REDACTED]"
					continue
				}
			}
			redactFields(val)
		}
	case []any:
		for _, item := range t {
			redactFields(item)
		}
	}
}
