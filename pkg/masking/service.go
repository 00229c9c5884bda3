package masking

// Service applies the daemon's fixed redaction rule set to tool arguments,
// tool results, and UI events before they reach audit logs or the event
// bus: "Bearer <token>", provider API keys, and any JSON field whose key
// contains authorization/api_key/apikey/token/secret/password/pat.
//
// Unlike the teacher's per-MCP-server configurable masking, the rule set
// here is fixed — there is no registry of servers to key masking config by
// — so Service is a stateless singleton safe for concurrent use.
type Service struct {
	patterns    []*CompiledPattern
	codeMaskers []Masker
}

// NewService creates a masking service with the built-in patterns and
// maskers compiled/registered eagerly, following the teacher's
// NewMaskingService shape.
func NewService() *Service {
	return &Service{
		patterns:    builtinPatterns,
		codeMaskers: []Masker{FieldKeyMasker{}},
	}
}

// MaskToolResult redacts a tool call's arguments or result content.
// Fail-closed: redaction is never skipped here because the masking logic
// itself never returns an error — the regexes and FieldKeyMasker are both
// total functions over their input — so this always returns usable output.
func (s *Service) MaskToolResult(content string) string {
	return s.apply(content)
}

// MaskUIEvent redacts content before it is published to the UI event bus
// or written to an audit log. Identical rule set to MaskToolResult; kept
// as a distinct method so call sites document intent, mirroring the
// teacher's MaskToolResult/MaskAlertData split.
func (s *Service) MaskUIEvent(content string) string {
	return s.apply(content)
}

func (s *Service) apply(content string) string {
	if content == "" {
		return content
	}

	masked := content
	for _, m := range s.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
