package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement,
// following the teacher's masking.CompiledPattern shape.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns are the two regex rules named by the redaction
// requirements: "Bearer <token>" and provider API keys (sk-/xai-/
// github_pat_/ghp_/gho_/ghu_/ghs_/ghr_ prefixed tokens).
var builtinPatterns = []*CompiledPattern{
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9_\-.=]+`),
		Replacement: "Bearer [REDACTED]",
	},
	{
		Name:        "provider_api_key",
		Regex:       regexp.MustCompile(`(sk-|xai-|github_pat_|ghp_|gho_|ghu_|ghs_|ghr_)[A-Za-z0-9_\-]+`),
		Replacement: "[REDACTED]",
	},
}

// sensitiveFieldKey matches JSON/map keys the field-name masker treats as
// secret regardless of value shape.
var sensitiveFieldKey = regexp.MustCompile(`(?i)authorization|api_key|apikey|token|secret|password|pat`)
