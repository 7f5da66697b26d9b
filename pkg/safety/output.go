package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackResponse replaces outputs that are empty or too short to be a real
// answer.
const FallbackResponse = "I apologize, but I couldn't generate a proper response. Please try rephrasing your question."

// redactionRule names a class of sensitive content and the pattern that
// detects it. Matches are replaced with "[REDACTED_<NAME>]".
type redactionRule struct {
	name string
	expr *regexp.Regexp
}

func redaction(name, pattern string) redactionRule {
	return redactionRule{name: name, expr: regexp.MustCompile(pattern)}
}

// piiRules cover content belonging to people: addresses, numbers, secrets.
var piiRules = []redactionRule{
	redaction("email", `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
	redaction("phone", `\b(?:\+?1[-.]?)?\(?([0-9]{3})\)?[-.]?([0-9]{3})[-.]?([0-9]{4})\b`),
	redaction("ssn", `\b\d{3}-\d{2}-\d{4}\b`),
	redaction("credit_card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
	redaction("api_key", `\b[A-Za-z0-9]{32,}\b`),
	redaction("password", `(?i)(password|passwd|pwd)[\s:=]+[^\s]+`),
}

// internalRules cover system internals that must never reach a customer.
var internalRules = []redactionRule{
	redaction("database_id", `(?i)\b(user_id|customer_id|internal_id)[\s:=]+\d+`),
	redaction("sql_query", `(?i)\b(SELECT|INSERT|UPDATE|DELETE)\s+.*\s+FROM\s+`),
	redaction("file_path", `[/\\][a-zA-Z0-9_\-./\\]+`),
	redaction("ip_address", `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
}

// hallucinationExprs flag phrasing where the responder disclaims knowledge.
// They add a warning only and never affect safety.
var hallucinationExprs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I (don't|do not) (have|know|remember)`),
	regexp.MustCompile(`(?i)I (cannot|can't) (access|retrieve|find)`),
	regexp.MustCompile(`(?i)(as an AI|as a language model)`),
	regexp.MustCompile(`(?i)I (apologize|sorry)`),
}

var inappropriateKeywords = []string{
	"hack", "exploit", "bypass", "jailbreak",
	"illegal", "fraud", "scam",
}

// criticalConfidence is the floor below which a confidence score is a
// critical finding on its own.
const criticalConfidence = 0.3

// OutputConfig tunes the output validator.
type OutputConfig struct {
	MinConfidence      float64
	RedactPII          bool
	RedactInternalData bool
	StrictMode         bool
}

// DefaultOutputConfig returns the baseline output validator settings.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		MinConfidence:      0.6,
		RedactPII:          true,
		RedactInternalData: true,
	}
}

// OutputContext carries caller-supplied facts that exempt content from
// redaction. UserEmail is the address of the user the response is addressed
// to; an exact match is preserved rather than redacted.
type OutputContext struct {
	UserEmail string
}

// OutputValidator screens handler output before it is returned to a caller.
type OutputValidator struct {
	cfg OutputConfig
}

// NewOutputValidator constructs a validator. A non-positive MinConfidence
// falls back to the default threshold.
func NewOutputValidator(cfg OutputConfig) *OutputValidator {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}
	return &OutputValidator{cfg: cfg}
}

// Validate screens output text. Pass a negative confidence when the producer
// supplied none; confidence checks are skipped in that case.
func (v *OutputValidator) Validate(output string, confidence float64, octx OutputContext) OutputResult {
	var issues []OutputIssue
	sanitized := output
	shouldEscalate := false

	if confidence >= 0 {
		if confidence < v.cfg.MinConfidence {
			issues = append(issues, OutputIssue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Low confidence score: %.2f", confidence),
				Category: "low_confidence",
			})
			shouldEscalate = true
		}
		if confidence < criticalConfidence {
			issues = append(issues, OutputIssue{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("Critically low confidence: %.2f", confidence),
				Category: "critical_low_confidence",
			})
		}
	}

	for _, expr := range hallucinationExprs {
		if expr.MatchString(output) {
			issues = append(issues, OutputIssue{
				Severity: SeverityWarning,
				Message:  "Potential hallucination detected",
				Category: "hallucination",
			})
			break
		}
	}

	if v.cfg.RedactPII {
		for _, r := range piiRules {
			sanitized, issues = redact(sanitized, issues, r, "pii_leakage", SeverityError, octx)
		}
	}

	if v.cfg.RedactInternalData {
		for _, r := range internalRules {
			sanitized, issues = redact(sanitized, issues, r, "data_leakage", SeverityCritical, OutputContext{})
		}
	}

	lower := strings.ToLower(output)
	for _, keyword := range inappropriateKeywords {
		if strings.Contains(lower, keyword) {
			issues = append(issues, OutputIssue{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Potentially inappropriate content: %s", keyword),
				Category: "inappropriate_content",
			})
			if v.cfg.StrictMode {
				shouldEscalate = true
			}
		}
	}

	// Unusable outputs are replaced wholesale rather than shown raw.
	trimmed := strings.TrimSpace(sanitized)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		issues = append(issues, OutputIssue{
			Severity: SeverityError,
			Message:  "Output is empty or null",
			Category: "empty_output",
		})
		sanitized = FallbackResponse
	} else if len(trimmed) < 10 {
		issues = append(issues, OutputIssue{
			Severity: SeverityError,
			Message:  "Output is suspiciously short",
			Category: "short_output",
		})
		sanitized = FallbackResponse
	}

	safe := true
	errorCount := 0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError, SeverityCritical:
			safe = false
			errorCount++
		case SeverityWarning:
			if v.cfg.StrictMode {
				safe = false
			}
		}
	}

	if errorCount >= 2 {
		shouldEscalate = true
	}

	reported := confidence
	if reported < 0 {
		reported = 0
	}

	return OutputResult{
		IsSafe:         safe,
		Sanitized:      sanitized,
		Issues:         issues,
		Confidence:     reported,
		ShouldEscalate: shouldEscalate,
	}
}

// redact records an issue per match and masks the content in place. An email
// exactly matching the context's UserEmail is preserved.
func redact(text string, issues []OutputIssue, r redactionRule, category string, severity Severity, octx OutputContext) (string, []OutputIssue) {
	placeholder := fmt.Sprintf("[REDACTED_%s]", strings.ToUpper(r.name))

	result := r.expr.ReplaceAllStringFunc(text, func(match string) string {
		if r.name == "email" && octx.UserEmail != "" && match == octx.UserEmail {
			return match
		}
		snippet := match
		if len(snippet) > 50 {
			snippet = snippet[:50]
		}
		issues = append(issues, OutputIssue{
			Severity: severity,
			Message:  fmt.Sprintf("%s detected: %s", categoryLabel(category), r.name),
			Category: category,
			Redacted: snippet,
		})
		return placeholder
	})

	return result, issues
}

func categoryLabel(category string) string {
	switch category {
	case "pii_leakage":
		return "PII"
	case "data_leakage":
		return "Internal data exposure"
	default:
		return category
	}
}

// RedactEmailsExcept masks every email in text except those in allowed.
func RedactEmailsExcept(text string, allowed map[string]struct{}) string {
	return emailExpr.ReplaceAllStringFunc(text, func(match string) string {
		if _, ok := allowed[match]; ok {
			return match
		}
		return "[REDACTED_EMAIL]"
	})
}
