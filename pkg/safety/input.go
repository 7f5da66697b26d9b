package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// patternRule pairs a compiled detection pattern with the severity of a
// match.
type patternRule struct {
	expr     *regexp.Regexp
	severity Severity
}

// patternFamily is an independent group of rules sharing a category label.
type patternFamily struct {
	category string
	rules    []patternRule
}

func rule(pattern string, severity Severity) patternRule {
	return patternRule{expr: regexp.MustCompile(pattern), severity: severity}
}

var inputFamilies = []patternFamily{
	{
		category: "prompt_injection",
		rules: []patternRule{
			// Direct instruction override
			rule(`(?i)ignore\s+(previous|all|above|prior)\s+instructions?`, SeverityCritical),
			rule(`(?i)disregard\s+(previous|all|above|prior)\s+instructions?`, SeverityCritical),
			rule(`(?i)forget\s+(previous|all|above|prior)\s+instructions?`, SeverityCritical),
			// Role manipulation
			rule(`(?i)you\s+are\s+now\s+(a|an|in)\s+\w+\s+mode`, SeverityCritical),
			rule(`(?i)act\s+as\s+(a|an)\s+\w+`, SeverityWarning),
			rule(`(?i)pretend\s+(you\s+are|to\s+be)`, SeverityWarning),
			// System prompt extraction
			rule(`(?i)(show|reveal|display|print)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`, SeverityCritical),
			rule(`(?i)what\s+(are|is)\s+your\s+(system\s+)?(prompt|instructions?)`, SeverityError),
			// Data extraction attempts
			rule(`(?i)(show|reveal|display|list)\s+all\s+(users?|data|records?|emails?)`, SeverityCritical),
			rule(`(?i)(delete|drop|truncate)\s+(all|table|database)`, SeverityCritical),
			// Jailbreak attempts
			rule(`(?i)(DAN|developer\s+mode|god\s+mode)`, SeverityCritical),
			rule(`(?i)sudo\s+mode`, SeverityError),
			// Encoding tricks
			rule(`(?i)base64|hex\s+encoded|rot13`, SeverityWarning),
			// Delimiter injection
			rule(`(?i)(\[SYSTEM\]|\[INST\]|\[/INST\]|<\|system\|>|<\|user\|>)`, SeverityError),
		},
	},
	{
		category: "sql_injection",
		rules: []patternRule{
			rule(`(?i)('\s*OR\s+'1'\s*=\s*'1)`, SeverityCritical),
			rule(`(--|#|/\*|\*/)`, SeverityWarning),
			rule(`(?i)(UNION\s+SELECT|DROP\s+TABLE|DELETE\s+FROM)`, SeverityCritical),
			rule(`(?i)(xp_cmdshell|exec\s+master)`, SeverityCritical),
		},
	},
	{
		category: "xss",
		rules: []patternRule{
			rule(`(?is)<script[^>]*>.*?</script>`, SeverityCritical),
			rule(`(?i)javascript:`, SeverityError),
			rule(`(?i)on(load|error|click|mouseover)\s*=`, SeverityError),
			rule(`(?i)<iframe[^>]*>`, SeverityWarning),
		},
	},
	{
		category: "path_traversal",
		rules: []patternRule{
			rule(`\.\./`, SeverityError),
			rule(`\.\.\\`, SeverityError),
			rule(`(?i)%2e%2e/`, SeverityError),
			rule(`(?i)(etc/passwd|windows/system32)`, SeverityCritical),
		},
	},
}

var htmlTagExpr = regexp.MustCompile(`<[^>]+>`)

// InputConfig tunes the input validator.
type InputConfig struct {
	MaxLength  int
	MinLength  int
	StripHTML  bool
	StrictMode bool // treat warnings as invalidating
}

// DefaultInputConfig returns the baseline validator settings.
func DefaultInputConfig() InputConfig {
	return InputConfig{MaxLength: 5000, MinLength: 1}
}

// InputValidator screens untrusted text against injection pattern families
// and produces a sanitized copy.
type InputValidator struct {
	cfg InputConfig
}

// NewInputValidator constructs a validator. Zero or negative length bounds
// fall back to defaults.
func NewInputValidator(cfg InputConfig) *InputValidator {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 5000
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1
	}
	return &InputValidator{cfg: cfg}
}

// Validate screens text and returns issues, a risk score and the sanitized
// copy. The sanitized text is computed even when the input is invalid.
func (v *InputValidator) Validate(text string) ValidationResult {
	if strings.TrimSpace(text) == "" {
		return ValidationResult{
			IsValid:   false,
			Sanitized: "",
			Issues: []ValidationIssue{{
				Severity: SeverityError,
				Message:  "Input cannot be empty",
				Pattern:  "empty_input",
			}},
			RiskScore: 0,
		}
	}

	var issues []ValidationIssue
	risk := 0.0

	if len(text) > v.cfg.MaxLength {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Input exceeds maximum length of %d characters", v.cfg.MaxLength),
			Pattern:  "length_exceeded",
		})
		risk += 0.2
	}
	if len(text) < v.cfg.MinLength {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Input is below minimum length of %d characters", v.cfg.MinLength),
			Pattern:  "length_too_short",
		})
	}

	for _, family := range inputFamilies {
		familyIssues, familyRisk := checkFamily(text, family)
		issues = append(issues, familyIssues...)
		risk += familyRisk
	}

	valid := true
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError, SeverityCritical:
			valid = false
		case SeverityWarning:
			if v.cfg.StrictMode {
				valid = false
			}
		}
	}

	if risk > 1.0 {
		risk = 1.0
	}

	return ValidationResult{
		IsValid:   valid,
		Sanitized: v.Sanitize(text),
		Issues:    issues,
		RiskScore: risk,
	}
}

// checkFamily matches every rule in a family anywhere in the text; each
// match contributes one issue and a severity-weighted risk increment.
func checkFamily(text string, family patternFamily) ([]ValidationIssue, float64) {
	var issues []ValidationIssue
	risk := 0.0

	for _, r := range family.rules {
		for _, loc := range r.expr.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if len(match) > 50 {
				match = match[:50]
			}
			issues = append(issues, ValidationIssue{
				Severity: r.severity,
				Message:  fmt.Sprintf("Detected potential %s: %s", family.category, match),
				Pattern:  r.expr.String(),
				Location: fmt.Sprintf("position %d-%d", loc[0], loc[1]),
			})
			switch r.severity {
			case SeverityCritical:
				risk += 0.4
			case SeverityError:
				risk += 0.2
			case SeverityWarning:
				risk += 0.1
			}
		}
	}
	return issues, risk
}

// Sanitize strips null bytes and non-printable control characters except
// newline, tab and carriage return, collapses whitespace runs to single
// spaces, optionally removes HTML tags and truncates to the configured
// maximum length. Sanitize is idempotent.
func (v *InputValidator) Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r == '\r' || r >= 32 {
			b.WriteRune(r)
		}
	}

	sanitized := strings.Join(strings.Fields(b.String()), " ")

	if v.cfg.StripHTML {
		sanitized = htmlTagExpr.ReplaceAllString(sanitized, "")
	}

	if len(sanitized) > v.cfg.MaxLength {
		// Truncate on a rune boundary so a multi-byte character is never
		// split into invalid UTF-8.
		cut := v.cfg.MaxLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = sanitized[:cut]
	}

	return strings.TrimSpace(sanitized)
}

var (
	emailExpr      = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	exactEmailExpr = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidEmail reports whether s is a plausible email address.
func ValidEmail(s string) bool {
	return s != "" && exactEmailExpr.MatchString(s)
}

// ExtractEmail returns the first email address found in text, or empty.
func ExtractEmail(text string) string {
	return emailExpr.FindString(text)
}
