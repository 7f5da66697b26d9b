package safety

// Severity grades a validation finding.
type Severity string

const (
	// SeverityInfo is advisory only.
	SeverityInfo Severity = "info"
	// SeverityWarning does not invalidate unless strict mode is on.
	SeverityWarning Severity = "warning"
	// SeverityError invalidates the text.
	SeverityError Severity = "error"
	// SeverityCritical invalidates the text and indicates an attack signature.
	SeverityCritical Severity = "critical"
)

// ValidationIssue is a single finding in input text. Issues are consumed
// immediately by the caller that requested validation; they are never
// persisted.
type ValidationIssue struct {
	Severity Severity
	Message  string
	Pattern  string
	Location string
}

// ValidationResult is the outcome of input validation.
type ValidationResult struct {
	IsValid   bool
	Sanitized string
	Issues    []ValidationIssue
	RiskScore float64 // 0.0 (safe) to 1.0 (dangerous)
}

// HasCritical reports whether any issue is critical.
func (r ValidationResult) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasErrors reports whether any issue is error or critical.
func (r ValidationResult) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError || issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// OutputIssue is a single finding in handler output. Redacted holds a
// truncated copy of the content that was masked, when applicable.
type OutputIssue struct {
	Severity Severity
	Message  string
	Category string
	Redacted string
}

// OutputResult is the outcome of output validation.
type OutputResult struct {
	IsSafe         bool
	Sanitized      string
	Issues         []OutputIssue
	Confidence     float64
	ShouldEscalate bool
}

// HasCritical reports whether any issue is critical.
func (r OutputResult) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
