// Package safety guards both ends of the support pipeline.
//
// InputValidator inspects untrusted text before it reaches any handler:
// pattern families for prompt injection, SQL injection, XSS and path
// traversal produce issues and an additive risk score, and the text is
// sanitized regardless of validity. OutputValidator inspects text leaving a
// handler: PII and internal data are redacted in place, low confidence and
// hallucination phrasing are flagged, and unusable outputs are replaced with
// a fallback apology.
//
// Validity and sanitization are independent outputs: callers must check
// IsValid/IsSafe before trusting the sanitized text for downstream logic.
package safety
