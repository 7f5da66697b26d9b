package agents

import (
	"strings"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// Broad classification categories.
const (
	CategoryTechnical = "Technical Support"
	CategoryBilling   = "Billing & Subscription"
	CategoryComplaint = "Complaint"
	CategoryGeneral   = "General Inquiry"
)

// Specific intents produced by classification.
const (
	IntentAPIAuthFailure   = "API Authentication Failure"
	IntentPerformanceIssue = "Performance Issue"
	IntentBugReport        = "Bug Report"
	IntentCancellation     = "Subscription Cancellation"
	IntentUpgrade          = "Subscription Upgrade"
	IntentInvoiceRequest   = "Invoice Request"
	IntentDissatisfaction  = "Service Dissatisfaction"
	IntentRefundRequest    = "Refund Request"
	IntentPolicyQuestion   = "Policy Question"
	IntentPaymentIssue     = "Payment Issue"
	IntentGeneralQuestion  = "General Question"
)

// classifyRule maps trigger keywords to a category, intent and a fixed
// confidence. Rules are checked in order and the first match wins.
type classifyRule struct {
	keywords   []string
	category   string
	intent     string
	confidence float64
}

var classifyRules = []classifyRule{
	{[]string{"401", "unauthorized", "auth", "api key"}, CategoryTechnical, IntentAPIAuthFailure, 0.9},
	{[]string{"timeout", "slow", "latency", "performance"}, CategoryTechnical, IntentPerformanceIssue, 0.85},
	{[]string{"error", "bug", "broken", "not working"}, CategoryTechnical, IntentBugReport, 0.8},
	{[]string{"cancel", "cancellation", "stop subscription"}, CategoryBilling, IntentCancellation, 0.95},
	{[]string{"upgrade", "premium", "platinum"}, CategoryBilling, IntentUpgrade, 0.9},
	{[]string{"invoice", "bill", "payment", "charge"}, CategoryBilling, IntentInvoiceRequest, 0.85},
	{[]string{"angry", "terrible", "worst", "hate", "complaint"}, CategoryComplaint, IntentDissatisfaction, 0.9},
	{[]string{"refund", "money back"}, CategoryComplaint, IntentRefundRequest, 0.95},
	{[]string{"policy", "how to", "what is", "can i"}, CategoryGeneral, IntentPolicyQuestion, 0.75},
}

// Classify performs hierarchical keyword classification: a broad category
// plus a specific intent with a rule-fixed confidence. Unmatched text falls
// back to General Inquiry / General Question at 0.6.
func Classify(text string) (category, intent string, confidence float64) {
	lower := strings.ToLower(text)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category, rule.intent, rule.confidence
			}
		}
	}
	return CategoryGeneral, IntentGeneralQuestion, 0.6
}

// AssignPriority maps intent, customer tier and classification confidence to
// a handling priority.
func AssignPriority(intent string, tier domain.Tier, confidence float64) domain.Priority {
	switch intent {
	case IntentAPIAuthFailure, IntentDissatisfaction:
		return domain.PriorityP1
	}

	if tier.Premium() {
		if intent == IntentCancellation || intent == IntentRefundRequest {
			return domain.PriorityP1
		}
		return domain.PriorityP2
	}

	switch intent {
	case IntentPerformanceIssue, IntentBugReport, IntentPaymentIssue:
		return domain.PriorityP2
	}

	// Low confidence classifications get a higher priority for review.
	if confidence < 0.7 {
		return domain.PriorityP3
	}
	return domain.PriorityP4
}
