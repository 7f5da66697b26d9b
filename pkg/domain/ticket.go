package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the workflow state of a support ticket.
type TicketStatus string

const (
	// StatusNew is the initial state assigned at intake.
	StatusNew TicketStatus = "New"
	// StatusRejected means the ticket failed input validation.
	StatusRejected TicketStatus = "Rejected"
	// StatusEscalated means the ticket requires a human agent.
	StatusEscalated TicketStatus = "Escalated"
	// StatusPaused means the ticket is on hold pending subscription renewal.
	StatusPaused TicketStatus = "Paused"
	// StatusResolved means the ticket was auto-resolved with high confidence.
	StatusResolved TicketStatus = "Resolved"
)

// Terminal reports whether the status ends the pipeline for a ticket.
// Terminal tickets are persisted as feedback and never mutated again.
func (s TicketStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusEscalated, StatusPaused, StatusResolved:
		return true
	default:
		return false
	}
}

// Priority is the handling priority assigned during triage.
type Priority string

const (
	// PriorityP1 requires immediate attention.
	PriorityP1 Priority = "P1"
	// PriorityP2 is handled same day.
	PriorityP2 Priority = "P2"
	// PriorityP3 is handled within three days.
	PriorityP3 Priority = "P3"
	// PriorityP4 is handled within a week.
	PriorityP4 Priority = "P4"
)

// Well-known ticket context keys. The context map is free-form; these are the
// keys the built-in handlers read and write.
const (
	CtxTier                = "tier"
	CtxRenewalActive       = "renewal_active"
	CtxCategory            = "category"
	CtxIntent              = "intent"
	CtxConfidenceScore     = "confidence_score"
	CtxPriority            = "priority"
	CtxKBMatch             = "kb_match"
	CtxSentiment           = "sentiment"
	CtxResolution          = "resolution"
	CtxRiskScore           = "risk_score"
	CtxRejectionReason     = "rejection_reason"
	CtxValidationIssues    = "validation_issues"
	CtxDiagnosticReasoning = "diagnostic_reasoning"
	CtxEscalationReason    = "escalation_reason"
	CtxNeedsReview         = "needs_review"
	CtxSessionID           = "session_id"
)

// Ticket is the unit of work representing one customer request as it is
// classified, enriched and resolved.
//
// A ticket is owned by exactly one handler at a time: the synchronous bus
// hand-off transfers write access with the message, and a terminal ticket is
// never mutated again. Concurrent mutation from two handlers is a usage
// error, not a supported scenario, so the struct carries no lock.
type Ticket struct {
	ID      string
	Text    string
	UserRef string // name or email as supplied by the caller

	// Resolved identity, populated by triage. UserID is zero until
	// resolution succeeds.
	UserID    int64
	UserName  string
	UserEmail string

	Context   map[string]any
	Status    TicketStatus
	CreatedAt time.Time
}

// NewTicket creates a ticket in the New state. When id is empty a unique
// "TKT-" prefixed identifier is generated.
func NewTicket(id, text, userRef string) *Ticket {
	if id == "" {
		id = "TKT-" + strings.ToUpper(uuid.New().String()[:8])
	}
	return &Ticket{
		ID:        id,
		Text:      text,
		UserRef:   userRef,
		Context:   make(map[string]any),
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

// StringContext returns the named context value as a string, or empty when
// absent or of another type.
func (t *Ticket) StringContext(key string) string {
	v, _ := t.Context[key].(string)
	return v
}

// FloatContext returns the named context value as a float64.
func (t *Ticket) FloatContext(key string) float64 {
	switch v := t.Context[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// BoolContext returns the named context value as a bool.
func (t *Ticket) BoolContext(key string) bool {
	v, _ := t.Context[key].(bool)
	return v
}
