package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deskmesh/deskmesh/internal/governance"
	"github.com/deskmesh/deskmesh/pkg/bus"
	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/storage"
)

// Notifier delivers an outward notification about a resolved ticket, for
// example a customer email. Delivery failures never affect the decision.
type Notifier interface {
	Notify(ctx context.Context, ticket *domain.Ticket) error
}

// EscalationConfig tunes the terminal decision.
type EscalationConfig struct {
	// AutoResolveThreshold is the confidence at or above which a ticket
	// resolves without a human.
	AutoResolveThreshold float64
	// SkipNotifyEmails lists VIP addresses that must not receive outward
	// notifications. Membership does not change the decision itself.
	SkipNotifyEmails []string
}

// DefaultEscalationConfig returns the standard thresholds.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{AutoResolveThreshold: 0.8}
}

// Escalation is the terminal workflow stage: it pauses tickets for lapsed
// subscriptions, auto-resolves high-confidence tickets, escalates the rest,
// and persists a feedback record for every outcome.
type Escalation struct {
	feedback   storage.FeedbackStore
	breaker    *governance.Breaker
	notifier   Notifier
	logger     *slog.Logger
	threshold  float64
	skipNotify map[string]struct{}

	now func() time.Time
}

// NewEscalation creates the escalation handler. The breaker guards the
// feedback store; notifier may be nil when no outward channel is configured.
func NewEscalation(feedback storage.FeedbackStore, breaker *governance.Breaker, notifier Notifier, logger *slog.Logger, cfg EscalationConfig) *Escalation {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AutoResolveThreshold <= 0 {
		cfg.AutoResolveThreshold = 0.8
	}
	skip := make(map[string]struct{}, len(cfg.SkipNotifyEmails))
	for _, email := range cfg.SkipNotifyEmails {
		skip[email] = struct{}{}
	}
	return &Escalation{
		feedback:   feedback,
		breaker:    breaker,
		notifier:   notifier,
		logger:     logger.With("agent", AgentEscalation),
		threshold:  cfg.AutoResolveThreshold,
		skipNotify: skip,
		now:        time.Now,
	}
}

// Receive implements bus.Handler.
func (a *Escalation) Receive(ctx context.Context, from string, msg domain.Message) (bus.Response, error) {
	if msg.Payload.Kind != domain.KindRetrievalComplete {
		return bus.Response{Status: "ignored"}, nil
	}
	ticket := msg.Payload.Ticket
	if ticket == nil {
		return bus.Response{Status: "error", Error: "no ticket in payload"}, nil
	}

	a.decide(ticket)
	a.notify(ctx, ticket)
	a.persist(ctx, ticket)

	return bus.Response{Status: string(ticket.Status), Ticket: ticket}, nil
}

// decide applies the resolution rules and stamps a terminal status.
func (a *Escalation) decide(ticket *domain.Ticket) {
	renewalActive := ticket.BoolContext(domain.CtxRenewalActive)
	confidence := ticket.FloatContext(domain.CtxConfidenceScore)

	switch {
	case !renewalActive:
		ticket.Status = domain.StatusPaused
		ticket.Context[domain.CtxResolution] = "User subscription inactive. Ticket paused pending renewal."
		a.logger.Info("ticket paused", "ticket_id", ticket.ID)

	case confidence >= a.threshold:
		ticket.Status = domain.StatusResolved
		diag := ticket.StringContext(domain.CtxDiagnosticReasoning)
		if diag == "" {
			diag = "N/A"
		}
		ticket.Context[domain.CtxResolution] = fmt.Sprintf(
			"Resolved automatically with high confidence (%.2f). Diagnostic: %s", confidence, diag)
		a.logger.Info("ticket auto-resolved", "ticket_id", ticket.ID, "confidence", confidence)

	default:
		ticket.Status = domain.StatusEscalated
		ticket.Context[domain.CtxResolution] = fmt.Sprintf(
			"Escalated to human agent due to low confidence (%.2f). Manual investigation required.", confidence)
		a.logger.Info("ticket escalated", "ticket_id", ticket.ID, "confidence", confidence)
	}

	// Hostile sentiment overrides everything except a pause: those tickets
	// always reach a human.
	sentiment := Sentiment(ticket.StringContext(domain.CtxSentiment))
	if sentiment.Hostile() && ticket.Status != domain.StatusPaused {
		ticket.Status = domain.StatusEscalated
		ticket.Context[domain.CtxEscalationReason] = "Negative sentiment detected"
		a.logger.Info("ticket escalated for sentiment", "ticket_id", ticket.ID, "sentiment", sentiment)
	}
}

// notify delivers the outward notification unless the address is exempt.
func (a *Escalation) notify(ctx context.Context, ticket *domain.Ticket) {
	if a.notifier == nil {
		return
	}
	if _, vip := a.skipNotify[ticket.UserEmail]; vip {
		a.logger.Info("skipping notification for vip", "ticket_id", ticket.ID, "email", ticket.UserEmail)
		return
	}
	if err := a.notifier.Notify(ctx, ticket); err != nil {
		a.logger.Error("notification failed", "ticket_id", ticket.ID, "error", err)
	}
}

// persist writes the feedback record. Failures are logged and swallowed;
// persistence never fails the ticket.
func (a *Escalation) persist(ctx context.Context, ticket *domain.Ticket) {
	ts := a.now().UTC()
	fb := storage.Feedback{
		TicketID:            ticket.ID,
		UserID:              ticket.UserID,
		Intent:              ticket.StringContext(domain.CtxIntent),
		Confidence:          ticket.FloatContext(domain.CtxConfidenceScore),
		DiagnosticReasoning: ticket.StringContext(domain.CtxDiagnosticReasoning),
		Status:              string(ticket.Status),
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}

	save := func() error { return a.feedback.SaveFeedback(ctx, fb) }
	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(save)
	} else {
		err = save()
	}
	if err != nil {
		a.logger.Error("feedback persistence failed", "ticket_id", ticket.ID, "error", err)
	}
}
