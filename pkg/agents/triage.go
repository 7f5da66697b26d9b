package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/deskmesh/deskmesh/pkg/bus"
	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/safety"
	"github.com/deskmesh/deskmesh/pkg/storage"
)

// Triage is the first workflow stage. It validates the ticket text, resolves
// the customer identity, classifies intent, assigns priority and forwards the
// ticket to the retrieval agent.
type Triage struct {
	bus       *bus.Bus
	directory storage.UserDirectory
	validator *safety.InputValidator
	logger    *slog.Logger
	timeout   time.Duration
}

// NewTriage creates the triage handler. A zero timeout means downstream
// sends are unbounded.
func NewTriage(b *bus.Bus, directory storage.UserDirectory, validator *safety.InputValidator, logger *slog.Logger, timeout time.Duration) *Triage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Triage{
		bus:       b,
		directory: directory,
		validator: validator,
		logger:    logger.With("agent", AgentTriage),
		timeout:   timeout,
	}
}

// Receive implements bus.Handler.
func (a *Triage) Receive(ctx context.Context, from string, msg domain.Message) (bus.Response, error) {
	if msg.Payload.Kind != domain.KindTicketNew {
		return bus.Response{Status: "ignored"}, nil
	}
	ticket := msg.Payload.Ticket
	if ticket == nil {
		return bus.Response{Status: "error", Error: "no ticket in payload"}, nil
	}

	result := a.validator.Validate(ticket.Text)
	if !result.IsValid {
		ticket.Status = domain.StatusRejected
		ticket.Context[domain.CtxRejectionReason] = "Input validation failed"
		messages := make([]string, 0, len(result.Issues))
		for _, issue := range result.Issues {
			messages = append(messages, issue.Message)
		}
		ticket.Context[domain.CtxValidationIssues] = messages
		a.logger.Warn("ticket rejected", "ticket_id", ticket.ID, "issues", len(result.Issues), "risk_score", result.RiskScore)
		return bus.Response{Status: "rejected", Ticket: ticket}, nil
	}

	ticket.Text = result.Sanitized
	ticket.Context[domain.CtxRiskScore] = result.RiskScore

	user, err := a.directory.ResolveUser(ctx, ticket.UserRef)
	if err != nil {
		ticket.Status = domain.StatusEscalated
		ticket.Context[domain.CtxResolution] = "Unknown user"
		a.logger.Warn("unknown user", "ticket_id", ticket.ID, "user_ref", ticket.UserRef, "error", err)
		return bus.Response{Status: "escalated", Ticket: ticket}, nil
	}

	ticket.UserID = user.ID
	ticket.UserName = user.Name
	ticket.UserEmail = user.Email
	ticket.Context[domain.CtxTier] = string(user.Tier)
	ticket.Context[domain.CtxRenewalActive] = user.RenewalActive

	category, intent, confidence := Classify(ticket.Text)
	ticket.Context[domain.CtxCategory] = category
	ticket.Context[domain.CtxIntent] = intent
	ticket.Context[domain.CtxConfidenceScore] = confidence

	priority := AssignPriority(intent, user.Tier, confidence)
	ticket.Context[domain.CtxPriority] = string(priority)
	if confidence < 0.7 {
		ticket.Context[domain.CtxNeedsReview] = true
	}

	a.logger.Info("ticket triaged",
		"ticket_id", ticket.ID,
		"intent", intent,
		"priority", priority,
		"confidence", confidence,
	)

	return a.bus.Send(ctx, AgentTriage, AgentRetrieval,
		domain.Payload{Kind: domain.KindTriageComplete, Ticket: ticket},
		domain.MessageRequest, a.timeout)
}
