package agents

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/deskmesh/deskmesh/pkg/bus"
	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/storage"
)

// noMatchReasoning is recorded when the knowledge base has nothing for the
// ticket.
const noMatchReasoning = "No known issue match found. Manual investigation required."

// Retrieval enriches triaged tickets with knowledge-base data: a diagnostic
// fix text and a confidence boost when a known issue matches. It never
// changes the ticket status.
type Retrieval struct {
	bus     *bus.Bus
	kb      storage.KnowledgeBase
	logger  *slog.Logger
	timeout time.Duration
}

// NewRetrieval creates the retrieval handler.
func NewRetrieval(b *bus.Bus, kb storage.KnowledgeBase, logger *slog.Logger, timeout time.Duration) *Retrieval {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrieval{
		bus:     b,
		kb:      kb,
		logger:  logger.With("agent", AgentRetrieval),
		timeout: timeout,
	}
}

// Receive implements bus.Handler.
func (a *Retrieval) Receive(ctx context.Context, from string, msg domain.Message) (bus.Response, error) {
	if msg.Payload.Kind != domain.KindTriageComplete {
		return bus.Response{Status: "ignored"}, nil
	}
	ticket := msg.Payload.Ticket
	if ticket == nil {
		return bus.Response{Status: "error", Error: "no ticket in payload"}, nil
	}

	intent := ticket.StringContext(domain.CtxIntent)
	issue, err := a.kb.FindMatch(ctx, intent, strings.ToLower(ticket.Text))
	switch {
	case err == nil:
		ticket.Context[domain.CtxKBMatch] = map[string]any{
			"issue_key":        issue.Key,
			"title":            issue.Title,
			"category":         issue.Category,
			"fix":              issue.Fix,
			"confidence_boost": issue.ConfidenceBoost,
		}
		ticket.Context[domain.CtxDiagnosticReasoning] = issue.Fix

		before := ticket.FloatContext(domain.CtxConfidenceScore)
		after := math.Min(1.0, before+issue.ConfidenceBoost)
		ticket.Context[domain.CtxConfidenceScore] = after

		a.logger.Info("knowledge base match",
			"ticket_id", ticket.ID,
			"issue_key", issue.Key,
			"confidence_before", before,
			"confidence_after", after,
		)
	case errors.Is(err, domain.ErrNoKnownIssue):
		ticket.Context[domain.CtxKBMatch] = nil
		ticket.Context[domain.CtxDiagnosticReasoning] = noMatchReasoning
		a.logger.Info("no knowledge base match", "ticket_id", ticket.ID, "intent", intent)
	default:
		// Lookup failures degrade to a miss rather than faulting the ticket.
		ticket.Context[domain.CtxKBMatch] = nil
		ticket.Context[domain.CtxDiagnosticReasoning] = noMatchReasoning
		a.logger.Error("knowledge base lookup failed", "ticket_id", ticket.ID, "error", err)
	}

	return a.bus.Send(ctx, AgentRetrieval, AgentEscalation,
		domain.Payload{Kind: domain.KindRetrievalComplete, Ticket: ticket},
		domain.MessageRequest, a.timeout)
}
