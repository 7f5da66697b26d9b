package agents

import (
	"context"
	"log/slog"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// LogNotifier records customer notifications on the service log. It stands in
// for a real delivery channel such as email when none is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to the given logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the resolution notice for a ticket.
func (n *LogNotifier) Notify(_ context.Context, t *domain.Ticket) error {
	n.logger.Info("customer notification",
		"ticket_id", t.ID,
		"user", t.UserName,
		"email", t.UserEmail,
		"intent", t.StringContext(domain.CtxIntent),
	)
	return nil
}
