// Package storage provides the persistence interfaces behind the support
// pipeline: the user directory, the known-issue knowledge base and the
// feedback store, with in-memory and SQLite implementations.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// User is a customer account as resolved by the directory.
type User struct {
	ID            int64
	Name          string
	Email         string
	Tier          domain.Tier
	RenewalActive bool
	RenewalDate   time.Time
}

// KnownIssue is a knowledge-base entry a ticket can be matched against.
type KnownIssue struct {
	Key             string
	Title           string
	Category        string
	Fix             string
	ConfidenceBoost float64
}

// Feedback records the outcome of a processed ticket for later review.
type Feedback struct {
	TicketID            string
	UserID              int64
	Intent              string
	Confidence          float64
	DiagnosticReasoning string
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserDirectory resolves a user reference (email address or display name,
// matched case-insensitively) to an account. Resolution failures are
// reported as domain.ErrUserNotFound.
type UserDirectory interface {
	ResolveUser(ctx context.Context, ref string) (User, error)
}

// KnowledgeBase matches a ticket against known issues. Misses are reported
// as domain.ErrNoKnownIssue.
type KnowledgeBase interface {
	FindMatch(ctx context.Context, intent, text string) (KnownIssue, error)
}

// FeedbackStore persists processed-ticket outcomes.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb Feedback) error
}

// Store combines all three persistence concerns behind one handle.
type Store interface {
	UserDirectory
	KnowledgeBase
	FeedbackStore
	Close() error
}

// kbTrigger binds symptom keywords in the ticket text to a specific issue
// key. Triggers are checked in order before any category fallback.
type kbTrigger struct {
	keywords []string
	issueKey string
}

var kbTriggers = []kbTrigger{
	{keywords: []string{"401", "unauthorized"}, issueKey: "api-auth-401"},
	{keywords: []string{"timeout"}, issueKey: "api-timeout"},
	{keywords: []string{"latency", "slow"}, issueKey: "latency-eu"},
	{keywords: []string{"rate limit"}, issueKey: "api-rate-limit"},
}

// triggeredIssueKey returns the first issue key whose keywords appear in the
// lowercased ticket text, or "" when no trigger fires.
func triggeredIssueKey(text string) string {
	lower := strings.ToLower(text)
	for _, trig := range kbTriggers {
		for _, kw := range trig.keywords {
			if strings.Contains(lower, kw) {
				return trig.issueKey
			}
		}
	}
	return ""
}
