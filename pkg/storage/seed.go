package storage

import (
	"context"
	"time"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// SeedUsers returns the demo customer accounts. Renewal dates are relative
// to now; Carol's subscription lapsed a month ago.
func SeedUsers(now time.Time) []User {
	return []User{
		{Name: "Alice Platinum", Email: "alice@example.com", Tier: domain.TierPlatinum, RenewalActive: true, RenewalDate: now.AddDate(1, 0, 0)},
		{Name: "Bob Gold", Email: "bob@example.com", Tier: domain.TierGold, RenewalActive: true, RenewalDate: now.AddDate(0, 6, 0)},
		{Name: "Carol Silver", Email: "carol@example.com", Tier: domain.TierSilver, RenewalActive: false, RenewalDate: now.AddDate(0, 0, -30)},
		{Name: "Dave Standard", Email: "dave@example.com", Tier: domain.TierStandard, RenewalActive: true, RenewalDate: now.AddDate(0, 3, 0)},
		{Name: "Eve Free", Email: "eve@example.com", Tier: domain.TierStandard, RenewalActive: true},
		{Name: "Frank Basic", Email: "basic_user@example.com", Tier: domain.TierStandard, RenewalActive: true, RenewalDate: now.AddDate(0, 1, 0)},
		{Name: "Grace Pro", Email: "pro_user@example.com", Tier: domain.TierStandard, RenewalActive: true, RenewalDate: now.AddDate(0, 1, 0)},
	}
}

// SeedKnownIssues returns the demo knowledge-base entries.
func SeedKnownIssues() []KnownIssue {
	return []KnownIssue{
		{Key: "api-auth-401", Title: "API 401 Unauthorized Error", Category: "API Failure",
			Fix: "Check API key validity and scope. Ensure correct API permissions. Regenerate key if needed.", ConfidenceBoost: 0.8},
		{Key: "api-timeout", Title: "API Timeout Error", Category: "API Failure",
			Fix: "Check server load and retry API call. Ensure network connectivity. Consider increasing timeout.", ConfidenceBoost: 0.7},
		{Key: "latency-eu", Title: "Latency in EU Region", Category: "Performance Issue",
			Fix: "Check regional server status. Investigate network latency or high load. Consider CDN.", ConfidenceBoost: 0.6},
		{Key: "connection-error", Title: "Connection Error", Category: "Network Issue",
			Fix: "Verify internet connectivity. Check endpoint reachability. Review firewall settings.", ConfidenceBoost: 0.7},
		{Key: "api-rate-limit", Title: "API Rate Limit Exceeded", Category: "API Failure",
			Fix: "Increase rate limit or reduce request frequency. Check quotas. Upgrade tier if needed.", ConfidenceBoost: 0.9},
		{Key: "billing-failed", Title: "Payment Processing Failed", Category: "Billing Issue",
			Fix: "Verify payment method. Check card expiration. Contact bank if issue persists.", ConfidenceBoost: 0.85},
		{Key: "subscription-downgrade", Title: "Subscription Downgrade Request", Category: "Subscription",
			Fix: "Process downgrade at next billing cycle. Notify user of feature changes.", ConfidenceBoost: 0.9},
	}
}

// SeedMemory fills a memory store with the demo dataset.
func SeedMemory(s *MemoryStore) {
	for _, u := range SeedUsers(time.Now()) {
		s.AddUser(u)
	}
	for _, issue := range SeedKnownIssues() {
		s.AddKnownIssue(issue)
	}
}

// SeedSQLite fills a SQLite store with the demo dataset. Existing users are
// left untouched; known issues are upserted.
func SeedSQLite(ctx context.Context, s *SQLiteStore) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, u := range SeedUsers(time.Now()) {
			if _, err := s.AddUser(ctx, u); err != nil {
				return err
			}
		}
	}
	for _, issue := range SeedKnownIssues() {
		if err := s.AddKnownIssue(ctx, issue); err != nil {
			return err
		}
	}
	return nil
}
