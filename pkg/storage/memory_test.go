package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

func seededMemory(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	SeedMemory(s)
	return s
}

func TestMemoryResolveUser(t *testing.T) {
	s := seededMemory(t)
	ctx := context.Background()

	t.Run("by email", func(t *testing.T) {
		u, err := s.ResolveUser(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Alice Platinum", u.Name)
		assert.Equal(t, domain.TierPlatinum, u.Tier)
		assert.True(t, u.RenewalActive)
	})

	t.Run("by name case insensitive", func(t *testing.T) {
		u, err := s.ResolveUser(ctx, "bob gold")
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", u.Email)
		assert.Equal(t, domain.TierGold, u.Tier)
	})

	t.Run("uppercase email", func(t *testing.T) {
		u, err := s.ResolveUser(ctx, "CAROL@EXAMPLE.COM")
		require.NoError(t, err)
		assert.False(t, u.RenewalActive)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := s.ResolveUser(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("empty ref", func(t *testing.T) {
		_, err := s.ResolveUser(ctx, "   ")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestMemoryFindMatch(t *testing.T) {
	s := seededMemory(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		intent  string
		text    string
		wantKey string
	}{
		{"401 trigger", "API Authentication Failure", "getting 401 errors on every call", "api-auth-401"},
		{"unauthorized trigger", "General Inquiry", "the api says Unauthorized", "api-auth-401"},
		{"timeout trigger", "Performance Issue", "requests keep hitting a timeout", "api-timeout"},
		{"slow trigger", "Performance Issue", "dashboard is really slow today", "latency-eu"},
		{"rate limit trigger", "API Failure", "we exceeded the rate limit", "api-rate-limit"},
		{"category fallback", "Subscription", "please change my plan", "subscription-downgrade"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issue, err := s.FindMatch(ctx, tc.intent, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKey, issue.Key)
		})
	}

	t.Run("trigger wins over category", func(t *testing.T) {
		issue, err := s.FindMatch(ctx, "Subscription", "my 401 error while changing subscription")
		require.NoError(t, err)
		assert.Equal(t, "api-auth-401", issue.Key)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := s.FindMatch(ctx, "Completely Unknown Intent", "nothing matches here")
		assert.ErrorIs(t, err, domain.ErrNoKnownIssue)
	})
}

func TestMemorySaveFeedback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	fb := Feedback{
		TicketID:   "TKT-ABC12345",
		UserID:     1,
		Intent:     "Performance Issue",
		Confidence: 0.85,
		Status:     "Resolved",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.SaveFeedback(ctx, fb))

	got := s.Feedback()
	require.Len(t, got, 1)
	assert.Equal(t, "TKT-ABC12345", got[0].TicketID)
	assert.Equal(t, "Resolved", got[0].Status)
}
