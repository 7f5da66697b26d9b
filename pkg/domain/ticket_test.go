package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTicketGeneratesID(t *testing.T) {
	ticket := NewTicket("", "help", "alice@example.com")
	assert.True(t, strings.HasPrefix(ticket.ID, "TKT-"))
	assert.Len(t, ticket.ID, 12)
	assert.Equal(t, StatusNew, ticket.Status)
	assert.NotNil(t, ticket.Context)

	other := NewTicket("", "help", "alice@example.com")
	assert.NotEqual(t, ticket.ID, other.ID)

	fixed := NewTicket("TKT-CUSTOM", "help", "alice@example.com")
	assert.Equal(t, "TKT-CUSTOM", fixed.ID)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusNew.Terminal())
	for _, s := range []TicketStatus{StatusRejected, StatusEscalated, StatusPaused, StatusResolved} {
		assert.True(t, s.Terminal(), string(s))
	}
}

func TestContextAccessors(t *testing.T) {
	ticket := NewTicket("", "help", "alice")
	ticket.Context[CtxIntent] = "Bug Report"
	ticket.Context[CtxConfidenceScore] = 0.8
	ticket.Context[CtxRenewalActive] = true

	assert.Equal(t, "Bug Report", ticket.StringContext(CtxIntent))
	assert.InDelta(t, 0.8, ticket.FloatContext(CtxConfidenceScore), 1e-9)
	assert.True(t, ticket.BoolContext(CtxRenewalActive))

	// Absent or mistyped values come back as zero values.
	assert.Empty(t, ticket.StringContext(CtxResolution))
	assert.Zero(t, ticket.FloatContext(CtxIntent))
	assert.False(t, ticket.BoolContext(CtxIntent))
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		"platinum": TierPlatinum,
		"Gold":     TierGold,
		"SILVER":   TierSilver,
		"standard": TierStandard,
		"basic":    TierStandard,
		"pro":      TierStandard,
		"":         TierStandard,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseTier(in), in)
	}
}

func TestTierPremium(t *testing.T) {
	assert.True(t, TierPlatinum.Premium())
	assert.True(t, TierGold.Premium())
	assert.False(t, TierSilver.Premium())
	assert.False(t, TierStandard.Premium())
}
