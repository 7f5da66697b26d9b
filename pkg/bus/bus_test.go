package bus

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func echoHandler(status string) HandlerFunc {
	return func(_ context.Context, _ string, _ domain.Message) (Response, error) {
		return Response{Status: status}, nil
	}
}

func TestRegisterDuplicate(t *testing.T) {
	b := New(testLogger())

	require.NoError(t, b.Register("alpha", echoHandler("ok")))
	err := b.Register("alpha", echoHandler("ok"))
	assert.ErrorIs(t, err, ErrDuplicateAgent)
}

func TestRegisterNilHandler(t *testing.T) {
	b := New(testLogger())
	assert.ErrorIs(t, b.Register("alpha", nil), ErrNilHandler)
}

func TestUnregisterIdempotent(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("alpha", echoHandler("ok")))

	b.Unregister("alpha")
	b.Unregister("alpha")
	assert.False(t, b.IsRegistered("alpha"))

	// Re-registering a removed name succeeds.
	assert.NoError(t, b.Register("alpha", echoHandler("ok")))
}

func TestAgentsSorted(t *testing.T) {
	b := New(testLogger())
	for _, name := range []string{"zeta", "alpha", "mike"} {
		require.NoError(t, b.Register(name, echoHandler("ok")))
	}
	assert.Equal(t, []string{"alpha", "mike", "zeta"}, b.Agents())
}

func TestSendUnknownAgent(t *testing.T) {
	b := New(testLogger())
	_, err := b.Send(context.Background(), "a", "ghost", domain.Payload{}, domain.MessageRequest, 0)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestSendNormalisesEmptyStatus(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("quiet", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		return Response{}, nil
	})))

	resp, err := b.Send(context.Background(), "a", "quiet", domain.Payload{}, domain.MessageRequest, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestSendAbsorbsHandlerError(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("broken", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		return Response{}, errors.New("disk on fire")
	})))

	resp, err := b.Send(context.Background(), "a", "broken", domain.Payload{}, domain.MessageRequest, 0)
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Equal(t, "disk on fire", resp.Error)
	assert.NotEmpty(t, resp.ErrorType)
}

func TestSendErrorTypeFromSentinel(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("lookup", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		return Response{}, domain.ErrUserNotFound
	})))

	resp, err := b.Send(context.Background(), "a", "lookup", domain.Payload{}, domain.MessageRequest, 0)
	require.NoError(t, err)
	assert.Equal(t, "user_not_found", resp.ErrorType)
}

func TestSendTimeout(t *testing.T) {
	b := New(testLogger())
	release := make(chan struct{})
	require.NoError(t, b.Register("slow", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		<-release
		return Response{Status: "ok"}, nil
	})))
	defer close(release)

	start := time.Now()
	_, err := b.Send(context.Background(), "a", "slow", domain.Payload{}, domain.MessageRequest, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendCompletesWithinTimeout(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("fast", echoHandler("done")))

	resp, err := b.Send(context.Background(), "a", "fast", domain.Payload{}, domain.MessageRequest, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Status)
}

func TestSendContextCancellation(t *testing.T) {
	b := New(testLogger())
	release := make(chan struct{})
	require.NoError(t, b.Register("slow", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		<-release
		return Response{Status: "ok"}, nil
	})))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Send(ctx, "a", "slow", domain.Payload{}, domain.MessageRequest, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlerReentrancy(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("second", echoHandler("second-ok")))

	// The first handler calls back into the bus while being dispatched;
	// this must not deadlock because the registry lock is not held during
	// handler execution.
	require.NoError(t, b.Register("first", HandlerFunc(func(ctx context.Context, _ string, _ domain.Message) (Response, error) {
		return b.Send(ctx, "first", "second", domain.Payload{}, domain.MessageRequest, time.Second)
	})))

	resp, err := b.Send(context.Background(), "caller", "first", domain.Payload{}, domain.MessageRequest, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second-ok", resp.Status)
}

func TestSendThreadsCorrelationID(t *testing.T) {
	b := New(testLogger())

	var nested domain.Message
	require.NoError(t, b.Register("second", HandlerFunc(func(_ context.Context, _ string, msg domain.Message) (Response, error) {
		nested = msg
		return Response{Status: "ok"}, nil
	})))

	var root domain.Message
	require.NoError(t, b.Register("first", HandlerFunc(func(ctx context.Context, _ string, msg domain.Message) (Response, error) {
		root = msg
		return b.Send(ctx, "first", "second", domain.Payload{}, domain.MessageRequest, time.Second)
	})))

	_, err := b.Send(context.Background(), "caller", "first", domain.Payload{}, domain.MessageRequest, 2*time.Second)
	require.NoError(t, err)

	// The first hop is its own correlation root; the forwarded hop carries
	// the root's ID, not a fresh one.
	assert.Equal(t, root.ID, root.CorrelationID)
	assert.Equal(t, root.ID, nested.CorrelationID)
	assert.NotEqual(t, root.ID, nested.ID)
}

func TestBroadcastIsolation(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("good1", echoHandler("ok")))
	require.NoError(t, b.Register("good2", echoHandler("ok")))
	require.NoError(t, b.Register("bad", HandlerFunc(func(context.Context, string, domain.Message) (Response, error) {
		return Response{}, errors.New("boom")
	})))
	require.NoError(t, b.Register("sender", echoHandler("ok")))

	responses := b.Broadcast(context.Background(), "sender", domain.Payload{Kind: "maintenance.ping"})

	require.Len(t, responses, 3)
	assert.Equal(t, "ok", responses["good1"].Status)
	assert.Equal(t, "ok", responses["good2"].Status)
	assert.True(t, responses["bad"].IsError())
	_, includesSender := responses["sender"]
	assert.False(t, includesSender)
}

func TestBroadcastExclude(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Register("a", echoHandler("ok")))
	require.NoError(t, b.Register("b", echoHandler("ok")))
	require.NoError(t, b.Register("c", echoHandler("ok")))

	responses := b.Broadcast(context.Background(), "a", domain.Payload{}, "b")
	require.Len(t, responses, 1)
	assert.Contains(t, responses, "c")
}
