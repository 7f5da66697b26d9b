package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/telemetry"
)

// Registry and dispatch errors. UnknownAgent and DuplicateAgent are
// permanent configuration errors; Timeout is retriable at the caller's
// discretion.
var (
	ErrDuplicateAgent = errors.New("agent already registered")
	ErrUnknownAgent   = errors.New("agent not registered")
	ErrNilHandler     = errors.New("handler must not be nil")
	ErrTimeout        = errors.New("message handling timed out")
)

// correlationKey carries the root message ID of a workflow traversal through
// nested sends.
type correlationKey struct{}

// Handler is the single capability an agent must expose to receive messages:
// accept a message from a named sender and produce a response or fail.
//
// A handler may call back into the bus from inside Receive; the registry
// lock is not held during dispatch. Reentrancy and thread safety beyond that
// are the handler's own responsibility.
type Handler interface {
	Receive(ctx context.Context, from string, msg domain.Message) (Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, from string, msg domain.Message) (Response, error)

// Receive implements Handler.
func (f HandlerFunc) Receive(ctx context.Context, from string, msg domain.Message) (Response, error) {
	return f(ctx, from, msg)
}

// Response is the business-level result of a dispatch. Handler-internal
// errors are absorbed into an error-status Response at the bus boundary so
// one misbehaving agent cannot fault the bus or its caller; only timeouts
// and registry errors surface as Go errors from Send.
type Response struct {
	Status    string
	Error     string
	ErrorType string
	Ticket    *domain.Ticket
	Data      map[string]any
}

// IsError reports whether the response carries an absorbed handler failure.
func (r Response) IsError() bool { return r.Status == "error" }

// Bus routes messages between registered agents. Construct with New and
// pass the instance explicitly to every component that sends or receives;
// there is no process-wide instance.
type Bus struct {
	mu      sync.RWMutex
	agents  map[string]Handler
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics records dispatch outcomes on the given metrics instance.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New creates an empty bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		agents: make(map[string]Handler),
		logger: logger,
		tracer: otel.Tracer("deskmesh.bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds an agent under a unique name. It fails with
// ErrDuplicateAgent when the name is taken and ErrNilHandler when the
// handler is nil.
func (b *Bus) Register(name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("bus: register %q: %w", name, ErrNilHandler)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.agents[name]; exists {
		return fmt.Errorf("bus: register %q: %w", name, ErrDuplicateAgent)
	}
	b.agents[name] = handler
	b.logger.Info("agent registered", "agent", name)
	return nil
}

// Unregister removes an agent. Removing an unknown name is a no-op.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	_, existed := b.agents[name]
	delete(b.agents, name)
	b.mu.Unlock()

	if existed {
		b.logger.Info("agent unregistered", "agent", name)
	}
}

// Agents returns the sorted names of all registered agents.
func (b *Bus) Agents() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.agents))
	for name := range b.agents {
		names = append(names, name)
	}
	b.mu.RUnlock()

	sort.Strings(names)
	return names
}

// IsRegistered reports whether an agent name is registered.
func (b *Bus) IsRegistered(name string) bool {
	b.mu.RLock()
	_, ok := b.agents[name]
	b.mu.RUnlock()
	return ok
}

// Send dispatches a message synchronously to the target agent and blocks
// until the handler returns or the timeout elapses. A timeout of zero means
// no bound.
//
// When the timeout elapses the call fails with ErrTimeout and the handler's
// eventual result is discarded; no cancellation signal is sent to the
// handler, so callers must not assume its side effects were rolled back.
// A handler-returned error is converted into an error-status Response; a
// zero-value handler result with no error is normalised to status "ok".
func (b *Bus) Send(ctx context.Context, from, to string, payload domain.Payload, typ domain.MessageType, timeout time.Duration) (Response, error) {
	b.mu.RLock()
	target, ok := b.agents[to]
	b.mu.RUnlock()

	if !ok {
		return Response{}, fmt.Errorf("bus: send to %q: %w", to, ErrUnknownAgent)
	}

	msg := domain.NewMessage(typ, from, to, payload)

	// The first send of a traversal becomes the correlation root; handlers
	// forwarding with the same context stamp every hop with that root ID.
	if corr, ok := ctx.Value(correlationKey{}).(string); ok {
		msg.CorrelationID = corr
	} else {
		msg.CorrelationID = msg.ID
		ctx = context.WithValue(ctx, correlationKey{}, msg.CorrelationID)
	}

	ctx, span := b.tracer.Start(ctx, "bus.send", trace.WithAttributes(
		attribute.String("messaging.from", from),
		attribute.String("messaging.to", to),
		attribute.String("messaging.type", string(typ)),
		attribute.String("messaging.id", msg.ID),
		attribute.String("messaging.correlation_id", msg.CorrelationID),
	))
	defer span.End()

	b.logger.Debug("dispatching message", "from", from, "to", to, "type", typ, "message_id", msg.ID)

	start := time.Now()
	resp, err := b.dispatch(ctx, target, from, msg, timeout)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		b.logger.Error("message handling timed out", "from", from, "to", to, "timeout", timeout)
		b.observe(from, to, "timeout", elapsed)
		return Response{}, err
	case resp.IsError():
		b.observe(from, to, "error", elapsed)
	default:
		b.observe(from, to, "ok", elapsed)
	}
	return resp, nil
}

// Broadcast sends a notification to every registered agent except the sender
// and those in exclude. Per-agent failures are recorded as error entries in
// the result map; delivery to one agent is independent of any other's
// outcome.
func (b *Bus) Broadcast(ctx context.Context, from string, payload domain.Payload, exclude ...string) map[string]Response {
	skip := make(map[string]struct{}, len(exclude)+1)
	skip[from] = struct{}{}
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	responses := make(map[string]Response)
	for _, name := range b.Agents() {
		if _, excluded := skip[name]; excluded {
			continue
		}
		resp, err := b.Send(ctx, from, name, payload, domain.MessageNotification, 0)
		if err != nil {
			b.logger.Error("broadcast delivery failed", "from", from, "to", name, "error", err)
			resp = Response{Status: "error", Error: err.Error(), ErrorType: errorType(err)}
		}
		responses[name] = resp
	}
	return responses
}

// dispatch invokes the handler, bounding execution when a timeout is set.
// The registry lock is already released here so the handler may call back
// into the bus without deadlocking.
func (b *Bus) dispatch(ctx context.Context, target Handler, from string, msg domain.Message, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		return b.invoke(ctx, target, from, msg), nil
	}

	// Buffered so the abandoned handler can still complete its send after
	// the deadline fires.
	done := make(chan Response, 1)
	go func() {
		done <- b.invoke(ctx, target, from, msg)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-done:
		return resp, nil
	case <-timer.C:
		return Response{}, fmt.Errorf("bus: send from %q to %q after %s: %w", from, msg.To, timeout, ErrTimeout)
	case <-ctx.Done():
		return Response{}, fmt.Errorf("bus: send from %q to %q: %w", from, msg.To, ctx.Err())
	}
}

// invoke runs the handler and absorbs its failure into a structured
// response.
func (b *Bus) invoke(ctx context.Context, target Handler, from string, msg domain.Message) Response {
	resp, err := target.Receive(ctx, from, msg)
	if err != nil {
		b.logger.Error("handler reported error", "from", from, "to", msg.To, "error", err)
		return Response{Status: "error", Error: err.Error(), ErrorType: errorType(err)}
	}
	if resp.Status == "" {
		resp.Status = "ok"
	}
	return resp
}

func (b *Bus) observe(from, to, status string, elapsed time.Duration) {
	if b.metrics != nil {
		b.metrics.ObserveSend(from, to, status, elapsed)
	}
}

// errorType derives a stable label for an absorbed error, preferring known
// sentinels over the concrete type name.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrNoKnownIssue):
		return "no_known_issue"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return fmt.Sprintf("%T", err)
	}
}
