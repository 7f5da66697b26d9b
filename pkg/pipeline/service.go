// Package pipeline wires the support core into a single entry point: rate
// limiting, input validation, the triage/retrieval/escalation workflow over
// the message bus, and output validation on the way back out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/deskmesh/deskmesh/internal/governance"
	"github.com/deskmesh/deskmesh/pkg/agents"
	"github.com/deskmesh/deskmesh/pkg/bus"
	"github.com/deskmesh/deskmesh/pkg/domain"
	"github.com/deskmesh/deskmesh/pkg/safety"
	"github.com/deskmesh/deskmesh/pkg/storage"
	"github.com/deskmesh/deskmesh/pkg/telemetry"
)

// intakeName is the bus identity of the pipeline entry point.
const intakeName = "intake"

// ValidationError reports rejected input. It carries the individual issue
// messages and the aggregate risk score for the caller's error payload.
type ValidationError struct {
	Issues    []string
	RiskScore float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("input validation failed (risk %.2f): %s", e.RiskScore, strings.Join(e.Issues, "; "))
}

// Request is one customer query entering the pipeline.
type Request struct {
	Text      string
	UserRef   string // email or display name
	SessionID string
	TicketID  string // optional; generated when empty
}

// Response is the pipeline's answer to one request.
type Response struct {
	TicketID            string  `json:"ticket_id"`
	Status              string  `json:"status"`
	Message             string  `json:"message"`
	Confidence          float64 `json:"confidence"`
	DiagnosticReasoning string  `json:"diagnostic_reasoning,omitempty"`
	ShouldEscalate      bool    `json:"should_escalate"`
}

// Options configures a Service. Directory, KnowledgeBase and Feedback are
// required; everything else has working defaults.
type Options struct {
	Logger        *slog.Logger
	Metrics       *telemetry.Metrics
	Directory     storage.UserDirectory
	KnowledgeBase storage.KnowledgeBase
	Feedback      storage.FeedbackStore
	Notifier      agents.Notifier

	RateLimiter governance.RateLimiterConfig
	Input       safety.InputConfig
	Output      safety.OutputConfig
	Escalation  agents.EscalationConfig
	Breaker     governance.BreakerConfig

	// SendTimeout bounds each bus hop. Zero means a 30 second default.
	SendTimeout time.Duration
}

// Service is the assembled support pipeline.
type Service struct {
	bus       *bus.Bus
	limiter   *governance.RateLimiter
	input     *safety.InputValidator
	output    *safety.OutputValidator
	directory storage.UserDirectory
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	timeout   time.Duration
}

// New builds the pipeline: constructs the bus, registers the three workflow
// agents and returns the ready-to-serve service.
func New(opts Options) (*Service, error) {
	if opts.Directory == nil || opts.KnowledgeBase == nil || opts.Feedback == nil {
		return nil, errors.New("pipeline: directory, knowledge base and feedback store are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.RateLimiter.Tiers == nil && opts.RateLimiter.GlobalPerMinute == 0 {
		opts.RateLimiter = governance.DefaultRateLimiterConfig()
	}
	if opts.Input.MaxLength == 0 {
		opts.Input = safety.DefaultInputConfig()
	}
	if opts.Output.MinConfidence == 0 {
		opts.Output = safety.DefaultOutputConfig()
	}
	if opts.Breaker.MaxFailures == 0 {
		opts.Breaker = governance.DefaultBreakerConfig()
	}

	var busOpts []bus.Option
	if opts.Metrics != nil {
		busOpts = append(busOpts, bus.WithMetrics(opts.Metrics))
	}
	b := bus.New(logger, busOpts...)

	inputValidator := safety.NewInputValidator(opts.Input)
	breaker := governance.NewBreaker(opts.Breaker)

	if err := b.Register(agents.AgentTriage, agents.NewTriage(b, opts.Directory, inputValidator, logger, timeout)); err != nil {
		return nil, err
	}
	if err := b.Register(agents.AgentRetrieval, agents.NewRetrieval(b, opts.KnowledgeBase, logger, timeout)); err != nil {
		return nil, err
	}
	if err := b.Register(agents.AgentEscalation, agents.NewEscalation(opts.Feedback, breaker, opts.Notifier, logger, opts.Escalation)); err != nil {
		return nil, err
	}

	return &Service{
		bus:       b,
		limiter:   governance.NewRateLimiter(opts.RateLimiter),
		input:     inputValidator,
		output:    safety.NewOutputValidator(opts.Output),
		directory: opts.Directory,
		logger:    logger,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("deskmesh.pipeline"),
		timeout:   timeout,
	}, nil
}

// Bus exposes the message bus, letting callers register additional agents
// alongside the built-in workflow.
func (s *Service) Bus() *bus.Bus {
	return s.bus
}

// Limiter exposes the admission limiter for administrative operations.
func (s *Service) Limiter() *governance.RateLimiter {
	return s.limiter
}

// Handle processes one request end to end. It returns *governance.
// RateLimitError on admission rejection and *ValidationError on unsafe input;
// both are expected caller errors rather than pipeline faults.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("pipeline.user_ref", req.UserRef),
	))
	defer span.End()

	identity := req.UserRef
	if identity == "" {
		identity = "anonymous"
	}

	// Tier is pre-resolved for admission; an unknown reference is admitted
	// at the standard tier and escalates later in triage.
	tier := domain.TierStandard
	userEmail := ""
	if user, err := s.directory.ResolveUser(ctx, identity); err == nil {
		tier = user.Tier
		userEmail = user.Email
	} else if safety.ValidEmail(req.UserRef) {
		userEmail = req.UserRef
	}

	if err := s.limiter.Check(identity, tier); err != nil {
		var rle *governance.RateLimitError
		if errors.As(err, &rle) {
			s.logger.Warn("request rejected by rate limiter", "identity", identity, "scope", rle.Scope, "retry_after", rle.RetryAfter)
			if s.metrics != nil {
				s.metrics.RecordAdmissionDenied(string(rle.Scope))
			}
		}
		return Response{}, err
	}

	result := s.input.Validate(req.Text)
	if !result.IsValid {
		messages := make([]string, 0, len(result.Issues))
		for _, issue := range result.Issues {
			messages = append(messages, issue.Message)
		}
		s.logger.Warn("request rejected by input validation", "identity", identity, "risk_score", result.RiskScore)
		if s.metrics != nil {
			s.metrics.RecordValidationFailure("input")
		}
		return Response{}, &ValidationError{Issues: messages, RiskScore: result.RiskScore}
	}

	ticket := domain.NewTicket(req.TicketID, result.Sanitized, identity)
	ticket.Context[domain.CtxSentiment] = string(agents.AnalyzeSentiment(result.Sanitized))
	if req.SessionID != "" {
		ticket.Context[domain.CtxSessionID] = req.SessionID
	}

	s.logger.Info("processing ticket", "ticket_id", ticket.ID, "identity", identity)

	resp, err := s.bus.Send(ctx, intakeName, agents.AgentTriage,
		domain.Payload{Kind: domain.KindTicketNew, Ticket: ticket},
		domain.MessageRequest, s.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("pipeline: workflow dispatch: %w", err)
	}
	if resp.IsError() {
		return Response{}, fmt.Errorf("pipeline: workflow failed: %s", resp.Error)
	}

	responseText := ticket.StringContext(domain.CtxResolution)
	if responseText == "" {
		responseText = "Ticket processed successfully"
	}
	confidence := ticket.FloatContext(domain.CtxConfidenceScore)

	outputResult := s.output.Validate(responseText, confidence, safety.OutputContext{UserEmail: userEmail})
	if s.metrics != nil {
		for _, issue := range outputResult.Issues {
			if issue.Redacted != "" {
				s.metrics.RecordRedaction(issue.Category)
			}
		}
	}
	shouldEscalate := outputResult.ShouldEscalate
	if outputResult.IsSafe {
		responseText = outputResult.Sanitized
	} else {
		s.logger.Error("output validation failed", "ticket_id", ticket.ID, "issues", len(outputResult.Issues))
		if s.metrics != nil {
			s.metrics.RecordValidationFailure("output")
		}
		responseText = safety.FallbackResponse
		shouldEscalate = true
	}

	if s.metrics != nil {
		s.metrics.RecordTicket(string(ticket.Status))
	}

	return Response{
		TicketID:            ticket.ID,
		Status:              strings.ToLower(string(ticket.Status)),
		Message:             responseText,
		Confidence:          confidence,
		DiagnosticReasoning: ticket.StringContext(domain.CtxDiagnosticReasoning),
		ShouldEscalate:      shouldEscalate || ticket.Status == domain.StatusEscalated,
	}, nil
}
