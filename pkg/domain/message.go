package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies agent-to-agent messages.
type MessageType string

const (
	// MessageRequest asks the target agent to perform work.
	MessageRequest MessageType = "request"
	// MessageResponse answers a previous request.
	MessageResponse MessageType = "response"
	// MessageError reports a failure condition.
	MessageError MessageType = "error"
	// MessageNotification is a one-way broadcast message.
	MessageNotification MessageType = "notification"
)

// Payload kinds used by the built-in workflow handlers.
const (
	KindTicketNew         = "ticket.new"
	KindTriageComplete    = "triage.complete"
	KindRetrievalComplete = "retrieval.complete"
)

// Payload is the body of an A2A message. Kind tags the payload so handlers
// can ignore messages they do not understand; Ticket carries the unit of work
// for the support workflow; Data holds anything else.
type Payload struct {
	Kind   string
	Ticket *Ticket
	Data   map[string]any
}

// Message is the immutable envelope passed between agents. Messages are
// created per send, never mutated, and not retained after delivery.
type Message struct {
	Type          MessageType
	From          string
	To            string
	Payload       Payload
	ID            string
	CorrelationID string
	Timestamp     time.Time
}

// NewMessage constructs an envelope with a fresh message ID and creation
// timestamp.
func NewMessage(typ MessageType, from, to string, payload Payload) Message {
	return Message{
		Type:      typ,
		From:      from,
		To:        to,
		Payload:   payload,
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
}
