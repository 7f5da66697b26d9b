// Package agents implements the support workflow handlers: triage classifies
// and prioritises tickets, retrieval enriches them from the knowledge base,
// and escalation makes the terminal resolution decision. Each handler is a
// bus.Handler and forwards the ticket to the next stage over the message bus.
package agents

// Well-known agent names on the bus.
const (
	AgentTriage     = "triage"
	AgentRetrieval  = "retrieval"
	AgentEscalation = "escalation"
)
