// Package bus implements in-process agent-to-agent messaging for the support
// pipeline: a thread-safe agent registry and a synchronous request/response
// router with per-call timeout and error isolation.
//
// Delivery is best-effort and in-memory only. A message not delivered before
// process exit is lost; there is no retry, durability or cross-process
// transport.
package bus
