// Package domain defines the core business types for the deskmesh support
// pipeline.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library (plus uuid for identifier generation). All
// types in this package are:
//
// - Independent of infrastructure (no database, HTTP, gRPC, etc.)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (bus, safety, agents, pipeline, storage) implement behaviour
// around these types and depend on them; the dependency direction is always
// infrastructure → domain, never the reverse.
package domain
