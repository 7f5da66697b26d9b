// Package governance coordinates runtime safety controls for the deskmesh
// support pipeline: tier-aware token-bucket rate limiting for admission
// control, and circuit breaking around flaky collaborators such as the
// feedback store.
//
// Both primitives guard their own state with a lock scoped to the structure
// itself; the lock is never held across a handler invocation or an external
// I/O call.
package governance
