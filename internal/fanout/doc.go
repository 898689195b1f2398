// Package fanout implements the event fan-out engine: a dynamic set of
// observer channels that every state-change event is pushed to.
//
// Delivery is best-effort and fire-and-forget. A subscriber that cannot
// keep up is evicted rather than back-pressuring the broadcast, and a new
// subscriber receives a full snapshot of the active accounts before any
// subsequent event.
package fanout
