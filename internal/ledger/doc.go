// Package ledger implements the in-memory history ledger: per-account
// append-only sequences of completed orders and recorded deals.
//
// The ledger is volatile by design. It lives for the process lifetime and
// is lost on restart; durable persistence is an explicit non-goal of the
// gateway.
package ledger
