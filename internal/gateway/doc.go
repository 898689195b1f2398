// Package gateway implements the account connection manager.
//
// The manager owns the registry of live account sessions against the
// MetaApi cloud service. It drives the connect/deploy/synchronize
// lifecycle per account, attaches one synchronization listener per
// session to translate streaming notifications into ledger appends and
// fan-out events, and drains every session on shutdown.
//
// Connect and disconnect for the same account are serialized through a
// per-account lock; distinct accounts proceed fully in parallel.
package gateway
