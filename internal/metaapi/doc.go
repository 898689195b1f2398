// Package metaapi provides access to the MetaApi brokerage-connectivity
// cloud service.
//
// It exposes:
//   - A provisioning REST client for account lookup, creation, listing,
//     and deploy/undeploy requests.
//   - A streaming connection per account that mirrors the MetaTrader
//     terminal state locally and dispatches synchronization events to
//     registered listeners as a single tagged SyncEvent union.
//
// The gateway consumes this package exclusively through the API, Account,
// and StreamingConnection interfaces so tests can substitute fakes.
package metaapi
