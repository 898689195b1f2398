// Package server exposes the gateway over HTTP: the REST facade for
// account state and history, admin login, and the WebSocket push channel
// observers subscribe to.
package server
