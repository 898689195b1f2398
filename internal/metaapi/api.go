package metaapi

import "context"

// API is the provisioning surface of the MetaApi cloud service.
type API interface {
	// GetAccount resolves an account handle by id.
	GetAccount(ctx context.Context, id string) (Account, error)

	// CreateAccount provisions a new account and returns its id.
	CreateAccount(ctx context.Context, req NewAccountRequest) (string, error)

	// ListAccounts returns accounts matching the given deployment states.
	// With no states, all accounts are returned.
	ListAccounts(ctx context.Context, states ...string) ([]AccountSummary, error)
}

// Account is a handle to one remote trading account.
type Account interface {
	ID() string
	Name() string
	Login() string
	Server() string
	Platform() string

	// State returns the deployment state observed when the handle was
	// last refreshed.
	State() string

	// Deploy requests deployment of the account's terminal.
	Deploy(ctx context.Context) error

	// Undeploy requests the terminal be torn down.
	Undeploy(ctx context.Context) error

	// WaitConnected blocks until the API server reports the terminal is
	// connected to the broker. It is bounded only by ctx.
	WaitConnected(ctx context.Context) error

	// StreamingConnection returns the streaming connection for this
	// account. Repeated calls return the same connection.
	StreamingConnection() StreamingConnection
}

// StreamingConnection is a live synchronization channel for one account.
type StreamingConnection interface {
	// Connect opens the connection and starts mirroring terminal state.
	Connect(ctx context.Context) error

	// Close shuts the connection down.
	Close() error

	// AddSynchronizationListener registers a listener for sync events.
	AddSynchronizationListener(l Listener)

	// RemoveSynchronizationListener detaches a previously added listener.
	RemoveSynchronizationListener(l Listener)

	// WaitSynchronized blocks until the locally mirrored terminal state
	// matches the broker. It is bounded only by ctx.
	WaitSynchronized(ctx context.Context) error

	// TerminalState returns a snapshot of the mirrored terminal state.
	TerminalState() TerminalState
}
