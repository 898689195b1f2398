package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EarningEdge/forex-trade-processor/internal/fanout"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// Session is one live binding between the gateway and a remote account.
type Session struct {
	AccountID string
	Account   metaapi.Account
	Conn      metaapi.StreamingConnection

	// InitialState is the deployment state observed at connect time. It
	// decides whether Disconnect undeploys the account.
	InitialState string

	listener *syncListener
}

// Manager owns the registry of active account sessions.
type Manager struct {
	api    metaapi.API
	ledger *ledger.Ledger
	engine *fanout.Engine
	logger *slog.Logger

	// Registry. order preserves insertion order for ListActive.
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string

	// Per-account serialization of connect/disconnect.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a connection manager.
func NewManager(api metaapi.API, l *ledger.Ledger, e *fanout.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:      api,
		ledger:   l,
		engine:   e,
		logger:   logger,
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Connect establishes a session for the account: resolve the handle,
// deploy if needed, wait for the broker connection, open the streaming
// connection, attach the listener, and wait for full synchronization.
// Every failure is converted to false plus a logged cause; an account
// that is already connected is a successful no-op.
func (m *Manager) Connect(ctx context.Context, accountID string) bool {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := m.Get(accountID); ok {
		m.logger.Info("account already connected, skipping", "account_id", accountID)
		return true
	}

	m.logger.Info("connecting to account", "account_id", accountID)

	account, err := m.api.GetAccount(ctx, accountID)
	if err != nil {
		m.logger.Error("failed to resolve account", "account_id", accountID, "error", err)
		return false
	}

	initialState := account.State()
	if !metaapi.IsDeployedState(initialState) {
		m.logger.Info("deploying account", "account_id", accountID, "state", initialState)
		if err := account.Deploy(ctx); err != nil {
			m.logger.Error("failed to deploy account", "account_id", accountID, "error", err)
			return false
		}
	}

	m.logger.Info("waiting for broker connection", "account_id", accountID)
	if err := account.WaitConnected(ctx); err != nil {
		m.logger.Error("broker connection failed", "account_id", accountID, "error", err)
		return false
	}

	conn := account.StreamingConnection()
	if err := conn.Connect(ctx); err != nil {
		m.logger.Error("failed to open streaming connection", "account_id", accountID, "error", err)
		return false
	}

	listener := newSyncListener(accountID, m.ledger, m.engine, m.logger)
	conn.AddSynchronizationListener(listener)

	m.logger.Info("waiting for terminal state synchronization", "account_id", accountID)
	if err := conn.WaitSynchronized(ctx); err != nil {
		m.logger.Error("terminal synchronization failed", "account_id", accountID, "error", err)
		conn.RemoveSynchronizationListener(listener)
		if cerr := conn.Close(); cerr != nil {
			m.logger.Warn("failed to close streaming connection", "account_id", accountID, "error", cerr)
		}
		return false
	}

	session := &Session{
		AccountID:    accountID,
		Account:      account,
		Conn:         conn,
		InitialState: initialState,
		listener:     listener,
	}

	m.mu.Lock()
	if _, dup := m.sessions[accountID]; dup {
		// The per-account lock makes this unreachable; treat it as a
		// logic error rather than a recoverable race.
		m.mu.Unlock()
		m.logger.Error("duplicate session insert", "account_id", accountID)
		return true
	}
	m.sessions[accountID] = session
	m.order = append(m.order, accountID)
	m.mu.Unlock()

	m.logger.Info("account connected and synchronized", "account_id", accountID)

	m.engine.Broadcast(fanout.AccountSynchronized(accountID, conn.TerminalState()))

	return true
}

// Disconnect tears a session down: detach the listener, close the
// streaming connection, and undeploy only when the account was not
// already deployed before the gateway touched it. Teardown is
// best-effort; the session leaves the registry even when a step fails.
// Returns false without side effects when the account is not connected.
func (m *Manager) Disconnect(ctx context.Context, accountID string) bool {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	session, ok := m.Get(accountID)
	if !ok {
		m.logger.Info("account not found in active connections", "account_id", accountID)
		return false
	}

	session.Conn.RemoveSynchronizationListener(session.listener)

	if err := session.Conn.Close(); err != nil {
		m.logger.Warn("failed to close streaming connection", "account_id", accountID, "error", err)
	}

	if !metaapi.IsDeployedState(session.InitialState) {
		m.logger.Info("undeploying account", "account_id", accountID)
		if err := session.Account.Undeploy(ctx); err != nil {
			m.logger.Warn("failed to undeploy account", "account_id", accountID, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, accountID)
	for i, id := range m.order {
		if id == accountID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.logger.Info("account disconnected", "account_id", accountID)

	m.engine.Broadcast(fanout.AccountDisconnected(accountID))

	return true
}

// Get returns the session for an account, if connected.
func (m *Manager) Get(accountID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[accountID]
	return s, ok
}

// ListActive returns a snapshot of the registry in insertion order.
func (m *Manager) ListActive() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Count returns the number of connected accounts.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ReconcileAll lists every DEPLOYED account from the provisioning API and
// connects the ones not already in the registry, in parallel. Accounts
// already connected are skipped. Returns the number newly connected.
func (m *Manager) ReconcileAll(ctx context.Context) int {
	m.logger.Info("fetching deployed accounts")

	accounts, err := m.api.ListAccounts(ctx, metaapi.StateDeployed)
	if err != nil {
		m.logger.Error("failed to list accounts", "error", err)
		return 0
	}

	m.logger.Info("found deployed accounts", "count", len(accounts))

	var connected atomic.Int64
	g := new(errgroup.Group)

	for _, acc := range accounts {
		if _, ok := m.Get(acc.ID); ok {
			m.logger.Info("account already connected, skipping", "account_id", acc.ID)
			continue
		}

		accountID := acc.ID
		name := acc.Name
		g.Go(func() error {
			m.logger.Info("connecting to existing account",
				"account_id", accountID,
				"name", name,
			)
			if m.Connect(ctx, accountID) {
				connected.Add(1)
			}
			return nil
		})
	}

	g.Wait()

	m.logger.Info("reconcile finished", "newly_connected", connected.Load())

	return int(connected.Load())
}

// RunReconcileLoop reconciles periodically until ctx is cancelled. A zero
// interval disables the loop.
func (m *Manager) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReconcileAll(ctx)
		}
	}
}

// Shutdown drains the registry: every session is disconnected, in
// parallel, tolerating individual failures.
func (m *Manager) Shutdown(ctx context.Context) {
	sessions := m.ListActive()
	m.logger.Info("draining account sessions", "count", len(sessions))

	g := new(errgroup.Group)
	for _, session := range sessions {
		accountID := session.AccountID
		g.Go(func() error {
			m.Disconnect(ctx, accountID)
			return nil
		})
	}
	g.Wait()
}

// AccountSnapshots implements fanout.SnapshotSource from the live
// terminal state of every session.
func (m *Manager) AccountSnapshots() []fanout.AccountSnapshot {
	sessions := m.ListActive()

	out := make([]fanout.AccountSnapshot, 0, len(sessions))
	for _, session := range sessions {
		state := session.Conn.TerminalState()

		info := state.AccountInformation
		if info == nil {
			info = &metaapi.AccountInformation{}
		}
		positions := state.Positions
		if positions == nil {
			positions = []metaapi.Position{}
		}
		orders := state.Orders
		if orders == nil {
			orders = []metaapi.Order{}
		}

		out = append(out, fanout.AccountSnapshot{
			AccountID:   session.AccountID,
			AccountInfo: info,
			Positions:   positions,
			Orders:      orders,
		})
	}
	return out
}

// accountLock returns the lock serializing connect/disconnect for one
// account, creating it on first use.
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}
