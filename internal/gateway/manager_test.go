package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/EarningEdge/forex-trade-processor/internal/fanout"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// fakeConn implements metaapi.StreamingConnection.
type fakeConn struct {
	mu        sync.Mutex
	state     metaapi.TerminalState
	listeners []metaapi.Listener

	connectErr error
	syncErr    error

	connected bool
	closed    bool
}

func (c *fakeConn) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) AddSynchronizationListener(l metaapi.Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *fakeConn) RemoveSynchronizationListener(l metaapi.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *fakeConn) WaitSynchronized(ctx context.Context) error {
	return c.syncErr
}

func (c *fakeConn) TerminalState() metaapi.TerminalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// fakeAccount implements metaapi.Account.
type fakeAccount struct {
	id    string
	state string
	conn  *fakeConn

	deployErr     error
	waitErr       error
	deployCalls   int
	undeployCalls int
}

func (a *fakeAccount) ID() string       { return a.id }
func (a *fakeAccount) Name() string     { return "test-" + a.id }
func (a *fakeAccount) Login() string    { return "12345" }
func (a *fakeAccount) Server() string   { return "Demo-Server" }
func (a *fakeAccount) Platform() string { return "mt5" }
func (a *fakeAccount) State() string    { return a.state }

func (a *fakeAccount) Deploy(ctx context.Context) error {
	a.deployCalls++
	return a.deployErr
}

func (a *fakeAccount) Undeploy(ctx context.Context) error {
	a.undeployCalls++
	return nil
}

func (a *fakeAccount) WaitConnected(ctx context.Context) error {
	return a.waitErr
}

func (a *fakeAccount) StreamingConnection() metaapi.StreamingConnection {
	return a.conn
}

// fakeAPI implements metaapi.API.
type fakeAPI struct {
	accounts map[string]*fakeAccount
	listing  []metaapi.AccountSummary
	listErr  error
}

func (f *fakeAPI) GetAccount(ctx context.Context, id string) (metaapi.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return nil, metaapi.ErrNotFound
	}
	return acc, nil
}

func (f *fakeAPI) CreateAccount(ctx context.Context, req metaapi.NewAccountRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAPI) ListAccounts(ctx context.Context, states ...string) ([]metaapi.AccountSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func newTestManager(api *fakeAPI) *Manager {
	return NewManager(api, ledger.New(), fanout.NewEngine(64, nil), nil)
}

func deployedAccount(id string) *fakeAccount {
	return &fakeAccount{id: id, state: metaapi.StateDeployed, conn: &fakeConn{}}
}

func TestConnectSuccess(t *testing.T) {
	acc := deployedAccount("acc-1")
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)

	if !m.Connect(context.Background(), "acc-1") {
		t.Fatal("Connect returned false")
	}

	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
	session, ok := m.Get("acc-1")
	if !ok {
		t.Fatal("session not in registry")
	}
	if session.InitialState != metaapi.StateDeployed {
		t.Errorf("InitialState = %q, want %q", session.InitialState, metaapi.StateDeployed)
	}
	if acc.deployCalls != 0 {
		t.Errorf("Deploy called %d times for already-deployed account, want 0", acc.deployCalls)
	}
	if acc.conn.listenerCount() != 1 {
		t.Errorf("listener count = %d, want 1", acc.conn.listenerCount())
	}
}

func TestConnectDeploysUndeployedAccount(t *testing.T) {
	acc := &fakeAccount{id: "acc-1", state: metaapi.StateUndeployed, conn: &fakeConn{}}
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)

	if !m.Connect(context.Background(), "acc-1") {
		t.Fatal("Connect returned false")
	}
	if acc.deployCalls != 1 {
		t.Errorf("Deploy called %d times, want 1", acc.deployCalls)
	}
}

func TestConnectAlreadyConnectedIsNoOp(t *testing.T) {
	acc := deployedAccount("acc-1")
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)

	m.Connect(context.Background(), "acc-1")
	if !m.Connect(context.Background(), "acc-1") {
		t.Error("second Connect returned false, want true")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
	if acc.conn.listenerCount() != 1 {
		t.Errorf("listener count = %d after duplicate connect, want 1", acc.conn.listenerCount())
	}
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeAccount)
	}{
		{
			name:  "deploy fails",
			setup: func(a *fakeAccount) { a.state = metaapi.StateUndeployed; a.deployErr = errors.New("boom") },
		},
		{
			name:  "broker connection fails",
			setup: func(a *fakeAccount) { a.waitErr = errors.New("boom") },
		},
		{
			name:  "stream connect fails",
			setup: func(a *fakeAccount) { a.conn.connectErr = errors.New("boom") },
		},
		{
			name:  "synchronization fails",
			setup: func(a *fakeAccount) { a.conn.syncErr = errors.New("boom") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := deployedAccount("acc-1")
			tt.setup(acc)
			api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
			m := newTestManager(api)

			if m.Connect(context.Background(), "acc-1") {
				t.Error("Connect returned true, want false")
			}
			if m.Count() != 0 {
				t.Errorf("Count = %d after failed connect, want 0", m.Count())
			}
		})
	}
}

func TestConnectSyncFailureDetachesListener(t *testing.T) {
	acc := deployedAccount("acc-1")
	acc.conn.syncErr = errors.New("sync timeout")
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)

	m.Connect(context.Background(), "acc-1")

	if acc.conn.listenerCount() != 0 {
		t.Errorf("listener count = %d after failed sync, want 0", acc.conn.listenerCount())
	}
	if !acc.conn.closed {
		t.Error("streaming connection not closed after failed sync")
	}
}

func TestConnectUnknownAccount(t *testing.T) {
	m := newTestManager(&fakeAPI{accounts: map[string]*fakeAccount{}})

	if m.Connect(context.Background(), "missing") {
		t.Error("Connect returned true for unknown account")
	}
}

func TestDisconnect(t *testing.T) {
	acc := deployedAccount("acc-1")
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)
	m.Connect(context.Background(), "acc-1")

	if !m.Disconnect(context.Background(), "acc-1") {
		t.Fatal("Disconnect returned false")
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
	if !acc.conn.closed {
		t.Error("streaming connection not closed")
	}
	if acc.conn.listenerCount() != 0 {
		t.Errorf("listener count = %d, want 0", acc.conn.listenerCount())
	}
	// The account was deployed before the gateway touched it.
	if acc.undeployCalls != 0 {
		t.Errorf("Undeploy called %d times, want 0", acc.undeployCalls)
	}
}

func TestDisconnectUndeploysWhatItDeployed(t *testing.T) {
	acc := &fakeAccount{id: "acc-1", state: metaapi.StateUndeployed, conn: &fakeConn{}}
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)
	m.Connect(context.Background(), "acc-1")

	m.Disconnect(context.Background(), "acc-1")

	if acc.undeployCalls != 1 {
		t.Errorf("Undeploy called %d times, want 1", acc.undeployCalls)
	}
}

func TestDisconnectAbsentAccount(t *testing.T) {
	m := newTestManager(&fakeAPI{accounts: map[string]*fakeAccount{}})

	if m.Disconnect(context.Background(), "missing") {
		t.Error("Disconnect returned true for absent account")
	}
}

func TestListActiveInsertionOrder(t *testing.T) {
	api := &fakeAPI{accounts: map[string]*fakeAccount{
		"acc-1": deployedAccount("acc-1"),
		"acc-2": deployedAccount("acc-2"),
		"acc-3": deployedAccount("acc-3"),
	}}
	m := newTestManager(api)

	for _, id := range []string{"acc-2", "acc-1", "acc-3"} {
		m.Connect(context.Background(), id)
	}
	m.Disconnect(context.Background(), "acc-1")

	sessions := m.ListActive()
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].AccountID != "acc-2" || sessions[1].AccountID != "acc-3" {
		t.Errorf("order = [%s %s], want [acc-2 acc-3]", sessions[0].AccountID, sessions[1].AccountID)
	}
}

func TestReconcileAllSkipsConnected(t *testing.T) {
	api := &fakeAPI{
		accounts: map[string]*fakeAccount{
			"acc-1": deployedAccount("acc-1"),
			"acc-2": deployedAccount("acc-2"),
		},
		listing: []metaapi.AccountSummary{
			{ID: "acc-1", Name: "one", State: metaapi.StateDeployed},
			{ID: "acc-2", Name: "two", State: metaapi.StateDeployed},
		},
	}
	m := newTestManager(api)
	m.Connect(context.Background(), "acc-1")

	newly := m.ReconcileAll(context.Background())

	if newly != 1 {
		t.Errorf("newly connected = %d, want 1", newly)
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestReconcileAllListFailure(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("api down")}
	m := newTestManager(api)

	if newly := m.ReconcileAll(context.Background()); newly != 0 {
		t.Errorf("newly connected = %d, want 0", newly)
	}
}

func TestShutdownDrainsRegistry(t *testing.T) {
	api := &fakeAPI{accounts: map[string]*fakeAccount{
		"acc-1": deployedAccount("acc-1"),
		"acc-2": deployedAccount("acc-2"),
	}}
	m := newTestManager(api)
	m.Connect(context.Background(), "acc-1")
	m.Connect(context.Background(), "acc-2")

	m.Shutdown(context.Background())

	if m.Count() != 0 {
		t.Errorf("Count = %d after shutdown, want 0", m.Count())
	}
}

func TestAccountSnapshotsNormalizesNil(t *testing.T) {
	acc := deployedAccount("acc-1")
	api := &fakeAPI{accounts: map[string]*fakeAccount{"acc-1": acc}}
	m := newTestManager(api)
	m.Connect(context.Background(), "acc-1")

	snapshots := m.AccountSnapshots()
	if len(snapshots) != 1 {
		t.Fatalf("len = %d, want 1", len(snapshots))
	}
	snap := snapshots[0]
	if snap.AccountInfo == nil {
		t.Error("AccountInfo is nil, want empty struct")
	}
	if snap.Positions == nil || snap.Orders == nil {
		t.Error("Positions/Orders are nil, want empty slices")
	}
}
