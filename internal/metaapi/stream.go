package metaapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures a streaming connection.
type StreamConfig struct {
	URL          string        // WebSocket base URL
	Token        string        // MetaApi auth token
	AccountID    string        // Account whose terminal to mirror
	PingTimeout  time.Duration // Max time without ping before the connection is stale
	WriteTimeout time.Duration // Write deadline for control frames
}

// stream implements StreamingConnection over a websocket.
type stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Closed once the synchronized packet arrives.
	synced   chan struct{}
	syncOnce sync.Once

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastPingAt time.Time
	listeners  []Listener

	// Mirrored terminal state, keyed by id.
	termConnected     bool
	connectedToBroker bool
	accountInfo       *AccountInformation
	positions         map[string]Position
	orders            map[string]Order
	specifications    map[string]Specification
}

// NewStream creates a streaming connection for one account.
func NewStream(cfg StreamConfig, logger *slog.Logger) StreamingConnection {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &stream{
		cfg:            cfg,
		logger:         logger,
		done:           make(chan struct{}),
		synced:         make(chan struct{}),
		positions:      make(map[string]Position),
		orders:         make(map[string]Order),
		specifications: make(map[string]Specification),
	}
}

// Connect dials the streaming endpoint and starts the read loop.
func (s *stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("auth-token", s.cfg.Token)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	url := s.cfg.URL + "/accounts/" + s.cfg.AccountID + "/stream"
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastPingAt = time.Now()
	s.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		s.mu.Lock()
		s.lastPingAt = time.Now()
		s.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPingAt = time.Now()
		s.mu.Unlock()
		return nil
	})

	go s.readLoop()
	go s.heartbeatLoop()

	s.logger.Debug("streaming connection opened", "url", url)

	return nil
}

// Close shuts the connection down.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()

	close(s.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// AddSynchronizationListener registers a listener for sync events.
func (s *stream) AddSynchronizationListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveSynchronizationListener detaches a previously added listener.
func (s *stream) RemoveSynchronizationListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// WaitSynchronized blocks until the terminal state is mirrored locally.
func (s *stream) WaitSynchronized(ctx context.Context) error {
	select {
	case <-s.synced:
		return nil
	case <-s.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TerminalState returns a snapshot of the mirrored terminal state.
func (s *stream) TerminalState() TerminalState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := TerminalState{
		Connected:         s.termConnected,
		ConnectedToBroker: s.connectedToBroker,
	}
	if s.accountInfo != nil {
		info := *s.accountInfo
		state.AccountInformation = &info
	}

	state.Positions = make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		state.Positions = append(state.Positions, p)
	}
	sort.Slice(state.Positions, func(i, j int) bool {
		return state.Positions[i].ID < state.Positions[j].ID
	})

	state.Orders = make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		state.Orders = append(state.Orders, o)
	}
	sort.Slice(state.Orders, func(i, j int) bool {
		return state.Orders[i].ID < state.Orders[j].ID
	})

	state.Specifications = make([]Specification, 0, len(s.specifications))
	for _, spec := range s.specifications {
		state.Specifications = append(state.Specifications, spec)
	}
	sort.Slice(state.Specifications, func(i, j int) bool {
		return state.Specifications[i].Symbol < state.Specifications[j].Symbol
	})

	return state
}

// packet is the streaming wire format. One struct covers every packet type;
// only the fields for the given type are populated.
type packet struct {
	Type string `json:"type"`

	AccountInformation *AccountInformation `json:"accountInformation,omitempty"`
	Positions          []Position          `json:"positions,omitempty"`
	Orders             []Order             `json:"orders,omitempty"`
	Specifications     []Specification     `json:"specifications,omitempty"`

	UpdatedPositions   []Position `json:"updatedPositions,omitempty"`
	RemovedPositionIDs []string   `json:"removedPositionIds,omitempty"`
	UpdatedOrders      []Order    `json:"updatedOrders,omitempty"`
	CompletedOrders    []Order    `json:"completedOrders,omitempty"`
	Deals              []Deal     `json:"deals,omitempty"`

	Price  *SymbolPrice  `json:"price,omitempty"`
	Prices []SymbolPrice `json:"prices,omitempty"`

	Status string `json:"status,omitempty"`
}

// readLoop reads packets until the connection closes.
func (s *stream) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("streaming read failed", "error", err)
				s.dispatch(SyncEvent{Type: EventDisconnected})
			}
			return
		}

		var p packet
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("failed to parse streaming packet", "error", err)
			continue
		}

		s.handlePacket(p)
	}
}

// heartbeatLoop pings the server and detects stale connections.
func (s *stream) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			lastPing := s.lastPingAt
			s.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					s.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPing) > s.cfg.PingTimeout {
				s.logger.Warn("streaming connection stale",
					"last_ping", lastPing,
					"timeout", s.cfg.PingTimeout,
				)
				s.dispatch(SyncEvent{Type: EventDisconnected})
				return
			}
		}
	}
}

// handlePacket applies a packet to the terminal mirror and dispatches the
// corresponding sync events.
func (s *stream) handlePacket(p packet) {
	switch p.Type {
	case "authenticated":
		s.mu.Lock()
		s.termConnected = true
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventConnected})

	case "accountInformation":
		if p.AccountInformation == nil {
			return
		}
		s.mu.Lock()
		s.accountInfo = p.AccountInformation
		s.mu.Unlock()
		s.dispatch(SyncEvent{
			Type:               EventAccountInformationUpdated,
			AccountInformation: p.AccountInformation,
		})

	case "positions":
		s.mu.Lock()
		s.positions = make(map[string]Position, len(p.Positions))
		for _, pos := range p.Positions {
			s.positions[pos.ID] = pos
		}
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventPositionsUpdated, Positions: p.Positions})

	case "orders":
		s.mu.Lock()
		s.orders = make(map[string]Order, len(p.Orders))
		for _, o := range p.Orders {
			s.orders[o.ID] = o
		}
		s.mu.Unlock()

	case "specifications":
		s.mu.Lock()
		for _, spec := range p.Specifications {
			s.specifications[spec.Symbol] = spec
		}
		s.mu.Unlock()

	case "update":
		s.applyUpdate(p)

	case "synchronized":
		s.mu.Lock()
		s.connectedToBroker = true
		s.mu.Unlock()
		s.syncOnce.Do(func() { close(s.synced) })

	case "status":
		connected := p.Status == "connected"
		s.mu.Lock()
		s.connectedToBroker = connected
		s.mu.Unlock()
		if !connected {
			s.dispatch(SyncEvent{Type: EventDisconnected})
		}

	case "price":
		if p.Price != nil {
			s.dispatch(SyncEvent{Type: EventSymbolPriceUpdated, Prices: []SymbolPrice{*p.Price}})
		}

	case "prices":
		s.dispatch(SyncEvent{Type: EventSymbolPricesUpdated, Prices: p.Prices})

	case "disconnected":
		s.mu.Lock()
		s.termConnected = false
		s.connectedToBroker = false
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventDisconnected})

	default:
		s.logger.Debug("skipping packet type", "type", p.Type)
	}
}

// applyUpdate applies an incremental update packet item by item.
func (s *stream) applyUpdate(p packet) {
	if p.AccountInformation != nil {
		s.mu.Lock()
		s.accountInfo = p.AccountInformation
		s.mu.Unlock()
		s.dispatch(SyncEvent{
			Type:               EventAccountInformationUpdated,
			AccountInformation: p.AccountInformation,
		})
	}

	for _, o := range p.UpdatedOrders {
		order := o
		s.mu.Lock()
		s.orders[order.ID] = order
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventOrderUpdated, OrderID: order.ID, Order: &order})
	}

	for _, o := range p.CompletedOrders {
		order := o
		s.mu.Lock()
		delete(s.orders, order.ID)
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventOrderCompleted, OrderID: order.ID, Order: &order})
	}

	for _, pos := range p.UpdatedPositions {
		position := pos
		s.mu.Lock()
		s.positions[position.ID] = position
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventPositionUpdated, PositionID: position.ID, Position: &position})
	}

	for _, id := range p.RemovedPositionIDs {
		s.mu.Lock()
		delete(s.positions, id)
		s.mu.Unlock()
		s.dispatch(SyncEvent{Type: EventPositionRemoved, PositionID: id})
	}

	for _, d := range p.Deals {
		deal := d
		s.dispatch(SyncEvent{Type: EventDealAdded, DealID: deal.ID, Deal: &deal})
	}
}

// dispatch delivers an event to every registered listener.
func (s *stream) dispatch(ev SyncEvent) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.OnSyncEvent(ev)
	}
}
