package metaapi

import "errors"

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrNotFound      = errors.New("account not found")
)

// Account deployment states reported by the provisioning API.
const (
	StateCreated     = "CREATED"
	StateDeploying   = "DEPLOYING"
	StateDeployed    = "DEPLOYED"
	StateUndeploying = "UNDEPLOYING"
	StateUndeployed  = "UNDEPLOYED"
	StateDeleting    = "DELETING"
)

// Broker connection statuses reported by the provisioning API.
const (
	ConnectionStatusConnected    = "CONNECTED"
	ConnectionStatusDisconnected = "DISCONNECTED"
)

// IsDeployedState reports whether a deployment state means the account is
// already deployed or on its way there.
func IsDeployedState(state string) bool {
	return state == StateDeploying || state == StateDeployed
}

// AccountInformation is the MetaTrader account summary (balances, margin).
type AccountInformation struct {
	Platform     string  `json:"platform,omitempty"`
	Broker       string  `json:"broker,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	Server       string  `json:"server,omitempty"`
	Name         string  `json:"name,omitempty"`
	Login        int64   `json:"login,omitempty"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"freeMargin"`
	Leverage     int     `json:"leverage,omitempty"`
	MarginLevel  float64 `json:"marginLevel,omitempty"`
	TradeAllowed bool    `json:"tradeAllowed,omitempty"`
}

// Position is an open MetaTrader position.
type Position struct {
	ID           string  `json:"id"`
	Type         string  `json:"type,omitempty"` // POSITION_TYPE_BUY or POSITION_TYPE_SELL
	Symbol       string  `json:"symbol,omitempty"`
	Magic        int     `json:"magic,omitempty"`
	Time         string  `json:"time,omitempty"`
	OpenPrice    float64 `json:"openPrice,omitempty"`
	CurrentPrice float64 `json:"currentPrice,omitempty"`
	Volume       float64 `json:"volume,omitempty"`
	Swap         float64 `json:"swap,omitempty"`
	Commission   float64 `json:"commission,omitempty"`
	Profit       float64 `json:"profit,omitempty"`
	StopLoss     float64 `json:"stopLoss,omitempty"`
	TakeProfit   float64 `json:"takeProfit,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

// Order is a pending MetaTrader order.
type Order struct {
	ID            string  `json:"id"`
	Type          string  `json:"type,omitempty"` // e.g. ORDER_TYPE_BUY_LIMIT
	State         string  `json:"state,omitempty"`
	Symbol        string  `json:"symbol,omitempty"`
	Magic         int     `json:"magic,omitempty"`
	Time          string  `json:"time,omitempty"`
	OpenPrice     float64 `json:"openPrice,omitempty"`
	CurrentPrice  float64 `json:"currentPrice,omitempty"`
	Volume        float64 `json:"volume,omitempty"`
	CurrentVolume float64 `json:"currentVolume,omitempty"`
	StopLoss      float64 `json:"stopLoss,omitempty"`
	TakeProfit    float64 `json:"takeProfit,omitempty"`
	Comment       string  `json:"comment,omitempty"`
}

// Deal is an executed MetaTrader deal (a fill).
type Deal struct {
	ID         string  `json:"id"`
	Type       string  `json:"type,omitempty"` // DEAL_TYPE_BUY or DEAL_TYPE_SELL
	EntryType  string  `json:"entryType,omitempty"`
	Symbol     string  `json:"symbol,omitempty"`
	Magic      int     `json:"magic,omitempty"`
	Time       string  `json:"time,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Commission float64 `json:"commission,omitempty"`
	Swap       float64 `json:"swap,omitempty"`
	Profit     float64 `json:"profit,omitempty"`
	OrderID    string  `json:"orderId,omitempty"`
	PositionID string  `json:"positionId,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// Specification describes a tradeable symbol.
type Specification struct {
	Symbol       string  `json:"symbol"`
	TickSize     float64 `json:"tickSize,omitempty"`
	MinVolume    float64 `json:"minVolume,omitempty"`
	MaxVolume    float64 `json:"maxVolume,omitempty"`
	ContractSize float64 `json:"contractSize,omitempty"`
	Digits       int     `json:"digits,omitempty"`
}

// SymbolPrice is a bid/ask quote for one symbol.
type SymbolPrice struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   string  `json:"time,omitempty"`
}

// TerminalState is the locally mirrored MetaTrader terminal state.
type TerminalState struct {
	Connected          bool
	ConnectedToBroker  bool
	AccountInformation *AccountInformation
	Positions          []Position
	Orders             []Order
	Specifications     []Specification
}

// AccountSummary is one entry from a bulk account listing.
type AccountSummary struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// NewAccountRequest describes an account to provision.
type NewAccountRequest struct {
	Login    string `json:"login"`
	Server   string `json:"server"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Magic    int    `json:"magic"`
}

// SyncEventType identifies one kind of synchronization notification.
type SyncEventType string

// Synchronization event kinds delivered to listeners.
const (
	EventConnected                 SyncEventType = "connected"
	EventDisconnected              SyncEventType = "disconnected"
	EventAccountInformationUpdated SyncEventType = "accountInformationUpdated"
	EventOrderUpdated              SyncEventType = "orderUpdated"
	EventOrderCompleted            SyncEventType = "orderCompleted"
	EventPositionUpdated           SyncEventType = "positionUpdated"
	EventPositionsUpdated          SyncEventType = "positionsUpdated"
	EventPositionRemoved           SyncEventType = "positionRemoved"
	EventDealAdded                 SyncEventType = "dealAdded"
	EventSymbolPriceUpdated        SyncEventType = "symbolPriceUpdated"
	EventSymbolPricesUpdated       SyncEventType = "symbolPricesUpdated"
)

// SyncEvent is a tagged union over every notification kind a streaming
// connection can produce. Only the fields relevant to Type are set.
type SyncEvent struct {
	Type SyncEventType

	OrderID    string
	Order      *Order
	PositionID string
	Position   *Position
	Positions  []Position
	DealID     string
	Deal       *Deal

	AccountInformation *AccountInformation
	Prices             []SymbolPrice
}

// Listener receives synchronization events from a streaming connection.
type Listener interface {
	OnSyncEvent(ev SyncEvent)
}
