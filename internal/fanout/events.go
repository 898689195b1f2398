package fanout

import (
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// Event kinds carried in the "event" discriminator field.
const (
	KindInitialAccounts           = "initialAccounts"
	KindAccountSynchronized       = "accountSynchronized"
	KindAccountConnected          = "accountConnected"
	KindAccountDisconnected       = "accountDisconnected"
	KindAccountInformationUpdated = "accountInformationUpdated"
	KindOrderUpdated              = "orderUpdated"
	KindOrderCompleted            = "orderCompleted"
	KindPositionUpdated           = "positionUpdated"
	KindPositionsUpdated          = "positionsUpdated"
	KindPositionRemoved           = "positionRemoved"
	KindDealAdded                 = "dealAdded"
)

// AccountSnapshot is one account's live state inside a snapshot event.
type AccountSnapshot struct {
	AccountID   string                      `json:"accountId"`
	AccountInfo *metaapi.AccountInformation `json:"accountInfo"`
	Positions   []metaapi.Position          `json:"positions"`
	Orders      []metaapi.Order             `json:"orders"`
}

// Event is the JSON-serializable message pushed to observers. The Event
// field discriminates the kind; all other fields are kind-specific.
type Event struct {
	Event     string `json:"event"`
	AccountID string `json:"accountId,omitempty"`

	OrderID string         `json:"orderId,omitempty"`
	Order   *metaapi.Order `json:"order,omitempty"`

	PositionID string             `json:"positionId,omitempty"`
	Position   *metaapi.Position  `json:"position,omitempty"`
	Positions  []metaapi.Position `json:"positions,omitempty"`

	DealID string            `json:"dealId,omitempty"`
	Deal   *ledger.DealEntry `json:"deal,omitempty"`

	AccountInformation *metaapi.AccountInformation `json:"accountInformation,omitempty"`

	// Snapshot payloads (accountSynchronized, initialAccounts).
	AccountInfo *metaapi.AccountInformation `json:"accountInfo,omitempty"`
	Orders      []metaapi.Order             `json:"orders,omitempty"`
	Accounts    []AccountSnapshot           `json:"accounts,omitempty"`
}

// InitialAccounts builds the connect-time catch-up event for a new
// subscriber.
func InitialAccounts(accounts []AccountSnapshot) Event {
	if accounts == nil {
		accounts = []AccountSnapshot{}
	}
	return Event{Event: KindInitialAccounts, Accounts: accounts}
}

// AccountSynchronized announces a fully synchronized account with its
// terminal state snapshot.
func AccountSynchronized(accountID string, state metaapi.TerminalState) Event {
	info := state.AccountInformation
	if info == nil {
		info = &metaapi.AccountInformation{}
	}
	return Event{
		Event:       KindAccountSynchronized,
		AccountID:   accountID,
		AccountInfo: info,
		Positions:   state.Positions,
		Orders:      state.Orders,
	}
}

// AccountConnected announces an account's terminal coming online.
func AccountConnected(accountID string) Event {
	return Event{Event: KindAccountConnected, AccountID: accountID}
}

// AccountDisconnected announces an account going offline or being
// disconnected from the gateway.
func AccountDisconnected(accountID string) Event {
	return Event{Event: KindAccountDisconnected, AccountID: accountID}
}

// AccountInformationUpdated carries a fresh account summary.
func AccountInformationUpdated(accountID string, info *metaapi.AccountInformation) Event {
	return Event{
		Event:              KindAccountInformationUpdated,
		AccountID:          accountID,
		AccountInformation: info,
	}
}

// OrderUpdated carries an updated pending order.
func OrderUpdated(accountID, orderID string, order *metaapi.Order) Event {
	return Event{Event: KindOrderUpdated, AccountID: accountID, OrderID: orderID, Order: order}
}

// OrderCompleted carries a completed order.
func OrderCompleted(accountID, orderID string, order *metaapi.Order) Event {
	return Event{Event: KindOrderCompleted, AccountID: accountID, OrderID: orderID, Order: order}
}

// PositionUpdated carries one updated position.
func PositionUpdated(accountID, positionID string, position *metaapi.Position) Event {
	return Event{
		Event:      KindPositionUpdated,
		AccountID:  accountID,
		PositionID: positionID,
		Position:   position,
	}
}

// PositionsUpdated carries a bulk position update.
func PositionsUpdated(accountID string, positions []metaapi.Position) Event {
	return Event{Event: KindPositionsUpdated, AccountID: accountID, Positions: positions}
}

// PositionRemoved announces a closed position.
func PositionRemoved(accountID, positionID string) Event {
	return Event{Event: KindPositionRemoved, AccountID: accountID, PositionID: positionID}
}

// DealAdded carries a recorded deal, including its ledger timestamp.
func DealAdded(accountID, dealID string, deal ledger.DealEntry) Event {
	return Event{Event: KindDealAdded, AccountID: accountID, DealID: dealID, Deal: &deal}
}
