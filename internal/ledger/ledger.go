package ledger

import (
	"sort"
	"sync"

	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// OrderEntry is a completed order snapshot plus the id and the timestamp
// assigned when the completion notification arrived.
type OrderEntry struct {
	metaapi.Order

	OrderID     string `json:"orderId"`
	CompletedAt string `json:"completedAt"` // RFC 3339
}

// DealEntry is a recorded deal snapshot plus the id and the timestamp
// assigned when the notification arrived.
type DealEntry struct {
	metaapi.Deal

	DealID     string `json:"dealId"`
	RecordedAt string `json:"recordedAt"` // RFC 3339
}

// Filter narrows a history query. Zero-value fields are ignored. Date
// bounds are inclusive and compared as RFC 3339 strings against the
// entry's arrival timestamp.
type Filter struct {
	StartDate string
	EndDate   string
	Symbol    string
	Type      string
}

// accountLedger holds both sequences for one account. Both are created
// together on the first notification of either kind, so deal queries never
// behave differently for accounts that only ever saw order events.
type accountLedger struct {
	orders []OrderEntry
	deals  []DealEntry
}

// Ledger maps account ids to their append-only history.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*accountLedger
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*accountLedger)}
}

// RecordOrder appends a completed order to the account's history, creating
// the per-account ledger if absent. It never fails.
func (l *Ledger) RecordOrder(accountID string, entry OrderEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(accountID)
	acc.orders = append(acc.orders, entry)
}

// RecordDeal appends a recorded deal to the account's history, creating
// the per-account ledger if absent. It never fails.
func (l *Ledger) RecordDeal(accountID string, entry DealEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(accountID)
	acc.deals = append(acc.deals, entry)
}

// OrderHistory returns the account's completed orders matching the filter,
// newest first. Unknown accounts yield an empty slice.
func (l *Ledger) OrderHistory(accountID string, f Filter) []OrderEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[accountID]
	if !ok {
		return []OrderEntry{}
	}

	result := make([]OrderEntry, 0, len(acc.orders))
	for _, e := range acc.orders {
		if f.matches(e.CompletedAt, e.Symbol, e.Type) {
			result = append(result, e)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CompletedAt > result[j].CompletedAt
	})

	return result
}

// DealHistory returns the account's recorded deals matching the filter,
// newest first. Unknown accounts yield an empty slice.
func (l *Ledger) DealHistory(accountID string, f Filter) []DealEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[accountID]
	if !ok {
		return []DealEntry{}
	}

	result := make([]DealEntry, 0, len(acc.deals))
	for _, e := range acc.deals {
		if f.matches(e.RecordedAt, e.Symbol, e.Type) {
			result = append(result, e)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt > result[j].RecordedAt
	})

	return result
}

// account returns the per-account ledger, creating it if absent.
// Callers must hold the write lock.
func (l *Ledger) account(accountID string) *accountLedger {
	acc, ok := l.accounts[accountID]
	if !ok {
		acc = &accountLedger{}
		l.accounts[accountID] = acc
	}
	return acc
}

func (f Filter) matches(timestamp, symbol, kind string) bool {
	if f.StartDate != "" && timestamp < f.StartDate {
		return false
	}
	if f.EndDate != "" && timestamp > f.EndDate {
		return false
	}
	if f.Symbol != "" && symbol != f.Symbol {
		return false
	}
	if f.Type != "" && kind != f.Type {
		return false
	}
	return true
}
