package gateway

import (
	"log/slog"
	"time"

	"github.com/EarningEdge/forex-trade-processor/internal/fanout"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
)

// timestampFormat is fixed-width UTC so that lexicographic comparison of
// ledger timestamps matches chronological order.
const timestampFormat = "2006-01-02T15:04:05.000000000Z"

// syncListener translates streaming notifications for one account into
// ledger mutations and fan-out events. It is a pure translation layer:
// each notification kind maps to at most one event, and it never filters
// or rate-limits.
type syncListener struct {
	accountID string
	ledger    *ledger.Ledger
	engine    *fanout.Engine
	logger    *slog.Logger
	now       func() time.Time
}

func newSyncListener(accountID string, l *ledger.Ledger, e *fanout.Engine, logger *slog.Logger) *syncListener {
	return &syncListener{
		accountID: accountID,
		ledger:    l,
		engine:    e,
		logger:    logger.With("account_id", accountID),
		now:       time.Now,
	}
}

// OnSyncEvent implements metaapi.Listener.
func (l *syncListener) OnSyncEvent(ev metaapi.SyncEvent) {
	switch ev.Type {
	case metaapi.EventOrderUpdated:
		l.logger.Debug("order updated", "order_id", ev.OrderID)
		l.engine.Broadcast(fanout.OrderUpdated(l.accountID, ev.OrderID, ev.Order))

	case metaapi.EventOrderCompleted:
		l.logger.Info("order completed", "order_id", ev.OrderID)
		entry := ledger.OrderEntry{
			OrderID:     ev.OrderID,
			CompletedAt: l.now().UTC().Format(timestampFormat),
		}
		if ev.Order != nil {
			entry.Order = *ev.Order
		}
		l.ledger.RecordOrder(l.accountID, entry)
		l.engine.Broadcast(fanout.OrderCompleted(l.accountID, ev.OrderID, ev.Order))

	case metaapi.EventPositionUpdated:
		l.logger.Debug("position updated", "position_id", ev.PositionID)
		l.engine.Broadcast(fanout.PositionUpdated(l.accountID, ev.PositionID, ev.Position))

	case metaapi.EventPositionsUpdated:
		l.logger.Debug("positions updated", "count", len(ev.Positions))
		l.engine.Broadcast(fanout.PositionsUpdated(l.accountID, ev.Positions))

	case metaapi.EventPositionRemoved:
		l.logger.Debug("position removed", "position_id", ev.PositionID)
		l.engine.Broadcast(fanout.PositionRemoved(l.accountID, ev.PositionID))

	case metaapi.EventDealAdded:
		l.logger.Info("deal added", "deal_id", ev.DealID)
		entry := ledger.DealEntry{
			DealID:     ev.DealID,
			RecordedAt: l.now().UTC().Format(timestampFormat),
		}
		if ev.Deal != nil {
			entry.Deal = *ev.Deal
		}
		l.ledger.RecordDeal(l.accountID, entry)
		l.engine.Broadcast(fanout.DealAdded(l.accountID, ev.DealID, entry))

	case metaapi.EventConnected:
		l.logger.Info("terminal connected")
		l.engine.Broadcast(fanout.AccountConnected(l.accountID))

	case metaapi.EventDisconnected:
		l.logger.Info("terminal disconnected")
		l.engine.Broadcast(fanout.AccountDisconnected(l.accountID))

	case metaapi.EventAccountInformationUpdated:
		l.logger.Debug("account information updated")
		l.engine.Broadcast(fanout.AccountInformationUpdated(l.accountID, ev.AccountInformation))

	case metaapi.EventSymbolPriceUpdated, metaapi.EventSymbolPricesUpdated:
		// Dropped: price ticks are high-frequency and observers do not
		// consume them.
	}
}
