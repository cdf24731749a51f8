package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/dca"
	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/notifications"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/store"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// pendingOrder is an order whose outcome has not been folded into the
// position yet. next is the state Decide produced for it.
type pendingOrder struct {
	handle   exchange.OrderHandle
	action   dca.Action
	next     dca.PositionState
	placedAt time.Time
	// journaled is set once the order has been written to the journal
	journaled bool
}

func (p *pendingOrder) record() store.PendingOrder {
	return store.PendingOrder{
		Symbol:   p.handle.Symbol,
		LinkID:   p.handle.LinkID,
		OrderID:  p.handle.ID,
		Side:     p.handle.Side,
		Action:   p.action,
		Next:     p.next.Snapshot(),
		PlacedAt: p.placedAt,
	}
}

func pendingFromRecord(rec store.PendingOrder) *pendingOrder {
	return &pendingOrder{
		handle:    exchange.OrderHandle{ID: rec.OrderID, LinkID: rec.LinkID, Symbol: rec.Symbol, Side: rec.Side},
		action:    rec.Action,
		next:      dca.FromSnapshot(rec.Next),
		placedAt:  rec.PlacedAt,
		journaled: true,
	}
}

// outcomeUnknown reports whether a failed placement may still have reached
// the exchange. Such orders are reconciled by link id, never resubmitted.
func outcomeUnknown(err error) bool {
	if errors.Is(err, boterrors.ErrDuplicateOrder) || errors.Is(err, context.Canceled) {
		return true
	}
	switch boterrors.CategoryOf(err) {
	case boterrors.ErrorCategoryTransient, boterrors.ErrorCategoryTimeout, boterrors.ErrorCategoryDisconnected:
		return true
	}
	return false
}

func (r *Runner) executeLocked(ctx context.Context, action *dca.Action, next dca.PositionState) {
	side := types.SideSell
	if action.Type.IsBuy() {
		side = types.SideBuy
	}

	if side == types.SideBuy && r.cfg.CheckBalance {
		balance, err := r.deps.Client.GetBalance(ctx, r.cfg.QuoteCurrency)
		if err != nil {
			r.orderFailed(action, "balance-unavailable", err)
			return
		}
		if balance < action.Amount {
			r.orderFailed(action, "insufficient-balance",
				fmt.Errorf("%w: have %.8f %s, need %.8f", boterrors.ErrInsufficientBalance, balance, r.cfg.QuoteCurrency, action.Amount))
			return
		}
	}

	linkID := uuid.NewString()
	var (
		handle *exchange.OrderHandle
		err    error
	)
	if side == types.SideBuy {
		handle, err = r.deps.Client.PlaceMarketBuy(ctx, r.cfg.Symbol, action.Amount, linkID)
	} else {
		handle, err = r.deps.Client.PlaceMarketSell(ctx, r.cfg.Symbol, action.Quantity, linkID)
	}

	p := &pendingOrder{
		handle:   exchange.OrderHandle{LinkID: linkID, Symbol: r.cfg.Symbol, Side: side},
		action:   *action,
		next:     next,
		placedAt: r.now(),
	}
	if err != nil {
		if outcomeUnknown(err) {
			r.pending = p
			r.journalPending(ctx, p)
			r.log.Warn("order outcome unknown, will reconcile",
				zap.String("link_id", linkID),
				zap.String("reason", action.Reason),
				logger.ErrorField(err))
			r.publish(notifications.Event{Type: notifications.EventOrderUnknown, Reason: action.Reason, Message: err.Error(), Price: action.Price})
			return
		}
		r.orderFailed(action, "rejected", err)
		return
	}

	if handle != nil {
		p.handle = *handle
		if p.handle.LinkID == "" {
			p.handle.LinkID = linkID
		}
		if p.handle.Symbol == "" {
			p.handle.Symbol = r.cfg.Symbol
		}
		if p.handle.Side == "" {
			p.handle.Side = side
		}
	}
	r.pending = p
	r.awaitLocked(ctx)
}

// awaitLocked polls the pending order until it is terminal or OrderTimeout
// passes. On timeout the order stays pending for the next decision.
func (r *Runner) awaitLocked(ctx context.Context) {
	p := r.pending
	deadline := p.placedAt.Add(r.cfg.OrderTimeout)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := r.deps.Client.GetOrderStatus(ctx, p.handle)
		switch {
		case err == nil && status.State.Terminal():
			r.settleLocked(ctx, status)
			return
		case err != nil && !errors.Is(err, boterrors.ErrOrderNotFound):
			r.log.Debug("order status poll failed", zap.String("link_id", p.handle.LinkID), logger.ErrorField(err))
		}

		if !r.now().Before(deadline) {
			r.unknown(ctx, p, fmt.Sprintf("no terminal status after %s", r.cfg.OrderTimeout))
			return
		}
		select {
		case <-ctx.Done():
			r.unknown(ctx, p, "stopped while waiting for fill")
			return
		case <-ticker.C:
		}
	}
}

// reconcileLocked looks the pending order up once. A terminal order is
// committed, a missing one is dropped, and one still open past its timeout
// gets a cancel request.
func (r *Runner) reconcileLocked(ctx context.Context) {
	p := r.pending
	status, err := r.deps.Client.GetOrderStatus(ctx, p.handle)
	if err != nil {
		if errors.Is(err, boterrors.ErrOrderNotFound) {
			r.pending = nil
			r.forgetPending(ctx, p)
			r.log.Warn("pending order never reached the exchange", zap.String("link_id", p.handle.LinkID))
			r.publish(notifications.Event{Type: notifications.EventOrderFailed, Reason: p.action.Reason, Message: "order not found during reconciliation"})
			return
		}
		r.log.Warn("reconcile lookup failed", zap.String("link_id", p.handle.LinkID), logger.ErrorField(err))
		return
	}

	if status.State.Terminal() {
		r.log.Info("pending order reconciled", zap.String("link_id", p.handle.LinkID), zap.String("state", string(status.State)))
		r.settleLocked(ctx, status)
		return
	}

	if r.now().Sub(p.placedAt) > r.cfg.OrderTimeout {
		if err := r.deps.Client.CancelOrder(ctx, status.Handle); err != nil {
			r.log.Warn("cancel of stale order failed", zap.String("order_id", status.Handle.ID), logger.ErrorField(err))
			return
		}
		r.log.Info("cancel requested for stale order", zap.String("order_id", status.Handle.ID))
	}
}

// settleLocked folds a terminal order into the position
func (r *Runner) settleLocked(ctx context.Context, status *exchange.OrderStatus) {
	p := r.pending
	r.pending = nil
	r.forgetPending(ctx, p)

	fill, ok := status.Fill(p.action.Reason)
	if !ok {
		r.orderFailed(&p.action, "cancelled", errors.New("order ended without fills"))
		return
	}
	if fill.Symbol == "" {
		fill.Symbol = r.cfg.Symbol
	}
	if fill.Side == "" {
		fill.Side = p.handle.Side
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = r.now()
	}
	r.commitLocked(ctx, p, fill)
}

func (r *Runner) commitLocked(ctx context.Context, p *pendingOrder, fill types.Fill) {
	r.position = r.engine.ApplyFill(p.next, fill)
	if fill.Side == types.SideBuy {
		r.cash -= fill.Value() + fill.Fee
	} else {
		r.cash += fill.Value() - fill.Fee
	}
	switch {
	case p.action.Type == dca.ActionEnter:
		r.guard.Open(fill.Price)
	case r.position.IsFlat():
		r.guard.Close()
	}
	r.storeView()
	snap := r.Snapshot()

	if r.deps.Journal != nil {
		if err := r.deps.Journal.RecordFill(ctx, fill); err != nil {
			r.log.Error("journal fill failed", logger.ErrorField(err))
		}
		if err := r.deps.Journal.SavePosition(ctx, snap); err != nil {
			r.log.Error("journal position failed", logger.ErrorField(err))
		}
	}

	r.log.Info("fill applied",
		zap.String("side", string(fill.Side)),
		zap.String("reason", fill.Reason),
		zap.Float64("price", fill.Price),
		zap.Float64("qty", fill.Quantity),
		zap.Float64("fee", fill.Fee),
		zap.Float64("avg_price", snap.AvgEntryPrice),
		zap.Float64("held", snap.QuantityHeld))
	f := fill
	r.publish(notifications.Event{Type: notifications.EventFill, Reason: fill.Reason, Price: fill.Price, Fill: &f, Snapshot: &snap})
}

func (r *Runner) unknown(ctx context.Context, p *pendingOrder, msg string) {
	r.journalPending(ctx, p)
	r.log.Warn("order left pending", zap.String("link_id", p.handle.LinkID), zap.String("detail", msg))
	r.publish(notifications.Event{Type: notifications.EventOrderUnknown, Reason: p.action.Reason, Message: msg, Price: p.action.Price})
}

func (r *Runner) orderFailed(action *dca.Action, tag string, err error) {
	r.log.Warn("order failed",
		zap.String("reason", action.Reason),
		zap.String("failure", tag),
		zap.String("category", string(boterrors.CategoryOf(err))),
		logger.ErrorField(err))
	r.publish(notifications.Event{
		Type:    notifications.EventOrderFailed,
		Reason:  action.Reason,
		Message: tag + ": " + err.Error(),
		Price:   action.Price,
	})
}

// journalPending writes p so a restart can reconcile it. ctx may already be
// cancelled when the runner is stopping.
func (r *Runner) journalPending(ctx context.Context, p *pendingOrder) {
	if r.deps.Journal == nil {
		return
	}
	if err := r.deps.Journal.SavePending(context.WithoutCancel(ctx), p.record()); err != nil {
		r.log.Error("journal pending order failed", zap.String("link_id", p.handle.LinkID), logger.ErrorField(err))
		return
	}
	p.journaled = true
}

func (r *Runner) forgetPending(ctx context.Context, p *pendingOrder) {
	if r.deps.Journal == nil || !p.journaled {
		return
	}
	if err := r.deps.Journal.ClearPending(context.WithoutCancel(ctx), r.cfg.Symbol); err != nil {
		r.log.Error("clear pending order failed", zap.String("link_id", p.handle.LinkID), logger.ErrorField(err))
	}
}
