package bybit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	boterrors "github.com/jang1230/upbit-auto-trader-sub000/internal/errors"
	"github.com/jang1230/upbit-auto-trader-sub000/internal/exchange"
	"github.com/jang1230/upbit-auto-trader-sub000/pkg/types"
)

// apiOrder is the subset of the v5 order object the adapter reads
type apiOrder struct {
	OrderID      string `json:"orderId"`
	OrderLinkID  string `json:"orderLinkId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderStatus  string `json:"orderStatus"`
	CumExecQty   string `json:"cumExecQty"`
	CumExecValue string `json:"cumExecValue"`
	CumExecFee   string `json:"cumExecFee"`
	AvgPrice     string `json:"avgPrice"`
	UpdatedTime  string `json:"updatedTime"`
}

// PlaceMarketBuy spends amount of quote currency
func (c *Client) PlaceMarketBuy(ctx context.Context, symbol string, amount float64, linkID string) (*exchange.OrderHandle, error) {
	inst, err := c.instruments.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	qty, err := inst.FormatAmount(amount)
	if err != nil {
		return nil, err
	}
	return c.placeMarket(ctx, symbol, types.SideBuy, qty, "quoteCoin", linkID)
}

// PlaceMarketSell sells qty of base currency
func (c *Client) PlaceMarketSell(ctx context.Context, symbol string, qty float64, linkID string) (*exchange.OrderHandle, error) {
	inst, err := c.instruments.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	formatted, err := inst.FormatQty(qty)
	if err != nil {
		return nil, err
	}
	return c.placeMarket(ctx, symbol, types.SideSell, formatted, "baseCoin", linkID)
}

func (c *Client) placeMarket(ctx context.Context, symbol string, side types.Side, qty, unit, linkID string) (*exchange.OrderHandle, error) {
	apiParams := map[string]interface{}{
		"category":   c.category,
		"symbol":     symbol,
		"side":       apiSide(side),
		"orderType":  "Market",
		"qty":        qty,
		"marketUnit": unit,
	}
	if linkID != "" {
		apiParams["orderLinkId"] = linkID
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, transportError("PlaceOrder", err)
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult("PlaceOrder", result, &placed); err != nil {
		if errors.Is(err, boterrors.ErrBelowMinimum) {
			c.instruments.Invalidate(symbol)
		}
		return nil, err
	}

	c.log.Info("order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty),
		zap.String("unit", unit),
		zap.String("order_id", placed.OrderID),
		zap.String("link_id", placed.OrderLinkID))

	return &exchange.OrderHandle{ID: placed.OrderID, LinkID: placed.OrderLinkID, Symbol: symbol, Side: side}, nil
}

// GetOrderStatus looks the order up among open orders first, then history
func (c *Client) GetOrderStatus(ctx context.Context, handle exchange.OrderHandle) (*exchange.OrderStatus, error) {
	params := c.orderParams(handle)

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, transportError("GetOpenOrders", err)
	}
	order, err := findOrder("GetOpenOrders", result, handle)
	if err != nil {
		return nil, err
	}

	if order == nil {
		result, err = c.httpClient.NewUtaBybitServiceWithParams(c.orderParams(handle)).GetOrderHistory(ctx)
		if err != nil {
			return nil, transportError("GetOrderHistory", err)
		}
		order, err = findOrder("GetOrderHistory", result, handle)
		if err != nil {
			return nil, err
		}
	}

	if order == nil {
		return nil, boterrors.NewBusinessError(boterrors.ErrOrderNotFound, component, "GetOrderStatus", 0,
			"order "+handle.ID+handle.LinkID+" not found")
	}
	return toStatus(*order, handle), nil
}

// CancelOrder cancels an open order
func (c *Client) CancelOrder(ctx context.Context, handle exchange.OrderHandle) error {
	result, err := c.httpClient.NewUtaBybitServiceWithParams(c.orderParams(handle)).CancelOrder(ctx)
	if err != nil {
		return transportError("CancelOrder", err)
	}
	var cancelled struct {
		OrderID string `json:"orderId"`
	}
	return decodeResult("CancelOrder", result, &cancelled)
}

func (c *Client) orderParams(handle exchange.OrderHandle) map[string]interface{} {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   handle.Symbol,
	}
	if handle.ID != "" {
		params["orderId"] = handle.ID
	} else {
		params["orderLinkId"] = handle.LinkID
	}
	return params
}

func findOrder(op string, response interface{}, handle exchange.OrderHandle) (*apiOrder, error) {
	var list struct {
		List []apiOrder `json:"list"`
	}
	if err := decodeResult(op, response, &list); err != nil {
		return nil, err
	}
	for i := range list.List {
		o := list.List[i]
		if (handle.ID != "" && o.OrderID == handle.ID) || (handle.ID == "" && o.OrderLinkID == handle.LinkID) {
			return &o, nil
		}
	}
	return nil, nil
}

// toStatus maps a v5 order into the exchange status. Spot buy fees are
// charged in the base coin, so they reduce the received quantity.
func toStatus(o apiOrder, handle exchange.OrderHandle) *exchange.OrderStatus {
	qty := decOrZero(o.CumExecQty)
	value := decOrZero(o.CumExecValue)
	fee := decOrZero(o.CumExecFee)
	avg := decOrZero(o.AvgPrice)
	if avg.IsZero() && qty.IsPositive() {
		avg = value.Div(qty)
	}

	handle.ID = o.OrderID
	handle.LinkID = o.OrderLinkID

	status := &exchange.OrderStatus{
		Handle:      handle,
		State:       mapOrderState(o.OrderStatus),
		AvgPrice:    avg.InexactFloat64(),
		FilledValue: value.InexactFloat64(),
		UpdatedAt:   parseTimestamp(o.UpdatedTime),
	}
	if handle.Side == types.SideBuy {
		status.FilledQty = qty.Sub(fee).InexactFloat64()
		status.Fee = fee.Mul(avg).InexactFloat64()
	} else {
		status.FilledQty = qty.InexactFloat64()
		status.Fee = fee.InexactFloat64()
	}
	if status.FilledQty < 0 {
		status.FilledQty = 0
	}
	return status
}

func mapOrderState(s string) exchange.OrderState {
	switch s {
	case "Filled":
		return exchange.OrderFilled
	case "Cancelled", "PartiallyFilledCanceled", "Rejected", "Deactivated":
		return exchange.OrderCancelled
	default:
		return exchange.OrderOpen
	}
}

func apiSide(s types.Side) string {
	if s == types.SideBuy {
		return "Buy"
	}
	return "Sell"
}
