package backtest

import "github.com/pedropmedina/trailgrid/orders"

// Fill is one simulated execution and the account state right after it.
type Fill struct {
	Index         int              `json:"index"`
	Symbol        string           `json:"symbol"`
	Pnl           float64          `json:"pnl"`
	FeePaid       float64          `json:"fee_paid"`
	Balance       float64          `json:"balance"`
	FillQty       float64          `json:"fill_qty"`
	FillPrice     float64          `json:"fill_price"`
	PositionSize  float64          `json:"position_size"`
	PositionPrice float64          `json:"position_price"`
	OrderType     orders.OrderType `json:"order_type"`
}

// FillHeader names the columns of a fill tuple, in order.
var FillHeader = []string{
	"index",
	"symbol",
	"pnl",
	"fee_paid",
	"balance",
	"fill_qty",
	"fill_price",
	"position_size",
	"position_price",
	"order_type",
}

// IsClose reports whether the fill reduced a position.
func (f Fill) IsClose() bool {
	switch f.OrderType {
	case orders.CloseGridLong, orders.CloseTrailingLong, orders.CloseUnstuckLong,
		orders.CloseGridShort, orders.CloseTrailingShort, orders.CloseUnstuckShort:
		return true
	}
	return false
}
