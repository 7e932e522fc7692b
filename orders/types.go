// Package orders decides which entry or close order a grid/trailing strategy
// should place next. Every function here is pure: all state comes in through
// the parameter structs and a new Order comes out.
package orders

import "math"

// ExchangeParams describes the venue constraints of a single symbol.
type ExchangeParams struct {
	QtyStep   float64 `mapstructure:"qty_step" json:"qty_step" validate:"gt=0"`
	PriceStep float64 `mapstructure:"price_step" json:"price_step" validate:"gt=0"`
	MinQty    float64 `mapstructure:"min_qty" json:"min_qty" validate:"gt=0"`
	MinCost   float64 `mapstructure:"min_cost" json:"min_cost" validate:"gt=0"`
	// Contract value multiplier.
	CMult float64 `mapstructure:"c_mult" json:"c_mult" validate:"gt=0"`
}

type OrderBook struct {
	Bid float64
	Ask float64
}

type EMABands struct {
	Lower float64
	Upper float64
}

// StateParams is the market and account snapshot a decision is made against.
type StateParams struct {
	Balance   float64
	OrderBook OrderBook
	EMABands  EMABands
}

// BotParams configures one side (long or short) of the strategy.
type BotParams struct {
	CloseGridMarkupRange        float64 `mapstructure:"close_grid_markup_range" json:"close_grid_markup_range" validate:"gte=0,lte=10"`
	CloseGridMinMarkup          float64 `mapstructure:"close_grid_min_markup" json:"close_grid_min_markup" validate:"gte=0,lte=10"`
	CloseGridQtyPct             float64 `mapstructure:"close_grid_qty_pct" json:"close_grid_qty_pct" validate:"gte=0,lte=1"`
	CloseTrailingRetracementPct float64 `mapstructure:"close_trailing_retracement_pct" json:"close_trailing_retracement_pct" validate:"gte=0,lte=1"`
	CloseTrailingGridRatio      float64 `mapstructure:"close_trailing_grid_ratio" json:"close_trailing_grid_ratio" validate:"gte=-1,lte=1"`
	CloseTrailingQtyPct         float64 `mapstructure:"close_trailing_qty_pct" json:"close_trailing_qty_pct" validate:"gte=0,lte=1"`
	CloseTrailingThresholdPct   float64 `mapstructure:"close_trailing_threshold_pct" json:"close_trailing_threshold_pct" validate:"gte=-1,lte=1"`

	EntryGridDoubleDownFactor   float64 `mapstructure:"entry_grid_double_down_factor" json:"entry_grid_double_down_factor" validate:"gte=0,lte=100"`
	EntryGridSpacingWeight      float64 `mapstructure:"entry_grid_spacing_weight" json:"entry_grid_spacing_weight" validate:"gte=0,lte=100"`
	EntryGridSpacingPct         float64 `mapstructure:"entry_grid_spacing_pct" json:"entry_grid_spacing_pct" validate:"gte=0,lte=1"`
	EntryInitialEMADist         float64 `mapstructure:"entry_initial_ema_dist" json:"entry_initial_ema_dist" validate:"gte=-1,lte=1"`
	EntryInitialQtyPct          float64 `mapstructure:"entry_initial_qty_pct" json:"entry_initial_qty_pct" validate:"gte=0,lte=1"`
	EntryTrailingRetracementPct float64 `mapstructure:"entry_trailing_retracement_pct" json:"entry_trailing_retracement_pct" validate:"gte=0,lte=1"`
	EntryTrailingGridRatio      float64 `mapstructure:"entry_trailing_grid_ratio" json:"entry_trailing_grid_ratio" validate:"gte=-1,lte=1"`
	EntryTrailingThresholdPct   float64 `mapstructure:"entry_trailing_threshold_pct" json:"entry_trailing_threshold_pct" validate:"gte=-1,lte=1"`

	EMASpan0 float64 `mapstructure:"ema_span_0" json:"ema_span_0" validate:"gte=1"`
	EMASpan1 float64 `mapstructure:"ema_span_1" json:"ema_span_1" validate:"gte=1"`

	// NPositions is the number of symbols that may hold a position on this side at once.
	NPositions               int     `mapstructure:"-" json:"n_positions" validate:"gte=0"`
	TotalWalletExposureLimit float64 `mapstructure:"total_wallet_exposure_limit" json:"total_wallet_exposure_limit" validate:"gte=0,lte=100"`
	WalletExposureLimit      float64 `mapstructure:"wallet_exposure_limit" json:"wallet_exposure_limit" validate:"gte=0,lte=100"`

	UnstuckClosePct         float64 `mapstructure:"unstuck_close_pct" json:"unstuck_close_pct" validate:"gte=0,lte=1"`
	UnstuckEMADist          float64 `mapstructure:"unstuck_ema_dist" json:"unstuck_ema_dist" validate:"gte=-1,lte=1"`
	UnstuckLossAllowancePct float64 `mapstructure:"unstuck_loss_allowance_pct" json:"unstuck_loss_allowance_pct" validate:"gte=0,lte=1"`
	UnstuckThreshold        float64 `mapstructure:"unstuck_threshold" json:"unstuck_threshold" validate:"gte=0,lte=1"`
}

// BotParamKeys lists every configuration key of BotParams. All of them are
// required when parsing a config.
var BotParamKeys = []string{
	"close_grid_markup_range",
	"close_grid_min_markup",
	"close_grid_qty_pct",
	"close_trailing_retracement_pct",
	"close_trailing_grid_ratio",
	"close_trailing_qty_pct",
	"close_trailing_threshold_pct",
	"entry_grid_double_down_factor",
	"entry_grid_spacing_weight",
	"entry_grid_spacing_pct",
	"entry_initial_ema_dist",
	"entry_initial_qty_pct",
	"entry_trailing_retracement_pct",
	"entry_trailing_grid_ratio",
	"entry_trailing_threshold_pct",
	"ema_span_0",
	"ema_span_1",
	"n_positions",
	"total_wallet_exposure_limit",
	"wallet_exposure_limit",
	"unstuck_close_pct",
	"unstuck_ema_dist",
	"unstuck_loss_allowance_pct",
	"unstuck_threshold",
}

type BotParamsPair struct {
	Long  BotParams `json:"long"`
	Short BotParams `json:"short"`
}

// Position is the open position on one side of one symbol. Size is positive
// for longs and negative for shorts. Price is the average entry price and is
// meaningless while Size is zero.
type Position struct {
	Size  float64
	Price float64
}

// IsFlat reports whether there is no open position.
func (p Position) IsFlat() bool {
	return p.Size == 0
}

// TrailingPriceBundle holds the price extrema a trailing order watches.
// MinSinceOpen/MaxSinceOpen are tracked since the position segment opened,
// MaxSinceMin/MinSinceMax since the most recent opposing extreme.
type TrailingPriceBundle struct {
	MinSinceOpen float64
	MaxSinceMin  float64
	MaxSinceOpen float64
	MinSinceMax  float64
}

// NewTrailingPriceBundle returns a bundle anchored to nothing. Any observed
// price immediately becomes the new extreme.
func NewTrailingPriceBundle() TrailingPriceBundle {
	return TrailingPriceBundle{
		MinSinceOpen: math.MaxFloat64,
		MaxSinceMin:  0,
		MaxSinceOpen: 0,
		MinSinceMax:  math.MaxFloat64,
	}
}

// Update folds one step's high/low/close into the bundle. Setting a new
// extreme re-anchors the opposing tracker at the step's close.
func (b *TrailingPriceBundle) Update(high, low, close float64) {
	if low < b.MinSinceOpen {
		b.MinSinceOpen = low
		b.MaxSinceMin = close
	} else {
		b.MaxSinceMin = math.Max(b.MaxSinceMin, high)
	}
	if high > b.MaxSinceOpen {
		b.MaxSinceOpen = high
		b.MinSinceMax = close
	} else {
		b.MinSinceMax = math.Min(b.MinSinceMax, low)
	}
}

type OrderType string

const (
	EntryInitialNormalLong   OrderType = "entry_initial_normal_long"
	EntryInitialPartialLong  OrderType = "entry_initial_partial_long"
	EntryTrailingNormalLong  OrderType = "entry_trailing_normal_long"
	EntryTrailingCroppedLong OrderType = "entry_trailing_cropped_long"
	EntryGridNormalLong      OrderType = "entry_grid_normal_long"
	EntryGridCroppedLong     OrderType = "entry_grid_cropped_long"
	EntryGridInflatedLong    OrderType = "entry_grid_inflated_long"
	CloseGridLong            OrderType = "close_grid_long"
	CloseTrailingLong        OrderType = "close_trailing_long"
	CloseUnstuckLong         OrderType = "close_unstuck_long"

	EntryInitialNormalShort   OrderType = "entry_initial_normal_short"
	EntryInitialPartialShort  OrderType = "entry_initial_partial_short"
	EntryTrailingNormalShort  OrderType = "entry_trailing_normal_short"
	EntryTrailingCroppedShort OrderType = "entry_trailing_cropped_short"
	EntryGridNormalShort      OrderType = "entry_grid_normal_short"
	EntryGridCroppedShort     OrderType = "entry_grid_cropped_short"
	EntryGridInflatedShort    OrderType = "entry_grid_inflated_short"
	CloseGridShort            OrderType = "close_grid_short"
	CloseTrailingShort        OrderType = "close_trailing_short"
	CloseUnstuckShort         OrderType = "close_unstuck_short"

	Empty OrderType = "empty"
)

// String returns the canonical name. The zero value renders as "empty".
func (t OrderType) String() string {
	if t == "" {
		return string(Empty)
	}
	return string(t)
}

// IsTrailing reports whether the order came from a trailing generator.
func (t OrderType) IsTrailing() bool {
	switch t {
	case EntryTrailingNormalLong, EntryTrailingCroppedLong, CloseTrailingLong,
		EntryTrailingNormalShort, EntryTrailingCroppedShort, CloseTrailingShort:
		return true
	}
	return false
}

// Order is a single limit order. Qty is signed: positive buys, negative
// sells. A zero Qty means "no order".
type Order struct {
	Qty       float64
	Price     float64
	OrderType OrderType
}

// IsEmpty reports whether the order is the no-op decision.
func (o Order) IsEmpty() bool {
	return o.Qty == 0
}

func emptyOrder() Order {
	return Order{OrderType: Empty}
}
