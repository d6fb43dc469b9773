package gatewaycore

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

// MarketRef is the wire shape of a market reference inside request bodies.
type MarketRef struct {
	MarketIndex uint16 `json:"marketIndex"`
	MarketType  string `json:"marketType"`
}

func (m MarketRef) toMarket() (driftsdk.Market, error) {
	switch m.MarketType {
	case "perp":
		return driftsdk.PerpMarket(m.MarketIndex), nil
	case "spot":
		return driftsdk.SpotMarket(m.MarketIndex), nil
	default:
		return driftsdk.Market{}, NewBadRequest("unknown market type %q", m.MarketType)
	}
}

// PlaceOrderIntent is one entry of a PlaceOrdersRequest, mirroring §3's
// Order Intent (Place).
type PlaceOrderIntent struct {
	Market            MarketRef        `json:"market"`
	Amount            decimal.Decimal  `json:"amount"`
	Price             decimal.Decimal  `json:"price"`
	UserOrderID       uint8            `json:"userOrderId"`
	OrderType         string           `json:"orderType"`
	PostOnly          bool             `json:"postOnly"`
	ReduceOnly        bool             `json:"reduceOnly"`
	OraclePriceOffset *decimal.Decimal `json:"oraclePriceOffset,omitempty"`
	MaxTs             *int64           `json:"maxTs,omitempty"`
}

type PlaceOrdersRequest struct {
	Orders []PlaceOrderIntent `json:"orders"`
}

// ModifyOrderIntent is one entry of a ModifyOrdersRequest.
type ModifyOrderIntent struct {
	OrderID     *uint32          `json:"orderId,omitempty"`
	UserOrderID *uint8           `json:"userOrderId,omitempty"`
	NewAmount   *decimal.Decimal `json:"newAmount,omitempty"`
	NewPrice    *decimal.Decimal `json:"newPrice,omitempty"`
}

type ModifyOrdersRequest struct {
	Orders []ModifyOrderIntent `json:"orders"`
}

// CancelOrdersRequest carries the priority-ordered addressing keys of §4.3:
// market > user_ids > ids > (cancel all).
type CancelOrdersRequest struct {
	Market  *MarketRef `json:"market,omitempty"`
	UserIDs []uint8    `json:"userIds,omitempty"`
	IDs     []uint32   `json:"ids,omitempty"`
}

type CancelAndPlaceRequest struct {
	Cancel *CancelOrdersRequest `json:"cancel,omitempty"`
	Modify *ModifyOrdersRequest `json:"modify,omitempty"`
	Place  *PlaceOrdersRequest  `json:"place,omitempty"`
}

type SetMaxInitialMarginRatioRequest struct {
	Market     MarketRef       `json:"market"`
	NewRatio   decimal.Decimal `json:"newRatio"`
}

// TxOptions carries the per-write query parameters common to every mutating
// endpoint: subAccountId, computeUnitPrice, computeUnitLimit, ttl.
type TxOptions struct {
	SubAccountID     uint16
	ComputeUnitPrice *uint64
	ComputeUnitLimit *uint32
	TTLSeconds       *int
}

// TxResponse is the uniform `{tx}` result of every write endpoint.
type TxResponse struct {
	Tx string `json:"tx"`
}

// MarketInfoView is the rendered GET /markets entry.
type MarketInfoView struct {
	MarketIndex            uint16          `json:"marketIndex"`
	MarketType             string          `json:"marketType"`
	PriceStep              decimal.Decimal `json:"priceStep"`
	AmountStep              decimal.Decimal `json:"amountStep"`
	MinOrderSize            decimal.Decimal `json:"minOrderSize"`
	MarginRatioInitial      *uint32         `json:"marginRatioInitial,omitempty"`
	MarginRatioMaintenance  *uint32         `json:"marginRatioMaintenance,omitempty"`
}

// OrderWithDecimals is the order view returned by GET /orders and carried
// inside OrderCreate events: raw fixed-point fields re-scaled to decimal.
type OrderWithDecimals struct {
	OrderID           uint32          `json:"orderId"`
	UserOrderID       uint8           `json:"userOrderId"`
	MarketIndex       uint16          `json:"marketIndex"`
	MarketType        string          `json:"marketType"`
	Direction         string          `json:"direction"`
	OrderType         string          `json:"orderType"`
	Amount            decimal.Decimal `json:"amount"`
	AmountFilled      decimal.Decimal `json:"amountFilled"`
	Price             decimal.Decimal `json:"price"`
	TriggerPrice      decimal.Decimal `json:"triggerPrice"`
	OraclePriceOffset decimal.Decimal `json:"oraclePriceOffset"`
	ReduceOnly        bool            `json:"reduceOnly"`
	PostOnly          bool            `json:"postOnly"`
	Status            string          `json:"status"`
}

// PositionsView is the GET /positions result shape.
type PositionsView struct {
	Spot []SpotPositionView `json:"spot"`
	Perp []PerpPositionView `json:"perp"`
}

type SpotPositionView struct {
	MarketIndex uint16          `json:"marketIndex"`
	Amount      decimal.Decimal `json:"amount"`
}

type PerpPositionView struct {
	MarketIndex      uint16          `json:"marketIndex"`
	BaseAssetAmount  decimal.Decimal `json:"baseAssetAmount"`
	QuoteAssetAmount decimal.Decimal `json:"quoteAssetAmount"`
}

type PerpPositionInfoView struct {
	PerpPositionView
	LiquidationPrice   decimal.Decimal `json:"liquidationPrice"`
	UnrealizedPnl      decimal.Decimal `json:"unrealizedPnl"`
	UnsettledPnl       decimal.Decimal `json:"unsettledPnl"`
	OraclePrice        decimal.Decimal `json:"oraclePrice"`
}

type BalanceView struct {
	Lamports uint64          `json:"lamports"`
	Sol      decimal.Decimal `json:"sol"`
}

type MarginInfoView struct {
	InitialRequirement     decimal.Decimal `json:"initialRequirement"`
	MaintenanceRequirement decimal.Decimal `json:"maintenanceRequirement"`
}

type LeverageView struct {
	Leverage decimal.Decimal `json:"leverage"`
}

type CollateralView struct {
	Total decimal.Decimal `json:"total"`
	Free  decimal.Decimal `json:"free"`
}

type TransactionEventView struct {
	Events  []AccountEvent `json:"events"`
	Success bool           `json:"success"`
	Reason  string         `json:"reason,omitempty"`
}

// AccountEvent is the closed tagged union delivered to Ws subscribers.
// Exactly one of the typed payload fields is populated, selected by Kind.
type AccountEvent struct {
	Kind        string    `json:"kind"`
	Signature   string    `json:"signature"`
	TxIdx       int       `json:"txIdx"`
	Ts          int64     `json:"ts"`

	Fill              *FillEvent         `json:"fill,omitempty"`
	Trigger           *TriggerEvent      `json:"trigger,omitempty"`
	OrderCreate       *OrderWithDecimals `json:"orderCreate,omitempty"`
	OrderCancel       *OrderCancelEvent  `json:"orderCancel,omitempty"`
	OrderCancelMissing *OrderCancelEvent `json:"orderCancelMissing,omitempty"`
	OrderExpire       *OrderExpireEvent  `json:"orderExpire,omitempty"`
	FundingPayment    *FundingEvent      `json:"fundingPayment,omitempty"`
	Swap              *SwapEvent         `json:"swap,omitempty"`
}

type FillEvent struct {
	Side   string          `json:"side"`
	Fee    decimal.Decimal `json:"fee"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`

	Maker        *solana.PublicKey `json:"maker,omitempty"`
	MakerOrderID *uint32           `json:"makerOrderId,omitempty"`
	MakerFee     *decimal.Decimal  `json:"makerFee,omitempty"`
	Taker        *solana.PublicKey `json:"taker,omitempty"`
	TakerOrderID *uint32           `json:"takerOrderId,omitempty"`
	TakerFee     *decimal.Decimal  `json:"takerFee,omitempty"`
}

type TriggerEvent struct {
	OrderID     uint32 `json:"orderId"`
	OraclePrice int64  `json:"oraclePrice"`
}

type OrderCancelEvent struct {
	OrderID uint32 `json:"orderId"`
}

type OrderExpireEvent struct {
	OrderID uint32          `json:"orderId"`
	Fee     decimal.Decimal `json:"fee"`
}

type FundingEvent struct {
	MarketIndex uint16          `json:"marketIndex"`
	Amount      decimal.Decimal `json:"amount"`
}

type SwapEvent struct {
	MarketIndexIn  uint16          `json:"marketIndexIn"`
	MarketIndexOut uint16          `json:"marketIndexOut"`
	AmountIn       decimal.Decimal `json:"amountIn"`
	AmountOut      decimal.Decimal `json:"amountOut"`
}
