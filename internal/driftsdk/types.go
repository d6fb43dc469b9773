// Package driftsdk is the port/adapter boundary standing in for the
// "opaque third-party SDK" the gateway's core translates against: account
// fetch/cache, instruction encoding, log parsing, and RPC plumbing. The core
// packages (wallet, gatewaycore) depend only on the ProgramDataCache
// interface below; this package supplies the concrete solana-go-backed
// implementation.
package driftsdk

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// MarketType distinguishes perpetual from spot markets. Perp markets always
// use base precision 10^9; spot markets carry per-market decimals.
type MarketType uint8

const (
	MarketTypePerp MarketType = iota
	MarketTypeSpot
)

func (t MarketType) String() string {
	if t == MarketTypeSpot {
		return "spot"
	}
	return "perp"
}

// Market identifies a single perp or spot market.
type Market struct {
	Index uint16
	Type  MarketType
}

func PerpMarket(index uint16) Market { return Market{Index: index, Type: MarketTypePerp} }
func SpotMarket(index uint16) Market { return Market{Index: index, Type: MarketTypeSpot} }

// Global precision constants. Perp base precision and price precision are
// fixed; spot decimals vary per market and are looked up in ProgramData.
const (
	BaseDecimalsPerp  = 9
	PriceDecimals     = 6
	MarginPrecision   = 10_000
)

// BaseDecimals returns the number of base-amount decimal places for market,
// consulting programData for spot markets.
func BaseDecimals(ctx context.Context, cache ProgramDataCache, market Market) (uint32, error) {
	if market.Type == MarketTypePerp {
		return BaseDecimalsPerp, nil
	}
	spot, err := cache.SpotMarketAccount(ctx, market.Index)
	if err != nil {
		return 0, err
	}
	return spot.Decimals, nil
}

// OrderType enumerates the order execution styles the translator supports.
type OrderType uint8

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeOracle
	OrderTypeTriggerLimit
	OrderTypeTriggerMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeOracle:
		return "oracle"
	case OrderTypeTriggerLimit:
		return "triggerLimit"
	case OrderTypeTriggerMarket:
		return "triggerMarket"
	default:
		return "limit"
	}
}

func ParseOrderType(s string) (OrderType, bool) {
	switch s {
	case "limit":
		return OrderTypeLimit, true
	case "market":
		return OrderTypeMarket, true
	case "oracle":
		return OrderTypeOracle, true
	case "triggerLimit":
		return OrderTypeTriggerLimit, true
	case "triggerMarket":
		return OrderTypeTriggerMarket, true
	default:
		return 0, false
	}
}

// PostOnlyParam mirrors the on-chain program's PostOnlyParam enum. The
// gateway's client-facing intent only distinguishes post-only vs not, and
// always requests the must-post-only variant: a would-cross order is
// rejected by the program rather than silently resting at a worse price
// the way TryPostOnly/Slide would allow.
type PostOnlyParam uint8

const (
	PostOnlyParamNone PostOnlyParam = iota
	PostOnlyParamMustPostOnly
	PostOnlyParamTryPostOnly
	PostOnlyParamSlide
)

// PositionDirection is Long or Short, derived from the sign of a signed
// order amount.
type PositionDirection uint8

const (
	DirectionLong PositionDirection = iota
	DirectionShort
)

func (d PositionDirection) Side() string {
	if d == DirectionShort {
		return "sell"
	}
	return "buy"
}

// PerpMarketAccount is the decoded subset of on-chain perp market state the
// gateway needs to translate requests and render market/position views.
type PerpMarketAccount struct {
	MarketIndex            uint16
	PriceStep              decimal.Decimal
	AmountStep              decimal.Decimal
	MinOrderSize            decimal.Decimal
	MarginRatioInitial      uint32
	MarginRatioMaintenance  uint32
	OpenInterest            decimal.Decimal
	MaxOpenInterest         decimal.Decimal
	OraclePrice             decimal.Decimal
}

// SpotMarketAccount is the decoded subset of on-chain spot market state.
type SpotMarketAccount struct {
	MarketIndex  uint16
	Decimals     uint32
	PriceStep    decimal.Decimal
	AmountStep   decimal.Decimal
	MinOrderSize decimal.Decimal
	OraclePrice  decimal.Decimal
}

// MarketInfo is the rendered view returned by GET /markets.
type MarketInfo struct {
	Market       Market
	PriceStep    decimal.Decimal
	AmountStep   decimal.Decimal
	MinOrderSize decimal.Decimal
}

// Order is the decoded on-chain order state (fixed-point), mirroring the
// program's Order account layout closely enough for the translator and
// event mapper to operate on.
type Order struct {
	Slot                uint64
	Price               int64
	BaseAssetAmount      int64
	BaseAssetAmountFilled int64
	TriggerPrice         int64
	AuctionStartPrice    int64
	AuctionEndPrice      int64
	MaxTs                int64
	OraclePriceOffset    int64
	OrderID              uint32
	MarketIndex          uint16
	OrderType            OrderType
	MarketType           MarketType
	UserOrderID          uint8
	Direction            PositionDirection
	ReduceOnly           bool
	PostOnly             bool
	ImmediateOrCancel    bool
	AuctionDuration      uint8
	Status               OrderStatus
}

type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

// PerpPosition is the decoded on-chain perp position for one market.
type PerpPosition struct {
	MarketIndex         uint16
	BaseAssetAmount     int64
	QuoteAssetAmount    int64
	QuoteEntryAmount    int64
	QuoteBreakEvenAmount int64
}

// SpotPosition is the decoded on-chain spot position for one market.
type SpotPosition struct {
	MarketIndex uint16
	TokenAmount int64 // signed: positive deposit, negative borrow
}

// UserMarginAccount is the decoded subset of a user's margin account: open
// orders and positions across markets.
type UserMarginAccount struct {
	Authority     solana.PublicKey
	SubAccountID  uint16
	Orders        []Order
	PerpPositions []PerpPosition
	SpotPositions []SpotPosition
}

// RawLogEvent is a single parsed log-program event, the source of every
// AccountEvent the gateway emits to Ws subscribers.
type RawLogEvent struct {
	Kind       RawEventKind
	Signature  string
	TxIdx      int
	Slot       uint64
	Ts         uint64
	OrderFill  *RawOrderFill
	OrderID    uint32
	OraclePrice int64
	UserOrderID uint8
	Fee         int64
	MarketIndex uint16
	MarketIndexOut uint16
	MarketType  MarketType
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	Order       *Order

	// Maker/Taker context, populated on OrderCancel when the cancellation arose from a crossing attempt, so the mapper can
	// select the maker's or taker's order_id depending on the subscriber.
	Maker        *solana.PublicKey
	MakerOrderID *uint32
	Taker        *solana.PublicKey
	TakerOrderID *uint32
}

type RawEventKind uint8

const (
	RawEventOrderFill RawEventKind = iota
	RawEventOrderTrigger
	RawEventOrderCreate
	RawEventOrderCancel
	RawEventOrderCancelMissing
	RawEventOrderExpire
	RawEventFundingPayment
	RawEventSwap
)

// RawOrderFill is the raw (pre-decimal-scaled) fill payload parsed from the
// program log stream.
type RawOrderFill struct {
	Side          PositionDirection
	Fee           int64
	BaseAmount    uint64
	QuoteAmount   uint64
	OraclePrice   int64
	OrderID       uint32
	MarketIndex   uint16
	MarketType    MarketType
	Maker         *solana.PublicKey
	MakerOrderID  *uint32
	MakerFee      *int64
	Taker         *solana.PublicKey
	TakerOrderID  *uint32
	TakerFee      *int64
}

// ProgramDataCache is the capability set the core depends on in place of a
// direct solana-go/RPC dependency: account fetch with caching, instruction
// encoding, log parsing, and RPC send/status plumbing.
type ProgramDataCache interface {
	UserMarginAccount(ctx context.Context, authority solana.PublicKey, subAccountID uint16) (*UserMarginAccount, error)
	PerpMarketAccount(ctx context.Context, index uint16) (*PerpMarketAccount, error)
	SpotMarketAccount(ctx context.Context, index uint16) (*SpotMarketAccount, error)
	AllMarkets(ctx context.Context) ([]MarketInfo, error)

	LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error)
	SubscribeLogs(ctx context.Context, account solana.PublicKey) (<-chan RawLogEvent, error)

	SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// SignatureStatus is the narrowed view of an RPC signature-status response
// the confirmation loop needs.
type SignatureStatus struct {
	Confirmed bool
	Err       error
	ProgramErrorCode int
	ProgramErrorName string
}

// ProgramDataRefreshInterval is how often cached market/account data is
// considered stale and refetched by the concrete cache implementation.
const ProgramDataRefreshInterval = 2 * time.Second
