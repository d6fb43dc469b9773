package gatewaycore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/decimalx"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

const outboundQueueCapacity = 64

// EventRecorder is the event-journal (A5) hook: a best-effort, non-blocking
// sink for delivered events. journal.Store satisfies this interface;
// gatewaycore never imports journal directly to avoid a cycle.
type EventRecorder interface {
	Record(ctx context.Context, signature string, subAccountID uint8, channel string, event AccountEvent) error
}

// OutboundMessage is what a connection's delivery loop pushes to the Ws
// client for one mapped event.
type OutboundMessage struct {
	Channel      string
	SubAccountID uint8
	Data         AccountEvent
}

// subscription is one sub-account's event pipeline on a single connection:
// an outer reconnect loop feeding raw driftsdk events through the pure
// mapper into the connection's bounded outbound queue.
type subscription struct {
	subAccountID uint8
	account      solana.PublicKey
	cancel       context.CancelFunc
}

// SubscriptionTable is the per-connection table from §4.5: at most one
// subscription per sub_account_id, mutated only under mu, never across I/O.
type SubscriptionTable struct {
	cache    driftsdk.ProgramDataCache
	logger   *slog.Logger
	out      chan<- OutboundMessage
	recorder EventRecorder

	mu   sync.Mutex
	subs map[uint8]*subscription
}

func NewSubscriptionTable(cache driftsdk.ProgramDataCache, logger *slog.Logger) (*SubscriptionTable, <-chan OutboundMessage) {
	out := make(chan OutboundMessage, outboundQueueCapacity)
	return &SubscriptionTable{
		cache:  cache,
		logger: logger,
		out:    out,
		subs:   make(map[uint8]*subscription),
	}, out
}

// WithEventRecorder attaches the optional event journal. Nil disables
// journaling entirely (the default).
func (t *SubscriptionTable) WithEventRecorder(recorder EventRecorder) {
	t.recorder = recorder
}

// Subscribe opens an event stream for subAccount if one does not already
// exist on this connection. A duplicate subscribe is a structured bad
// request that leaves the existing task untouched.
func (t *SubscriptionTable) Subscribe(ctx context.Context, subAccountID uint8, account solana.PublicKey, subscriber solana.PublicKey) error {
	t.mu.Lock()
	if _, exists := t.subs[subAccountID]; exists {
		t.mu.Unlock()
		return NewBadRequest("subscription already exists")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{subAccountID: subAccountID, account: account, cancel: cancel}
	t.subs[subAccountID] = sub
	t.mu.Unlock()

	events, err := t.cache.SubscribeLogs(subCtx, account)
	if err != nil {
		cancel()
		t.mu.Lock()
		delete(t.subs, subAccountID)
		t.mu.Unlock()
		return WrapSdk(err)
	}

	go t.drive(subCtx, subAccountID, subscriber, events)
	return nil
}

// Unsubscribe aborts the task for subAccountID synchronously, if any.
func (t *SubscriptionTable) Unsubscribe(subAccountID uint8) {
	t.mu.Lock()
	sub, exists := t.subs[subAccountID]
	if exists {
		delete(t.subs, subAccountID)
	}
	t.mu.Unlock()

	if exists {
		sub.cancel()
	}
}

// CloseAll aborts every subscription on this connection, e.g. on Ws close.
func (t *SubscriptionTable) CloseAll() {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for id, sub := range t.subs {
		subs = append(subs, sub)
		delete(t.subs, id)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
}

func (t *SubscriptionTable) drive(ctx context.Context, subAccountID uint8, subscriber solana.PublicKey, events <-chan driftsdk.RawLogEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-events:
			if !ok {
				return
			}
			channel, event, deliver := mapEvent(raw, subscriber)
			if !deliver {
				continue
			}

			if t.recorder != nil {
				go t.recordBestEffort(subAccountID, channel, event)
			}

			select {
			case t.out <- OutboundMessage{Channel: channel, SubAccountID: subAccountID, Data: event}:
			default:
				// Bounded queue full: terminate this subscription. Nothing is
				// signalled to the connection handler; the Ws stays open.
				t.logger.Warn("outbound queue full, terminating subscription", "sub_account_id", subAccountID)
				t.Unsubscribe(subAccountID)
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *SubscriptionTable) recordBestEffort(subAccountID uint8, channel string, event AccountEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.recorder.Record(ctx, event.Signature, subAccountID, channel, event); err != nil {
		t.logger.Warn("event journal write failed", "err", err, "sub_account_id", subAccountID)
	}
}

// mapEvent is the deterministic, pure event mapping of §4.5: total over all
// RawEventKind values, never panics, and returns (channel, event, false) to
// signal a silent drop.
func mapEvent(raw driftsdk.RawLogEvent, subscriber solana.PublicKey) (string, AccountEvent, bool) {
	base := AccountEvent{
		Signature: raw.Signature,
		TxIdx:     raw.TxIdx,
		Ts:        int64(raw.Ts),
	}

	switch raw.Kind {
	case driftsdk.RawEventOrderFill:
		return mapOrderFill(base, raw, subscriber)

	case driftsdk.RawEventOrderCancel:
		base.Kind = "orderCancel"
		base.OrderCancel = &OrderCancelEvent{OrderID: selectCounterpartyOrderID(raw, subscriber)}
		return "orders", base, true

	case driftsdk.RawEventOrderCancelMissing:
		base.Kind = "orderCancelMissing"
		base.OrderCancelMissing = &OrderCancelEvent{OrderID: raw.OrderID}
		return "orders", base, true

	case driftsdk.RawEventOrderExpire:
		base.Kind = "orderExpire"
		base.OrderExpire = &OrderExpireEvent{
			OrderID: raw.OrderID,
			Fee:     decimalx.FromFixedPoint(-raw.Fee, driftsdk.PriceDecimals),
		}
		return "orders", base, true

	case driftsdk.RawEventOrderCreate:
		if raw.Order == nil {
			return "", AccountEvent{}, false
		}
		base.Kind = "orderCreate"
		rendered := renderOrder(*raw.Order)
		base.OrderCreate = &rendered
		return "orders", base, true

	case driftsdk.RawEventOrderTrigger:
		base.Kind = "orderTrigger"
		base.Trigger = &TriggerEvent{OrderID: raw.OrderID, OraclePrice: raw.OraclePrice}
		return "orders", base, true

	case driftsdk.RawEventFundingPayment:
		base.Kind = "fundingPayment"
		base.FundingPayment = &FundingEvent{
			MarketIndex: raw.MarketIndex,
			Amount:      decimalx.FromFixedPoint(raw.Fee, driftsdk.PriceDecimals),
		}
		return "funding", base, true

	case driftsdk.RawEventSwap:
		base.Kind = "swap"
		base.Swap = &SwapEvent{
			MarketIndexIn:  raw.MarketIndex,
			MarketIndexOut: raw.MarketIndexOut,
			AmountIn:       raw.AmountIn,
			AmountOut:      raw.AmountOut,
		}
		return "swap", base, true

	default:
		return "", AccountEvent{}, false
	}
}

func mapOrderFill(base AccountEvent, raw driftsdk.RawLogEvent, subscriber solana.PublicKey) (string, AccountEvent, bool) {
	fill := raw.OrderFill
	if fill == nil {
		return "", AccountEvent{}, false
	}

	isMaker := fill.Maker != nil && fill.Maker.Equals(subscriber)
	isTaker := fill.Taker != nil && fill.Taker.Equals(subscriber)
	if !isMaker && !isTaker {
		return "", AccountEvent{}, false
	}

	side := fill.Side.Side()
	fee := fill.Fee
	if isMaker && fill.MakerFee != nil {
		fee = *fill.MakerFee
		side = oppositeSide(fill.Side).Side()
	} else if isTaker && fill.TakerFee != nil {
		fee = *fill.TakerFee
	}

	baseAmount := decimalx.FromFixedPointUnsigned(fill.BaseAmount, driftsdk.BaseDecimalsPerp)
	quoteAmount := decimalx.FromFixedPointUnsigned(fill.QuoteAmount, driftsdk.PriceDecimals)
	price := decimal.Zero
	if !baseAmount.IsZero() {
		price = quoteAmount.Div(baseAmount)
	}

	base.Kind = "fill"
	base.Fill = &FillEvent{
		Side:         side,
		Fee:          decimalx.FromFixedPoint(fee, driftsdk.PriceDecimals),
		Amount:       baseAmount,
		Price:        price,
		Maker:        fill.Maker,
		MakerOrderID: fill.MakerOrderID,
		Taker:        fill.Taker,
		TakerOrderID: fill.TakerOrderID,
	}
	if fill.MakerFee != nil {
		makerFeeDecimal := decimalx.FromFixedPoint(*fill.MakerFee, driftsdk.PriceDecimals)
		base.Fill.MakerFee = &makerFeeDecimal
	}
	if fill.TakerFee != nil {
		takerFeeDecimal := decimalx.FromFixedPoint(*fill.TakerFee, driftsdk.PriceDecimals)
		base.Fill.TakerFee = &takerFeeDecimal
	}

	return "fills", base, true
}

func oppositeSide(d driftsdk.PositionDirection) driftsdk.PositionDirection {
	if d == driftsdk.DirectionShort {
		return driftsdk.DirectionLong
	}
	return driftsdk.DirectionShort
}

// selectCounterpartyOrderID picks the maker's order_id when subscriber is
// the maker, else the taker's — falling back to the event's own order_id
// when no maker/taker context was carried.
func selectCounterpartyOrderID(raw driftsdk.RawLogEvent, subscriber solana.PublicKey) uint32 {
	if raw.Maker != nil && raw.Maker.Equals(subscriber) && raw.MakerOrderID != nil {
		return *raw.MakerOrderID
	}
	if raw.Taker != nil && raw.Taker.Equals(subscriber) && raw.TakerOrderID != nil {
		return *raw.TakerOrderID
	}
	return raw.OrderID
}

// renderOrder renders an order observed on the log stream, where no
// ProgramDataCache lookup is available to resolve a spot market's decimals.
// Perp precision is used unconditionally; RenderOrder is the cache-aware
// equivalent used by the REST order listing, which knows the right base
// decimals for both market types.
func renderOrder(o driftsdk.Order) OrderWithDecimals {
	return RenderOrder(o, driftsdk.BaseDecimalsPerp)
}

// RenderOrder renders o to its wire representation using baseDecimals for
// the base-amount fields (9 for perp, the spot market's own decimals for
// spot — see driftsdk.BaseDecimals).
func RenderOrder(o driftsdk.Order, baseDecimals uint32) OrderWithDecimals {
	return OrderWithDecimals{
		OrderID:           o.OrderID,
		UserOrderID:       o.UserOrderID,
		MarketIndex:       o.MarketIndex,
		MarketType:        o.MarketType.String(),
		Direction:         o.Direction.Side(),
		OrderType:         o.OrderType.String(),
		Amount:            decimalx.FromFixedPoint(o.BaseAssetAmount, baseDecimals),
		AmountFilled:      decimalx.FromFixedPoint(o.BaseAssetAmountFilled, baseDecimals),
		Price:             decimalx.FromFixedPoint(o.Price, driftsdk.PriceDecimals),
		TriggerPrice:      decimalx.FromFixedPoint(o.TriggerPrice, driftsdk.PriceDecimals),
		OraclePriceOffset: decimalx.FromFixedPoint(o.OraclePriceOffset, driftsdk.PriceDecimals),
		ReduceOnly:        o.ReduceOnly,
		PostOnly:          o.PostOnly,
		Status:            orderStatusString(o.Status),
	}
}

func orderStatusString(s driftsdk.OrderStatus) string {
	switch s {
	case driftsdk.OrderStatusOpen:
		return "open"
	case driftsdk.OrderStatusFilled:
		return "filled"
	case driftsdk.OrderStatusCanceled:
		return "canceled"
	default:
		return "init"
	}
}
