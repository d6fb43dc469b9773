package driftsdk

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/coldbell/drift-gateway/internal/decimalx"
)

// logEventPrefix is the marker that starts the `Program data:` log lines in
// which the on-chain program emits a borsh-encoded, base64'd event payload —
// the same "emit!" convention Anchor programs use.
const logEventPrefix = "Program data: "

// logSubscription drives one account's log firehose, decoding raw program
// logs into RawLogEvent and publishing them on out. It owns outer-loop
// reconnection with exponential backoff; callers cancel via ctx.
type logSubscription struct {
	wsClient *ws.Client
	account  solana.PublicKey
	logger   *slog.Logger
}

func (s *logSubscription) run(ctx context.Context, out chan<- RawLogEvent) {
	defer close(out)

	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := s.wsClient.LogsSubscribeMentions(s.account, rpc.CommitmentConfirmed)
		if err != nil {
			s.logger.Warn("log subscribe failed, backing off", "account", s.account, "err", err, "backoff", backoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 250 * time.Millisecond

		s.drain(ctx, sub, out)
		sub.Unsubscribe()

		if ctx.Err() != nil {
			return
		}
		// stream ended without ctx cancellation: reconnect.
		if !sleepOrDone(ctx, 250*time.Millisecond) {
			return
		}
	}
}

func (s *logSubscription) drain(ctx context.Context, sub *ws.LogSubscription, out chan<- RawLogEvent) {
	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("log stream ended", "account", s.account, "err", err)
			}
			return
		}
		if got == nil || got.Value.Err != nil {
			continue
		}

		for txIdx, line := range got.Value.Logs {
			event, ok := parseLogLine(line, got.Value.Signature.String(), txIdx)
			if !ok {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// parseLogLine extracts a RawLogEvent from one program log line, if that
// line carries an emitted event. This is a total function: unrecognized
// lines are reported as !ok rather than erroring.
func parseLogLine(line, signature string, txIdx int) (RawLogEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, logEventPrefix) {
		return RawLogEvent{}, false
	}
	payload := strings.TrimPrefix(trimmed, logEventPrefix)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) < 8 {
		return RawLogEvent{}, false
	}

	var discriminator [8]byte
	copy(discriminator[:], raw[:8])
	body := raw[8:]

	switch discriminator {
	case anchorDiscriminator("OrderFillEvent"):
		var fill wireOrderFill
		if bin.NewBorshDecoder(body).Decode(&fill) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{
			Kind:      RawEventOrderFill,
			Signature: signature,
			TxIdx:     txIdx,
			OrderFill: fill.toRaw(),
		}, true

	case anchorDiscriminator("OrderCancelEvent"):
		var v wireOrderCancel
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		event := RawLogEvent{Kind: RawEventOrderCancel, Signature: signature, TxIdx: txIdx, OrderID: v.OrderID}
		if v.HasCounterparty {
			maker := solana.PublicKeyFromBytes(v.Maker[:])
			taker := solana.PublicKeyFromBytes(v.Taker[:])
			event.Maker = &maker
			event.MakerOrderID = &v.MakerOrderID
			event.Taker = &taker
			event.TakerOrderID = &v.TakerOrderID
		}
		return event, true

	case anchorDiscriminator("OrderExpireEvent"):
		var v wireOrderExpire
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{Kind: RawEventOrderExpire, Signature: signature, TxIdx: txIdx, OrderID: v.OrderID, Fee: v.Fee}, true

	case anchorDiscriminator("FundingPaymentEvent"):
		var v wireFundingPayment
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{Kind: RawEventFundingPayment, Signature: signature, TxIdx: txIdx, MarketIndex: v.MarketIndex, Fee: v.Amount}, true

	case anchorDiscriminator("OrderCreateEvent"):
		var v wireOrderCreate
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		order := v.Order.toOrder()
		return RawLogEvent{Kind: RawEventOrderCreate, Signature: signature, TxIdx: txIdx, Order: &order}, true

	case anchorDiscriminator("OrderTriggerEvent"):
		var v wireOrderTrigger
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{Kind: RawEventOrderTrigger, Signature: signature, TxIdx: txIdx, OrderID: v.OrderID, OraclePrice: v.OraclePrice}, true

	case anchorDiscriminator("OrderCancelMissingEvent"):
		var v wireOrderCancelMissing
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{Kind: RawEventOrderCancelMissing, Signature: signature, TxIdx: txIdx, OrderID: v.OrderID}, true

	case anchorDiscriminator("SwapEvent"):
		var v wireSwap
		if bin.NewBorshDecoder(body).Decode(&v) != nil {
			return RawLogEvent{}, false
		}
		return RawLogEvent{
			Kind:           RawEventSwap,
			Signature:      signature,
			TxIdx:          txIdx,
			MarketIndex:    v.MarketIndexIn,
			MarketIndexOut: v.MarketIndexOut,
			AmountIn:       decimalx.FromFixedPointUnsigned(v.AmountIn, BaseDecimalsPerp),
			AmountOut:      decimalx.FromFixedPointUnsigned(v.AmountOut, BaseDecimalsPerp),
		}, true

	default:
		return RawLogEvent{}, false
	}
}

type wireOrderFill struct {
	Side         uint8
	Fee          int64
	BaseAmount   uint64
	QuoteAmount  uint64
	OraclePrice  int64
	OrderID      uint32
	MarketIndex  uint16
	MarketType   uint8
	HasMaker     bool
	Maker        [32]byte
	MakerOrderID uint32
	MakerFee     int64
	HasTaker     bool
	Taker        [32]byte
	TakerOrderID uint32
	TakerFee     int64
}

func (w wireOrderFill) toRaw() *RawOrderFill {
	raw := &RawOrderFill{
		Side:        PositionDirection(w.Side),
		Fee:         w.Fee,
		BaseAmount:  w.BaseAmount,
		QuoteAmount: w.QuoteAmount,
		OraclePrice: w.OraclePrice,
		OrderID:     w.OrderID,
		MarketIndex: w.MarketIndex,
		MarketType:  MarketType(w.MarketType),
	}
	if w.HasMaker {
		maker := solana.PublicKeyFromBytes(w.Maker[:])
		raw.Maker = &maker
		raw.MakerOrderID = &w.MakerOrderID
		raw.MakerFee = &w.MakerFee
	}
	if w.HasTaker {
		taker := solana.PublicKeyFromBytes(w.Taker[:])
		raw.Taker = &taker
		raw.TakerOrderID = &w.TakerOrderID
		raw.TakerFee = &w.TakerFee
	}
	return raw
}

type wireOrderCancel struct {
	OrderID         uint32
	HasCounterparty bool
	Maker           [32]byte
	MakerOrderID    uint32
	Taker           [32]byte
	TakerOrderID    uint32
}

type wireOrderExpire struct {
	OrderID uint32
	Fee     int64
}

type wireFundingPayment struct {
	MarketIndex uint16
	Amount      int64
}

// wireOrderCreate carries the full Order layout inline, the same shape the
// margin account decodes per open order.
type wireOrderCreate struct {
	Order wireOrder
}

type wireOrderTrigger struct {
	OrderID     uint32
	OraclePrice int64
}

type wireOrderCancelMissing struct {
	OrderID uint32
}

type wireSwap struct {
	AmountIn       uint64
	AmountOut      uint64
	MarketIndexIn  uint16
	MarketIndexOut uint16
}
