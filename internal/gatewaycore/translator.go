package gatewaycore

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/drift-gateway/internal/decimalx"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/feeoracle"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

// finalizedCommitment is the commitment level recent blockhashes are
// fetched at, per §4.3: fetched at submit-time, not build-time, to avoid
// stale-hash rejections.
const finalizedCommitment = rpc.CommitmentFinalized

// Translator is C3: it turns validated client requests into a fully
// assembled, signed transaction. It depends only on the ProgramDataCache
// port, the wallet, and the priority-fee oracle — never on solana-go RPC
// directly.
type Translator struct {
	programID solana.PublicKey
	cache     driftsdk.ProgramDataCache
	wallet    *wallet.Wallet
	fees      *feeoracle.Oracle

	defaultComputeUnitLimit uint32
}

func NewTranslator(programID solana.PublicKey, cache driftsdk.ProgramDataCache, w *wallet.Wallet, fees *feeoracle.Oracle, defaultComputeUnitLimit uint32) *Translator {
	return &Translator{
		programID:               programID,
		cache:                   cache,
		wallet:                  w,
		fees:                    fees,
		defaultComputeUnitLimit: defaultComputeUnitLimit,
	}
}

func (t *Translator) computeBudgetInstructions(opts TxOptions) []solana.Instruction {
	price := t.fees.Percentile(0.90)
	if opts.ComputeUnitPrice != nil {
		price = *opts.ComputeUnitPrice
	}

	limit := t.defaultComputeUnitLimit
	if opts.ComputeUnitLimit != nil {
		limit = *opts.ComputeUnitLimit
	}

	instructions := []solana.Instruction{driftsdk.BuildSetComputeUnitPriceInstruction(price)}
	if limit > 0 {
		instructions = append(instructions, driftsdk.BuildSetComputeUnitLimitInstruction(limit))
	}
	return instructions
}

// PlaceOrders translates a batch of place intents into a single transaction.
func (t *Translator) PlaceOrders(ctx context.Context, req PlaceOrdersRequest, opts TxOptions) (*solana.Transaction, error) {
	subAccount := t.wallet.SubAccount(opts.SubAccountID)

	instructions := t.computeBudgetInstructions(opts)
	for _, intent := range req.Orders {
		ix, err := t.buildPlaceOrderInstruction(ctx, intent, subAccount)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ix)
	}

	return t.signWithLatestBlockhash(ctx, instructions)
}

func (t *Translator) buildPlaceOrderInstruction(ctx context.Context, intent PlaceOrderIntent, subAccount solana.PublicKey) (solana.Instruction, error) {
	market, err := intent.Market.toMarket()
	if err != nil {
		return nil, err
	}
	orderType, ok := driftsdk.ParseOrderType(intent.OrderType)
	if !ok {
		return nil, NewBadRequest("unknown order type %q", intent.OrderType)
	}

	baseDecimals, err := driftsdk.BaseDecimals(ctx, t.cache, market)
	if err != nil {
		return nil, WrapSdk(err)
	}

	direction := driftsdk.DirectionLong
	if intent.Amount.IsNegative() {
		direction = driftsdk.DirectionShort
	}
	baseAssetAmount := decimalx.ScaleUnsigned(intent.Amount, pow10u64(baseDecimals))

	postOnly := driftsdk.PostOnlyParamNone
	if intent.PostOnly {
		postOnly = driftsdk.PostOnlyParamMustPostOnly
	}

	args := driftsdk.PlaceOrderArgs{
		MarketIndex:     market.Index,
		MarketType:      uint8(market.Type),
		OrderType:       uint8(orderType),
		Direction:       uint8(direction),
		BaseAssetAmount: baseAssetAmount,
		UserOrderID:     intent.UserOrderID,
		PostOnly:        uint8(postOnly),
		ReduceOnly:      intent.ReduceOnly,
	}

	if intent.OraclePriceOffset != nil {
		args.Price = 0
		args.OraclePriceOffset = int32(decimalx.ScaleSigned(*intent.OraclePriceOffset, int64(pow10u64(driftsdk.PriceDecimals))))
		args.HasOracleOffset = true
	} else {
		args.Price = decimalx.ScaleUnsigned(intent.Price, pow10u64(driftsdk.PriceDecimals))
	}

	if intent.MaxTs != nil {
		args.MaxTs = *intent.MaxTs
		args.HasMaxTs = true
	}

	return driftsdk.BuildPlaceOrderInstruction(t.programID, t.wallet.Authority(), subAccount, args)
}

// ModifyOrders translates a modify batch. Addressing mode is fixed by the
// first entry per §4.3; a mixed or incomplete batch is rejected before any
// instruction is built.
func (t *Translator) ModifyOrders(ctx context.Context, req ModifyOrdersRequest, opts TxOptions) (*solana.Transaction, error) {
	if len(req.Orders) == 0 {
		return nil, NewBadRequest("orders cannot be empty")
	}

	subAccount := t.wallet.SubAccount(opts.SubAccountID)
	batch, err := t.buildModifyOrderArgs(ctx, req.Orders, opts.SubAccountID)
	if err != nil {
		return nil, err
	}

	ix, err := driftsdk.BuildModifyOrdersInstruction(t.programID, t.wallet.Authority(), subAccount, batch)
	if err != nil {
		return nil, err
	}

	instructions := append(t.computeBudgetInstructions(opts), ix)
	return t.signWithLatestBlockhash(ctx, instructions)
}

// buildModifyOrderArgs resolves each intent's market from the sub-account's
// current open orders so NewAmount is scaled at that market's own base
// precision, not always assumed to be perp (§4.3: the modify instruction
// addresses an existing order, which already belongs to a fixed market).
// An intent whose order cannot be found in the live account falls back to
// perp precision, since that is the common case and the chain itself will
// reject a mis-scaled amount against the wrong order.
func (t *Translator) buildModifyOrderArgs(ctx context.Context, intents []ModifyOrderIntent, subAccountID uint16) ([]driftsdk.ModifyOrderArgs, error) {
	byUserOrderID := intents[0].UserOrderID != nil && *intents[0].UserOrderID != 0

	// Validate the whole batch's addressing before any network call.
	for _, intent := range intents {
		if byUserOrderID && (intent.UserOrderID == nil || *intent.UserOrderID == 0) {
			return nil, NewBadRequest("userOrderId not set")
		}
		if !byUserOrderID && intent.OrderID == nil {
			return nil, NewBadRequest("orderId not set")
		}
	}

	account, err := t.cache.UserMarginAccount(ctx, t.wallet.Authority(), subAccountID)
	if err != nil {
		return nil, WrapSdk(err)
	}

	batch := make([]driftsdk.ModifyOrderArgs, 0, len(intents))
	for _, intent := range intents {
		args := driftsdk.ModifyOrderArgs{ByUserOrderID: byUserOrderID}

		if byUserOrderID {
			args.UserOrderID = *intent.UserOrderID
		} else {
			args.OrderID = *intent.OrderID
		}

		market := driftsdk.PerpMarket(0)
		if existing, ok := findOpenOrder(account, intent); ok {
			market = driftsdk.Market{Index: existing.MarketIndex, Type: existing.MarketType}
		}
		baseDecimals, err := driftsdk.BaseDecimals(ctx, t.cache, market)
		if err != nil {
			return nil, WrapSdk(err)
		}

		if intent.NewAmount != nil {
			args.NewBaseAmount = decimalx.ScaleUnsigned(*intent.NewAmount, pow10u64(baseDecimals))
			args.HasNewAmount = true
		}
		if intent.NewPrice != nil {
			args.NewPrice = decimalx.ScaleUnsigned(*intent.NewPrice, pow10u64(driftsdk.PriceDecimals))
			args.HasNewPrice = true
		}
		batch = append(batch, args)
	}
	return batch, nil
}

// findOpenOrder locates the order an intent addresses among the
// sub-account's currently tracked orders.
func findOpenOrder(account *driftsdk.UserMarginAccount, intent ModifyOrderIntent) (driftsdk.Order, bool) {
	for _, o := range account.Orders {
		switch {
		case intent.UserOrderID != nil && *intent.UserOrderID != 0:
			if o.UserOrderID == *intent.UserOrderID {
				return o, true
			}
		case intent.OrderID != nil:
			if o.OrderID == *intent.OrderID {
				return o, true
			}
		}
	}
	return driftsdk.Order{}, false
}

// CancelOrders translates a cancel request honoring the addressing
// priority market > user_ids > ids > all.
func (t *Translator) CancelOrders(ctx context.Context, req CancelOrdersRequest, opts TxOptions) (*solana.Transaction, error) {
	args, err := cancelArgsFromRequest(req)
	if err != nil {
		return nil, err
	}

	subAccount := t.wallet.SubAccount(opts.SubAccountID)
	ix, err := driftsdk.BuildCancelOrdersInstruction(t.programID, t.wallet.Authority(), subAccount, args)
	if err != nil {
		return nil, err
	}

	instructions := append(t.computeBudgetInstructions(opts), ix)
	return t.signWithLatestBlockhash(ctx, instructions)
}

func cancelArgsFromRequest(req CancelOrdersRequest) (driftsdk.CancelOrdersArgs, error) {
	switch {
	case req.Market != nil:
		market, err := req.Market.toMarket()
		if err != nil {
			return driftsdk.CancelOrdersArgs{}, err
		}
		return driftsdk.CancelOrdersArgs{
			Mode:        driftsdk.CancelModeMarket,
			MarketIndex: market.Index,
			MarketType:  uint8(market.Type),
		}, nil

	case req.UserIDs != nil:
		if len(req.UserIDs) == 0 {
			return driftsdk.CancelOrdersArgs{}, NewBadRequest("userIds cannot be empty")
		}
		return driftsdk.CancelOrdersArgs{Mode: driftsdk.CancelModeUserOrderIDs, UserOrderIDs: req.UserIDs}, nil

	case req.IDs != nil:
		if len(req.IDs) == 0 {
			return driftsdk.CancelOrdersArgs{}, NewBadRequest("ids cannot be empty")
		}
		return driftsdk.CancelOrdersArgs{Mode: driftsdk.CancelModeOrderIDs, OrderIDs: req.IDs}, nil

	default:
		return driftsdk.CancelOrdersArgs{Mode: driftsdk.CancelModeAll}, nil
	}
}

// CancelAndPlace composes cancel, modify, and place into one atomic
// transaction.
func (t *Translator) CancelAndPlace(ctx context.Context, req CancelAndPlaceRequest, opts TxOptions) (*solana.Transaction, error) {
	subAccount := t.wallet.SubAccount(opts.SubAccountID)
	instructions := t.computeBudgetInstructions(opts)

	if req.Cancel != nil {
		args, err := cancelArgsFromRequest(*req.Cancel)
		if err != nil {
			return nil, err
		}
		ix, err := driftsdk.BuildCancelOrdersInstruction(t.programID, t.wallet.Authority(), subAccount, args)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ix)
	}

	if req.Modify != nil && len(req.Modify.Orders) > 0 {
		batch, err := t.buildModifyOrderArgs(ctx, req.Modify.Orders, opts.SubAccountID)
		if err != nil {
			return nil, err
		}
		ix, err := driftsdk.BuildModifyOrdersInstruction(t.programID, t.wallet.Authority(), subAccount, batch)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ix)
	}

	if req.Place != nil {
		for _, intent := range req.Place.Orders {
			ix, err := t.buildPlaceOrderInstruction(ctx, intent, subAccount)
			if err != nil {
				return nil, err
			}
			instructions = append(instructions, ix)
		}
	}

	return t.signWithLatestBlockhash(ctx, instructions)
}

// SetMaxInitialMarginRatio translates the margin-config intent. The decimal
// leverage value is converted by ratio = MARGIN_PRECISION / new_ratio.
func (t *Translator) SetMaxInitialMarginRatio(ctx context.Context, req SetMaxInitialMarginRatioRequest, opts TxOptions) (*solana.Transaction, error) {
	market, err := req.Market.toMarket()
	if err != nil {
		return nil, err
	}
	if req.NewRatio.IsZero() {
		return nil, NewBadRequest("newRatio must be nonzero")
	}

	marginPrecision := decimalx.FromFixedPointUnsigned(driftsdk.MarginPrecision, 0)
	ratio := marginPrecision.Div(req.NewRatio)
	ratioMantissa := decimalx.ScaleUnsigned(ratio, 1)

	subAccount := t.wallet.SubAccount(opts.SubAccountID)
	ix, err := driftsdk.BuildSetMaxInitialMarginRatioInstruction(t.programID, t.wallet.Authority(), subAccount, driftsdk.SetMaxInitialMarginRatioArgs{
		MarketIndex:   market.Index,
		RatioMantissa: uint32(ratioMantissa),
	})
	if err != nil {
		return nil, err
	}

	instructions := append(t.computeBudgetInstructions(opts), ix)
	return t.signWithLatestBlockhash(ctx, instructions)
}

func (t *Translator) signWithLatestBlockhash(ctx context.Context, instructions []solana.Instruction) (*solana.Transaction, error) {
	recent, err := t.cache.LatestBlockhash(ctx, finalizedCommitment)
	if err != nil {
		return nil, WrapSdk(err)
	}

	tx, err := t.wallet.Sign(instructions, recent)
	if err != nil {
		return nil, WrapSdk(err)
	}
	return tx, nil
}

func pow10u64(decimals uint32) uint64 {
	result := uint64(1)
	for i := uint32(0); i < decimals; i++ {
		result *= 10
	}
	return result
}
