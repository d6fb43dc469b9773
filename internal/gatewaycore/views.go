package gatewaycore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/decimalx"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

// Renderer builds the read-side REST views (§6.1's GET endpoints) from the
// program data cache, scaling every fixed-point field to decimal at the
// exact point of rendering — fixed-point amounts never leave this package.
type Renderer struct {
	cache  driftsdk.ProgramDataCache
	wallet *wallet.Wallet
}

func NewRenderer(cache driftsdk.ProgramDataCache, w *wallet.Wallet) *Renderer {
	return &Renderer{cache: cache, wallet: w}
}

func (r *Renderer) Markets(ctx context.Context) ([]MarketInfoView, error) {
	markets, err := r.cache.AllMarkets(ctx)
	if err != nil {
		return nil, WrapSdk(err)
	}

	views := make([]MarketInfoView, 0, len(markets))
	for _, m := range markets {
		view := MarketInfoView{
			MarketIndex:  m.Market.Index,
			MarketType:   m.Market.Type.String(),
			PriceStep:    m.PriceStep,
			AmountStep:   m.AmountStep,
			MinOrderSize: m.MinOrderSize,
		}
		if m.Market.Type == driftsdk.MarketTypePerp {
			perp, err := r.cache.PerpMarketAccount(ctx, m.Market.Index)
			if err != nil {
				return nil, WrapSdk(err)
			}
			initial := perp.MarginRatioInitial
			maintenance := perp.MarginRatioMaintenance
			view.MarginRatioInitial = &initial
			view.MarginRatioMaintenance = &maintenance
		}
		views = append(views, view)
	}
	return views, nil
}

// MarketInfoDetail renders GET /marketInfo/{idx}: perp open interest fields.
type MarketInfoDetail struct {
	MarketInfoView
	OpenInterest    decimal.Decimal `json:"openInterest"`
	MaxOpenInterest decimal.Decimal `json:"maxOpenInterest"`
}

func (r *Renderer) MarketInfo(ctx context.Context, index uint16) (*MarketInfoDetail, error) {
	perp, err := r.cache.PerpMarketAccount(ctx, index)
	if err != nil {
		return nil, WrapSdk(err)
	}
	initial := perp.MarginRatioInitial
	maintenance := perp.MarginRatioMaintenance
	return &MarketInfoDetail{
		MarketInfoView: MarketInfoView{
			MarketIndex:            index,
			MarketType:             "perp",
			PriceStep:              perp.PriceStep,
			AmountStep:             perp.AmountStep,
			MinOrderSize:           perp.MinOrderSize,
			MarginRatioInitial:     &initial,
			MarginRatioMaintenance: &maintenance,
		},
		OpenInterest:    perp.OpenInterest,
		MaxOpenInterest: perp.MaxOpenInterest,
	}, nil
}

func (r *Renderer) userMarginAccount(ctx context.Context, subAccountID uint16) (*driftsdk.UserMarginAccount, error) {
	account, err := r.cache.UserMarginAccount(ctx, r.wallet.Authority(), subAccountID)
	if err != nil {
		return nil, WrapSdk(err)
	}
	return account, nil
}

// Orders renders GET /orders: every open order on subAccountID, optionally
// filtered to one market.
func (r *Renderer) Orders(ctx context.Context, subAccountID uint16, market *MarketRef) ([]OrderWithDecimals, error) {
	account, err := r.userMarginAccount(ctx, subAccountID)
	if err != nil {
		return nil, err
	}

	var filter *driftsdk.Market
	if market != nil {
		m, err := market.toMarket()
		if err != nil {
			return nil, err
		}
		filter = &m
	}

	views := make([]OrderWithDecimals, 0, len(account.Orders))
	for _, order := range account.Orders {
		if order.Status != driftsdk.OrderStatusOpen {
			continue
		}
		if filter != nil && (order.MarketIndex != filter.Index || order.MarketType != filter.Type) {
			continue
		}
		baseDecimals, err := driftsdk.BaseDecimals(ctx, r.cache, driftsdk.Market{Index: order.MarketIndex, Type: order.MarketType})
		if err != nil {
			return nil, WrapSdk(err)
		}
		views = append(views, RenderOrder(order, baseDecimals))
	}
	return views, nil
}

// Positions renders GET /positions: every spot and perp position on
// subAccountID, optionally filtered to one market.
func (r *Renderer) Positions(ctx context.Context, subAccountID uint16, market *MarketRef) (*PositionsView, error) {
	account, err := r.userMarginAccount(ctx, subAccountID)
	if err != nil {
		return nil, err
	}

	var filter *driftsdk.Market
	if market != nil {
		m, err := market.toMarket()
		if err != nil {
			return nil, err
		}
		filter = &m
	}

	view := &PositionsView{}
	for _, pos := range account.SpotPositions {
		if filter != nil && (filter.Type != driftsdk.MarketTypeSpot || pos.MarketIndex != filter.Index) {
			continue
		}
		decimals, err := driftsdk.BaseDecimals(ctx, r.cache, driftsdk.SpotMarket(pos.MarketIndex))
		if err != nil {
			return nil, WrapSdk(err)
		}
		view.Spot = append(view.Spot, SpotPositionView{
			MarketIndex: pos.MarketIndex,
			Amount:      decimalx.FromFixedPoint(pos.TokenAmount, decimals),
		})
	}
	for _, pos := range account.PerpPositions {
		if filter != nil && (filter.Type != driftsdk.MarketTypePerp || pos.MarketIndex != filter.Index) {
			continue
		}
		view.Perp = append(view.Perp, PerpPositionView{
			MarketIndex:      pos.MarketIndex,
			BaseAssetAmount:  decimalx.FromFixedPoint(pos.BaseAssetAmount, driftsdk.BaseDecimalsPerp),
			QuoteAssetAmount: decimalx.FromFixedPoint(pos.QuoteAssetAmount, driftsdk.PriceDecimals),
		})
	}
	return view, nil
}

// PositionInfo renders GET /positionInfo/{idx}: one perp position enriched
// with liquidation price and unrealized/unsettled PnL, using a single-market
// isolated-margin approximation (this codebase's predecessor's full
// cross-margin health engine is out of scope — see DESIGN.md).
func (r *Renderer) PositionInfo(ctx context.Context, subAccountID uint16, marketIndex uint16) (*PerpPositionInfoView, error) {
	account, err := r.userMarginAccount(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	perp, err := r.cache.PerpMarketAccount(ctx, marketIndex)
	if err != nil {
		return nil, WrapSdk(err)
	}

	var found *driftsdk.PerpPosition
	for i := range account.PerpPositions {
		if account.PerpPositions[i].MarketIndex == marketIndex {
			found = &account.PerpPositions[i]
			break
		}
	}
	if found == nil {
		found = &driftsdk.PerpPosition{MarketIndex: marketIndex}
	}

	baseAmount := decimalx.FromFixedPoint(found.BaseAssetAmount, driftsdk.BaseDecimalsPerp)
	quoteAmount := decimalx.FromFixedPoint(found.QuoteAssetAmount, driftsdk.PriceDecimals)
	entryAmount := decimalx.FromFixedPoint(found.QuoteEntryAmount, driftsdk.PriceDecimals)
	breakEvenAmount := decimalx.FromFixedPoint(found.QuoteBreakEvenAmount, driftsdk.PriceDecimals)

	unrealizedPnl := decimal.Zero
	if !baseAmount.IsZero() {
		notional := baseAmount.Mul(perp.OraclePrice)
		unrealizedPnl = notional.Add(quoteAmount)
	}
	unsettledPnl := quoteAmount.Sub(breakEvenAmount)

	liquidationPrice := decimal.Zero
	if !baseAmount.IsZero() {
		entryPrice := entryAmount.Abs().Div(baseAmount.Abs())
		maintenanceFrac := decimal.NewFromInt32(int32(perp.MarginRatioMaintenance)).Div(decimal.NewFromInt(driftsdk.MarginPrecision))
		if baseAmount.IsPositive() {
			liquidationPrice = entryPrice.Mul(decimal.NewFromInt(1).Sub(maintenanceFrac))
		} else {
			liquidationPrice = entryPrice.Mul(decimal.NewFromInt(1).Add(maintenanceFrac))
		}
	}

	return &PerpPositionInfoView{
		PerpPositionView: PerpPositionView{
			MarketIndex:      marketIndex,
			BaseAssetAmount:  baseAmount,
			QuoteAssetAmount: quoteAmount,
		},
		LiquidationPrice: liquidationPrice,
		UnrealizedPnl:    unrealizedPnl,
		UnsettledPnl:     unsettledPnl,
		OraclePrice:      perp.OraclePrice,
	}, nil
}

func (r *Renderer) Balance(ctx context.Context) (*BalanceView, error) {
	lamports, err := r.cache.Balance(ctx, r.wallet.Signer())
	if err != nil {
		return nil, WrapSdk(err)
	}
	return &BalanceView{
		Lamports: lamports,
		Sol:      decimalx.FromFixedPointUnsigned(lamports, 9),
	}, nil
}

// collateralAndRequirements computes the shared inputs behind
// /user/marginInfo, /leverage, and /collateral: total collateral value
// (spot deposits valued at their market's oracle price) and the initial and
// maintenance margin requirements (perp notional scaled by each market's
// margin ratio).
func (r *Renderer) collateralAndRequirements(ctx context.Context, subAccountID uint16) (collateral, initialReq, maintenanceReq decimal.Decimal, err error) {
	account, accErr := r.userMarginAccount(ctx, subAccountID)
	if accErr != nil {
		err = accErr
		return
	}

	for _, pos := range account.SpotPositions {
		spot, spotErr := r.cache.SpotMarketAccount(ctx, pos.MarketIndex)
		if spotErr != nil {
			err = WrapSdk(spotErr)
			return
		}
		amount := decimalx.FromFixedPoint(pos.TokenAmount, spot.Decimals)
		collateral = collateral.Add(amount.Mul(spot.OraclePrice))
	}

	for _, pos := range account.PerpPositions {
		perp, perpErr := r.cache.PerpMarketAccount(ctx, pos.MarketIndex)
		if perpErr != nil {
			err = WrapSdk(perpErr)
			return
		}
		notional := decimalx.FromFixedPoint(pos.BaseAssetAmount, driftsdk.BaseDecimalsPerp).Abs().Mul(perp.OraclePrice)
		initialReq = initialReq.Add(notional.Mul(decimal.NewFromInt32(int32(perp.MarginRatioInitial))).Div(decimal.NewFromInt(driftsdk.MarginPrecision)))
		maintenanceReq = maintenanceReq.Add(notional.Mul(decimal.NewFromInt32(int32(perp.MarginRatioMaintenance))).Div(decimal.NewFromInt(driftsdk.MarginPrecision)))
	}
	return
}

func (r *Renderer) MarginInfo(ctx context.Context, subAccountID uint16) (*MarginInfoView, error) {
	_, initialReq, maintenanceReq, err := r.collateralAndRequirements(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	return &MarginInfoView{InitialRequirement: initialReq, MaintenanceRequirement: maintenanceReq}, nil
}

func (r *Renderer) Leverage(ctx context.Context, subAccountID uint16) (*LeverageView, error) {
	collateral, _, _, err := r.collateralAndRequirements(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	if collateral.IsZero() {
		return &LeverageView{Leverage: decimal.Zero}, nil
	}
	account, err := r.userMarginAccount(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	// Leverage is total perp notional (at oracle price) over collateral.
	totalNotional := decimal.Zero
	for _, pos := range account.PerpPositions {
		perp, err := r.cache.PerpMarketAccount(ctx, pos.MarketIndex)
		if err != nil {
			return nil, WrapSdk(err)
		}
		totalNotional = totalNotional.Add(decimalx.FromFixedPoint(pos.BaseAssetAmount, driftsdk.BaseDecimalsPerp).Abs().Mul(perp.OraclePrice))
	}
	return &LeverageView{Leverage: totalNotional.Div(collateral)}, nil
}

func (r *Renderer) Collateral(ctx context.Context, subAccountID uint16) (*CollateralView, error) {
	collateral, _, maintenanceReq, err := r.collateralAndRequirements(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	return &CollateralView{Total: collateral, Free: collateral.Sub(maintenanceReq)}, nil
}
