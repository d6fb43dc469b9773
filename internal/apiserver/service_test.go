package apiserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/config"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/feeoracle"
	"github.com/coldbell/drift-gateway/internal/gatewaycore"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

// stubCache is a minimal driftsdk.ProgramDataCache for exercising the HTTP
// handlers end to end without a network dependency.
type stubCache struct {
	markets []driftsdk.MarketInfo
	perp    *driftsdk.PerpMarketAccount
}

func newStubCache() *stubCache {
	return &stubCache{
		markets: []driftsdk.MarketInfo{
			{Market: driftsdk.PerpMarket(0), PriceStep: decimal.NewFromFloat(0.01), AmountStep: decimal.NewFromFloat(0.001), MinOrderSize: decimal.NewFromFloat(0.01)},
		},
		perp: &driftsdk.PerpMarketAccount{MarketIndex: 0, OraclePrice: decimal.NewFromInt(100), MarginRatioInitial: 1000, MarginRatioMaintenance: 500},
	}
}

func (c *stubCache) UserMarginAccount(ctx context.Context, authority solana.PublicKey, subAccountID uint16) (*driftsdk.UserMarginAccount, error) {
	return &driftsdk.UserMarginAccount{Authority: authority, SubAccountID: subAccountID}, nil
}
func (c *stubCache) PerpMarketAccount(ctx context.Context, index uint16) (*driftsdk.PerpMarketAccount, error) {
	return c.perp, nil
}
func (c *stubCache) SpotMarketAccount(ctx context.Context, index uint16) (*driftsdk.SpotMarketAccount, error) {
	return &driftsdk.SpotMarketAccount{MarketIndex: index, Decimals: 6}, nil
}
func (c *stubCache) AllMarkets(ctx context.Context) ([]driftsdk.MarketInfo, error) { return c.markets, nil }
func (c *stubCache) LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	return solana.Hash{1}, nil
}
func (c *stubCache) SubscribeLogs(ctx context.Context, account solana.PublicKey) (<-chan driftsdk.RawLogEvent, error) {
	ch := make(chan driftsdk.RawLogEvent)
	close(ch)
	return ch, nil
}
func (c *stubCache) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	return solana.Signature{7}, nil
}
func (c *stubCache) SignatureStatus(ctx context.Context, sig solana.Signature) (*driftsdk.SignatureStatus, error) {
	return &driftsdk.SignatureStatus{Confirmed: true}, nil
}
func (c *stubCache) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return 2_000_000_000, nil
}

var _ driftsdk.ProgramDataCache = (*stubCache)(nil)

func newTestService(t *testing.T) *Service {
	t.Helper()
	programID := solana.NewWallet().PublicKey()
	secret := solana.NewWallet().PrivateKey
	w, err := wallet.New(programID, &secret, nil, nil)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}

	cache := newStubCache()
	fees := feeoracle.New(nil, solana.NewWallet().PublicKey(), 150, 1000, slog.Default())
	translator := gatewaycore.NewTranslator(programID, cache, w, fees, 0)
	broadcaster := gatewaycore.NewBroadcaster(cache, nil, false, slog.Default())
	renderer := gatewaycore.NewRenderer(cache, w)

	cfg := config.GatewayConfig{AllowedOrigins: []string{"*"}}
	return New(cfg, slog.Default(), w, cache, translator, broadcaster, renderer, nil)
}

func TestHandleMarketsOK(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/v2/markets", nil)
	rec := httptest.NewRecorder()
	svc.handleMarkets(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var markets []gatewaycore.MarketInfoView
	if err := json.Unmarshal(rec.Body.Bytes(), &markets); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(markets) != 1 || markets[0].MarketType != "perp" {
		t.Fatalf("unexpected markets: %+v", markets)
	}
}

func TestHandlePlaceOrdersReturnsSignature(t *testing.T) {
	svc := newTestService(t)

	body := `{"orders":[{"market":{"marketIndex":0,"marketType":"perp"},"amount":"-1","price":"100","orderType":"limit"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v2/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.handleOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp gatewaycore.TxResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Tx == "" {
		t.Fatalf("expected a non-empty tx signature")
	}
}

func TestHandleCancelOrdersEmptyIDsIsBadRequest(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodDelete, "/v2/orders", strings.NewReader(`{"ids":[]}`))
	req.ContentLength = int64(len(`{"ids":[]}`))
	rec := httptest.NewRecorder()
	svc.handleOrders(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Reason != "ids cannot be empty" {
		t.Fatalf("reason = %q", errResp.Reason)
	}
}

func TestHandleBalance(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/v2/balance", nil)
	rec := httptest.NewRecorder()
	svc.handleBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var balance gatewaycore.BalanceView
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if balance.Lamports != 2_000_000_000 {
		t.Fatalf("lamports = %d, want 2000000000", balance.Lamports)
	}
}
