package gatewaycore

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

// fakeCache is a minimal driftsdk.ProgramDataCache stub for unit-testing
// the translator, broadcaster, and event mapper without any network
// dependency.
type fakeCache struct {
	spotDecimals   map[uint16]uint32
	blockhash      solana.Hash
	sendSignature  solana.Signature
	sendErr        error
	sendCount      int
	status         *driftsdk.SignatureStatus
	statusErr      error
	openOrders     []driftsdk.Order
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		spotDecimals: map[uint16]uint32{0: 6},
		blockhash:    solana.Hash{1, 2, 3},
	}
}

func (f *fakeCache) UserMarginAccount(ctx context.Context, authority solana.PublicKey, subAccountID uint16) (*driftsdk.UserMarginAccount, error) {
	return &driftsdk.UserMarginAccount{Authority: authority, SubAccountID: subAccountID, Orders: f.openOrders}, nil
}

func (f *fakeCache) PerpMarketAccount(ctx context.Context, index uint16) (*driftsdk.PerpMarketAccount, error) {
	return &driftsdk.PerpMarketAccount{MarketIndex: index, OraclePrice: decimal.NewFromInt(100)}, nil
}

func (f *fakeCache) SpotMarketAccount(ctx context.Context, index uint16) (*driftsdk.SpotMarketAccount, error) {
	decimals := f.spotDecimals[index]
	return &driftsdk.SpotMarketAccount{MarketIndex: index, Decimals: decimals}, nil
}

func (f *fakeCache) AllMarkets(ctx context.Context) ([]driftsdk.MarketInfo, error) {
	return nil, nil
}

func (f *fakeCache) LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	return f.blockhash, nil
}

func (f *fakeCache) SubscribeLogs(ctx context.Context, account solana.PublicKey) (<-chan driftsdk.RawLogEvent, error) {
	ch := make(chan driftsdk.RawLogEvent)
	close(ch)
	return ch, nil
}

func (f *fakeCache) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	f.sendCount++
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return f.sendSignature, nil
}

func (f *fakeCache) SignatureStatus(ctx context.Context, sig solana.Signature) (*driftsdk.SignatureStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeCache) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return 0, nil
}

var _ driftsdk.ProgramDataCache = (*fakeCache)(nil)
