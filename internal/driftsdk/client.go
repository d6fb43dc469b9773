package driftsdk

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/shopspring/decimal"
)

// Client is the concrete ProgramDataCache backed by a solana-go RPC client
// (and, for log subscriptions, a websocket client). Account state is cached
// with a short TTL to keep the translator and REST handlers from hammering
// the RPC endpoint on every request.
type Client struct {
	rpcClient *rpc.Client
	wsClient  *ws.Client
	programID solana.PublicKey
	commitment rpc.CommitmentType
	logger    *slog.Logger

	mu          sync.RWMutex
	perpMarkets map[uint16]*cachedPerpMarket
	spotMarkets map[uint16]*cachedSpotMarket
	userAccts   map[string]*cachedUserAccount
}

type cachedPerpMarket struct {
	account   *PerpMarketAccount
	fetchedAt time.Time
}

type cachedSpotMarket struct {
	account   *SpotMarketAccount
	fetchedAt time.Time
}

type cachedUserAccount struct {
	account   *UserMarginAccount
	fetchedAt time.Time
}

// NewClient constructs a Client. wsClient may be nil if log subscriptions
// are never needed (e.g. a process that only places orders).
func NewClient(rpcClient *rpc.Client, wsClient *ws.Client, programID solana.PublicKey, commitment rpc.CommitmentType, logger *slog.Logger) *Client {
	return &Client{
		rpcClient:   rpcClient,
		wsClient:    wsClient,
		programID:   programID,
		commitment:  commitment,
		logger:      logger,
		perpMarkets: make(map[uint16]*cachedPerpMarket),
		spotMarkets: make(map[uint16]*cachedSpotMarket),
		userAccts:   make(map[string]*cachedUserAccount),
	}
}

var _ ProgramDataCache = (*Client)(nil)

func (c *Client) PerpMarketAccount(ctx context.Context, index uint16) (*PerpMarketAccount, error) {
	c.mu.RLock()
	if cached, ok := c.perpMarkets[index]; ok && time.Since(cached.fetchedAt) < ProgramDataRefreshInterval {
		c.mu.RUnlock()
		return cached.account, nil
	}
	c.mu.RUnlock()

	addr, _, err := DerivePerpMarket(c.programID, index)
	if err != nil {
		return nil, fmt.Errorf("derive perp market pda: %w", err)
	}

	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if err != nil {
		return nil, fmt.Errorf("fetch perp market %d: %w", index, err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("perp market %d: account not found", index)
	}

	var wire wirePerpMarket
	if err := bin.NewBorshDecoder(info.Value.Data.GetBinary()).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode perp market %d: %w", index, err)
	}
	account := wire.toAccount(index)

	c.mu.Lock()
	c.perpMarkets[index] = &cachedPerpMarket{account: account, fetchedAt: time.Now()}
	c.mu.Unlock()

	return account, nil
}

func (c *Client) SpotMarketAccount(ctx context.Context, index uint16) (*SpotMarketAccount, error) {
	c.mu.RLock()
	if cached, ok := c.spotMarkets[index]; ok && time.Since(cached.fetchedAt) < ProgramDataRefreshInterval {
		c.mu.RUnlock()
		return cached.account, nil
	}
	c.mu.RUnlock()

	addr, _, err := DeriveSpotMarket(c.programID, index)
	if err != nil {
		return nil, fmt.Errorf("derive spot market pda: %w", err)
	}

	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if err != nil {
		return nil, fmt.Errorf("fetch spot market %d: %w", index, err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("spot market %d: account not found", index)
	}

	var wire wireSpotMarket
	if err := bin.NewBorshDecoder(info.Value.Data.GetBinary()).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode spot market %d: %w", index, err)
	}
	account := wire.toAccount(index)

	c.mu.Lock()
	c.spotMarkets[index] = &cachedSpotMarket{account: account, fetchedAt: time.Now()}
	c.mu.Unlock()

	return account, nil
}

func (c *Client) AllMarkets(ctx context.Context) ([]MarketInfo, error) {
	c.mu.RLock()
	perpIndices := make([]uint16, 0, len(c.perpMarkets))
	for idx := range c.perpMarkets {
		perpIndices = append(perpIndices, idx)
	}
	spotIndices := make([]uint16, 0, len(c.spotMarkets))
	for idx := range c.spotMarkets {
		spotIndices = append(spotIndices, idx)
	}
	c.mu.RUnlock()

	markets := make([]MarketInfo, 0, len(perpIndices)+len(spotIndices))
	for _, idx := range perpIndices {
		acct, err := c.PerpMarketAccount(ctx, idx)
		if err != nil {
			continue
		}
		markets = append(markets, MarketInfo{
			Market:       PerpMarket(idx),
			PriceStep:    acct.PriceStep,
			AmountStep:   acct.AmountStep,
			MinOrderSize: acct.MinOrderSize,
		})
	}
	for _, idx := range spotIndices {
		acct, err := c.SpotMarketAccount(ctx, idx)
		if err != nil {
			continue
		}
		markets = append(markets, MarketInfo{
			Market:       SpotMarket(idx),
			PriceStep:    acct.PriceStep,
			AmountStep:   acct.AmountStep,
			MinOrderSize: acct.MinOrderSize,
		})
	}
	return markets, nil
}

func (c *Client) UserMarginAccount(ctx context.Context, authority solana.PublicKey, subAccountID uint16) (*UserMarginAccount, error) {
	key := fmt.Sprintf("%s/%d", authority, subAccountID)

	c.mu.RLock()
	if cached, ok := c.userAccts[key]; ok && time.Since(cached.fetchedAt) < ProgramDataRefreshInterval {
		c.mu.RUnlock()
		return cached.account, nil
	}
	c.mu.RUnlock()

	addr, _, err := DeriveSubAccount(c.programID, authority, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account pda: %w", err)
	}

	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if err != nil {
		return nil, fmt.Errorf("fetch user margin account: %w", err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("user margin account %s: not found", key)
	}

	var wire wireUserMarginAccount
	if err := bin.NewBorshDecoder(info.Value.Data.GetBinary()).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode user margin account: %w", err)
	}
	account := wire.toAccount(authority, subAccountID)

	c.mu.Lock()
	c.userAccts[key] = &cachedUserAccount{account: account, fetchedAt: time.Now()}
	c.mu.Unlock()

	return account, nil
}

func (c *Client) LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return recent.Value.Blockhash, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, skipPreflight bool) (solana.Signature, error) {
	maxRetries := uint(0)
	opts := rpc.TransactionOpts{
		SkipPreflight:       skipPreflight,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	}
	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		if code, name, ok := parseCustomProgramError(err); ok {
			return solana.Signature{}, &ProgramError{Code: code, Name: name, Cause: err}
		}
		return solana.Signature{}, err
	}
	return sig, nil
}

// ProgramError is returned by SendTransaction when the RPC rejects a
// transaction synchronously with an Anchor custom-program error, letting
// callers short-circuit retry instead of treating it as a transport
// failure.
type ProgramError struct {
	Code  int
	Name  string
	Cause error
}

func (e *ProgramError) Error() string { return fmt.Sprintf("%s (code %d): %v", e.Name, e.Code, e.Cause) }
func (e *ProgramError) Unwrap() error { return e.Cause }

// ProgramError satisfies the interface the broadcast layer uses to
// distinguish synchronous program rejections from transport errors.
func (e *ProgramError) ProgramErrorCode() (int, string) { return e.Code, e.Name }

var customProgramErrorPattern = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// parseCustomProgramError recognizes the "custom program error: 0x<hex>"
// substring the RPC embeds in simulation/send failures for Anchor require!
// and error! macros.
func parseCustomProgramError(err error) (code int, name string, ok bool) {
	matches := customProgramErrorPattern.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0, "", false
	}
	parsed, parseErr := strconv.ParseInt(matches[1], 16, 64)
	if parseErr != nil {
		return 0, "", false
	}
	return int(parsed), fmt.Sprintf("custom_%d", parsed), true
}

func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	result, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return &SignatureStatus{Confirmed: false}, nil
	}

	status := result.Value[0]
	if status.Err != nil {
		code, name := decodeProgramError(status.Err)
		return &SignatureStatus{
			Confirmed:        true,
			Err:              fmt.Errorf("transaction failed: %v", status.Err),
			ProgramErrorCode: code,
			ProgramErrorName: name,
		}, nil
	}

	confirmed := status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized
	return &SignatureStatus{Confirmed: confirmed}, nil
}

func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.rpcClient.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (c *Client) SubscribeLogs(ctx context.Context, account solana.PublicKey) (<-chan RawLogEvent, error) {
	if c.wsClient == nil {
		return nil, fmt.Errorf("driftsdk: no websocket client configured, cannot subscribe to logs")
	}

	out := make(chan RawLogEvent, 64)
	sub := &logSubscription{wsClient: c.wsClient, account: account, logger: c.logger}
	go sub.run(ctx, out)
	return out, nil
}

// decodeProgramError best-effort extracts a custom program error code and
// name from an RPC-reported transaction error. The RPC layer reports custom
// errors as a generic map shape rather than a typed struct, so this stays
// defensive and simply falls back to "unknown" on anything unexpected.
func decodeProgramError(txErr any) (int, string) {
	m, ok := txErr.(map[string]any)
	if !ok {
		return 0, "unknown"
	}
	inst, ok := m["InstructionError"].([]any)
	if !ok || len(inst) != 2 {
		return 0, "unknown"
	}
	detail, ok := inst[1].(map[string]any)
	if !ok {
		return 0, "unknown"
	}
	if custom, ok := detail["Custom"].(float64); ok {
		return int(custom), fmt.Sprintf("custom_%d", int(custom))
	}
	return 0, "unknown"
}

// wirePerpMarket/wireSpotMarket/wireUserMarginAccount are the borsh layouts
// for the on-chain accounts this cache decodes. Field sets are narrowed to
// what the translator, event mapper, and REST views actually consume.
type wirePerpMarket struct {
	PriceStep             uint64
	AmountStep            uint64
	MinOrderSize          uint64
	MarginRatioInitial    uint32
	MarginRatioMaintenance uint32
	OpenInterest          uint64
	MaxOpenInterest       uint64
	OraclePrice           int64
}

func (w wirePerpMarket) toAccount(index uint16) *PerpMarketAccount {
	return &PerpMarketAccount{
		MarketIndex:            index,
		PriceStep:              decimal.NewFromInt(int64(w.PriceStep)),
		AmountStep:             decimal.NewFromInt(int64(w.AmountStep)),
		MinOrderSize:           decimal.NewFromInt(int64(w.MinOrderSize)),
		MarginRatioInitial:     w.MarginRatioInitial,
		MarginRatioMaintenance: w.MarginRatioMaintenance,
		OpenInterest:           decimal.NewFromInt(int64(w.OpenInterest)),
		MaxOpenInterest:        decimal.NewFromInt(int64(w.MaxOpenInterest)),
		OraclePrice:            decimal.NewFromInt(w.OraclePrice),
	}
}

type wireSpotMarket struct {
	Decimals     uint32
	PriceStep    uint64
	AmountStep   uint64
	MinOrderSize uint64
	OraclePrice  int64
}

func (w wireSpotMarket) toAccount(index uint16) *SpotMarketAccount {
	return &SpotMarketAccount{
		MarketIndex:  index,
		Decimals:     w.Decimals,
		PriceStep:    decimal.NewFromInt(int64(w.PriceStep)),
		AmountStep:   decimal.NewFromInt(int64(w.AmountStep)),
		MinOrderSize: decimal.NewFromInt(int64(w.MinOrderSize)),
		OraclePrice:  decimal.NewFromInt(w.OraclePrice),
	}
}

type wireUserMarginAccount struct {
	Orders        []wireOrder
	PerpPositions []wirePerpPosition
	SpotPositions []wireSpotPosition
}

type wireOrder struct {
	Slot                  uint64
	Price                 int64
	BaseAssetAmount       int64
	BaseAssetAmountFilled int64
	TriggerPrice          int64
	AuctionStartPrice     int64
	AuctionEndPrice       int64
	MaxTs                 int64
	OraclePriceOffset     int64
	OrderID               uint32
	MarketIndex           uint16
	OrderType             uint8
	MarketType            uint8
	UserOrderID           uint8
	Direction             uint8
	ReduceOnly            bool
	PostOnly              bool
	ImmediateOrCancel     bool
	AuctionDuration       uint8
	Status                uint8
}

type wirePerpPosition struct {
	MarketIndex          uint16
	BaseAssetAmount      int64
	QuoteAssetAmount     int64
	QuoteEntryAmount     int64
	QuoteBreakEvenAmount int64
}

type wireSpotPosition struct {
	MarketIndex uint16
	TokenAmount int64
}

// toOrder converts the borsh wire layout to the domain Order type. Shared by
// account decoding (wireUserMarginAccount) and event decoding (OrderCreate
// events carry the same Order layout inline).
func (w wireOrder) toOrder() Order {
	return Order{
		Slot:                  w.Slot,
		Price:                 w.Price,
		BaseAssetAmount:       w.BaseAssetAmount,
		BaseAssetAmountFilled: w.BaseAssetAmountFilled,
		TriggerPrice:          w.TriggerPrice,
		AuctionStartPrice:     w.AuctionStartPrice,
		AuctionEndPrice:       w.AuctionEndPrice,
		MaxTs:                 w.MaxTs,
		OraclePriceOffset:     w.OraclePriceOffset,
		OrderID:               w.OrderID,
		MarketIndex:           w.MarketIndex,
		OrderType:             OrderType(w.OrderType),
		MarketType:            MarketType(w.MarketType),
		UserOrderID:           w.UserOrderID,
		Direction:             PositionDirection(w.Direction),
		ReduceOnly:            w.ReduceOnly,
		PostOnly:              w.PostOnly,
		ImmediateOrCancel:     w.ImmediateOrCancel,
		AuctionDuration:       w.AuctionDuration,
		Status:                OrderStatus(w.Status),
	}
}

func (w wireUserMarginAccount) toAccount(authority solana.PublicKey, subAccountID uint16) *UserMarginAccount {
	orders := make([]Order, len(w.Orders))
	for i, o := range w.Orders {
		orders[i] = o.toOrder()
	}

	perpPositions := make([]PerpPosition, len(w.PerpPositions))
	for i, p := range w.PerpPositions {
		perpPositions[i] = PerpPosition{
			MarketIndex:          p.MarketIndex,
			BaseAssetAmount:      p.BaseAssetAmount,
			QuoteAssetAmount:     p.QuoteAssetAmount,
			QuoteEntryAmount:     p.QuoteEntryAmount,
			QuoteBreakEvenAmount: p.QuoteBreakEvenAmount,
		}
	}

	spotPositions := make([]SpotPosition, len(w.SpotPositions))
	for i, p := range w.SpotPositions {
		spotPositions[i] = SpotPosition{MarketIndex: p.MarketIndex, TokenAmount: p.TokenAmount}
	}

	return &UserMarginAccount{
		Authority:     authority,
		SubAccountID:  subAccountID,
		Orders:        orders,
		PerpPositions: perpPositions,
		SpotPositions: spotPositions,
	}
}
