package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/drift-gateway/internal/apiserver"
	"github.com/coldbell/drift-gateway/internal/config"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/feeoracle"
	"github.com/coldbell/drift-gateway/internal/gatewaycore"
	"github.com/coldbell/drift-gateway/internal/journal"
	"github.com/coldbell/drift-gateway/internal/logging"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadGatewayConfig(os.Args[1:])
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("drift-gateway", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := buildWallet(cfg)
	if err != nil {
		logger.Error("failed to build wallet", "err", err)
		os.Exit(1)
	}

	rpcClient := rpc.New(cfg.RPCURL)
	wsClient, err := ws.Connect(ctx, deriveWsURL(cfg.RPCURL))
	if err != nil {
		logger.Warn("websocket RPC connect failed, log subscriptions will be unavailable", "err", err)
		wsClient = nil
	}

	cache := driftsdk.NewClient(rpcClient, wsClient, cfg.ProgramID, cfg.Commitment, logger)

	secondary := make([]driftsdk.ProgramDataCache, 0, len(cfg.ExtraRPCs))
	for _, url := range cfg.ExtraRPCs {
		secondary = append(secondary, driftsdk.NewClient(rpc.New(url), nil, cfg.ProgramID, cfg.Commitment, logger))
	}

	perpMarket0, _, err := driftsdk.DerivePerpMarket(cfg.ProgramID, 0)
	if err != nil {
		logger.Error("failed to derive perp market 0 address", "err", err)
		os.Exit(1)
	}
	fees := feeoracle.New(rpcClient, perpMarket0, cfg.PriorityFeeWindow, cfg.PriorityFeeFloor, logger)
	go fees.Run(ctx, cfg.PriorityFeeRefresh)

	translator := gatewaycore.NewTranslator(cfg.ProgramID, cache, w, fees, cfg.ComputeUnitLimit)
	broadcaster := gatewaycore.NewBroadcaster(cache, secondary, cfg.SkipTxPreflight, logger)
	renderer := gatewaycore.NewRenderer(cache, w)

	store, err := journal.NewStore(cfg.DBDSN)
	if err != nil {
		logger.Error("failed to initialize event journal", "err", err)
		os.Exit(1)
	}

	svc := apiserver.New(cfg, logger, w, cache, translator, broadcaster, renderer, store)

	logger.Info("drift-gateway starting",
		"rpc", cfg.RPCURL,
		"program_id", cfg.ProgramID,
		"dev", cfg.Dev,
		"journal_enabled", store != nil,
	)

	if err := svc.Run(ctx); err != nil {
		logger.Error("drift-gateway exited with error", "err", err)
		os.Exit(1)
	}
}

// buildWallet resolves the gateway's signing identity per the three modes
// wallet.New supports. DRIFT_GATEWAY_KEY may hold either a base58-encoded
// secret key or a path to a solana-keygen JSON keypair file; an empty value
// with --emulate set builds a read-only wallet instead.
func buildWallet(cfg config.GatewayConfig) (*wallet.Wallet, error) {
	if cfg.SignerKeyOrPath == "" {
		if cfg.Emulate == nil {
			return nil, fmt.Errorf("no signer configured: set DRIFT_GATEWAY_KEY or --emulate")
		}
		return wallet.New(cfg.ProgramID, nil, nil, cfg.Emulate)
	}

	secret, err := resolveSigner(cfg.SignerKeyOrPath)
	if err != nil {
		return nil, err
	}
	return wallet.New(cfg.ProgramID, &secret, cfg.Delegate, cfg.Emulate)
}

func resolveSigner(keyOrPath string) (solana.PrivateKey, error) {
	if secret, err := solana.PrivateKeyFromBase58(keyOrPath); err == nil {
		return secret, nil
	}

	path, err := config.ExpandHomePath(keyOrPath)
	if err != nil {
		return nil, fmt.Errorf("expand signer path %q: %w", keyOrPath, err)
	}
	secret, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", path, err)
	}
	return secret, nil
}

// deriveWsURL derives the websocket RPC endpoint from the HTTP one following
// Solana's standard pairing convention (ws/wss alongside http/https on the
// same host).
func deriveWsURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}
