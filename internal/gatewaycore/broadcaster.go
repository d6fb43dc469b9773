package gatewaycore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

const (
	defaultTTL          = 6 * time.Second
	confirmPollInterval = 800 * time.Millisecond
)

// Broadcaster is C4: it submits a signed transaction to a primary RPC, then
// drives a detached confirmer loop that re-broadcasts to the primary and all
// secondary RPCs until confirmation or ttl expiry. The confirmer never
// blocks the caller — Broadcast returns as soon as the primary accepts.
type Broadcaster struct {
	primary    driftsdk.ProgramDataCache
	secondary  []driftsdk.ProgramDataCache
	skipPreflight bool
	logger     *slog.Logger
}

func NewBroadcaster(primary driftsdk.ProgramDataCache, secondary []driftsdk.ProgramDataCache, skipPreflight bool, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{primary: primary, secondary: secondary, skipPreflight: skipPreflight, logger: logger}
}

// Broadcast submits tx to the primary RPC. On a synchronous program-error
// rejection it returns TxFailed and spawns nothing. Otherwise it returns the
// signature immediately and starts a detached confirmer goroutine bound to
// confirmCtx, which callers should derive from a long-lived background
// context (NOT the HTTP request context, since the request returns before
// confirmation completes).
func (b *Broadcaster) Broadcast(ctx context.Context, confirmCtx context.Context, tx *solana.Transaction, ttl time.Duration) (solana.Signature, error) {
	sig, err := b.primary.SendTransaction(ctx, tx, b.skipPreflight)
	if err != nil {
		if code, name, ok := extractProgramError(err); ok {
			return solana.Signature{}, &TxFailed{Code: code, Reason: name}
		}
		return solana.Signature{}, WrapSdk(err)
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	go b.confirm(confirmCtx, tx, sig, ttl)

	return sig, nil
}

func (b *Broadcaster) confirm(ctx context.Context, tx *solana.Transaction, sig solana.Signature, ttl time.Duration) {
	deadline := time.Now().Add(ttl)

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			b.logger.Warn("transaction confirmation ttl expired", "signature", sig)
			return
		}

		b.rebroadcastAll(ctx, tx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := b.primary.SignatureStatus(ctx, sig)
		if err != nil {
			continue
		}
		if status == nil {
			continue
		}
		if status.Err != nil {
			b.logger.Warn("transaction failed during confirmation", "signature", sig, "err", status.Err)
			return
		}
		if status.Confirmed {
			b.logger.Info("transaction confirmed", "signature", sig)
			return
		}
	}
}

// rebroadcastAll fires a send to the primary and every secondary RPC
// concurrently; sends are unordered and errors are logged, never
// propagated — the only authoritative failure signal is the primary's
// synchronous response in Broadcast.
func (b *Broadcaster) rebroadcastAll(ctx context.Context, tx *solana.Transaction) {
	targets := make([]driftsdk.ProgramDataCache, 0, 1+len(b.secondary))
	targets = append(targets, b.primary)
	targets = append(targets, b.secondary...)

	for _, target := range targets {
		go func(t driftsdk.ProgramDataCache) {
			if _, err := t.SendTransaction(ctx, tx, true); err != nil {
				b.logger.Debug("rebroadcast failed", "err", err)
			}
		}(target)
	}
}

// extractProgramError recognizes an Anchor program-error surfaced directly
// from driftsdk.Client.SendTransaction (see driftsdk.ProgramError).
func extractProgramError(err error) (code int, name string, ok bool) {
	var pe interface{ ProgramErrorCode() (int, string) }
	if errors.As(err, &pe) {
		code, name = pe.ProgramErrorCode()
		return code, name, true
	}
	return 0, "", false
}
