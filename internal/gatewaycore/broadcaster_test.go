package gatewaycore

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

func newTestTx(t *testing.T) *solana.Transaction {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(nil, solana.Hash{}, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("solana.NewTransaction: %v", err)
	}
	return tx
}

// Scenario 5: tx confirm happy path — the caller gets the signature
// immediately and the confirmer exits once the primary reports confirmed,
// without outliving that confirmation by much.
func TestBroadcastHappyPathConfirms(t *testing.T) {
	wantSig := solana.Signature{9, 9, 9}
	primary := newFakeCache()
	primary.sendSignature = wantSig
	primary.status = &driftsdk.SignatureStatus{Confirmed: true}

	b := NewBroadcaster(primary, nil, false, slog.Default())

	sig, err := b.Broadcast(context.Background(), context.Background(), newTestTx(t), 2*time.Second)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if sig != wantSig {
		t.Fatalf("sig = %v, want %v", sig, wantSig)
	}

	// Give the detached confirmer a moment to observe "confirmed" and exit;
	// it polls every confirmPollInterval (800ms), so wait past one tick.
	time.Sleep(confirmPollInterval + 200*time.Millisecond)
	if primary.sendCount < 2 {
		t.Fatalf("expected at least one rebroadcast to have occurred")
	}
}

// Scenario 6: tx program error — the primary send rejects synchronously and
// no background task is spawned (no further sends occur).
func TestBroadcastProgramErrorNoRetry(t *testing.T) {
	primary := newFakeCache()
	primary.sendErr = &driftsdk.ProgramError{Code: 6003, Name: "custom_6003"}

	b := NewBroadcaster(primary, nil, false, slog.Default())

	_, err := b.Broadcast(context.Background(), context.Background(), newTestTx(t), time.Second)
	failed, ok := err.(*TxFailed)
	if !ok {
		t.Fatalf("expected *TxFailed, got %v", err)
	}
	if failed.Code != 6003 {
		t.Fatalf("Code = %d, want 6003", failed.Code)
	}

	time.Sleep(50 * time.Millisecond)
	if primary.sendCount != 1 {
		t.Fatalf("sendCount = %d, want 1 (no retries after a program error)", primary.sendCount)
	}
}
