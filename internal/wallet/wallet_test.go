package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

var testProgramID = solana.MustPublicKeyFromBase58("dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH")

func TestNewOwnerMode(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w, err := New(testProgramID, &key, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.IsReadOnly() || w.IsDelegated() {
		t.Fatalf("owner-mode wallet should be neither read-only nor delegated")
	}
	if !w.Authority().Equals(w.Signer()) {
		t.Fatalf("owner mode: authority must equal signer")
	}
}

func TestNewDelegatedMode(t *testing.T) {
	signerKey := solana.NewWallet().PrivateKey
	delegateTarget := solana.NewWallet().PublicKey()

	w, err := New(testProgramID, &signerKey, &delegateTarget, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !w.IsDelegated() {
		t.Fatalf("expected delegated mode")
	}
	if !w.Authority().Equals(delegateTarget) {
		t.Fatalf("authority should be the delegate target")
	}
	if !w.Signer().Equals(signerKey.PublicKey()) {
		t.Fatalf("signer should be the delegate's own key")
	}
}

func TestNewReadOnlyMode(t *testing.T) {
	emulate := solana.NewWallet().PublicKey()
	w, err := New(testProgramID, nil, nil, &emulate)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !w.IsReadOnly() {
		t.Fatalf("expected read-only mode")
	}

	_, err = w.Sign(nil, solana.Hash{})
	if err == nil {
		t.Fatalf("expected signing from read-only wallet to fail")
	}
	var target *ErrSignerUnavailable
	if !asErrSignerUnavailable(err, &target) {
		t.Fatalf("expected ErrSignerUnavailable, got %v (%T)", err, err)
	}
}

func TestNewInvalidCombination(t *testing.T) {
	if _, err := New(testProgramID, nil, nil, nil); err == nil {
		t.Fatalf("expected error when no secret and no emulate is provided")
	}
}

func TestSubAccountDeterministic(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w, err := New(testProgramID, &key, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a := w.SubAccount(3)
	b := w.SubAccount(3)
	c := w.SubAccount(4)

	if !a.Equals(b) {
		t.Fatalf("SubAccount derivation must be deterministic")
	}
	if a.Equals(c) {
		t.Fatalf("different sub_account_id must derive different pubkeys")
	}
}

func asErrSignerUnavailable(err error, target **ErrSignerUnavailable) bool {
	e, ok := err.(*ErrSignerUnavailable)
	if !ok {
		return false
	}
	*target = e
	return true
}
