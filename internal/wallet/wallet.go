// Package wallet holds the gateway's signing identity: a keypair or a
// read-only emulated authority, with deterministic sub-account derivation.
package wallet

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

// ErrSignerUnavailable is returned by Sign when the wallet was constructed
// in read-only mode. It is never retried by callers.
type ErrSignerUnavailable struct {
	Authority solana.PublicKey
}

func (e *ErrSignerUnavailable) Error() string {
	return fmt.Sprintf("signer unavailable: wallet for %s is read-only", e.Authority)
}

// Wallet is an immutable trading identity.
type Wallet struct {
	programID solana.PublicKey
	authority solana.PublicKey
	signer    solana.PublicKey
	secret    *solana.PrivateKey // nil in read-only mode
	delegated bool
}

// New constructs a Wallet from exactly one of the three supported modes:
//
//  1. secret set, delegate nil    -> owner mode, signer == authority
//  2. secret set, delegate set    -> delegated mode, signer == delegate's key,
//     authority == *delegate (the account being traded on behalf of)
//  3. secret nil, emulate set     -> read-only mode
//
// Any other combination is a startup fatal error, returned here rather than
// panicking so callers can log context before exiting.
func New(programID solana.PublicKey, secret *solana.PrivateKey, delegate, emulate *solana.PublicKey) (*Wallet, error) {
	switch {
	case secret != nil && delegate == nil:
		authority := secret.PublicKey()
		return &Wallet{
			programID: programID,
			authority: authority,
			signer:    authority,
			secret:    secret,
			delegated: false,
		}, nil

	case secret != nil && delegate != nil:
		return &Wallet{
			programID: programID,
			authority: *delegate,
			signer:    secret.PublicKey(),
			secret:    secret,
			delegated: true,
		}, nil

	case secret == nil && emulate != nil:
		return &Wallet{
			programID: programID,
			authority: *emulate,
			signer:    *emulate,
			secret:    nil,
			delegated: false,
		}, nil

	default:
		return nil, fmt.Errorf("invalid wallet configuration: exactly one of {secret-only, secret+delegate, emulate-only} must hold")
	}
}

// Authority returns the account whose sub-accounts are traded.
func (w *Wallet) Authority() solana.PublicKey { return w.authority }

// Signer returns the pubkey that actually signs transactions; equals
// Authority() unless the wallet is delegated.
func (w *Wallet) Signer() solana.PublicKey { return w.signer }

// IsDelegated reports whether the wallet signs on behalf of a distinct
// authority.
func (w *Wallet) IsDelegated() bool { return w.delegated }

// IsReadOnly reports whether the wallet has no signing key material.
func (w *Wallet) IsReadOnly() bool { return w.secret == nil }

// SubAccount derives the deterministic sub-account pubkey for id, owned by
// Authority().
func (w *Wallet) SubAccount(id uint16) solana.PublicKey {
	return driftsdk.MustDeriveSubAccount(w.programID, w.authority, id)
}

// Sign attaches recentBlockhash to the instruction set, builds the
// transaction with the signer as fee payer, and signs it. It returns
// ErrSignerUnavailable without attempting any network call if the wallet is
// read-only.
func (w *Wallet) Sign(instructions []solana.Instruction, recentBlockhash solana.Hash) (*solana.Transaction, error) {
	if w.secret == nil {
		return nil, &ErrSignerUnavailable{Authority: w.authority}
	}

	tx, err := solana.NewTransaction(instructions, recentBlockhash, solana.TransactionPayer(w.signer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if w.signer.Equals(key) {
			return w.secret
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return tx, nil
}
