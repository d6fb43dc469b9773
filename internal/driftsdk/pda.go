package driftsdk

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed prefixes for the on-chain program's deterministic addresses. These
// mirror the well-known addressing scheme of the protocol this gateway
// fronts: a "user" PDA per (authority, sub_account_id), and per-market PDAs
// for perp/spot market accounts.
const (
	seedUser       = "user"
	seedSpotMarket = "spot_market"
	seedPerpMarket = "perp_market"
)

// DeriveSubAccount derives the deterministic sub-account pubkey owned by
// authority, indexed by subAccountID. This is the concrete backing for
// Wallet.SubAccount.
func DeriveSubAccount(programID, authority solana.PublicKey, subAccountID uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(seedUser), authority.Bytes(), u16LE(subAccountID)},
		programID,
	)
}

// MustDeriveSubAccount panics on derivation failure; used at call sites
// where the seeds are fixed and a failure would indicate a broken program ID.
func MustDeriveSubAccount(programID, authority solana.PublicKey, subAccountID uint16) solana.PublicKey {
	pk, _, err := DeriveSubAccount(programID, authority, subAccountID)
	if err != nil {
		panic(fmt.Errorf("derive sub-account PDA: %w", err))
	}
	return pk
}

// DeriveSpotMarket derives the spot market account PDA for marketIndex.
func DeriveSpotMarket(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(seedSpotMarket), u16LE(marketIndex)},
		programID,
	)
}

// DerivePerpMarket derives the perp market account PDA for marketIndex.
func DerivePerpMarket(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(seedPerpMarket), u16LE(marketIndex)},
		programID,
	)
}

func u16LE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
