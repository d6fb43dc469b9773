package driftsdk

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// anchorDiscriminator computes the 8-byte Anchor instruction discriminator
// for ixName, following the same sha256("global:"+name)[:8] convention used
// elsewhere in this codebase for hand-built Anchor instructions.
func anchorDiscriminator(ixName string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + ixName))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// encodeInstructionData borsh-encodes the discriminator followed by args
// using the same encoder this codebase already depends on for account
// decoding.
func encodeInstructionData(ixName string, args any) ([]byte, error) {
	discriminator := anchorDiscriminator(ixName)

	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])

	if args != nil {
		encoder := bin.NewBorshEncoder(buf)
		if err := encoder.Encode(args); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// PlaceOrderArgs is the borsh-encoded instruction payload for placing a
// single order, after translation from the client's decimal request.
type PlaceOrderArgs struct {
	MarketIndex       uint16
	MarketType        uint8
	OrderType         uint8
	Direction         uint8
	BaseAssetAmount   uint64
	Price             uint64
	UserOrderID       uint8
	PostOnly          uint8
	ReduceOnly        bool
	OraclePriceOffset int32
	HasOracleOffset   bool
	MaxTs             int64
	HasMaxTs          bool
}

// ModifyOrderArgs is the instruction payload for modifying a single order.
type ModifyOrderArgs struct {
	ByUserOrderID   bool
	OrderID         uint32
	UserOrderID     uint8
	NewBaseAmount   uint64
	HasNewAmount    bool
	NewPrice        uint64
	HasNewPrice     bool
}

// CancelOrdersArgs is the instruction payload for a cancel request. Exactly
// one addressing mode is populated, selected by the translator per the
// market > user_ids > ids > all priority.
type CancelOrdersArgs struct {
	Mode        CancelMode
	MarketIndex uint16
	MarketType  uint8
	UserOrderIDs []uint8
	OrderIDs     []uint32
}

type CancelMode uint8

const (
	CancelModeAll CancelMode = iota
	CancelModeMarket
	CancelModeUserOrderIDs
	CancelModeOrderIDs
)

// SetMaxInitialMarginRatioArgs is the instruction payload for the
// margin-config intent.
type SetMaxInitialMarginRatioArgs struct {
	MarketIndex uint16
	RatioMantissa uint32
}

// BuildPlaceOrderInstruction builds the single "place order" instruction
// against the engine program for subAccount.
func BuildPlaceOrderInstruction(programID, authority, subAccount solana.PublicKey, args PlaceOrderArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("place_order", args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(subAccount, true, false),
		},
		data,
	), nil
}

// BuildModifyOrdersInstruction builds one "modify orders" instruction
// covering the whole homogeneous batch.
func BuildModifyOrdersInstruction(programID, authority, subAccount solana.PublicKey, batch []ModifyOrderArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("modify_orders", struct{ Orders []ModifyOrderArgs }{Orders: batch})
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(subAccount, true, false),
		},
		data,
	), nil
}

// BuildCancelOrdersInstruction builds the single "cancel orders"
// instruction for args, which must already have exactly one addressing mode
// populated.
func BuildCancelOrdersInstruction(programID, authority, subAccount solana.PublicKey, args CancelOrdersArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("cancel_orders", args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(subAccount, true, false),
		},
		data,
	), nil
}

// BuildSetMaxInitialMarginRatioInstruction builds the margin-config
// instruction.
func BuildSetMaxInitialMarginRatioInstruction(programID, authority, subAccount solana.PublicKey, args SetMaxInitialMarginRatioArgs) (solana.Instruction, error) {
	data, err := encodeInstructionData("set_max_initial_margin_ratio", args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(subAccount, true, false),
		},
		data,
	), nil
}

// computeBudgetProgramID is the native Solana ComputeBudget111... program.
// Its instruction encoding is a single tag byte followed by little-endian
// fixed-width fields — not Anchor/Borsh, so it is built by hand here rather
// than through encodeInstructionData.
var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111")

const (
	computeBudgetTagSetComputeUnitLimit uint8 = 2
	computeBudgetTagSetComputeUnitPrice uint8 = 3
)

// BuildSetComputeUnitLimitInstruction caps the compute units a transaction
// may consume.
func BuildSetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeBudgetTagSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// BuildSetComputeUnitPriceInstruction attaches a priority-fee bid in
// micro-lamports per compute unit.
func BuildSetComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetTagSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}
