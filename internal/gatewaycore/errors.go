// Package gatewaycore implements the transaction lifecycle engine: request
// translation, broadcast/confirmation, and event fan-out. It depends only on
// the driftsdk.ProgramDataCache port, never on solana-go RPC types directly
// beyond what that interface already exposes.
package gatewaycore

import "fmt"

// BadRequest is a structurally invalid client input: never retried, always
// mapped to HTTP 400.
type BadRequest struct {
	Reason string
}

func (e *BadRequest) Error() string { return e.Reason }

func NewBadRequest(format string, args ...any) *BadRequest {
	return &BadRequest{Reason: fmt.Sprintf(format, args...)}
}

// TxFailed is a synchronous, chain-level program rejection. The Anchor
// error code is preserved as Code; never retried.
type TxFailed struct {
	Code   int
	Reason string
}

func (e *TxFailed) Error() string { return fmt.Sprintf("tx failed: %s (code %d)", e.Reason, e.Code) }

// TxNotFound is returned only by read endpoints looking up a transaction
// signature that the node has no record of.
type TxNotFound struct {
	Signature string
}

func (e *TxNotFound) Error() string { return fmt.Sprintf("transaction not found: %s", e.Signature) }

// Sdk wraps any other failure: network errors, signer errors,
// account-not-found. Mapped to HTTP 500.
type Sdk struct {
	Cause error
}

func (e *Sdk) Error() string { return fmt.Sprintf("sdk error: %v", e.Cause) }
func (e *Sdk) Unwrap() error { return e.Cause }

func WrapSdk(err error) error {
	if err == nil {
		return nil
	}
	return &Sdk{Cause: err}
}

// HTTPStatusAndCode maps an error produced anywhere in this package to the
// HTTP status and response `code` field the API layer should render.
func HTTPStatusAndCode(err error) (status int, code int, reason string) {
	switch e := err.(type) {
	case *BadRequest:
		return 400, 400, e.Reason
	case *TxFailed:
		return 400, e.Code, e.Reason
	case *TxNotFound:
		return 404, 404, e.Error()
	case *Sdk:
		return 500, 500, e.Error()
	default:
		return 500, 500, err.Error()
	}
}
