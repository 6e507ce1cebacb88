// Package wallet defines the signing collaborator the settlement engine
// drives. The concrete wallet connection (browser extension bridge, custody
// API, hardware signer) lives outside this repository; orchestrators only
// need a request/response transfer call they can await.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"loanrail/chains"
)

// ErrRejected indicates the user or policy layer declined to sign.
var ErrRejected = errors.New("wallet: transfer rejected")

// ErrNotConnected indicates no wallet session is available.
var ErrNotConnected = errors.New("wallet: not connected")

// TransferRequest describes exactly one signed transfer.
type TransferRequest struct {
	Family        chains.Family
	Kind          chains.AssetKind
	Recipient     string
	ExtraID       string
	AmountAtomic  *big.Int
	TokenContract string
}

// Signer signs and broadcasts a transfer, returning the transaction id.
type Signer interface {
	SendTransfer(ctx context.Context, req TransferRequest) (string, error)
}

// FuncSigner adapts a function to the Signer interface.
type FuncSigner func(ctx context.Context, req TransferRequest) (string, error)

// SendTransfer delegates to the wrapped function.
func (f FuncSigner) SendTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if f == nil {
		return "", ErrNotConnected
	}
	return f(ctx, req)
}
