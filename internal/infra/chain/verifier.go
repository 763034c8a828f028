// Package chain verifies on-chain proof of payment: a transaction hash is
// accepted only when its mined receipt succeeded and contains at least one
// event emitted by the expected subscription manager contract.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	ErrTxFailed        = errors.New("transaction reverted")
	ErrNoLogs          = errors.New("transaction receipt has no logs")
	ErrWrongContract   = errors.New("no log emitted by expected contract")
	ErrInvalidTxHash   = errors.New("malformed transaction hash")
	ErrInvalidContract = errors.New("malformed contract address")
)

// ReceiptFetcher is the slice of ethclient.Client the verifier needs; tests
// substitute a stub.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Verifier struct {
	client ReceiptFetcher
}

// Dial connects to the settlement chain's RPC endpoint.
func Dial(rpcURL string) (*Verifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &Verifier{client: client}, nil
}

// NewVerifier wraps an existing receipt source.
func NewVerifier(client ReceiptFetcher) *Verifier {
	return &Verifier{client: client}
}

// VerifyPayment fails closed: a missing receipt, a reverted transaction, an
// empty log set, or logs from unrelated contracts all reject the hash. There
// is no retry or backoff here; whether to retry the whole request is the
// caller's call.
func (v *Verifier) VerifyPayment(ctx context.Context, txHash, expectedContract string) error {
	if !common.IsHexAddress(expectedContract) {
		return ErrInvalidContract
	}
	hashBytes, err := decodeTxHash(txHash)
	if err != nil {
		return err
	}

	receipt, err := v.client.TransactionReceipt(ctx, hashBytes)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrReceiptNotFound
		}
		return fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return ErrReceiptNotFound
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTxFailed
	}
	if len(receipt.Logs) == 0 {
		return ErrNoLogs
	}

	expected := common.HexToAddress(expectedContract)
	for _, lg := range receipt.Logs {
		if strings.EqualFold(lg.Address.Hex(), expected.Hex()) {
			return nil
		}
	}
	return ErrWrongContract
}

func decodeTxHash(txHash string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(txHash), "0x")
	if len(trimmed) != common.HashLength*2 {
		return common.Hash{}, ErrInvalidTxHash
	}
	for _, r := range trimmed {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return common.Hash{}, ErrInvalidTxHash
		}
	}
	return common.HexToHash(txHash), nil
}
