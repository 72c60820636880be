package analysis

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Operation is the Safe transaction operation type.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// Transaction is the Safe transaction under review.
type Transaction struct {
	To        string    `json:"to"`
	Value     string    `json:"value"` // decimal wei
	Data      string    `json:"data"`  // 0x-prefixed calldata
	Operation Operation `json:"operation"`
}

var (
	ErrInvalidTo        = errors.New("transaction: invalid to address")
	ErrInvalidValue     = errors.New("transaction: value must be a non-negative decimal integer")
	ErrInvalidData      = errors.New("transaction: data must be 0x-prefixed hex")
	ErrInvalidOperation = errors.New("transaction: operation must be 0 (call) or 1 (delegatecall)")
)

// Normalize checksums To and fills defaults for Value and Data.
func (t Transaction) Normalize() (Transaction, error) {
	if !IsAddress(t.To) {
		return t, ErrInvalidTo
	}
	t.To = Checksum(t.To)

	if t.Value == "" {
		t.Value = "0"
	}
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok || v.Sign() < 0 {
		return t, ErrInvalidValue
	}

	if t.Data == "" {
		t.Data = "0x"
	}
	if t.Data != "0x" {
		if _, err := hexutil.Decode(t.Data); err != nil {
			return t, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	}
	t.Data = strings.ToLower(t.Data)

	if t.Operation > OperationDelegateCall {
		return t, ErrInvalidOperation
	}
	return t, nil
}

// IsDelegateCall reports whether the transaction executes in the Safe's context.
func (t Transaction) IsDelegateCall() bool {
	return t.Operation == OperationDelegateCall
}
