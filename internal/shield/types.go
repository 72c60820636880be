package shield

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mbd888/safeshield/internal/analysis"
)

var (
	ErrInvalidRequest   = errors.New("shield: invalid request")
	ErrThreatDisabled   = errors.New("shield: threat analysis is not configured")
	ErrContractDisabled = errors.New("shield: contract analysis is not configured")
)

// AsyncResult is the state of one analysis: the data seen so far, the
// source error if any, and whether sources are still outstanding.
type AsyncResult[T any] struct {
	Data    T
	Err     error
	Loading bool
}

type asyncResultJSON[T any] struct {
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Loading bool   `json:"loading"`
}

// MarshalJSON renders Err as its message.
func (r AsyncResult[T]) MarshalJSON() ([]byte, error) {
	out := asyncResultJSON[T]{Data: r.Data, Loading: r.Loading}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// ErrorString returns the error message, or "" when there is none.
func (r AsyncResult[T]) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RecipientRequest asks for recipient findings.
type RecipientRequest struct {
	ChainID    string   `json:"chainId"`
	Safe       string   `json:"safe"`
	Recipients []string `json:"recipients"`
	OwnedSafes []string `json:"ownedSafes,omitempty"`
}

// ContractRequest asks for contract findings on a transaction.
type ContractRequest struct {
	ChainID     string               `json:"chainId"`
	Safe        string               `json:"safe"`
	Transaction analysis.Transaction `json:"transaction"`
}

// ThreatRequest asks the threat vendor to assess a transaction.
type ThreatRequest = ContractRequest

// FullRequest runs every applicable analysis and derives the overall status.
// Transaction is optional; without it only recipients are analyzed.
type FullRequest struct {
	ChainID          string                `json:"chainId"`
	Safe             string                `json:"safe"`
	Recipients       []string              `json:"recipients"`
	OwnedSafes       []string              `json:"ownedSafes,omitempty"`
	Transaction      *analysis.Transaction `json:"transaction,omitempty"`
	SimulationFailed bool                  `json:"simulationFailed,omitempty"`
}

// Visible holds the findings to display per analysis.
type Visible struct {
	Recipient []analysis.Result `json:"recipient"`
	Contract  []analysis.Result `json:"contract"`
	Threat    []analysis.Result `json:"threat"`
}

// Report is the outcome of a full analysis.
type Report struct {
	ChainID   string                                 `json:"chainId"`
	Safe      string                                 `json:"safe"`
	Recipient AsyncResult[analysis.RecipientResults] `json:"recipient"`
	Contract  *AsyncResult[analysis.ContractResults] `json:"contract,omitempty"`
	Threat    *AsyncResult[analysis.ThreatResults]   `json:"threat,omitempty"`
	Visible   Visible                                `json:"visible"`
	Overall   *Status                                `json:"overall"`
	VerdictID string                                 `json:"verdictId,omitempty"`
}

func validateTarget(chainID, safe string) error {
	if chainID == "" {
		return fmt.Errorf("%w: chainId is required", ErrInvalidRequest)
	}
	if !analysis.IsAddress(safe) {
		return fmt.Errorf("%w: invalid Safe address %q", ErrInvalidRequest, safe)
	}
	return nil
}

func validateAddresses(field string, addrs []string) error {
	for _, a := range addrs {
		if !analysis.IsAddress(a) {
			return fmt.Errorf("%w: invalid %s address %q", ErrInvalidRequest, field, a)
		}
	}
	return nil
}

func (r RecipientRequest) validate() error {
	if err := validateTarget(r.ChainID, r.Safe); err != nil {
		return err
	}
	if len(r.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidRequest)
	}
	if err := validateAddresses("recipient", r.Recipients); err != nil {
		return err
	}
	return validateAddresses("owned Safe", r.OwnedSafes)
}

func (r ContractRequest) normalize() (ContractRequest, error) {
	if err := validateTarget(r.ChainID, r.Safe); err != nil {
		return r, err
	}
	tx, err := r.Transaction.Normalize()
	if err != nil {
		return r, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	r.Transaction = tx
	return r, nil
}
