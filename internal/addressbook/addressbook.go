// Package addressbook keeps per-chain lists of trusted addresses and turns
// them into ADDRESS_BOOK findings for transaction recipients.
package addressbook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

var (
	ErrNotFound       = errors.New("addressbook: entry not found")
	ErrInvalidAddress = errors.New("addressbook: invalid address")
	ErrInvalidChain   = errors.New("addressbook: invalid chain id")
)

// Finding wording.
const (
	KnownTitle       = "Known recipient"
	UnknownTitle     = "Unknown recipient"
	InBookDesc       = "This address is in your address book."
	OwnedSafeDesc    = "This address is a Safe you own."
	UnknownDesc      = "This address is not in your address book or a Safe you own."
	maxNameLength    = 100
	maxChainIDLength = 20
)

// Entry is one address book record.
type Entry struct {
	ChainID   string    `json:"chainId"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists address book entries. Addresses are stored checksummed.
type Store interface {
	IsKnown(ctx context.Context, chainID, address string) (bool, error)
	Add(ctx context.Context, entry *Entry) error
	Remove(ctx context.Context, chainID, address string) error
	List(ctx context.Context, chainID string) ([]*Entry, error)
}

// NormalizeEntry validates e and checksums its address.
func NormalizeEntry(e *Entry) error {
	if e == nil || !analysis.IsAddress(e.Address) {
		return ErrInvalidAddress
	}
	if err := validateChain(e.ChainID); err != nil {
		return err
	}
	e.Address = analysis.Checksum(e.Address)
	e.Name = strings.TrimSpace(e.Name)
	if len(e.Name) > maxNameLength {
		e.Name = e.Name[:maxNameLength]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

func validateChain(chainID string) error {
	if chainID == "" || len(chainID) > maxChainIDLength {
		return ErrInvalidChain
	}
	for _, r := range chainID {
		if r < '0' || r > '9' {
			return ErrInvalidChain
		}
	}
	return nil
}

// Checker produces ADDRESS_BOOK findings.
type Checker struct {
	store Store
}

// NewChecker creates a checker over store.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// Check returns one ADDRESS_BOOK finding per distinct address, keyed by the
// checksummed address. Address book membership wins over Safe ownership.
func (c *Checker) Check(ctx context.Context, chainID string, addresses, ownedSafes []string) (map[string]analysis.Result, error) {
	owned := make(map[string]bool, len(ownedSafes))
	for _, s := range analysis.ChecksumAll(ownedSafes) {
		owned[s] = true
	}

	out := make(map[string]analysis.Result, len(addresses))
	for _, addr := range analysis.ChecksumAll(addresses) {
		known, err := c.store.IsKnown(ctx, chainID, addr)
		if err != nil {
			return nil, err
		}
		switch {
		case known:
			out[addr] = analysis.New(severity.OK, status.KnownRecipient, KnownTitle, InBookDesc)
		case owned[addr]:
			out[addr] = analysis.New(severity.OK, status.KnownRecipient, KnownTitle, OwnedSafeDesc)
		default:
			out[addr] = analysis.New(severity.Info, status.UnknownRecipient, UnknownTitle, UnknownDesc)
		}
	}
	return out, nil
}
