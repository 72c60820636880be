// Package activity flags transaction recipients with little on-chain history.
//
// The only signal is the account nonce. Accounts at or above
// LowActivityThreshold produce no finding at all, so "checked and fine" and
// "never checked" look the same to callers.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/metrics"
	"github.com/mbd888/safeshield/internal/retry"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
	"github.com/mbd888/safeshield/internal/traces"
)

// LowActivityThreshold is the transaction count below which a recipient is
// flagged.
const LowActivityThreshold = 5

// Source is the metrics key for nonce lookups.
const Source = "activity"

// Finding wording.
const (
	LowActivityTitle = "Low activity recipient"
	LowActivityDesc  = "This address has few transactions."
)

// ErrActivityCheck marks a failed activity check.
var ErrActivityCheck = errors.New("activity: check failed")

// LookupError reports which address could not be looked up.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("activity: lookup %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() []error { return []error{ErrActivityCheck, e.Err} }

// Provider returns the number of transactions an account has sent.
type Provider interface {
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
}

// Options tunes a Checker. Zero values get defaults.
type Options struct {
	RPS     float64 // lookups per second across all workers
	Workers int
	Retry   retry.Policy
}

// Checker runs activity lookups for a batch of recipients.
type Checker struct {
	provider Provider
	limiter  *rate.Limiter
	workers  int
	retry    retry.Policy
}

// NewChecker creates a checker over provider.
func NewChecker(provider Provider, opts Options) *Checker {
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	}
	burst := int(opts.RPS)
	if burst < 1 {
		burst = 1
	}
	return &Checker{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(opts.RPS), burst),
		workers:  opts.Workers,
		retry:    opts.Retry,
	}
}

// LowActivity returns the finding for a recipient with count transactions,
// or false when the count is not low.
func LowActivity(count uint64) (analysis.Result, bool) {
	if count >= LowActivityThreshold {
		return analysis.Result{}, false
	}
	return analysis.New(severity.Warn, status.LowActivity, LowActivityTitle, LowActivityDesc), true
}

// Check looks up every address and returns LOW_ACTIVITY findings keyed by
// checksummed address. Any failed lookup fails the whole check.
func (c *Checker) Check(ctx context.Context, addresses []string) (map[string]analysis.Result, error) {
	addrs := analysis.ChecksumAll(addresses)
	ctx, span := traces.StartSpan(ctx, "activity.Check", traces.AddressCount(len(addrs)))
	defer span.End()

	out := make(map[string]analysis.Result)
	if len(addrs) == 0 {
		return out, nil
	}

	for _, addr := range addrs {
		if !analysis.IsAddress(addr) {
			return nil, &LookupError{Address: addr, Err: errors.New("not a hex address")}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, addr := range addrs {
		g.Go(func() error {
			count, err := c.lookup(gctx, addr)
			if err != nil {
				return &LookupError{Address: addr, Err: err}
			}
			if res, low := LowActivity(count); low {
				mu.Lock()
				out[addr] = res
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	return out, nil
}

func (c *Checker) lookup(ctx context.Context, addr string) (uint64, error) {
	return retry.Value(ctx, c.retry, func() (uint64, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, retry.Permanent(err)
		}
		done := metrics.ObserveSource(Source)
		n, err := c.provider.TransactionCount(ctx, common.HexToAddress(addr))
		done(err)
		return n, err
	})
}
