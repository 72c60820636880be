package activity

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safeshield/internal/retry"
	"github.com/mbd888/safeshield/internal/severity"
	"github.com/mbd888/safeshield/internal/status"
)

const (
	addrA = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	addrC = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

type mockProvider struct {
	mu     sync.Mutex
	counts map[common.Address]uint64
	errs   map[common.Address]error
	calls  atomic.Int32
}

func (m *mockProvider) TransactionCount(_ context.Context, addr common.Address) (uint64, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[addr]; ok {
		return 0, err
	}
	return m.counts[addr], nil
}

func fastOptions() Options {
	return Options{RPS: 1000, Workers: 2, Retry: retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}}
}

func TestLowActivity_Threshold(t *testing.T) {
	tests := []struct {
		count uint64
		low   bool
	}{
		{0, true},
		{4, true},
		{5, false},
		{500, false},
	}
	for _, tt := range tests {
		res, low := LowActivity(tt.count)
		assert.Equal(t, tt.low, low, "count %d", tt.count)
		if low {
			assert.Equal(t, severity.Warn, res.Severity)
			assert.Equal(t, status.LowActivity, res.Type)
			assert.Equal(t, LowActivityTitle, res.Title)
		}
	}
}

func TestChecker_FlagsOnlyLowActivity(t *testing.T) {
	p := &mockProvider{counts: map[common.Address]uint64{
		common.HexToAddress(addrA): 2,
		common.HexToAddress(addrB): 5,
		common.HexToAddress(addrC): 0,
	}}

	res, err := NewChecker(p, fastOptions()).Check(context.Background(),
		[]string{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", addrB, addrC, addrA})
	require.NoError(t, err)

	assert.Len(t, res, 2)
	assert.Contains(t, res, addrA)
	assert.Contains(t, res, addrC)
	assert.NotContains(t, res, addrB, "sufficient activity produces no entry")
	assert.Equal(t, int32(3), p.calls.Load(), "duplicates are looked up once")
}

func TestChecker_Empty(t *testing.T) {
	p := &mockProvider{}
	res, err := NewChecker(p, fastOptions()).Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, p.calls.Load())
}

func TestChecker_LookupErrorFailsCheck(t *testing.T) {
	rpcErr := errors.New("rpc timeout")
	p := &mockProvider{
		counts: map[common.Address]uint64{common.HexToAddress(addrA): 1},
		errs:   map[common.Address]error{common.HexToAddress(addrB): rpcErr},
	}

	res, err := NewChecker(p, fastOptions()).Check(context.Background(), []string{addrA, addrB})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActivityCheck)
	assert.ErrorIs(t, err, rpcErr)

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, addrB, lookupErr.Address)
}

func TestChecker_InvalidAddress(t *testing.T) {
	_, err := NewChecker(&mockProvider{}, fastOptions()).Check(context.Background(), []string{"vitalik.eth"})
	assert.ErrorIs(t, err, ErrActivityCheck)
}

func TestChecker_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChecker(&mockProvider{}, fastOptions()).Check(ctx, []string{addrA})
	assert.ErrorIs(t, err, context.Canceled)
}

type nonceFunc func(context.Context, common.Address, *big.Int) (uint64, error)

func (f nonceFunc) NonceAt(ctx context.Context, a common.Address, b *big.Int) (uint64, error) {
	return f(ctx, a, b)
}

func TestEthProvider_UsesLatestNonce(t *testing.T) {
	gotBlock := big.NewInt(-1)
	p := NewEthProvider(nonceFunc(func(_ context.Context, a common.Address, b *big.Int) (uint64, error) {
		gotBlock = b
		assert.Equal(t, common.HexToAddress(addrA), a)
		return 7, nil
	}))

	n, err := p.TransactionCount(context.Background(), common.HexToAddress(addrA))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
	assert.Nil(t, gotBlock)
	p.Close()
}
