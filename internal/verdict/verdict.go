// Package verdict keeps an audit trail of overall Safe Shield verdicts.
package verdict

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/idgen"
	"github.com/mbd888/safeshield/internal/pagination"
	"github.com/mbd888/safeshield/internal/severity"
)

// Default and maximum page sizes for history queries.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Verdict is the overall status recorded for one analysis.
type Verdict struct {
	ID          string         `json:"id"`
	ChainID     string         `json:"chainId"`
	Safe        string         `json:"safe"`
	Severity    severity.Level `json:"severity"`
	Title       string         `json:"title"`
	Sources     []string       `json:"sources"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
}

// Store persists verdicts.
type Store interface {
	Record(ctx context.Context, v *Verdict) error
	// ListBySafe returns up to limit verdicts newest first, starting after
	// before when it is non-nil.
	ListBySafe(ctx context.Context, chainID, safe string, limit int, before *pagination.Cursor) ([]*Verdict, error)
}

// New builds a verdict with a fresh id and a checksummed Safe address.
func New(chainID, safe string, level severity.Level, title string, sources []string) *Verdict {
	return &Verdict{
		ID:          idgen.WithPrefix("vrd_"),
		ChainID:     chainID,
		Safe:        analysis.Checksum(safe),
		Severity:    level,
		Title:       title,
		Sources:     append([]string(nil), sources...),
		EvaluatedAt: time.Now().UTC(),
	}
}

// Recorder writes verdicts in the background. Close waits for writes in
// flight; verdicts recorded after Close are dropped.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewRecorder creates a recorder. A nil store disables recording.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// Record persists v asynchronously (best-effort audit trail).
func (r *Recorder) Record(v *Verdict) {
	if r == nil || r.store == nil || v == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("verdict recorder closed, dropping verdict", "id", v.ID, "safe", v.Safe)
		return
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.Record(ctx, v); err != nil {
			r.logger.Warn("failed to record verdict", "id", v.ID, "safe", v.Safe, "error", err)
		}
	}()
}

// Close stops accepting verdicts and waits for pending writes, or for ctx.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Key is the pagination key of v.
func Key(v *Verdict) (time.Time, string) {
	return v.EvaluatedAt, v.ID
}

// ClampLimit bounds a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
