package verdict

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/pagination"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	verdicts map[string][]*Verdict // chainID/safe -> verdicts in record order
}

// NewMemoryStore creates an in-memory verdict store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{verdicts: make(map[string][]*Verdict)}
}

var _ Store = (*MemoryStore)(nil)

func safeKey(chainID, safe string) string {
	return chainID + "/" + analysis.Checksum(safe)
}

func (s *MemoryStore) Record(_ context.Context, v *Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	cp.Sources = append([]string(nil), v.Sources...)
	key := safeKey(v.ChainID, v.Safe)
	s.verdicts[key] = append(s.verdicts[key], &cp)
	return nil
}

func (s *MemoryStore) ListBySafe(_ context.Context, chainID, safe string, limit int, before *pagination.Cursor) ([]*Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultLimit
	}

	result := []*Verdict{}
	for _, v := range s.verdicts[safeKey(chainID, safe)] {
		if !before.Before(v.EvaluatedAt, v.ID) {
			continue
		}
		cp := *v
		cp.Sources = append([]string(nil), v.Sources...)
		result = append(result, &cp)
	}

	// Same order as the Postgres store: evaluated_at DESC, id DESC
	sort.Slice(result, func(i, j int) bool {
		if !result[i].EvaluatedAt.Equal(result[j].EvaluatedAt) {
			return result[i].EvaluatedAt.After(result[j].EvaluatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
