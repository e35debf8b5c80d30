package anchor

import (
	"context"
	"sync"
)

// Store persists anchor batches. Store implementations are used by
// the Batcher; ledger.Service's GetEventProof consults one indirectly via
// the BatchRangeLookup it's handed at startup.
type Store interface {
	Create(ctx context.Context, b *Batch) error
	Update(ctx context.Context, b *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)
	Range(ctx context.Context, id string) (startSeq, endSeq uint64, err error)
	ListByStatus(ctx context.Context, status Status) ([]*Batch, error)
	List(ctx context.Context) ([]*Batch, error)
}

// MemoryBatchStore is an in-process Store, used by tests and by
// deployments small enough not to need durable batch bookkeeping.
type MemoryBatchStore struct {
	mu      sync.Mutex
	batches map[string]*Batch
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{batches: make(map[string]*Batch)}
}

func (s *MemoryBatchStore) Create(ctx context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *MemoryBatchStore) Update(ctx context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		return ErrBatchNotFound
	}
	s.batches[b.ID] = b
	return nil
}

func (s *MemoryBatchStore) Get(ctx context.Context, id string) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

func (s *MemoryBatchStore) Range(ctx context.Context, id string) (uint64, uint64, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return b.StartSequence, b.EndSequence, nil
}

func (s *MemoryBatchStore) ListByStatus(ctx context.Context, status Status) ([]*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*Batch
	for _, b := range s.batches {
		if b.Status == status {
			results = append(results, b)
		}
	}
	return results, nil
}

func (s *MemoryBatchStore) List(ctx context.Context) ([]*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*Batch, 0, len(s.batches))
	for _, b := range s.batches {
		results = append(results, b)
	}
	return results, nil
}

var _ Store = (*MemoryBatchStore)(nil)
