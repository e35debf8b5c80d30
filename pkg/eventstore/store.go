package eventstore

import "context"

// Store is implemented by both MemoryStore and SQLStore. The ledger service
// depends only on this interface so it can run against either backend.
type Store interface {
	Append(ctx context.Context, req AppendRequest) (*Event, error)
	Get(ctx context.Context, id string) (*Event, error)
	GetBySequence(ctx context.Context, seq uint64) (*Event, error)
	List(ctx context.Context, filter Filter) ([]*Event, error)
	Range(ctx context.Context, start, end uint64) ([]*Event, error)
	Head(ctx context.Context) (uint64, string)
	AssociateBatch(ctx context.Context, start, end uint64, batchID string) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
