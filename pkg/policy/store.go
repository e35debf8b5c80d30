package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// Store persists Policy rule-sets. Activation is exclusive per name: at
// most one version of a given policy name is active at a time.
type Store interface {
	Create(ctx context.Context, p *Policy) error
	Get(ctx context.Context, id string) (*Policy, error)
	List(ctx context.Context) ([]*Policy, error)
	Active(ctx context.Context) ([]*Policy, error)
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store, suitable for tests and single-node
// deployments without a configured DATABASE_URL.
type MemoryStore struct {
	mu       sync.Mutex
	policies map[string]*Policy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*Policy)}
}

func (s *MemoryStore) Create(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		return apperr.InvalidInput("policy id is required")
	}
	if _, exists := s.policies[p.ID]; exists {
		return apperr.Conflict(fmt.Sprintf("policy %s already exists", p.ID))
	}
	stored := *p
	s.policies[p.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("policy %s not found", id))
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Active returns every policy currently marked active, regardless of name,
// so the evaluator can load the full set in one call.
func (s *MemoryStore) Active(ctx context.Context) ([]*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Policy
	for _, p := range s.policies {
		if p.IsActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Activate marks id active and deactivates every other version sharing its
// name, so a name never has two active versions at once.
func (s *MemoryStore) Activate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.policies[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("policy %s not found", id))
	}
	for _, p := range s.policies {
		if p.Name == target.Name {
			p.IsActive = p.ID == id
			p.UpdatedAt = s.now()
		}
	}
	return nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("policy %s not found", id))
	}
	p.IsActive = false
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) now() time.Time { return time.Now().UTC() }

var _ Store = (*MemoryStore)(nil)
