//go:build property
// +build property

// Package eventstore_test contains property-based tests for chain density
// and concurrent append atomicity.
package eventstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/guardrail-systems/ledger/pkg/eventstore"
)

// TestSequenceIsDenseUnderConcurrentAppend verifies that no matter how many
// goroutines race to append, the resulting sequence numbers form a dense
// run with no gaps and no duplicates.
// Property: sorted(sequences) == [1, 2, ..., n]
func TestSequenceIsDenseUnderConcurrentAppend(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent appends produce a dense sequence", prop.ForAll(
		func(n int) bool {
			if n <= 0 {
				return true
			}
			s := eventstore.NewMemoryStore()
			actor := uuid.New().String()

			var wg sync.WaitGroup
			seqs := make([]uint64, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					e, err := s.Append(context.Background(), eventstore.AppendRequest{
						EventType: eventstore.EventSystemEvent,
						ActorID:   actor,
						Payload:   map[string]any{"i": i},
					})
					if err != nil {
						return
					}
					seqs[i] = e.Sequence
				}(i)
			}
			wg.Wait()

			seen := make(map[uint64]bool, n)
			for _, seq := range seqs {
				if seq == 0 || seq > uint64(n) || seen[seq] {
					return false
				}
				seen[seq] = true
			}
			return len(seen) == n
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

// TestVerifyChainAlwaysPassesAfterHonestAppends verifies that any sequence
// of honest appends (no tampering) always verifies clean.
func TestVerifyChainAlwaysPassesAfterHonestAppends(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("honestly appended chains always verify", prop.ForAll(
		func(notes []string) bool {
			if len(notes) == 0 {
				return true
			}
			s := eventstore.NewMemoryStore()
			actor := uuid.New().String()

			for _, note := range notes {
				if _, err := s.Append(context.Background(), eventstore.AppendRequest{
					EventType: eventstore.EventSystemEvent,
					ActorID:   actor,
					Payload:   map[string]any{"note": note},
				}); err != nil {
					return false
				}
			}

			report, err := eventstore.VerifyChain(context.Background(), s, 1, uint64(len(notes)))
			if err != nil {
				return false
			}
			return report.Valid
		},
		gen.SliceOfN(20, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
