package anchor

import (
	"context"
	"fmt"

	"github.com/guardrail-systems/ledger/pkg/apperr"
)

// AdminPublisher is implemented by substrate drivers that also expose the
// program's administrative surface (authority-gated pause/unpause/anchor
// key management) and an independent read-view for cross-checking a
// stored batch against what the substrate itself recorded.
type AdminPublisher interface {
	Publisher

	// GetBatch reads back the on-chain commitment for batchID.
	GetBatch(ctx context.Context, batchID [16]byte) (merkleRoot [32]byte, eventCount uint32, timestamp uint64, err error)

	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	AuthorizeAnchor(ctx context.Context, anchorAddress string) error
	RevokeAnchor(ctx context.Context, anchorAddress string) error
}

// adminByName finds the publisher registered under name and asserts it
// supports the administrative surface.
func (b *Batcher) adminByName(name string) (AdminPublisher, error) {
	for _, p := range b.publishers {
		if p.Name() != name {
			continue
		}
		admin, ok := p.(AdminPublisher)
		if !ok {
			return nil, apperr.InvalidInput(fmt.Sprintf("substrate %s does not support administrative operations", name))
		}
		return admin, nil
	}
	return nil, apperr.NotFound(fmt.Sprintf("substrate %s not registered", name))
}

// SubstrateState returns the on-chain commitment recorded for a batch,
// independent of what this service's own store has persisted for it.
func (b *Batcher) SubstrateState(ctx context.Context, batchID, substrate string) (merkleRoot [32]byte, eventCount uint32, timestamp uint64, err error) {
	admin, err := b.adminByName(substrate)
	if err != nil {
		return merkleRoot, 0, 0, err
	}
	idBytes := batchIDTo16Bytes(batchID)
	return admin.GetBatch(ctx, idBytes)
}

func (b *Batcher) PauseSubstrate(ctx context.Context, substrate string) error {
	admin, err := b.adminByName(substrate)
	if err != nil {
		return err
	}
	return admin.Pause(ctx)
}

func (b *Batcher) UnpauseSubstrate(ctx context.Context, substrate string) error {
	admin, err := b.adminByName(substrate)
	if err != nil {
		return err
	}
	return admin.Unpause(ctx)
}

func (b *Batcher) AuthorizeAnchor(ctx context.Context, substrate, anchorAddress string) error {
	admin, err := b.adminByName(substrate)
	if err != nil {
		return err
	}
	return admin.AuthorizeAnchor(ctx, anchorAddress)
}

func (b *Batcher) RevokeAnchor(ctx context.Context, substrate, anchorAddress string) error {
	admin, err := b.adminByName(substrate)
	if err != nil {
		return err
	}
	return admin.RevokeAnchor(ctx, anchorAddress)
}
