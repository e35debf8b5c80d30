package anchor

import "context"

// Publisher is implemented by each commitment-substrate driver. A batch's
// 16-byte id and its 32-byte Merkle root are published together with the
// event count; the substrate returns an opaque transaction identifier and
// the block number (EVM) or slot (Solana-like) the publication landed in.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, batchID [16]byte, merkleRoot [32]byte, eventCount uint32) (txID string, blockOrSlot uint64, err error)
}
