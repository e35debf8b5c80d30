package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardrail-systems/ledger/pkg/apperr"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/merkle"
)

// ExportBundle is a signed, self-contained snapshot of a contiguous range
// of the ledger. A recipient with the signer's public key can verify both
// that the events are unmodified (by recomputing MerkleRoot) and that the
// bundle was produced by this service (by checking Signature).
type ExportBundle struct {
	ExportID   string             `json:"export_id"`
	StartSeq   uint64             `json:"start_seq"`
	EndSeq     uint64             `json:"end_seq"`
	MerkleRoot string             `json:"merkle_root"`
	Events     []*eventstore.Event `json:"events"`
	SignerKeyID string            `json:"signer_key_id"`
	Signature  string             `json:"signature"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Export builds a signed bundle of every event in [start, end]. The
// signature covers export_id || merkle_root || start_seq || end_seq, in
// that order, so a recipient can verify provenance without re-signing the
// full event payload set.
func (s *Service) Export(ctx context.Context, start, end uint64) (*ExportBundle, error) {
	if s.signer == nil {
		return nil, apperr.Internal(fmt.Errorf("ledger: export requested but no signer configured"))
	}
	if end < start {
		return nil, apperr.InvalidInput("end_seq must not precede start_seq")
	}

	events, err := s.store.Range(ctx, start, end)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(events) == 0 {
		return nil, apperr.NotFound("no events in range")
	}

	leaves := make([]string, len(events))
	for i, e := range events {
		leaves[i] = e.EventHash
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	exportID := uuid.New().String()
	sig, err := s.signer.Sign(signingPayload(exportID, root, start, end))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("ledger: sign export bundle: %w", err))
	}

	return &ExportBundle{
		ExportID:    exportID,
		StartSeq:    start,
		EndSeq:      end,
		MerkleRoot:  root,
		Events:      events,
		SignerKeyID: s.signer.KeyID(),
		Signature:   sig,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func signingPayload(exportID, merkleRoot string, start, end uint64) []byte {
	buf := []byte(exportID)
	buf = append(buf, []byte(merkleRoot)...)
	var seqBuf [16]byte
	binary.LittleEndian.PutUint64(seqBuf[0:8], start)
	binary.LittleEndian.PutUint64(seqBuf[8:16], end)
	return append(buf, seqBuf[:]...)
}
