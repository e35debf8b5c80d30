package eventstore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardrail-systems/ledger/pkg/canonicalize"
)

// computeEventHash hashes, in order: the little-endian 8-byte sequence
// number, the event_type tag, the actor_id as 16 raw bytes, the canonical
// JSON form of the payload, the previous_hash as ASCII hex text, and the
// created_at timestamp as RFC3339 text. Any change to an earlier field
// changes every hash after it, which is what makes the chain tamper-evident.
func computeEventHash(e *Event) (string, error) {
	actorBytes, err := actorIDBytes(e.ActorID)
	if err != nil {
		return "", err
	}

	canonicalPayload, err := canonicalize.JCS(e.Payload)
	if err != nil {
		return "", fmt.Errorf("eventstore: canonicalize payload: %w", err)
	}

	h := sha256.New()

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], e.Sequence)
	h.Write(seqBuf[:])

	h.Write([]byte(e.EventType))
	h.Write(actorBytes)
	h.Write(canonicalPayload)
	h.Write([]byte(e.PreviousHash))
	h.Write([]byte(e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// actorIDBytes parses actor_id as a UUID and returns its 16 raw bytes.
func actorIDBytes(actorID string) ([]byte, error) {
	id, err := uuid.Parse(actorID)
	if err != nil {
		return nil, ErrInvalidActorID
	}
	b := id
	return b[:], nil
}
