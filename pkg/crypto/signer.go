// Package crypto provides the Ed25519 signing primitives used to produce
// detached signatures over ledger export bundles.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer produces and verifies detached signatures over arbitrary byte
// payloads. The payload composition (which fields, in which order) is the
// caller's responsibility; the signer only signs bytes.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	PublicKeyBytes() []byte
	KeyID() string
}

// Verifier checks a detached signature against a public key.
type Verifier interface {
	Verify(data []byte, signatureHex string) (bool, error)
}

// Ed25519Signer signs with a held private key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519Signer generates a fresh key pair under the given key ID.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key, as loaded from the KMS.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string       { return hex.EncodeToString(s.pubKey) }
func (s *Ed25519Signer) PublicKeyBytes() []byte  { return s.pubKey }
func (s *Ed25519Signer) KeyID() string           { return s.keyID }
func (s *Ed25519Signer) Verify(data, sig []byte) bool { return ed25519.Verify(s.pubKey, data, sig) }

// Ed25519Verifier checks signatures against a known public key, independent
// of any held private key — used by export-bundle recipients.
type Ed25519Verifier struct {
	pubKey ed25519.PublicKey
}

// NewEd25519Verifier builds a verifier from a hex-encoded public key.
func NewEd25519Verifier(pubKeyHex string) (*Ed25519Verifier, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key size %d", len(raw))
	}
	return &Ed25519Verifier{pubKey: ed25519.PublicKey(raw)}, nil
}

func (v *Ed25519Verifier) Verify(data []byte, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	return ed25519.Verify(v.pubKey, data, sig), nil
}
