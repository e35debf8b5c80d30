package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/guardrail-systems/ledger/pkg/crypto"
	"github.com/guardrail-systems/ledger/pkg/kms"
)

const exportSignerPurpose = "export-signer"

// loadOrGenerateSigner loads the export-signing key from disk, sealed at
// rest under a purpose-scoped KMS subkey, generating and persisting one on
// first run.
func loadOrGenerateSigner(keyManager *kms.LocalKMS, keyID, sealedKeyPath string) (crypto.Signer, error) {
	if data, err := os.ReadFile(sealedKeyPath); err == nil {
		seedHex, err := keyManager.Unseal(exportSignerPurpose, string(data))
		if err != nil {
			return nil, fmt.Errorf("unseal export signing key: %w", err)
		}
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid export signing key encoding: %w", err)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		log.Printf("[ledger] export signer: loaded sealed key v%d", keyManager.ActiveVersion())
		return crypto.NewEd25519SignerFromKey(priv, keyID), nil
	}

	log.Printf("[ledger] export signer: generating new key, sealing to %s", sealedKeyPath)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate export signing key: %w", err)
	}

	sealed, err := keyManager.Seal(exportSignerPurpose, hex.EncodeToString(priv.Seed()))
	if err != nil {
		return nil, fmt.Errorf("seal export signing key: %w", err)
	}
	if err := os.WriteFile(sealedKeyPath, []byte(sealed), 0600); err != nil {
		return nil, fmt.Errorf("persist sealed export signing key: %w", err)
	}

	log.Printf("[ledger] export signer public key: %s", hex.EncodeToString(pub))
	return crypto.NewEd25519SignerFromKey(priv, keyID), nil
}

// loadOrSealSubstrateKey unseals a previously-persisted substrate signing
// key from sealedKeyPath, or — on first run — seals rawKey (sourced from
// configuration) to that path under its own purpose so it never shares a
// derived subkey with the export signer or the other substrate. Returns ""
// if neither a sealed file nor a configured raw key exists, leaving the
// substrate disabled.
func loadOrSealSubstrateKey(keyManager *kms.LocalKMS, purpose, rawKey, sealedKeyPath string) (string, error) {
	if data, err := os.ReadFile(sealedKeyPath); err == nil {
		key, err := keyManager.Unseal(purpose, string(data))
		if err != nil {
			return "", fmt.Errorf("unseal %s signing key: %w", purpose, err)
		}
		return key, nil
	}

	if rawKey == "" {
		return "", nil
	}

	sealed, err := keyManager.Seal(purpose, rawKey)
	if err != nil {
		return "", fmt.Errorf("seal %s signing key: %w", purpose, err)
	}
	if err := os.WriteFile(sealedKeyPath, []byte(sealed), 0600); err != nil {
		return "", fmt.Errorf("persist sealed %s signing key: %w", purpose, err)
	}
	log.Printf("[ledger] %s signing key: sealed to %s", purpose, sealedKeyPath)
	return rawKey, nil
}
