// Package solanalike implements the Solana-style commitment-substrate
// driver: it encodes and submits store_batch instructions against a
// pre-deployed anchor program.
package solanalike

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"

	"github.com/guardrail-systems/ledger/pkg/anchor"
)

var _ anchor.AdminPublisher = (*Adapter)(nil)

// discriminator computes the 8-byte Anchor-style instruction selector the
// same way the program itself derives it, from "global:<instruction_name>".
func discriminatorFor(instruction string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + instruction))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var discriminator = discriminatorFor("store_batch")

// storeBatchArgs is the Borsh-encoded instruction payload, laid out
// exactly as the program expects: merkle_root, batch_id, event_count.
type storeBatchArgs struct {
	MerkleRoot [32]byte
	BatchID    [16]byte
	EventCount uint32
}

// Adapter publishes batch commitments to a Solana-like anchor program.
type Adapter struct {
	client         *rpc.Client
	programID      solana.PublicKey
	statePDA       solana.PublicKey
	signer         solana.PrivateKey
	confirmTimeout time.Duration
}

// New connects to rpcURL and prepares an adapter that signs with
// signingKeyBase58 and submits instructions to programIDBase58.
func New(rpcURL, programIDBase58, signingKeyBase58 string, confirmTimeout time.Duration) (*Adapter, error) {
	programID, err := solana.PublicKeyFromBase58(programIDBase58)
	if err != nil {
		return nil, fmt.Errorf("solanalike: invalid program id: %w", err)
	}
	signer, err := solana.PrivateKeyFromBase58(signingKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("solanalike: invalid signing key: %w", err)
	}

	statePDA, _, err := solana.FindProgramAddress([][]byte{[]byte("global-state")}, programID)
	if err != nil {
		return nil, fmt.Errorf("solanalike: derive global state PDA: %w", err)
	}

	return &Adapter{
		client:         rpc.New(rpcURL),
		programID:      programID,
		statePDA:       statePDA,
		signer:         signer,
		confirmTimeout: confirmTimeout,
	}, nil
}

func (a *Adapter) Name() string { return "solana-like" }

// Publish encodes and submits a store_batch instruction, awaits
// confirmation, and returns the transaction signature and the slot it
// landed in.
func (a *Adapter) Publish(ctx context.Context, batchID [16]byte, merkleRoot [32]byte, eventCount uint32) (string, uint64, error) {
	payload, err := borsh.Serialize(storeBatchArgs{MerkleRoot: merkleRoot, BatchID: batchID, EventCount: eventCount})
	if err != nil {
		return "", 0, fmt.Errorf("solanalike: encode instruction data: %w", err)
	}

	data := append(append([]byte{}, discriminator[:]...), payload...)

	batchPDA, _, err := solana.FindProgramAddress([][]byte{[]byte("batch"), batchID[:]}, a.programID)
	if err != nil {
		return "", 0, fmt.Errorf("solanalike: derive batch PDA for %s: %w", batchIDBase58(batchID), err)
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: a.statePDA, IsWritable: true, IsSigner: false},
		{PublicKey: batchPDA, IsWritable: true, IsSigner: false},
		{PublicKey: a.signer.PublicKey(), IsWritable: true, IsSigner: true},
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
	}

	sig, slot, err := a.submitAndAwait(ctx, accounts, data)
	if err != nil {
		return "", 0, fmt.Errorf("solanalike: publish batch %s: %w", batchIDBase58(batchID), err)
	}
	return sig, slot, nil
}

// submitAndAwait builds, signs, sends and confirms a single instruction
// against the program, shared by Publish and the administrative methods
// below.
func (a *Adapter) submitAndAwait(ctx context.Context, accounts solana.AccountMetaSlice, data []byte) (string, uint64, error) {
	instruction := solana.NewInstruction(a.programID, accounts, data)

	confirmCtx, cancel := context.WithTimeout(ctx, a.confirmTimeout)
	defer cancel()

	recent, err := a.client.GetLatestBlockhash(confirmCtx, rpc.CommitmentFinalized)
	if err != nil {
		return "", 0, fmt.Errorf("fetch recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(a.signer.PublicKey()),
	)
	if err != nil {
		return "", 0, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.signer.PublicKey()) {
			return &a.signer
		}
		return nil
	}); err != nil {
		return "", 0, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := a.client.SendTransactionWithOpts(confirmCtx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return "", 0, fmt.Errorf("send transaction: %w", err)
	}

	slot, err := a.awaitConfirmation(confirmCtx, sig)
	if err != nil {
		return "", 0, fmt.Errorf("await confirmation: %w", err)
	}

	return sig.String(), slot, nil
}

// Pause calls the program's authority-gated pause instruction. Signer
// authority is not checked here before submitting; the program itself
// enforces it.
func (a *Adapter) Pause(ctx context.Context) error {
	d := discriminatorFor("pause")
	_, _, err := a.submitAndAwait(ctx, solana.AccountMetaSlice{
		{PublicKey: a.statePDA, IsWritable: true, IsSigner: false},
		{PublicKey: a.signer.PublicKey(), IsWritable: false, IsSigner: true},
	}, d[:])
	return err
}

func (a *Adapter) Unpause(ctx context.Context) error {
	d := discriminatorFor("unpause")
	_, _, err := a.submitAndAwait(ctx, solana.AccountMetaSlice{
		{PublicKey: a.statePDA, IsWritable: true, IsSigner: false},
		{PublicKey: a.signer.PublicKey(), IsWritable: false, IsSigner: true},
	}, d[:])
	return err
}

type anchorAuthorityArgs struct {
	Anchor solana.PublicKey
}

func (a *Adapter) AuthorizeAnchor(ctx context.Context, anchorAddress string) error {
	anchorKey, err := solana.PublicKeyFromBase58(anchorAddress)
	if err != nil {
		return fmt.Errorf("solanalike: invalid anchor address: %w", err)
	}
	d := discriminatorFor("authorize_anchor")
	payload, err := borsh.Serialize(anchorAuthorityArgs{Anchor: anchorKey})
	if err != nil {
		return fmt.Errorf("solanalike: encode authorize_anchor: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, solana.AccountMetaSlice{
		{PublicKey: a.statePDA, IsWritable: true, IsSigner: false},
		{PublicKey: a.signer.PublicKey(), IsWritable: false, IsSigner: true},
	}, append(append([]byte{}, d[:]...), payload...))
	return err
}

func (a *Adapter) RevokeAnchor(ctx context.Context, anchorAddress string) error {
	anchorKey, err := solana.PublicKeyFromBase58(anchorAddress)
	if err != nil {
		return fmt.Errorf("solanalike: invalid anchor address: %w", err)
	}
	d := discriminatorFor("revoke_anchor")
	payload, err := borsh.Serialize(anchorAuthorityArgs{Anchor: anchorKey})
	if err != nil {
		return fmt.Errorf("solanalike: encode revoke_anchor: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, solana.AccountMetaSlice{
		{PublicKey: a.statePDA, IsWritable: true, IsSigner: false},
		{PublicKey: a.signer.PublicKey(), IsWritable: false, IsSigner: true},
	}, append(append([]byte{}, d[:]...), payload...))
	return err
}

// awaitConfirmation polls GetSignatureStatuses with exponential backoff
// until the transaction finalizes, the program reports failure, or ctx
// (bounded by the adapter's confirmTimeout) expires.
func (a *Adapter) awaitConfirmation(ctx context.Context, sig solana.Signature) (uint64, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (uint64, error) {
		statuses, err := a.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return 0, err
		}
		if len(statuses.Value) != 1 || statuses.Value[0] == nil {
			return 0, fmt.Errorf("transaction %s not yet observed", sig)
		}

		status := statuses.Value[0]
		if status.Err != nil {
			return 0, backoff.Permanent(fmt.Errorf("transaction %s failed: %v", sig, status.Err))
		}
		if status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
			return 0, fmt.Errorf("transaction %s not yet finalized", sig)
		}
		return status.Slot, nil
	}, backoff.WithBackOff(bo))
}

// batchAccount mirrors the on-chain layout of a batch PDA: an 8-byte
// Anchor account discriminator followed by the Borsh-encoded fields.
type batchAccount struct {
	BatchID    [16]byte
	MerkleRoot [32]byte
	EventCount uint32
	Anchor     solana.PublicKey
	Timestamp  int64
}

// GetBatch reads back the batch PDA and returns the commitment the
// program recorded for batchID.
func (a *Adapter) GetBatch(ctx context.Context, batchID [16]byte) (merkleRoot [32]byte, eventCount uint32, timestamp uint64, err error) {
	batchPDA, _, err := solana.FindProgramAddress([][]byte{[]byte("batch"), batchID[:]}, a.programID)
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("solanalike: derive batch PDA for %s: %w", batchIDBase58(batchID), err)
	}

	info, err := a.client.GetAccountInfo(ctx, batchPDA)
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("solanalike: fetch batch account %s: %w", batchIDBase58(batchID), err)
	}
	raw := info.Value.Data.GetBinary()
	if len(raw) < 8 {
		return merkleRoot, 0, 0, fmt.Errorf("solanalike: batch account %s too short", batchIDBase58(batchID))
	}

	var account batchAccount
	if err := borsh.Deserialize(&account, raw[8:]); err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("solanalike: decode batch account %s: %w", batchIDBase58(batchID), err)
	}
	if account.BatchID != batchID {
		return merkleRoot, 0, 0, fmt.Errorf("solanalike: batch account %s id mismatch", batchIDBase58(batchID))
	}

	return account.MerkleRoot, account.EventCount, uint64(account.Timestamp), nil
}

// batchIDBase58 renders a batch id for logs/diagnostics the same way the
// program's account explorer would.
func batchIDBase58(batchID [16]byte) string {
	return base58.Encode(batchID[:])
}
