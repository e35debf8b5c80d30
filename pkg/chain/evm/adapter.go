// Package evm implements the EVM commitment-substrate driver: it encodes
// and submits storeBatch(bytes32,bytes32,uint32) calls against a
// pre-deployed anchor contract.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/guardrail-systems/ledger/pkg/anchor"
)

var _ anchor.AdminPublisher = (*Adapter)(nil)

// storeBatchABI describes the single method this adapter calls. Declaring
// it inline keeps the adapter self-contained — no generated contract
// bindings to keep in sync with a deployed address.
const storeBatchABI = `[{
	"name": "storeBatch",
	"type": "function",
	"inputs": [
		{"name": "merkleRoot", "type": "bytes32"},
		{"name": "batchId", "type": "bytes32"},
		{"name": "eventCount", "type": "uint32"}
	]
}]`

// adminABI describes the contract's authority-gated administrative
// methods, mirroring the Solana-like program's pause/unpause/authorize
// anchor surface.
const adminABI = `[
	{"name": "pause", "type": "function", "inputs": []},
	{"name": "unpause", "type": "function", "inputs": []},
	{"name": "authorizeAnchor", "type": "function", "inputs": [{"name": "anchor", "type": "address"}]},
	{"name": "revokeAnchor", "type": "function", "inputs": [{"name": "anchor", "type": "address"}]}
]`

// Adapter publishes batch commitments to an EVM anchor contract.
type Adapter struct {
	client          *ethclient.Client
	contractAddress common.Address
	privateKey      *ecdsa.PrivateKey
	fromAddress     common.Address
	chainID         *big.Int
	storeBatch      abi.ABI
	admin           abi.ABI
	confirmTimeout  time.Duration
}

// New dials rpcURL and prepares an adapter that signs with privateKeyHex
// (no "0x" prefix) and calls the contract at contractAddress.
func New(ctx context.Context, rpcURL, contractAddress, privateKeyHex string, confirmTimeout time.Duration) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: invalid signing key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("evm: signing key has no usable public key")
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: fetch chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(storeBatchABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse ABI: %w", err)
	}
	adminParsed, err := abi.JSON(strings.NewReader(adminABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse admin ABI: %w", err)
	}

	return &Adapter{
		client:          client,
		contractAddress: common.HexToAddress(contractAddress),
		privateKey:      privateKey,
		fromAddress:     crypto.PubkeyToAddress(*publicKey),
		chainID:         chainID,
		storeBatch:      parsed,
		admin:           adminParsed,
		confirmTimeout:  confirmTimeout,
	}, nil
}

func (a *Adapter) Name() string { return "evm" }

// Publish encodes and submits storeBatch, waits for inclusion, and returns
// the transaction hash and block number. The 16-byte batch id is
// left-padded into the bytes32 argument.
func (a *Adapter) Publish(ctx context.Context, batchID [16]byte, merkleRoot [32]byte, eventCount uint32) (string, uint64, error) {
	var paddedBatchID [32]byte
	copy(paddedBatchID[16:], batchID[:])

	data, err := a.storeBatch.Pack("storeBatch", merkleRoot, paddedBatchID, eventCount)
	if err != nil {
		return "", 0, fmt.Errorf("evm: encode storeBatch: %w", err)
	}

	return a.submitAndAwait(ctx, data)
}

// submitAndAwait signs, sends and confirms a call to the anchor contract,
// shared by Publish and the administrative methods below. Everything up to
// and including the broadcast is retried with backoff, since a transient
// RPC failure there (nonce/gas-price lookup, a dropped send) is safe to
// retry; once SendTransaction succeeds the transaction is live on-chain, so
// waitMined's confirmation wait stays outside the retry loop to avoid
// submitting a second, competing transaction for the same nonce.
func (a *Adapter) submitAndAwait(ctx context.Context, data []byte) (string, uint64, error) {
	signedTx, err := backoff.Retry(ctx, func() (*types.Transaction, error) {
		nonce, err := a.client.PendingNonceAt(ctx, a.fromAddress)
		if err != nil {
			return nil, fmt.Errorf("evm: fetch nonce: %w", err)
		}
		gasPrice, err := a.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("evm: suggest gas price: %w", err)
		}

		gasLimit, err := a.client.EstimateGas(ctx, ethereumCallMsg(a.fromAddress, a.contractAddress, data))
		if err != nil {
			return nil, fmt.Errorf("evm: estimate gas: %w", err)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &a.contractAddress,
			Value:    big.NewInt(0),
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})

		signed, err := types.SignTx(tx, types.NewEIP155Signer(a.chainID), a.privateKey)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("evm: sign transaction: %w", err))
		}

		if err := a.client.SendTransaction(ctx, signed); err != nil {
			return nil, fmt.Errorf("evm: send transaction: %w", err)
		}

		return signed, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return "", 0, err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, a.confirmTimeout)
	defer cancel()

	receipt, err := waitMined(confirmCtx, a.client, signedTx.Hash())
	if err != nil {
		return "", 0, fmt.Errorf("evm: await confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", 0, fmt.Errorf("evm: transaction %s reverted", signedTx.Hash().Hex())
	}

	return signedTx.Hash().Hex(), receipt.BlockNumber.Uint64(), nil
}

// Pause calls the contract's authority-gated pause(). Signer authority is
// not checked here before submitting; the contract itself enforces it, and
// a rejected call surfaces as a reverted-transaction error.
func (a *Adapter) Pause(ctx context.Context) error {
	data, err := a.admin.Pack("pause")
	if err != nil {
		return fmt.Errorf("evm: encode pause: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, data)
	return err
}

func (a *Adapter) Unpause(ctx context.Context) error {
	data, err := a.admin.Pack("unpause")
	if err != nil {
		return fmt.Errorf("evm: encode unpause: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, data)
	return err
}

func (a *Adapter) AuthorizeAnchor(ctx context.Context, anchorAddress string) error {
	data, err := a.admin.Pack("authorizeAnchor", common.HexToAddress(anchorAddress))
	if err != nil {
		return fmt.Errorf("evm: encode authorizeAnchor: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, data)
	return err
}

func (a *Adapter) RevokeAnchor(ctx context.Context, anchorAddress string) error {
	data, err := a.admin.Pack("revokeAnchor", common.HexToAddress(anchorAddress))
	if err != nil {
		return fmt.Errorf("evm: encode revokeAnchor: %w", err)
	}
	_, _, err = a.submitAndAwait(ctx, data)
	return err
}

// GetBatch calls the contract's read view getBatch(bytes32) and returns
// the stored commitment.
func (a *Adapter) GetBatch(ctx context.Context, batchID [16]byte) (merkleRoot [32]byte, eventCount uint32, timestamp uint64, err error) {
	var paddedBatchID [32]byte
	copy(paddedBatchID[16:], batchID[:])

	getBatchABI, err := abi.JSON(strings.NewReader(`[{
		"name": "getBatch",
		"type": "function",
		"constant": true,
		"inputs": [{"name": "batchId", "type": "bytes32"}],
		"outputs": [
			{"name": "merkleRoot", "type": "bytes32"},
			{"name": "eventCount", "type": "uint32"},
			{"name": "timestamp", "type": "uint256"}
		]
	}]`))
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("evm: parse getBatch ABI: %w", err)
	}

	data, err := getBatchABI.Pack("getBatch", paddedBatchID)
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("evm: encode getBatch: %w", err)
	}

	result, err := a.client.CallContract(ctx, ethereumCallMsg(a.fromAddress, a.contractAddress, data), nil)
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("evm: call getBatch: %w", err)
	}

	out, err := getBatchABI.Unpack("getBatch", result)
	if err != nil {
		return merkleRoot, 0, 0, fmt.Errorf("evm: decode getBatch result: %w", err)
	}
	if len(out) != 3 {
		return merkleRoot, 0, 0, fmt.Errorf("evm: unexpected getBatch result shape")
	}
	root, _ := out[0].([32]byte)
	count, _ := out[1].(uint32)
	ts, _ := out[2].(*big.Int)
	if ts == nil {
		ts = big.NewInt(0)
	}
	return root, count, ts.Uint64(), nil
}
