package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guardrail-systems/ledger/pkg/anchor"
	"github.com/guardrail-systems/ledger/pkg/chain/evm"
	"github.com/guardrail-systems/ledger/pkg/chain/solanalike"
	"github.com/guardrail-systems/ledger/pkg/config"
	"github.com/guardrail-systems/ledger/pkg/eventstore"
	"github.com/guardrail-systems/ledger/pkg/kms"
	"github.com/guardrail-systems/ledger/pkg/ledger"
	"github.com/guardrail-systems/ledger/pkg/policy"
)

// Services holds every subsystem the server needs, wired in dependency
// order so each constructor can assume everything before it is ready.
type Services struct {
	Events    eventstore.Store
	Ledger    *ledger.Service
	Batcher   *anchor.Batcher
	Evaluator *policy.Evaluator
	Policies  policy.Store
	Decisions *policy.DecisionService

	sqlDB        *sql.DB
	stopSchedule func()
}

// Close stops the anchor scheduler and releases the raw database
// connection opened for the policy and anchor SQL stores, if one was
// opened. The event store manages its own connection and closes
// independently.
func (s *Services) Close() error {
	if s.stopSchedule != nil {
		s.stopSchedule()
	}
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// NewServices wires the full dependency graph: event store, signer, ledger,
// substrate publishers, anchor batcher, and policy evaluation, logging
// progress for each subsystem as it comes online.
func NewServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	events, err := openEventStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}
	logger.Info("subsystem ready", "component", "event-store", "backend", storeBackend(cfg.DatabaseURL))

	keyManager, err := kms.NewLocalKMS(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("key manager: %w", err)
	}
	logger.Info("subsystem ready", "component", "kms", "active_version", keyManager.ActiveVersion())

	signer, err := loadOrGenerateSigner(keyManager, cfg.ExportSigningKeyID, "data/export-signer.sealed")
	if err != nil {
		return nil, fmt.Errorf("export signer: %w", err)
	}
	logger.Info("subsystem ready", "component", "export-signer", "key_id", cfg.ExportSigningKeyID)

	ledgerSvc := ledger.New(events, signer)

	publishers, sqlDB, err := buildPublishersAndSQLDB(ctx, cfg, logger, keyManager)
	if err != nil {
		return nil, fmt.Errorf("substrate publishers: %w", err)
	}

	var batches anchor.Store
	if sqlDB != nil {
		batches, err = anchor.NewSQLBatchStore(sqlDB, string(dialectFor(cfg.DatabaseURL)))
		if err != nil {
			return nil, fmt.Errorf("anchor batch store: %w", err)
		}
		logger.Info("subsystem ready", "component", "anchor-store", "backend", "sql")
	} else {
		batches = anchor.NewMemoryBatchStore()
		logger.Info("subsystem ready", "component", "anchor-store", "backend", "memory")
	}

	batcher := anchor.New(events, batches, publishers, cfg.BatchSize, logger)
	ledgerSvc.SetBatchRangeLookup(batcher.BatchRangeLookup())
	logger.Info("subsystem ready", "component", "anchor-batcher", "batch_size", cfg.BatchSize, "substrates", len(publishers))

	evaluator, err := policy.NewEvaluator(logger)
	if err != nil {
		return nil, fmt.Errorf("policy evaluator: %w", err)
	}

	var policies policy.Store
	if sqlDB != nil {
		policies, err = policy.NewSQLStore(sqlDB, string(dialectFor(cfg.DatabaseURL)))
		if err != nil {
			return nil, fmt.Errorf("policy store: %w", err)
		}
		logger.Info("subsystem ready", "component", "policy-store", "backend", "sql")
	} else {
		policies = policy.NewMemoryStore()
		logger.Info("subsystem ready", "component", "policy-store", "backend", "memory")
	}

	active, err := policies.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}
	loaded := make([]policy.Policy, len(active))
	for i, p := range active {
		loaded[i] = *p
	}
	if err := evaluator.Load(ctx, loaded); err != nil {
		return nil, fmt.Errorf("load policy bundle: %w", err)
	}
	logger.Info("subsystem ready", "component", "policy-evaluator", "active_policies", len(loaded))

	decisions := policy.NewDecisionService(evaluator, events, func() (string, int) {
		return latestActivePolicyRef(ctx, policies)
	})

	stop, err := batcher.StartScheduler(ctx, cfg.AnchorCronSpec)
	if err != nil {
		return nil, fmt.Errorf("anchor scheduler: %w", err)
	}
	logger.Info("subsystem ready", "component", "anchor-scheduler", "cron", cfg.AnchorCronSpec)

	return &Services{
		Events:       events,
		Ledger:       ledgerSvc,
		Batcher:      batcher,
		Evaluator:    evaluator,
		Policies:     policies,
		Decisions:    decisions,
		sqlDB:        sqlDB,
		stopSchedule: stop,
	}, nil
}

func openEventStore(cfg *config.Config) (eventstore.Store, error) {
	return eventstore.Open(cfg.DatabaseURL)
}

func storeBackend(dsn string) string {
	return string(dialectFor(dsn))
}

func dialectFor(dsn string) eventstore.Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return eventstore.DialectPostgres
	}
	return eventstore.DialectSQLite
}

// buildPublishersAndSQLDB opens a second, independent database connection
// for the SQL-backed anchor and policy stores (the event store keeps its
// own connection private) and constructs a substrate publisher for every
// chain enabled in configuration. A bare SQLite DSN of "" or a DATABASE_URL
// pointing at a local file both count as non-durable for this purpose; only
// an explicit postgres DSN gets a second pooled connection, matching the
// event store's own backend choice. Each substrate's signing key is sealed
// at rest under its own KMS purpose, the same way the export signer is.
func buildPublishersAndSQLDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, keyManager *kms.LocalKMS) ([]anchor.Publisher, *sql.DB, error) {
	var sqlDB *sql.DB
	if dialectFor(cfg.DatabaseURL) == eventstore.DialectPostgres {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		sqlDB = db
	}

	var publishers []anchor.Publisher

	if cfg.EVMEnabled {
		signingKey, err := loadOrSealSubstrateKey(keyManager, "evm-signing-key", cfg.EVMSigningKey, "data/evm-signer.sealed")
		if err != nil {
			return nil, nil, fmt.Errorf("evm signing key: %w", err)
		}
		adapter, err := evm.New(ctx, cfg.EVMRPCURL, cfg.EVMContractAddr, signingKey, cfg.SubstrateTimeout)
		if err != nil {
			logger.Warn("evm substrate unavailable, continuing without it", "error", err)
		} else {
			publishers = append(publishers, adapter)
			logger.Info("subsystem ready", "component", "substrate", "chain", "evm", "rpc", cfg.EVMRPCURL)
		}
	}

	if cfg.SolanaEnabled {
		signingKey, err := loadOrSealSubstrateKey(keyManager, "solana-signing-key", cfg.SolanaSigningKey, "data/solana-signer.sealed")
		if err != nil {
			return nil, nil, fmt.Errorf("solana signing key: %w", err)
		}
		adapter, err := solanalike.New(cfg.SolanaRPCURL, cfg.SolanaProgramID, signingKey, cfg.SubstrateTimeout)
		if err != nil {
			logger.Warn("solana substrate unavailable, continuing without it", "error", err)
		} else {
			publishers = append(publishers, adapter)
			logger.Info("subsystem ready", "component", "substrate", "chain", "solana-like", "rpc", cfg.SolanaRPCURL)
		}
	}

	return publishers, sqlDB, nil
}

// latestActivePolicyRef reports the highest-version active policy, which
// recorded decisions are cross-referenced against. Evaluation itself
// already runs against the full active bundle; this just picks the record
// to stamp on each DecisionRecord.
func latestActivePolicyRef(ctx context.Context, policies policy.Store) (string, int) {
	active, err := policies.Active(ctx)
	if err != nil || len(active) == 0 {
		return "", 0
	}
	latest := active[0]
	for _, p := range active[1:] {
		if p.Version > latest.Version {
			latest = p
		}
	}
	return latest.ID, latest.Version
}
