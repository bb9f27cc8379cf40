// Package main runs a one-shot arbitration backfill: it fetches every past
// arbitration request addressed to the configured oracle, decides each one,
// submits on-chain arbitrations for approvals, and exits.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/eas"
	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/postgres"
	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/redis"
	"github.com/escrow-research/oracle-engine/internal/codec"
	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/pkg/env"
	"github.com/escrow-research/oracle-engine/internal/pkg/hexutil"
	"github.com/escrow-research/oracle-engine/internal/services/oracle"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	easAddr, err := hexutil.ParseAddress(env.Get("EAS_ADDRESS", ""))
	if err != nil {
		logger.Error("invalid EAS_ADDRESS", "error", err)
		os.Exit(1)
	}
	arbiterAddr, err := hexutil.ParseAddress(env.Get("ARBITER_ADDRESS", ""))
	if err != nil {
		logger.Error("invalid ARBITER_ADDRESS", "error", err)
		os.Exit(1)
	}

	clientCfg := eas.Config{
		HTTPURL:    env.Get("RPC_URL", "http://localhost:8545"),
		EAS:        easAddr,
		Arbiter:    arbiterAddr,
		PrivateKey: env.Get("ORACLE_PRIVATE_KEY", ""),
		Logger:     logger,
	}
	if raw := env.Get("START_BLOCK", ""); raw != "" {
		start, err := hexutil.ParseUint64(raw)
		if err != nil {
			logger.Error("invalid START_BLOCK", "error", err)
			os.Exit(1)
		}
		clientCfg.StartBlock = start
	}

	client, err := eas.NewClient(clientCfg)
	if err != nil {
		logger.Error("failed to create ledger client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	cdc, err := codec.New()
	if err != nil {
		logger.Error("failed to build codec", "error", err)
		os.Exit(1)
	}

	config := oracle.ConfigDefaults()
	config.Oracle = client.Signer()
	config.EAS = easAddr
	config.TrustedOracleArbiter = arbiterAddr
	config.Logger = logger

	if dbURL := env.Get("DATABASE_URL", ""); dbURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(dbURL))
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store, err := postgres.NewDecisionStore(pool, logger)
		if err != nil {
			logger.Error("failed to create decision store", "error", err)
			os.Exit(1)
		}
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate decisions table", "error", err)
			os.Exit(1)
		}
		config.Store = store
	}

	if redisAddr := env.Get("REDIS_ADDR", ""); redisAddr != "" {
		cacheCfg := redis.ConfigDefaults()
		cacheCfg.Addr = redisAddr
		cacheCfg.Password = env.Get("REDIS_PASSWORD", "")
		cache, err := redis.NewStatusCache(cacheCfg, logger)
		if err != nil {
			logger.Error("failed to create status cache", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		config.StatusCache = cache
	}

	engine, err := oracle.NewEngine(config, client, client, cdc)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	match := env.Get("OBLIGATION_MATCH", "good")
	decide := oracle.ArbitrateFunc(func(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
		obligation, err := engine.ExtractObligationData(att)
		if err != nil {
			return entity.VerdictAbstain, err
		}
		if strings.Contains(obligation, match) {
			return entity.VerdictApprove, nil
		}
		return entity.VerdictReject, nil
	})

	opts := entity.ArbitrateOptions{
		SkipArbitrated: env.GetBool("SKIP_ARBITRATED", true),
	}
	if raw := env.Get("ESCROW_UID", ""); raw != "" {
		uid, err := hexutil.ParseUID(raw)
		if err != nil {
			logger.Error("invalid ESCROW_UID", "error", err)
			os.Exit(1)
		}
		opts.EscrowUID = uid
	}

	logger.Info("starting arbitration backfill",
		"oracle", config.Oracle.Hex(),
		"arbiter", arbiterAddr.Hex(),
		"skipArbitrated", opts.SkipArbitrated,
	)

	decisions, err := engine.ArbitratePast(ctx, decide, opts)
	if err != nil {
		logger.Error("backfill failed", "error", err, "decisions", len(decisions))
		os.Exit(1)
	}

	for _, d := range decisions {
		logger.Info("decision made",
			"uid", d.Attestation.UID.Hex(),
			"decision", d.Decision,
			"tx", d.TxHash.Hex(),
		)
	}
	logger.Info("backfill complete", "decisions", len(decisions))
}
