// Package main runs the live arbitration listener: it subscribes to
// arbitration requests addressed to the configured oracle, decides each
// one, and submits on-chain arbitrations for approvals until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/eas"
	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/postgres"
	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/redis"
	"github.com/escrow-research/oracle-engine/internal/adapters/outbound/sns"
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
		HTTPURL:      env.Get("RPC_URL", "http://localhost:8545"),
		WebSocketURL: env.Get("WS_URL", "ws://localhost:8545"),
		EAS:          easAddr,
		Arbiter:      arbiterAddr,
		PrivateKey:   env.Get("ORACLE_PRIVATE_KEY", ""),
		Logger:       logger,
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

	// Optional durable decision store.
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
		logger.Info("PostgreSQL connected, decision recording enabled")
	}

	// Optional arbitration status cache.
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
		if err := cache.Ping(ctx); err != nil {
			logger.Error("failed to ping Redis", "error", err)
			os.Exit(1)
		}
		config.StatusCache = cache
		logger.Info("Redis connected, status caching enabled")
	}

	// Optional decision notifications.
	if topicARN := env.Get("SNS_TOPIC_ARN", ""); topicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sinkCfg := sns.ConfigDefaults()
		sinkCfg.TopicARN = topicARN
		sinkCfg.Oracle = config.Oracle
		sinkCfg.Logger = logger
		sink, err := sns.NewDecisionSink(awssns.NewFromConfig(awsCfg), sinkCfg)
		if err != nil {
			logger.Error("failed to create decision sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		config.Sink = sink
		logger.Info("SNS connected, decision notifications enabled")
	}

	engine, err := oracle.NewEngine(config, client, client, cdc)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	decide := decisionFunc(engine, env.Get("OBLIGATION_MATCH", "good"))
	opts := entity.ArbitrateOptions{
		SkipArbitrated: env.GetBool("SKIP_ARBITRATED", true),
		OnlyNew:        env.GetBool("ONLY_NEW", false),
	}
	timeout := env.GetDuration("LISTEN_TIMEOUT", 0)

	logger.Info("listening for arbitration requests",
		"oracle", config.Oracle.Hex(),
		"arbiter", arbiterAddr.Hex(),
		"skipArbitrated", opts.SkipArbitrated,
		"onlyNew", opts.OnlyNew,
	)

	notify := func(d *entity.Decision) {
		logger.Info("decision made",
			"uid", d.Attestation.UID.Hex(),
			"decision", d.Decision,
			"tx", d.TxHash.Hex(),
		)
	}

	result, err := engine.ListenAndArbitrate(ctx, decide, notify, opts, timeout)
	if err != nil && ctx.Err() == nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
	decisions := 0
	if result != nil {
		decisions = len(result.Decisions)
	}
	logger.Info("shutdown complete", "decisions", decisions)
}

// decisionFunc approves fulfillments whose obligation contains the match
// string. Undecodable payloads are left undecided.
func decisionFunc(engine *oracle.Engine, match string) oracle.ArbitrateFunc {
	return func(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
		obligation, err := engine.ExtractObligationData(att)
		if err != nil {
			return entity.VerdictAbstain, err
		}
		if strings.Contains(obligation, match) {
			return entity.VerdictApprove, nil
		}
		return entity.VerdictReject, nil
	}
}
