package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that DecisionStore implements outbound.DecisionStore
var _ outbound.DecisionStore = (*DecisionStore)(nil)

// DecisionStore persists arbitration decisions in PostgreSQL. One row per
// (oracle, attestation); replays of the same decision are absorbed by the
// primary key, since arbitration outcomes never change.
type DecisionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDecisionStore creates a new PostgreSQL decision store.
func NewDecisionStore(pool *pgxpool.Pool, logger *slog.Logger) (*DecisionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionStore{
		pool:   pool,
		logger: logger.With("component", "postgres-decision-store"),
	}, nil
}

// Migrate creates the decisions table if it does not exist.
func (s *DecisionStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS arbitration_decisions (
			oracle_address  TEXT        NOT NULL,
			attestation_uid TEXT        NOT NULL,
			ref_uid         TEXT        NOT NULL,
			decision        BOOLEAN     NOT NULL,
			tx_hash         TEXT,
			attested_at     BIGINT      NOT NULL,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (oracle_address, attestation_uid)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create decisions table: %w", err)
	}
	return nil
}

// RecordDecision stores one decision. Conflicts are ignored: a decision,
// once made, is immutable.
func (s *DecisionStore) RecordDecision(ctx context.Context, oracle common.Address, d *entity.Decision) error {
	var txHash *string
	if d.Submitted() {
		h := d.TxHash.Hex()
		txHash = &h
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO arbitration_decisions
			(oracle_address, attestation_uid, ref_uid, decision, tx_hash, attested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (oracle_address, attestation_uid) DO NOTHING
	`, oracle.Hex(), d.Attestation.UID.Hex(), d.Attestation.RefUID.Hex(), d.Decision, txHash, d.Attestation.Time)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListDecisions returns decisions made by the oracle, most recent first.
// A limit of 0 means no limit. The returned attestations carry only the
// fields the store persists.
func (s *DecisionStore) ListDecisions(ctx context.Context, oracle common.Address, limit int) ([]entity.Decision, error) {
	query := `
		SELECT attestation_uid, ref_uid, decision, tx_hash, attested_at
		FROM arbitration_decisions
		WHERE oracle_address = $1
		ORDER BY recorded_at DESC
	`
	args := []any{oracle.Hex()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []entity.Decision
	for rows.Next() {
		var (
			uid, refUID string
			decided     bool
			txHash      *string
			attestedAt  int64
		)
		if err := rows.Scan(&uid, &refUID, &decided, &txHash, &attestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		d := entity.Decision{
			Attestation: &entity.Attestation{
				UID:    common.HexToHash(uid),
				RefUID: common.HexToHash(refUID),
				Time:   uint64(attestedAt),
			},
			Decision: decided,
		}
		if txHash != nil {
			d.TxHash = common.HexToHash(*txHash)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision rows: %w", err)
	}
	return decisions, nil
}
