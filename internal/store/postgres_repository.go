/**
 * @description
 * PostgreSQL implementation of the Repository interface. The schema is embedded and
 * applied idempotently at startup.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 */
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListPayouts(ctx context.Context, consultationID string) ([]domain.Payout, error) {
	query := `
		SELECT consultation_id, leg, receiver_id, amount::text, tx_hash, created_at, acknowledged_at
		FROM escrow_payouts
		WHERE consultation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		var p domain.Payout
		var leg string
		if err := rows.Scan(
			&p.ConsultationID,
			&leg,
			&p.ReceiverID,
			&p.Amount,
			&p.TxHash,
			&p.CreatedAt,
			&p.AcknowledgedAt,
		); err != nil {
			return nil, err
		}
		p.Leg = domain.PayoutLeg(leg)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *PostgresRepository) RecordPayout(ctx context.Context, payout domain.Payout) error {
	createdAt := payout.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `
		INSERT INTO escrow_payouts (consultation_id, leg, receiver_id, amount, tx_hash, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (consultation_id, leg) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		payout.ConsultationID,
		string(payout.Leg),
		payout.ReceiverID,
		payout.Amount,
		payout.TxHash,
		createdAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicatePayout
	}
	return nil
}

func (r *PostgresRepository) MarkReleaseAcknowledged(ctx context.Context, consultationID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE escrow_payouts SET acknowledged_at = $2 WHERE consultation_id = $1 AND acknowledged_at IS NULL`,
		consultationID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escrow_payouts WHERE consultation_id = $1)`, consultationID).Scan(&exists)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if !exists {
			return ErrPayoutNotFound
		}
	}
	return nil
}

func (r *PostgresRepository) RecordRelay(ctx context.Context, record domain.RelayRecord) error {
	query := `
		INSERT INTO relay_log (
			id, kind, sender_id, contract_id, destination, amount, memo, tx_hash, registration_tx_hash, created_at
		)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::numeric, NULLIF($7, ''), $8, NULLIF($9, ''), $10)
	`
	_, err := r.db.Exec(ctx, query,
		record.ID,
		string(record.Kind),
		record.SenderID,
		record.ContractID,
		record.Destination,
		record.Amount,
		record.Memo,
		record.TxHash,
		record.RegistrationTxHash,
		record.CreatedAt,
	)
	return err
}
