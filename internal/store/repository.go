/**
 * @description
 * Persistence contract for the relay service: the payout journal that makes escrow
 * release re-runs safe, and the relay log that records every forwarded delegate.
 *
 * @dependencies
 * - internal/domain: payout and relay record models.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

var (
	ErrDuplicatePayout = errors.New("payout leg already journaled")
	ErrPayoutNotFound  = errors.New("no payouts journaled for consultation")
)

// Repository defines the set of methods for interacting with the journal.
type Repository interface {
	// Payout journal
	ListPayouts(ctx context.Context, consultationID string) ([]domain.Payout, error)
	RecordPayout(ctx context.Context, payout domain.Payout) error
	MarkReleaseAcknowledged(ctx context.Context, consultationID string, at time.Time) error

	// Relay log
	RecordRelay(ctx context.Context, record domain.RelayRecord) error
}

// PayoutsByLeg indexes a consultation's journal rows by leg.
func PayoutsByLeg(payouts []domain.Payout) map[domain.PayoutLeg]domain.Payout {
	byLeg := make(map[domain.PayoutLeg]domain.Payout, len(payouts))
	for _, p := range payouts {
		byLeg[p.Leg] = p
	}
	return byLeg
}
