package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

func TestMemoryRepositoryRejectsDuplicateLeg(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	payout := domain.Payout{ConsultationID: "c1", Leg: domain.LegSpecialist, ReceiverID: "dr.near", Amount: "85", TxHash: "h1"}
	if err := repo.RecordPayout(ctx, payout); err != nil {
		t.Fatalf("RecordPayout returned error: %v", err)
	}
	payout.TxHash = "h2"
	if err := repo.RecordPayout(ctx, payout); !errors.Is(err, ErrDuplicatePayout) {
		t.Fatalf("expected ErrDuplicatePayout, got %v", err)
	}

	payouts, err := repo.ListPayouts(ctx, "c1")
	if err != nil {
		t.Fatalf("ListPayouts returned error: %v", err)
	}
	if len(payouts) != 1 || payouts[0].TxHash != "h1" {
		t.Fatalf("expected the first journal row to survive, got %+v", payouts)
	}
}

func TestMemoryRepositoryAcknowledge(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.MarkReleaseAcknowledged(ctx, "missing", at); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}

	for _, leg := range []domain.PayoutLeg{domain.LegSpecialist, domain.LegPlatform} {
		if err := repo.RecordPayout(ctx, domain.Payout{ConsultationID: "c1", Leg: leg, TxHash: string(leg)}); err != nil {
			t.Fatalf("RecordPayout returned error: %v", err)
		}
	}
	if err := repo.MarkReleaseAcknowledged(ctx, "c1", at); err != nil {
		t.Fatalf("MarkReleaseAcknowledged returned error: %v", err)
	}

	byLeg := PayoutsByLeg(mustList(t, repo, "c1"))
	for _, leg := range []domain.PayoutLeg{domain.LegSpecialist, domain.LegPlatform} {
		p, ok := byLeg[leg]
		if !ok || p.AcknowledgedAt == nil || !p.AcknowledgedAt.Equal(at) {
			t.Fatalf("expected %s leg to be acknowledged at %s, got %+v", leg, at, p)
		}
	}
}

func TestMemoryRepositoryRecordsRelays(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.RecordRelay(context.Background(), domain.RelayRecord{ID: "r1", Kind: domain.RelayDeposit}); err != nil {
		t.Fatalf("RecordRelay returned error: %v", err)
	}
	relays := repo.Relays()
	if len(relays) != 1 || relays[0].ID != "r1" {
		t.Fatalf("unexpected relay log %+v", relays)
	}
}

func mustList(t *testing.T, repo Repository, id string) []domain.Payout {
	t.Helper()
	payouts, err := repo.ListPayouts(context.Background(), id)
	if err != nil {
		t.Fatalf("ListPayouts returned error: %v", err)
	}
	return payouts
}
