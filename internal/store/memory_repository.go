package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

// MemoryRepository keeps the journal for the lifetime of the process. It is used
// when DATABASE_URL is unset and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	payouts map[string]map[domain.PayoutLeg]domain.Payout
	relays  []domain.RelayRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payouts: make(map[string]map[domain.PayoutLeg]domain.Payout)}
}

func (m *MemoryRepository) ListPayouts(_ context.Context, consultationID string) ([]domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	legs := m.payouts[consultationID]
	out := make([]domain.Payout, 0, len(legs))
	for _, p := range legs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) RecordPayout(_ context.Context, payout domain.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	legs, ok := m.payouts[payout.ConsultationID]
	if !ok {
		legs = make(map[domain.PayoutLeg]domain.Payout)
		m.payouts[payout.ConsultationID] = legs
	}
	if _, exists := legs[payout.Leg]; exists {
		return ErrDuplicatePayout
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now().UTC()
	}
	legs[payout.Leg] = payout
	return nil
}

func (m *MemoryRepository) MarkReleaseAcknowledged(_ context.Context, consultationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	legs, ok := m.payouts[consultationID]
	if !ok || len(legs) == 0 {
		return ErrPayoutNotFound
	}
	for leg, p := range legs {
		if p.AcknowledgedAt == nil {
			ack := at
			p.AcknowledgedAt = &ack
			legs[leg] = p
		}
	}
	return nil
}

func (m *MemoryRepository) RecordRelay(_ context.Context, record domain.RelayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, record)
	return nil
}

// Relays returns a copy of the relay log.
func (m *MemoryRepository) Relays() []domain.RelayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RelayRecord(nil), m.relays...)
}
