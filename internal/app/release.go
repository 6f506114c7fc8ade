/**
 * @description
 * Escrow release run. Pays out every consultation whose holdback has elapsed: the
 * specialist share and the platform share are two independent escrow transfers,
 * then the record store is told the consultation is released.
 *
 * Items are processed sequentially and one item's failure never aborts the batch.
 * Every transfer is journaled before the next step, so a re-run after a partial
 * settlement only performs the legs (or the write-back) that are still missing.
 * A transfer whose journal write fails is held in memory and counted as paid until
 * the row is written, and the run still proceeds to the write-back.
 *
 * @dependencies
 * - internal/escrow: split calculation.
 * - internal/store: payout journal.
 * - pkg/rabbitmq: release events.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/escrow"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/metrics"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/store"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/rabbitmq"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/tokenclient"
)

// ReleaseConfig is the immutable configuration of the release run.
type ReleaseConfig struct {
	Enabled                bool
	TokenContractID        string
	PlatformFeeAccountID   string
	SpecialistSharePercent int
	EventsExchange         string
}

// ReleaseService settles escrowed consultations.
type ReleaseService struct {
	ledger   EscrowLedger
	records  RecordStore
	repo     store.Repository
	producer rabbitmq.Publisher
	cfg      ReleaseConfig
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	unjournaled map[string]map[domain.PayoutLeg]domain.Payout
}

// NewReleaseService creates a release service. producer may be nil; repo must not be.
func NewReleaseService(ledger EscrowLedger, records RecordStore, repo store.Repository, producer rabbitmq.Publisher, cfg ReleaseConfig, logger *slog.Logger) *ReleaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseService{
		ledger:   ledger,
		records:  records,
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },

		unjournaled: make(map[string]map[domain.PayoutLeg]domain.Payout),
	}
}

// ReleaseDue pays out every consultation the record store reports as ready.
// Item failures are reported in the summary; only configuration absence and a
// failed fetch are returned as errors.
func (s *ReleaseService) ReleaseDue(ctx context.Context) (*domain.ReleaseSummary, error) {
	if !s.cfg.Enabled || s.ledger == nil || s.records == nil || s.repo == nil {
		return nil, ErrReleaseNotConfigured
	}
	metrics.ReleaseRuns.Inc()

	pending, err := s.records.GetPendingRelease(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending releases: %w", err)
	}

	summary := &domain.ReleaseSummary{
		Success:               true,
		ReleasedConsultations: []domain.ReleasedConsultation{},
	}
	now := s.now()
	for _, c := range pending {
		if state := c.State(now); state != domain.StateReadyForRelease {
			s.logger.Warn("skipping consultation not ready for release", "consultation_id", c.ID, "state", state)
			continue
		}
		summary.Total++

		outcome, err := s.releaseOne(ctx, c)
		if err != nil {
			metrics.ReleaseItems.WithLabelValues(string(domain.StateReleaseFailed)).Inc()
			s.logger.Error("consultation release failed", "consultation_id", c.ID, "specialist_account", c.SpecialistAccount, "error", err)
			summary.Errors = append(summary.Errors, domain.ReleaseItemError{ConsultationID: c.ID, Error: err.Error()})
			s.publish(ctx, domain.RoutingKeyReleaseFailed, outcome.event(c, err, s.now()))
			continue
		}

		metrics.ReleaseItems.WithLabelValues(string(domain.StateReleased)).Inc()
		s.logger.Info("consultation released", "consultation_id", c.ID, "tx_hash", outcome.releaseTxHash())
		summary.Released++
		summary.ReleasedConsultations = append(summary.ReleasedConsultations, domain.ReleasedConsultation{
			ConsultationID: c.ID,
			TxHash:         outcome.releaseTxHash(),
		})
		s.publish(ctx, domain.RoutingKeyReleaseCompleted, outcome.event(c, nil, s.now()))
	}

	s.logger.Info("release run finished", "released", summary.Released, "total", summary.Total, "errors", len(summary.Errors))
	return summary, nil
}

type releaseOutcome struct {
	split            *escrow.Split
	specialistTxHash string
	platformTxHash   string
}

func (o releaseOutcome) releaseTxHash() string {
	if o.specialistTxHash != "" {
		return o.specialistTxHash
	}
	return o.platformTxHash
}

func (o releaseOutcome) event(c domain.Consultation, err error, at time.Time) domain.ReleaseEvent {
	ev := domain.ReleaseEvent{
		ConsultationID:    c.ID,
		SpecialistAccount: c.SpecialistAccount,
		SpecialistTxHash:  o.specialistTxHash,
		PlatformTxHash:    o.platformTxHash,
		OccurredAt:        at,
	}
	if o.split != nil {
		ev.SpecialistAmount = o.split.SpecialistAmount.String()
		ev.PlatformAmount = o.split.PlatformAmount.String()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (s *ReleaseService) releaseOne(ctx context.Context, c domain.Consultation) (releaseOutcome, error) {
	var out releaseOutcome

	account := c.SpecialistAccount
	if err := near.ValidateAccountID(account); err != nil || !near.IsLedgerAddress(account) {
		return out, fmt.Errorf("invalid specialist account %q: not a ledger address", account)
	}

	split, err := s.resolveSplit(c)
	if err != nil {
		return out, err
	}
	out.split = &split

	journal, err := s.repo.ListPayouts(ctx, c.ID)
	if err != nil {
		return out, fmt.Errorf("read payout journal: %w", err)
	}
	paid := store.PayoutsByLeg(journal)
	// Legs paid earlier whose journal write failed count as paid.
	journalErrs := s.rejournal(ctx, c.ID, paid)

	if p, ok := paid[domain.LegSpecialist]; ok {
		out.specialistTxHash = p.TxHash
	} else if split.SpecialistAmount.Sign() > 0 {
		if err := s.ensureRegistered(ctx, account); err != nil {
			return out, err
		}
		hash, err := s.payLeg(ctx, c, domain.LegSpecialist, account, split.SpecialistAmount)
		if hash == "" {
			return out, fmt.Errorf("specialist transfer failed: %w", err)
		}
		out.specialistTxHash = hash
		if err != nil {
			journalErrs = append(journalErrs, err)
		}
	}

	if p, ok := paid[domain.LegPlatform]; ok {
		out.platformTxHash = p.TxHash
	} else if split.PlatformAmount.Sign() > 0 {
		hash, err := s.payLeg(ctx, c, domain.LegPlatform, s.cfg.PlatformFeeAccountID, split.PlatformAmount)
		if hash == "" {
			if out.specialistTxHash != "" {
				return out, joinItemErrors(fmt.Errorf("platform transfer failed after specialist payout %s: %w", out.specialistTxHash, err), journalErrs)
			}
			return out, fmt.Errorf("platform transfer failed: %w", err)
		}
		out.platformTxHash = hash
		if err != nil {
			journalErrs = append(journalErrs, err)
		}
	}

	releasedAt := s.now()
	payload := domain.ReleasePayload{
		ReleasedAt:       releasedAt,
		ReleaseTxHash:    out.releaseTxHash(),
		SpecialistTxHash: out.specialistTxHash,
		PlatformTxHash:   out.platformTxHash,
	}
	if err := s.records.MarkReleased(ctx, c.ID, payload); err != nil {
		return out, joinItemErrors(fmt.Errorf("paid but not marked released: %w", err), journalErrs)
	}
	if err := s.repo.MarkReleaseAcknowledged(ctx, c.ID, releasedAt); err != nil && !errors.Is(err, store.ErrPayoutNotFound) {
		s.logger.Warn("payout journal acknowledgement failed", "consultation_id", c.ID, "error", err)
	}
	if len(journalErrs) > 0 {
		// Released, but the operator still has to reconcile the missing journal rows.
		return out, joinItemErrors(journalErrs[0], journalErrs[1:])
	}
	return out, nil
}

func joinItemErrors(first error, rest []error) error {
	if len(rest) == 0 {
		return first
	}
	msgs := make([]string, 0, len(rest))
	for _, err := range rest {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("%w; %s", first, strings.Join(msgs, "; "))
}

func (s *ReleaseService) resolveSplit(c domain.Consultation) (escrow.Split, error) {
	gross, err := tokenclient.ParseAmount(c.AmountRaw)
	if err != nil {
		return escrow.Split{}, fmt.Errorf("invalid gross amount %q: %w", c.AmountRaw, err)
	}
	storedSpecialist, err := optionalAmount(c.SpecialistAmountRaw)
	if err != nil {
		return escrow.Split{}, fmt.Errorf("invalid stored specialist amount: %w", err)
	}
	storedPlatform, err := optionalAmount(c.PlatformAmountRaw)
	if err != nil {
		return escrow.Split{}, fmt.Errorf("invalid stored platform amount: %w", err)
	}
	return escrow.ResolveSplit(gross, storedSpecialist, storedPlatform, s.cfg.SpecialistSharePercent)
}

func optionalAmount(raw *string) (*big.Int, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	return tokenclient.ParseAmount(*raw)
}

func (s *ReleaseService) ensureRegistered(ctx context.Context, account string) error {
	registered, err := s.ledger.IsRegistered(ctx, s.cfg.TokenContractID, account)
	if err != nil {
		return fmt.Errorf("check storage registration of %s: %w", account, err)
	}
	if registered {
		return nil
	}
	hash, err := s.ledger.RegisterAccount(ctx, s.cfg.TokenContractID, account)
	if err != nil {
		return fmt.Errorf("register %s: %w", account, err)
	}
	metrics.StorageRegistrations.WithLabelValues("release").Inc()
	s.logger.Info("registered specialist account", "account", account, "tx_hash", hash)
	return nil
}

// payLeg transfers one leg and journals it. A transfer failure returns no hash.
// A journal failure after a successful transfer returns the hash and an error; the
// payout is then held in memory so no later run pays the leg again.
func (s *ReleaseService) payLeg(ctx context.Context, c domain.Consultation, leg domain.PayoutLeg, receiver string, amount *big.Int) (string, error) {
	hash, err := s.ledger.TransferFromEscrow(ctx, receiver, amount, "release:"+c.ID)
	if err != nil {
		return "", err
	}
	metrics.Payouts.WithLabelValues(string(leg)).Inc()
	s.logger.Info("escrow payout submitted", "consultation_id", c.ID, "leg", leg, "receiver_id", receiver, "amount", amount.String(), "tx_hash", hash)

	payout := domain.Payout{
		ConsultationID: c.ID,
		Leg:            leg,
		ReceiverID:     receiver,
		Amount:         amount.String(),
		TxHash:         hash,
		CreatedAt:      s.now(),
	}
	if err := s.repo.RecordPayout(ctx, payout); err != nil {
		s.holdUnjournaled(payout)
		s.logger.Error("payout not journaled", "consultation_id", c.ID, "leg", leg, "tx_hash", hash, "error", err)
		return hash, fmt.Errorf("%s paid in %s, not journaled: %w", leg, hash, err)
	}
	return hash, nil
}

func (s *ReleaseService) holdUnjournaled(p domain.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unjournaled[p.ConsultationID] == nil {
		s.unjournaled[p.ConsultationID] = make(map[domain.PayoutLeg]domain.Payout)
	}
	s.unjournaled[p.ConsultationID][p.Leg] = p
}

// rejournal merges held payouts into paid and retries their journal writes. A
// held payout stays held until its row is written.
func (s *ReleaseService) rejournal(ctx context.Context, consultationID string, paid map[domain.PayoutLeg]domain.Payout) []error {
	s.mu.Lock()
	held := make([]domain.Payout, 0, len(s.unjournaled[consultationID]))
	for _, p := range s.unjournaled[consultationID] {
		held = append(held, p)
	}
	s.mu.Unlock()

	var errs []error
	for _, p := range held {
		if _, ok := paid[p.Leg]; !ok {
			paid[p.Leg] = p
			err := s.repo.RecordPayout(ctx, p)
			if err != nil && !errors.Is(err, store.ErrDuplicatePayout) {
				errs = append(errs, fmt.Errorf("%s paid in %s, not journaled: %w", p.Leg, p.TxHash, err))
				continue
			}
		}
		s.mu.Lock()
		delete(s.unjournaled[p.ConsultationID], p.Leg)
		if len(s.unjournaled[p.ConsultationID]) == 0 {
			delete(s.unjournaled, p.ConsultationID)
		}
		s.mu.Unlock()
	}
	return errs
}

func (s *ReleaseService) publish(ctx context.Context, routingKey string, event domain.ReleaseEvent) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, s.cfg.EventsExchange, routingKey, event); err != nil {
		s.logger.Warn("release event publish failed", "consultation_id", event.ConsultationID, "routing_key", routingKey, "error", err)
	}
}
