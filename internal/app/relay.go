/**
 * @description
 * Relay gateway. Accepts a user-signed delegate, checks it against the escrow policy
 * and forwards it under the relayer's fee-paying identity.
 *
 * Validation short-circuits in a fixed order: decode, delegate receiver, action count,
 * transfer extraction, destination (deposits only), signature, then the optional
 * per-signer limit. Only then is the ledger touched: the destination's storage registration is ensured first and the delegate
 * is forwarded second. Nothing is retried.
 *
 * @dependencies
 * - internal/delegate: envelope decoding and transfer extraction.
 * - github.com/google/uuid: relay log ids.
 */
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/delegate"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/metrics"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/store"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/rabbitmq"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/tokenclient"
)

// RelayConfig is the immutable policy the relay paths enforce.
type RelayConfig struct {
	Enabled               bool
	TokenContractID       string
	AllowedTokenContracts []string
	EscrowAccountID       string
	EventsExchange        string
}

// RelayService implements the deposit and withdrawal relay paths.
type RelayService struct {
	ledger   RelayLedger
	repo     store.Repository
	producer rabbitmq.Publisher
	cfg      RelayConfig
	logger   *slog.Logger
	now      func() time.Time

	signerLimiter   RateLimiter
	signerPerMinute int
}

// NewRelayService creates a relay service. repo and producer may be nil.
func NewRelayService(ledger RelayLedger, repo store.Repository, producer rabbitmq.Publisher, cfg RelayConfig, logger *slog.Logger) *RelayService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayService{
		ledger:   ledger,
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LimitSigners caps relays per delegate sender and kind. The sender is only trusted
// after its signature verifies, so the check runs after validation and before any
// ledger call. A nil limiter or non-positive limit disables it.
func (s *RelayService) LimitSigners(limiter RateLimiter, perMinute int) {
	s.signerLimiter = limiter
	s.signerPerMinute = perMinute
}

// Deposit relays a transfer into the escrow account and nowhere else.
func (s *RelayService) Deposit(ctx context.Context, req domain.RelayRequest) (*domain.RelayResult, error) {
	return s.relay(ctx, domain.RelayDeposit, req)
}

// Withdraw relays a transfer out of the caller's account to a destination of their choice.
func (s *RelayService) Withdraw(ctx context.Context, req domain.RelayRequest) (*domain.RelayResult, error) {
	return s.relay(ctx, domain.RelayWithdrawal, req)
}

type validatedRelay struct {
	signed   *near.SignedDelegateAction
	transfer *delegate.Transfer
}

func (s *RelayService) relay(ctx context.Context, kind domain.RelayKind, req domain.RelayRequest) (*domain.RelayResult, error) {
	if !s.cfg.Enabled || s.ledger == nil {
		s.count(kind, string(KindUnavailable))
		return nil, &RelayError{Kind: KindUnavailable, Reason: "Relayer not configured"}
	}

	v, rerr := s.validate(kind, req)
	if rerr != nil {
		s.count(kind, string(rerr.Kind))
		s.logger.Warn("relay rejected", "kind", kind, "reason", rerr.Reason, "details", rerr.Details)
		return nil, rerr
	}

	if rerr := s.checkSigner(ctx, kind, v.signed.DelegateAction.SenderID); rerr != nil {
		s.count(kind, string(rerr.Kind))
		return nil, rerr
	}

	contractID := v.signed.DelegateAction.ReceiverID
	destination := v.transfer.ReceiverID

	registered, err := s.ledger.IsRegistered(ctx, contractID, destination)
	if err != nil {
		s.count(kind, string(KindLedger))
		return nil, ledgerFailure("Failed to check storage registration", err)
	}
	var registrationHash string
	if !registered {
		registrationHash, err = s.ledger.RegisterAccount(ctx, contractID, destination)
		if err != nil {
			s.count(kind, string(KindLedger))
			return nil, ledgerFailure(fmt.Sprintf("Failed to register %s with %s", destination, contractID), err)
		}
		metrics.StorageRegistrations.WithLabelValues(string(kind)).Inc()
		s.logger.Info("registered relay destination", "kind", kind, "account", destination, "contract_id", contractID, "tx_hash", registrationHash)
	}

	txHash, err := s.ledger.ForwardDelegate(ctx, v.signed)
	if err != nil {
		s.count(kind, string(KindLedger))
		s.logger.Error("delegate forward failed", "kind", kind, "sender_id", v.signed.DelegateAction.SenderID, "tx_hash", txHash, "error", err)
		return nil, ledgerFailure("Failed to forward delegate", err)
	}
	s.count(kind, "forwarded")

	result := &domain.RelayResult{TxHash: txHash}
	memo := ""
	if v.transfer.Memo != nil {
		memo = *v.transfer.Memo
	}
	if kind == domain.RelayDeposit {
		result.Memo = memo
	}

	s.logger.Info("delegate relayed", "kind", kind, "sender_id", v.signed.DelegateAction.SenderID, "destination", destination, "amount", v.transfer.Amount, "tx_hash", txHash)
	s.recordRelay(ctx, domain.RelayRecord{
		ID:                 uuid.NewString(),
		Kind:               kind,
		SenderID:           v.signed.DelegateAction.SenderID,
		ContractID:         contractID,
		Destination:        destination,
		Amount:             v.transfer.Amount,
		Memo:               memo,
		TxHash:             txHash,
		RegistrationTxHash: registrationHash,
		CreatedAt:          s.now(),
	})
	return result, nil
}

// validate performs every check that needs no network access.
func (s *RelayService) validate(kind domain.RelayKind, req domain.RelayRequest) (*validatedRelay, *RelayError) {
	signed, rerr := decodeRequest(req)
	if rerr != nil {
		return nil, rerr
	}

	receiver := signed.DelegateAction.ReceiverID
	switch kind {
	case domain.RelayDeposit:
		if receiver != s.cfg.TokenContractID {
			return nil, policy("Delegate receiver must be the token contract "+s.cfg.TokenContractID, "got "+receiver)
		}
	default:
		if !contains(s.cfg.AllowedTokenContracts, receiver) {
			return nil, policy("Delegate receiver is not an allowed token contract", "got "+receiver)
		}
	}

	if n := len(signed.DelegateAction.Actions); n != 1 {
		return nil, policy("Delegate must contain exactly one action", fmt.Sprintf("got %d actions", n))
	}

	transfer, err := delegate.FindTransfer(signed)
	if errors.Is(err, delegate.ErrInvalidTransferArgs) {
		return nil, malformed("Invalid ft_transfer arguments", err)
	}
	if err != nil || transfer.ReceiverID == "" {
		return nil, &RelayError{Kind: KindMalformed, Reason: "No ft_transfer action found in delegate"}
	}
	if _, err := tokenclient.ParseAmount(transfer.Amount); err != nil {
		return nil, malformed("Invalid ft_transfer amount", err)
	}
	if kind == domain.RelayDeposit && transfer.ReceiverID != s.cfg.EscrowAccountID {
		return nil, policy("Deposit transfers must target the escrow account "+s.cfg.EscrowAccountID, "got "+transfer.ReceiverID)
	}
	if err := near.ValidateAccountID(transfer.ReceiverID); err != nil {
		return nil, malformed("Invalid ft_transfer receiver", err)
	}

	if err := delegate.VerifySignature(signed); err != nil {
		return nil, &RelayError{Kind: KindPolicy, Reason: "Delegate signature is invalid", Err: err}
	}

	return &validatedRelay{signed: signed, transfer: transfer}, nil
}

func decodeRequest(req domain.RelayRequest) (*near.SignedDelegateAction, *RelayError) {
	var (
		signed *near.SignedDelegateAction
		err    error
	)
	switch {
	case req.SignedDelegateBase64 != "":
		signed, err = delegate.Decode(req.SignedDelegateBase64)
	case len(req.SignedDelegate) > 0 && !bytes.Equal(bytes.TrimSpace(req.SignedDelegate), []byte("null")):
		signed, err = delegate.DecodeJSON(req.SignedDelegate)
	default:
		return nil, &RelayError{Kind: KindMalformed, Reason: "signedDelegateBase64 is required"}
	}
	if err != nil {
		return nil, malformed("Invalid signed delegate", err)
	}
	return signed, nil
}

func (s *RelayService) recordRelay(ctx context.Context, record domain.RelayRecord) {
	if s.repo != nil {
		if err := s.repo.RecordRelay(ctx, record); err != nil {
			s.logger.Warn("relay log write failed", "relay_id", record.ID, "tx_hash", record.TxHash, "error", err)
		}
	}
	if s.producer == nil {
		return
	}
	routingKey := domain.RoutingKeyDepositRelayed
	if record.Kind == domain.RelayWithdrawal {
		routingKey = domain.RoutingKeyWithdrawalRelayed
	}
	event := domain.RelayedEvent{
		RelayID:     record.ID,
		Kind:        record.Kind,
		SenderID:    record.SenderID,
		ContractID:  record.ContractID,
		Destination: record.Destination,
		Amount:      record.Amount,
		Memo:        record.Memo,
		TxHash:      record.TxHash,
		OccurredAt:  record.CreatedAt,
	}
	if err := s.producer.Publish(ctx, s.cfg.EventsExchange, routingKey, event); err != nil {
		s.logger.Warn("relay event publish failed", "relay_id", record.ID, "routing_key", routingKey, "error", err)
	}
}

func (s *RelayService) checkSigner(ctx context.Context, kind domain.RelayKind, sender string) *RelayError {
	if s.signerLimiter == nil || s.signerPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.signerLimiter.ConsumeRateLimit(ctx, "signer:"+string(kind), sender, s.signerPerMinute, time.Minute)
	if err != nil {
		s.logger.Warn("signer rate limiter unavailable; allowing relay", "kind", kind, "sender_id", sender, "error", err)
		return nil
	}
	if count <= s.signerPerMinute {
		return nil
	}
	s.logger.Warn("relay refused by signer limit", "kind", kind, "sender_id", sender, "retry_after", retryAfter)
	return &RelayError{
		Kind:       KindRateLimited,
		Reason:     "Too many relays for this account",
		Details:    fmt.Sprintf("retry after %d seconds", retryAfter),
		RetryAfter: retryAfter,
	}
}

func (s *RelayService) count(kind domain.RelayKind, outcome string) {
	metrics.RelayRequests.WithLabelValues(string(kind), outcome).Inc()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
