package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/delegate"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/store"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

// stubLedger records every ledger interaction in order.
type stubLedger struct {
	mu          sync.Mutex
	calls       []string
	registered  map[string]bool
	registerErr error
	forwardErr  error
	transferErr map[string]error
	hashSeq     int
}

func newStubLedger() *stubLedger {
	return &stubLedger{registered: map[string]bool{}, transferErr: map[string]error{}}
}

func (l *stubLedger) record(call string) string {
	l.calls = append(l.calls, call)
	l.hashSeq++
	return fmt.Sprintf("hash-%d", l.hashSeq)
}

func (l *stubLedger) IsRegistered(_ context.Context, contractID, accountID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "is_registered:"+accountID)
	return l.registered[accountID], nil
}

func (l *stubLedger) RegisterAccount(_ context.Context, contractID, accountID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash := l.record("register:" + accountID)
	if l.registerErr != nil {
		return "", l.registerErr
	}
	l.registered[accountID] = true
	return hash, nil
}

func (l *stubLedger) ForwardDelegate(_ context.Context, signed *near.SignedDelegateAction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash := l.record("forward:" + signed.DelegateAction.SenderID)
	if l.forwardErr != nil {
		return "", l.forwardErr
	}
	return hash, nil
}

func (l *stubLedger) TransferFromEscrow(_ context.Context, receiverID string, amount *big.Int, memo string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hash := l.record(fmt.Sprintf("transfer:%s:%s", receiverID, amount))
	if err := l.transferErr[receiverID]; err != nil {
		return "", err
	}
	return hash, nil
}

func (l *stubLedger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *stubPublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *stubPublisher) Close() {}

var testKey = func() *near.KeyPair {
	key, err := near.KeyPairFromSeed(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		panic(err)
	}
	return key
}()

func transferCall(receiver, amount, memo string) near.Action {
	args := map[string]string{"receiver_id": receiver, "amount": amount}
	if memo != "" {
		args["memo"] = memo
	}
	raw, _ := json.Marshal(args)
	return near.NewFunctionCall(delegate.TransferMethod, raw, 30_000_000_000_000, big.NewInt(1))
}

func signedDelegate(t *testing.T, contract string, actions ...near.Action) *near.SignedDelegateAction {
	t.Helper()
	signed, err := near.SignDelegate(near.DelegateAction{
		SenderID:       "alice.near",
		ReceiverID:     contract,
		Actions:        actions,
		Nonce:          11,
		MaxBlockHeight: 1000,
		PublicKey:      testKey.PublicKey(),
	}, testKey)
	if err != nil {
		t.Fatalf("SignDelegate returned error: %v", err)
	}
	return signed
}

func requestFor(t *testing.T, signed *near.SignedDelegateAction) domain.RelayRequest {
	t.Helper()
	encoded, err := delegate.Encode(signed)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	return domain.RelayRequest{SignedDelegateBase64: encoded}
}

func newTestRelayService(ledger *stubLedger) (*RelayService, *store.MemoryRepository, *stubPublisher) {
	repo := store.NewMemoryRepository()
	pub := &stubPublisher{}
	svc := NewRelayService(ledger, repo, pub, RelayConfig{
		Enabled:               true,
		TokenContractID:       "usdc.near",
		AllowedTokenContracts: []string{"usdc.near", "usdt.near"},
		EscrowAccountID:       "escrow.near",
		EventsExchange:        "escrow_events",
	}, nil)
	return svc, repo, pub
}

func requireRelayError(t *testing.T, err error, kind ErrorKind) *RelayError {
	t.Helper()
	var rerr *RelayError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RelayError, got %v", err)
	}
	if rerr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, rerr.Kind, rerr)
	}
	return rerr
}

func TestDepositForwardsToEscrow(t *testing.T) {
	ledger := newStubLedger()
	ledger.registered["escrow.near"] = true
	svc, repo, pub := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "10000000", "consultation:42"))
	result, err := svc.Deposit(context.Background(), requestFor(t, signed))
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if result.TxHash != "hash-1" || result.Memo != "consultation:42" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := strings.Join(ledger.Calls(), ","); got != "is_registered:escrow.near,forward:alice.near" {
		t.Fatalf("unexpected ledger calls %s", got)
	}

	relays := repo.Relays()
	if len(relays) != 1 || relays[0].Destination != "escrow.near" || relays[0].Amount != "10000000" {
		t.Fatalf("unexpected relay log %+v", relays)
	}
	if len(pub.events) != 1 || pub.events[0] != domain.RoutingKeyDepositRelayed {
		t.Fatalf("unexpected events %v", pub.events)
	}
}

func TestDepositRejectsNonEscrowDestinationWithoutLedgerCalls(t *testing.T) {
	ledger := newStubLedger()
	svc, _, _ := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdc.near", transferCall("attacker.near", "10000000", ""))
	_, err := svc.Deposit(context.Background(), requestFor(t, signed))

	rerr := requireRelayError(t, err, KindPolicy)
	if !strings.Contains(rerr.Reason, "escrow.near") {
		t.Fatalf("expected rejection to name escrow.near, got %q", rerr.Reason)
	}
	if !strings.Contains(rerr.Details, "attacker.near") {
		t.Fatalf("expected details to name the attempted destination, got %q", rerr.Details)
	}
	if calls := ledger.Calls(); len(calls) != 0 {
		t.Fatalf("expected zero ledger calls, got %v", calls)
	}
}

func TestDepositChecksDelegateReceiverBeforeDestination(t *testing.T) {
	ledger := newStubLedger()
	svc, _, _ := newTestRelayService(ledger)

	// Both the receiver and the destination are wrong; the receiver must be reported.
	signed := signedDelegate(t, "evil.near", transferCall("attacker.near", "1", ""))
	_, err := svc.Deposit(context.Background(), requestFor(t, signed))

	rerr := requireRelayError(t, err, KindPolicy)
	if !strings.Contains(rerr.Reason, "token contract usdc.near") {
		t.Fatalf("expected receiver rejection, got %q", rerr.Reason)
	}
	if len(ledger.Calls()) != 0 {
		t.Fatalf("expected zero ledger calls, got %v", ledger.Calls())
	}
}

func TestRelayRejections(t *testing.T) {
	nonTransfer := near.NewFunctionCall("storage_deposit", []byte(`{}`), 30_000_000_000_000, big.NewInt(1))

	tests := []struct {
		name   string
		req    func(t *testing.T) domain.RelayRequest
		kind   ErrorKind
		reason string
	}{
		{
			name:   "missing payload",
			req:    func(t *testing.T) domain.RelayRequest { return domain.RelayRequest{} },
			kind:   KindMalformed,
			reason: "signedDelegateBase64 is required",
		},
		{
			name:   "bad base64",
			req:    func(t *testing.T) domain.RelayRequest { return domain.RelayRequest{SignedDelegateBase64: "%%%"} },
			kind:   KindMalformed,
			reason: "Invalid signed delegate",
		},
		{
			name: "no ft_transfer",
			req: func(t *testing.T) domain.RelayRequest {
				return requestFor(t, signedDelegate(t, "usdc.near", nonTransfer))
			},
			kind:   KindMalformed,
			reason: "No ft_transfer action found in delegate",
		},
		{
			name: "multiple actions",
			req: func(t *testing.T) domain.RelayRequest {
				return requestFor(t, signedDelegate(t, "usdc.near",
					transferCall("escrow.near", "1", ""), transferCall("attacker.near", "1", "")))
			},
			kind:   KindPolicy,
			reason: "exactly one action",
		},
		{
			name: "non numeric amount",
			req: func(t *testing.T) domain.RelayRequest {
				return requestFor(t, signedDelegate(t, "usdc.near", transferCall("escrow.near", "1e6", "")))
			},
			kind:   KindMalformed,
			reason: "Invalid ft_transfer amount",
		},
		{
			name: "tampered signature",
			req: func(t *testing.T) domain.RelayRequest {
				signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "1", ""))
				signed.Signature.Data[0] ^= 0xff
				return requestFor(t, signed)
			},
			kind:   KindPolicy,
			reason: "signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newStubLedger()
			svc, _, _ := newTestRelayService(ledger)

			_, err := svc.Deposit(context.Background(), tt.req(t))
			rerr := requireRelayError(t, err, tt.kind)
			if !strings.Contains(rerr.Reason, tt.reason) {
				t.Fatalf("expected reason containing %q, got %q", tt.reason, rerr.Reason)
			}
			if len(ledger.Calls()) != 0 {
				t.Fatalf("expected zero ledger calls, got %v", ledger.Calls())
			}
		})
	}
}

func TestRelayNotConfigured(t *testing.T) {
	ledger := newStubLedger()
	svc := NewRelayService(ledger, nil, nil, RelayConfig{TokenContractID: "usdc.near", EscrowAccountID: "escrow.near"}, nil)

	_, err := svc.Withdraw(context.Background(), domain.RelayRequest{SignedDelegateBase64: "%%%"})
	rerr := requireRelayError(t, err, KindUnavailable)
	if rerr.Reason != "Relayer not configured" {
		t.Fatalf("unexpected reason %q", rerr.Reason)
	}
	if len(ledger.Calls()) != 0 {
		t.Fatalf("expected zero ledger calls, got %v", ledger.Calls())
	}
}

func TestWithdrawRegistersUnregisteredDestinationBeforeForwarding(t *testing.T) {
	ledger := newStubLedger()
	svc, repo, pub := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdt.near", transferCall("bob.near", "2500000", "ignored"))
	result, err := svc.Withdraw(context.Background(), requestFor(t, signed))
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := "is_registered:bob.near,register:bob.near,forward:alice.near"
	if got := strings.Join(ledger.Calls(), ","); got != want {
		t.Fatalf("expected calls %s, got %s", want, got)
	}
	if result.TxHash != "hash-2" {
		t.Fatalf("expected forward hash, got %q", result.TxHash)
	}
	if result.Memo != "" {
		t.Fatalf("withdrawals must not echo the memo, got %q", result.Memo)
	}
	if relays := repo.Relays(); len(relays) != 1 || relays[0].RegistrationTxHash != "hash-1" {
		t.Fatalf("expected registration hash in relay log, got %+v", relays)
	}
	if len(pub.events) != 1 || pub.events[0] != domain.RoutingKeyWithdrawalRelayed {
		t.Fatalf("unexpected events %v", pub.events)
	}
}

func TestWithdrawRejectsContractOutsideAllowList(t *testing.T) {
	ledger := newStubLedger()
	svc, _, _ := newTestRelayService(ledger)

	signed := signedDelegate(t, "scam-token.near", transferCall("bob.near", "1", ""))
	_, err := svc.Withdraw(context.Background(), requestFor(t, signed))
	requireRelayError(t, err, KindPolicy)
	if len(ledger.Calls()) != 0 {
		t.Fatalf("expected zero ledger calls, got %v", ledger.Calls())
	}
}

func TestWithdrawRegistrationFailureStopsForward(t *testing.T) {
	ledger := newStubLedger()
	ledger.registerErr = errors.New("rpc unavailable")
	svc, repo, _ := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdc.near", transferCall("bob.near", "1", ""))
	_, err := svc.Withdraw(context.Background(), requestFor(t, signed))
	requireRelayError(t, err, KindLedger)

	for _, call := range ledger.Calls() {
		if strings.HasPrefix(call, "forward:") {
			t.Fatalf("forward must not run after a failed registration, calls %v", ledger.Calls())
		}
	}
	if len(repo.Relays()) != 0 {
		t.Fatal("failed relays must not be logged as forwarded")
	}
}

func TestDepositForwardFailureIsLedgerError(t *testing.T) {
	ledger := newStubLedger()
	ledger.registered["escrow.near"] = true
	ledger.forwardErr = errors.New("InvalidNonce")
	svc, _, _ := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "1", ""))
	_, err := svc.Deposit(context.Background(), requestFor(t, signed))
	rerr := requireRelayError(t, err, KindLedger)
	if !strings.Contains(rerr.Details, "InvalidNonce") {
		t.Fatalf("expected ledger details, got %q", rerr.Details)
	}
}

func TestDepositAcceptsJSONDelegate(t *testing.T) {
	ledger := newStubLedger()
	ledger.registered["escrow.near"] = true
	svc, _, _ := newTestRelayService(ledger)

	signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "10000000", "consultation:7"))
	fc := signed.DelegateAction.Actions[0].FunctionCall
	raw := fmt.Sprintf(`{
		"delegateAction": {
			"senderId": "alice.near",
			"receiverId": "usdc.near",
			"actions": [{"functionCall": {"methodName": "ft_transfer", "args": %s, "gas": "30000000000000", "deposit": "1"}}],
			"nonce": "11",
			"maxBlockHeight": "1000",
			"publicKey": %q
		},
		"signature": %q
	}`, intArray(fc.Args), signed.DelegateAction.PublicKey.String(), signed.Signature.String())

	result, err := svc.Deposit(context.Background(), domain.RelayRequest{SignedDelegate: json.RawMessage(raw)})
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if result.Memo != "consultation:7" {
		t.Fatalf("unexpected memo %q", result.Memo)
	}
}

func intArray(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestDepositRefusesShadowedReceiverKeys(t *testing.T) {
	tests := map[string]string{
		"case variant": `{"receiver_id":"attacker.near","amount":"10000000","Receiver_Id":"escrow.near"}`,
		"duplicate":    `{"receiver_id":"attacker.near","amount":"10000000","receiver_id":"escrow.near"}`,
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			ledger := newStubLedger()
			ledger.registered["escrow.near"] = true
			svc, repo, _ := newTestRelayService(ledger)

			action := near.NewFunctionCall(delegate.TransferMethod, []byte(args), 30_000_000_000_000, big.NewInt(1))
			signed := signedDelegate(t, "usdc.near", action)
			result, err := svc.Deposit(context.Background(), requestFor(t, signed))

			rerr := requireRelayError(t, err, KindMalformed)
			if rerr.Reason != "Invalid ft_transfer arguments" {
				t.Fatalf("unexpected reason %q", rerr.Reason)
			}
			if result != nil {
				t.Fatalf("expected no result, got %+v", result)
			}
			if calls := ledger.Calls(); len(calls) != 0 {
				t.Fatalf("expected no ledger calls, got %v", calls)
			}
			if len(repo.Relays()) != 0 {
				t.Fatal("refused delegate must not be logged as relayed")
			}
		})
	}
}

func TestRelayLimitsPerSigner(t *testing.T) {
	ledger := newStubLedger()
	ledger.registered["escrow.near"] = true
	svc, _, _ := newTestRelayService(ledger)
	limiter := &countingLimiter{allowed: 1}
	svc.LimitSigners(limiter, 1)

	signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "10", ""))
	if _, err := svc.Deposit(context.Background(), requestFor(t, signed)); err != nil {
		t.Fatalf("first Deposit returned error: %v", err)
	}
	callsAfterFirst := len(ledger.Calls())

	_, err := svc.Deposit(context.Background(), requestFor(t, signed))
	rerr := requireRelayError(t, err, KindRateLimited)
	if rerr.RetryAfter != 42 {
		t.Fatalf("expected retry after 42, got %d", rerr.RetryAfter)
	}
	if len(ledger.Calls()) != callsAfterFirst {
		t.Fatalf("a limited relay must not touch the ledger, calls %v", ledger.Calls())
	}
	if limiter.scopes[0] != "signer:deposit" || limiter.subject[0] != "alice.near" {
		t.Fatalf("expected the verified sender to key the limit, got %v %v", limiter.scopes, limiter.subject)
	}
}

func TestRelaySignerLimitSkipsRejectedDelegates(t *testing.T) {
	ledger := newStubLedger()
	svc, _, _ := newTestRelayService(ledger)
	limiter := &countingLimiter{allowed: 0}
	svc.LimitSigners(limiter, 1)

	signed := signedDelegate(t, "usdc.near", transferCall("attacker.near", "10", ""))
	_, err := svc.Deposit(context.Background(), requestFor(t, signed))
	requireRelayError(t, err, KindPolicy)
	if len(limiter.scopes) != 0 {
		t.Fatal("invalid delegates must not consume the signer's budget")
	}
}

func TestRelaySignerLimiterFailsOpen(t *testing.T) {
	ledger := newStubLedger()
	ledger.registered["escrow.near"] = true
	svc, _, _ := newTestRelayService(ledger)
	svc.LimitSigners(&countingLimiter{err: errors.New("redis down")}, 1)

	signed := signedDelegate(t, "usdc.near", transferCall("escrow.near", "10", ""))
	if _, err := svc.Deposit(context.Background(), requestFor(t, signed)); err != nil {
		t.Fatalf("expected the relay to proceed when the limiter is down, got %v", err)
	}
}
