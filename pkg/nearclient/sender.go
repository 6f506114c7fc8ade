package nearclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

// Sender signs and submits transactions for one account.
type Sender struct {
	client    *Client
	accountID string
	key       *near.KeyPair

	mu        sync.Mutex
	lastNonce uint64
}

// NewSender binds a signing key to an account on client.
func NewSender(client *Client, accountID string, key *near.KeyPair) *Sender {
	return &Sender{client: client, accountID: accountID, key: key}
}

// AccountID returns the signing account.
func (s *Sender) AccountID() string {
	return s.accountID
}

// nextNonce returns a nonce above both the chain's view and anything this sender
// has already handed out, so concurrent submissions never collide.
func (s *Sender) nextNonce(chainNonce uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce := chainNonce + 1
	if nonce <= s.lastNonce {
		nonce = s.lastNonce + 1
	}
	s.lastNonce = nonce
	return nonce
}

// SignAndSend builds a transaction to receiverID, signs it and waits for the outcome.
// It returns the transaction hash; an execution failure is reported as *TxFailure.
func (s *Sender) SignAndSend(ctx context.Context, receiverID string, actions []near.Action) (string, error) {
	pub := s.key.PublicKey()
	view, err := s.client.ViewAccessKey(ctx, s.accountID, pub)
	if err != nil {
		return "", err
	}
	blockHash, err := near.ParseCryptoHash(view.BlockHash)
	if err != nil {
		return "", fmt.Errorf("access key view for %s: %w", s.accountID, err)
	}

	tx := near.Transaction{
		SignerID:   s.accountID,
		PublicKey:  pub,
		Nonce:      s.nextNonce(view.Nonce),
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    actions,
	}
	signed, err := tx.Sign(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	hash := signed.Hash().String()

	outcome, err := s.client.BroadcastTxCommit(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("broadcast %s: %w", hash, err)
	}
	if failure := outcome.Failure(); failure != nil {
		return hash, &TxFailure{Hash: hash, Failure: failure}
	}
	return hash, nil
}
