package near

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/borsh"
)

// DelegateActionPrefix is the signable-message discriminant for delegate actions
// (2^30 + 366).
const DelegateActionPrefix uint32 = 1<<30 + 366

var ErrInvalidHash = errors.New("invalid block hash")

// DelegateAction is a set of actions signed by SenderID for a relayer to submit.
type DelegateAction struct {
	SenderID       string
	ReceiverID     string
	Actions        []Action
	Nonce          uint64
	MaxBlockHeight uint64
	PublicKey      PublicKey
}

// SignedDelegateAction pairs a delegate with the sender's signature.
type SignedDelegateAction struct {
	DelegateAction DelegateAction
	Signature      Signature
}

func (d *DelegateAction) encode(w *borsh.Writer) error {
	w.WriteString(d.SenderID)
	w.WriteString(d.ReceiverID)
	if err := encodeActions(w, d.Actions, false); err != nil {
		return err
	}
	w.WriteU64(d.Nonce)
	w.WriteU64(d.MaxBlockHeight)
	return encodePublicKey(w, d.PublicKey)
}

func decodeDelegate(r *borsh.Reader) (DelegateAction, error) {
	var d DelegateAction
	var err error
	if d.SenderID, err = r.ReadString(); err != nil {
		return d, fmt.Errorf("sender_id: %w", err)
	}
	if d.ReceiverID, err = r.ReadString(); err != nil {
		return d, fmt.Errorf("receiver_id: %w", err)
	}
	if d.Actions, err = decodeActions(r, false); err != nil {
		return d, fmt.Errorf("actions: %w", err)
	}
	if d.Nonce, err = r.ReadU64(); err != nil {
		return d, fmt.Errorf("nonce: %w", err)
	}
	if d.MaxBlockHeight, err = r.ReadU64(); err != nil {
		return d, fmt.Errorf("max_block_height: %w", err)
	}
	if d.PublicKey, err = decodePublicKey(r); err != nil {
		return d, fmt.Errorf("public_key: %w", err)
	}
	return d, nil
}

// Bytes returns the Borsh encoding of the delegate action.
func (d *DelegateAction) Bytes() ([]byte, error) {
	w := borsh.NewWriter()
	if err := d.encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// SigningHash is the digest the sender signs: sha256(u32le(prefix) || borsh(delegate)).
func (d *DelegateAction) SigningHash() ([32]byte, error) {
	w := borsh.NewWriter()
	w.WriteU32(DelegateActionPrefix)
	if err := d.encode(w); err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(w.Bytes()), nil
}

func (s *SignedDelegateAction) encode(w *borsh.Writer) error {
	if err := s.DelegateAction.encode(w); err != nil {
		return err
	}
	return encodeSignature(w, s.Signature)
}

func decodeSignedDelegate(r *borsh.Reader) (*SignedDelegateAction, error) {
	d, err := decodeDelegate(r)
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(r)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	return &SignedDelegateAction{DelegateAction: d, Signature: sig}, nil
}

// Bytes returns the Borsh encoding of the signed delegate.
func (s *SignedDelegateAction) Bytes() ([]byte, error) {
	w := borsh.NewWriter()
	if err := s.encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeSignedDelegateAction decodes a complete signed delegate, rejecting
// trailing bytes.
func DecodeSignedDelegateAction(data []byte) (*SignedDelegateAction, error) {
	r := borsh.NewReader(data)
	signed, err := decodeSignedDelegate(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return signed, nil
}

// SignDelegate builds a signed delegate with key. Used by wallets and tests.
func SignDelegate(d DelegateAction, key *KeyPair) (*SignedDelegateAction, error) {
	hash, err := d.SigningHash()
	if err != nil {
		return nil, err
	}
	return &SignedDelegateAction{DelegateAction: d, Signature: key.Sign(hash[:])}, nil
}

// CryptoHash is a 32-byte sha256 digest rendered in base58.
type CryptoHash [32]byte

// ParseCryptoHash decodes a base58 hash.
func ParseCryptoHash(s string) (CryptoHash, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return CryptoHash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(raw) != 32 {
		return CryptoHash{}, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidHash, len(raw))
	}
	var h CryptoHash
	copy(h[:], raw)
	return h, nil
}

func (h CryptoHash) String() string {
	return base58.Encode(h[:])
}

// Transaction is an unsigned ledger transaction.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  CryptoHash
	Actions    []Action
}

func (t *Transaction) encode(w *borsh.Writer) error {
	w.WriteString(t.SignerID)
	if err := encodePublicKey(w, t.PublicKey); err != nil {
		return err
	}
	w.WriteU64(t.Nonce)
	w.WriteString(t.ReceiverID)
	w.WriteFixed(t.BlockHash[:])
	return encodeActions(w, t.Actions, true)
}

// Bytes returns the Borsh encoding of the transaction.
func (t *Transaction) Bytes() ([]byte, error) {
	w := borsh.NewWriter()
	if err := t.encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Hash returns sha256(borsh(tx)), the transaction id.
func (t *Transaction) Hash() (CryptoHash, error) {
	b, err := t.Bytes()
	if err != nil {
		return CryptoHash{}, err
	}
	return sha256.Sum256(b), nil
}

// Sign hashes and signs the transaction.
func (t *Transaction) Sign(key *KeyPair) (*SignedTransaction, error) {
	hash, err := t.Hash()
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Transaction: *t, Signature: key.Sign(hash[:]), hash: hash}, nil
}

// SignedTransaction is a transaction plus the signer's signature.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
	hash        CryptoHash
}

// Hash returns the id of the underlying transaction.
func (s *SignedTransaction) Hash() CryptoHash {
	return s.hash
}

// Bytes returns the Borsh encoding ready for broadcast.
func (s *SignedTransaction) Bytes() ([]byte, error) {
	w := borsh.NewWriter()
	if err := s.Transaction.encode(w); err != nil {
		return nil, err
	}
	if err := encodeSignature(w, s.Signature); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeSignedTransaction decodes a broadcast-ready transaction.
func DecodeSignedTransaction(data []byte) (*SignedTransaction, error) {
	r := borsh.NewReader(data)
	var t Transaction
	var err error
	if t.SignerID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if t.PublicKey, err = decodePublicKey(r); err != nil {
		return nil, err
	}
	if t.Nonce, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if t.ReceiverID, err = r.ReadString(); err != nil {
		return nil, err
	}
	blockHash, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(t.BlockHash[:], blockHash)
	if t.Actions, err = decodeActions(r, true); err != nil {
		return nil, err
	}
	sig, err := decodeSignature(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	hash, err := t.Hash()
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Transaction: t, Signature: sig, hash: hash}, nil
}
