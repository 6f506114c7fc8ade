/**
 * @description
 * Fungible-token contract helpers: balance and registration views, action builders,
 * and the three write paths used by the escrow services (registration, delegate
 * forwarding and escrow transfers).
 *
 * @dependencies
 * - pkg/near: action and delegate types
 * - pkg/nearclient: view calls and signing senders (through the Viewer/Signer interfaces)
 */
package tokenclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

const (
	MethodTransfer         = "ft_transfer"
	MethodBalanceOf        = "ft_balance_of"
	MethodStorageDeposit   = "storage_deposit"
	MethodStorageBalanceOf = "storage_balance_of"

	TransferGas       uint64 = 30_000_000_000_000
	StorageDepositGas uint64 = 30_000_000_000_000

	// DefaultStorageDepositYocto is 0.00125 NEAR.
	DefaultStorageDepositYocto = "1250000000000000000000"
)

var (
	ErrRelayerNotConfigured = errors.New("relayer signer is not configured")
	ErrEscrowNotConfigured  = errors.New("escrow signer is not configured")
	ErrInvalidAmount        = errors.New("amount must be a non-negative integer")

	oneYocto = big.NewInt(1)
)

// Viewer runs read-only contract calls.
type Viewer interface {
	CallFunction(ctx context.Context, accountID, method string, args interface{}) ([]byte, error)
}

// Signer submits transactions for a single account.
type Signer interface {
	AccountID() string
	SignAndSend(ctx context.Context, receiverID string, actions []near.Action) (string, error)
}

// Options wires the optional signing identities.
type Options struct {
	Relayer        Signer
	Escrow         Signer
	StorageDeposit *big.Int
}

// Client wraps one token contract.
type Client struct {
	viewer         Viewer
	contractID     string
	relayer        Signer
	escrow         Signer
	storageDeposit *big.Int
}

// NewClient creates a token client for contractID.
func NewClient(viewer Viewer, contractID string, opts Options) *Client {
	deposit := opts.StorageDeposit
	if deposit == nil || deposit.Sign() <= 0 {
		deposit, _ = new(big.Int).SetString(DefaultStorageDepositYocto, 10)
	}
	return &Client{
		viewer:         viewer,
		contractID:     strings.TrimSpace(contractID),
		relayer:        opts.Relayer,
		escrow:         opts.Escrow,
		storageDeposit: deposit,
	}
}

// ContractID returns the configured token contract.
func (c *Client) ContractID() string {
	return c.contractID
}

// ParseAmount parses a base-10 integer string. Floats, signs and exponents are rejected.
func ParseAmount(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return v, nil
}

// FtBalanceOf returns the raw token balance of accountID on the configured contract.
func (c *Client) FtBalanceOf(ctx context.Context, accountID string) (*big.Int, error) {
	raw, err := c.viewer.CallFunction(ctx, c.contractID, MethodBalanceOf, map[string]string{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", MethodBalanceOf, err)
	}
	return ParseAmount(s)
}

// StorageBalance is the registration record of an account; nil means unregistered.
type StorageBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

// StorageBalanceOf returns the storage record of accountID on contractID, or nil.
func (c *Client) StorageBalanceOf(ctx context.Context, contractID, accountID string) (*StorageBalance, error) {
	raw, err := c.viewer.CallFunction(ctx, contractID, MethodStorageBalanceOf, map[string]string{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	var balance *StorageBalance
	if err := json.Unmarshal(raw, &balance); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", MethodStorageBalanceOf, err)
	}
	return balance, nil
}

// IsRegistered reports whether accountID may receive tokens from contractID.
func (c *Client) IsRegistered(ctx context.Context, contractID, accountID string) (bool, error) {
	balance, err := c.StorageBalanceOf(ctx, contractID, accountID)
	if err != nil {
		return false, err
	}
	return balance != nil, nil
}

type transferArgs struct {
	ReceiverID string  `json:"receiver_id"`
	Amount     string  `json:"amount"`
	Memo       *string `json:"memo,omitempty"`
}

// TransferAction builds an ft_transfer call with the mandatory one-yocto deposit.
func TransferAction(receiverID string, amount *big.Int, memo string) (near.Action, error) {
	if amount == nil || amount.Sign() < 0 {
		return near.Action{}, ErrInvalidAmount
	}
	args := transferArgs{ReceiverID: receiverID, Amount: amount.String()}
	if memo != "" {
		args.Memo = &memo
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return near.Action{}, err
	}
	return near.NewFunctionCall(MethodTransfer, payload, TransferGas, oneYocto), nil
}

// StorageDepositAction builds a registration-only storage_deposit for accountID.
func (c *Client) StorageDepositAction(accountID string) near.Action {
	payload, _ := json.Marshal(struct {
		AccountID        string `json:"account_id"`
		RegistrationOnly bool   `json:"registration_only"`
	}{AccountID: accountID, RegistrationOnly: true})
	return near.NewFunctionCall(MethodStorageDeposit, payload, StorageDepositGas, c.storageDeposit)
}

// RegisterAccount pays for accountID's registration on contractID from the relayer.
func (c *Client) RegisterAccount(ctx context.Context, contractID, accountID string) (string, error) {
	if c.relayer == nil {
		return "", ErrRelayerNotConfigured
	}
	hash, err := c.relayer.SignAndSend(ctx, contractID, []near.Action{c.StorageDepositAction(accountID)})
	if err != nil {
		return hash, fmt.Errorf("register %s on %s: %w", accountID, contractID, err)
	}
	return hash, nil
}

// ForwardDelegate submits a user's signed delegate under the relayer's identity.
// The transaction receiver is the delegate's sender, as the network requires.
func (c *Client) ForwardDelegate(ctx context.Context, signed *near.SignedDelegateAction) (string, error) {
	if c.relayer == nil {
		return "", ErrRelayerNotConfigured
	}
	if signed == nil {
		return "", errors.New("signed delegate is nil")
	}
	hash, err := c.relayer.SignAndSend(ctx, signed.DelegateAction.SenderID, []near.Action{near.NewDelegate(signed)})
	if err != nil {
		return hash, fmt.Errorf("forward delegate from %s: %w", signed.DelegateAction.SenderID, err)
	}
	return hash, nil
}

// TransferFromEscrow moves amount from the escrow account to receiverID.
func (c *Client) TransferFromEscrow(ctx context.Context, receiverID string, amount *big.Int, memo string) (string, error) {
	if c.escrow == nil {
		return "", ErrEscrowNotConfigured
	}
	action, err := TransferAction(receiverID, amount, memo)
	if err != nil {
		return "", err
	}
	hash, err := c.escrow.SignAndSend(ctx, c.contractID, []near.Action{action})
	if err != nil {
		return hash, fmt.Errorf("transfer %s to %s: %w", amount.String(), receiverID, err)
	}
	return hash, nil
}
