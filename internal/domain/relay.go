package domain

import (
	"encoding/json"
	"time"
)

// RelayKind distinguishes the two relay paths.
type RelayKind string

const (
	RelayDeposit    RelayKind = "deposit"
	RelayWithdrawal RelayKind = "withdrawal"
)

// RelayRequest carries a signed delegate in either Borsh/base64 or JSON form.
type RelayRequest struct {
	SignedDelegateBase64 string          `json:"signedDelegateBase64,omitempty"`
	SignedDelegate       json.RawMessage `json:"signedDelegate,omitempty"`
}

// RelayResult is returned to the caller after a successful forward.
type RelayResult struct {
	TxHash string `json:"txHash"`
	Memo   string `json:"memo,omitempty"`
}

// RelayRecord is the relay log row written after each forward.
type RelayRecord struct {
	ID                 string    `json:"id"`
	Kind               RelayKind `json:"kind"`
	SenderID           string    `json:"sender_id"`
	ContractID         string    `json:"contract_id"`
	Destination        string    `json:"destination"`
	Amount             string    `json:"amount"`
	Memo               string    `json:"memo,omitempty"`
	TxHash             string    `json:"tx_hash"`
	RegistrationTxHash string    `json:"registration_tx_hash,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
