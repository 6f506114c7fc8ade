package domain

import "time"

const (
	RoutingKeyDepositRelayed    = "escrow.deposit.relayed"
	RoutingKeyWithdrawalRelayed = "escrow.withdrawal.relayed"
	RoutingKeyReleaseCompleted  = "escrow.release.completed"
	RoutingKeyReleaseFailed     = "escrow.release.failed"
)

// RelayedEvent is published after a delegate is forwarded.
type RelayedEvent struct {
	RelayID     string    `json:"relay_id"`
	Kind        RelayKind `json:"kind"`
	SenderID    string    `json:"sender_id"`
	ContractID  string    `json:"contract_id"`
	Destination string    `json:"destination"`
	Amount      string    `json:"amount"`
	Memo        string    `json:"memo,omitempty"`
	TxHash      string    `json:"tx_hash"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ReleaseEvent is published for each consultation a release run touches.
type ReleaseEvent struct {
	ConsultationID    string    `json:"consultation_id"`
	SpecialistAccount string    `json:"specialist_account"`
	SpecialistAmount  string    `json:"specialist_amount,omitempty"`
	PlatformAmount    string    `json:"platform_amount,omitempty"`
	SpecialistTxHash  string    `json:"specialist_tx_hash,omitempty"`
	PlatformTxHash    string    `json:"platform_tx_hash,omitempty"`
	Error             string    `json:"error,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
