package domain

import "time"

// PayoutLeg identifies one of the two transfers of a release.
type PayoutLeg string

const (
	LegSpecialist PayoutLeg = "specialist"
	LegPlatform   PayoutLeg = "platform"
)

// Payout is a journaled escrow transfer. A leg with a payout row is never paid again.
type Payout struct {
	ConsultationID string     `json:"consultation_id"`
	Leg            PayoutLeg  `json:"leg"`
	ReceiverID     string     `json:"receiver_id"`
	Amount         string     `json:"amount"`
	TxHash         string     `json:"tx_hash"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// ReleasePayload is posted to the record store once both legs are settled.
type ReleasePayload struct {
	ReleasedAt       time.Time `json:"releasedAt"`
	ReleaseTxHash    string    `json:"releaseTxHash"`
	SpecialistTxHash string    `json:"specialistTxHash"`
	PlatformTxHash   string    `json:"platformTxHash"`
}

type ReleasedConsultation struct {
	ConsultationID string `json:"consultationId"`
	TxHash         string `json:"txHash"`
}

type ReleaseItemError struct {
	ConsultationID string `json:"consultationId"`
	Error          string `json:"error"`
}

// ReleaseSummary is the aggregate outcome of one release run.
type ReleaseSummary struct {
	Success               bool                   `json:"success"`
	Released              int                    `json:"released"`
	Total                 int                    `json:"total"`
	ReleasedConsultations []ReleasedConsultation `json:"releasedConsultations"`
	Errors                []ReleaseItemError     `json:"errors,omitempty"`
}
