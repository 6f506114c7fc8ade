package app

import (
	"context"
	"math/big"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/near"
)

// RelayLedger is the subset of the token client the relay paths need.
type RelayLedger interface {
	IsRegistered(ctx context.Context, contractID, accountID string) (bool, error)
	RegisterAccount(ctx context.Context, contractID, accountID string) (string, error)
	ForwardDelegate(ctx context.Context, signed *near.SignedDelegateAction) (string, error)
}

// EscrowLedger is the subset of the token client the release run needs.
type EscrowLedger interface {
	IsRegistered(ctx context.Context, contractID, accountID string) (bool, error)
	RegisterAccount(ctx context.Context, contractID, accountID string) (string, error)
	TransferFromEscrow(ctx context.Context, receiverID string, amount *big.Int, memo string) (string, error)
}

// RecordStore is the external consultation record store.
type RecordStore interface {
	GetPendingRelease(ctx context.Context) ([]domain.Consultation, error)
	MarkReleased(ctx context.Context, consultationID string, payload domain.ReleasePayload) error
}
