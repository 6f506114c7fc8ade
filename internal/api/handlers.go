/**
 * @description
 * HTTP handlers for the relay service: deposit and withdrawal relays and the escrow
 * release trigger.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/app"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

const maxRelayBodyBytes = 256 << 10

// RelayService is the relay use case consumed by the handlers.
type RelayService interface {
	Deposit(ctx context.Context, req domain.RelayRequest) (*domain.RelayResult, error)
	Withdraw(ctx context.Context, req domain.RelayRequest) (*domain.RelayResult, error)
}

// ReleaseService is the release use case consumed by the handlers.
type ReleaseService interface {
	ReleaseDue(ctx context.Context) (*domain.ReleaseSummary, error)
}

// Handler holds the application services that handlers interact with.
type Handler struct {
	relay          RelayService
	release        ReleaseService
	releaseTimeout time.Duration
	status         HealthStatus
	logger         *slog.Logger
}

// HealthStatus is reported by GET /health.
type HealthStatus struct {
	Status         string `json:"status"`
	RelayEnabled   bool   `json:"relayEnabled"`
	ReleaseEnabled bool   `json:"releaseEnabled"`
}

// NewHandler creates a new Handler with the given services.
func NewHandler(relay RelayService, release ReleaseService, releaseTimeout time.Duration, status HealthStatus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if status.Status == "" {
		status.Status = "ok"
	}
	return &Handler{
		relay:          relay,
		release:        release,
		releaseTimeout: releaseTimeout,
		status:         status,
		logger:         logger,
	}
}

type relayResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Memo    string `json:"memo,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.status)
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleRelay(w, r, h.relay.Deposit)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleRelay(w, r, h.relay.Withdraw)
}

func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request, run func(context.Context, domain.RelayRequest) (*domain.RelayResult, error)) {
	var req domain.RelayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := run(r.Context(), req)
	if err != nil {
		h.writeRelayError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, relayResponse{Success: true, TxHash: result.TxHash, Memo: result.Memo})
}

func (h *Handler) writeRelayError(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *app.RelayError
	if !errors.As(err, &rerr) {
		h.logger.Error("unexpected relay failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	status := http.StatusInternalServerError
	switch rerr.Kind {
	case app.KindMalformed:
		status = http.StatusBadRequest
	case app.KindPolicy:
		status = http.StatusForbidden
	case app.KindUnavailable:
		status = http.StatusServiceUnavailable
	case app.KindLedger:
		status = http.StatusBadGateway
	case app.KindRateLimited:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(rerr.RetryAfter))
	}
	writeError(w, status, rerr.Reason, rerr.Details)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	if h.release == nil {
		writeError(w, http.StatusServiceUnavailable, "Escrow release not configured", "")
		return
	}

	// A disconnecting caller must not cut a batch off between two payout legs.
	ctx := context.WithoutCancel(r.Context())
	if h.releaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.releaseTimeout)
		defer cancel()
	}

	summary, err := h.release.ReleaseDue(ctx)
	if err != nil {
		if errors.Is(err, app.ErrReleaseNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "Escrow release not configured", "")
			return
		}
		h.logger.Error("escrow release run failed", "error", err)
		writeError(w, http.StatusBadGateway, "Escrow release failed", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	respondWithJSON(w, status, errorResponse{Error: message, Details: details})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
