package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// ResolutionService defines the settlement operations the resolution handler
// requires from the service layer.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string, caller common.Address, outcome domain.Outcome) error
	Dispute(ctx context.Context, marketID string, disputer common.Address, bond *big.Int, reason string) (*domain.DisputeRecord, error)
	AdminResolve(ctx context.Context, marketID string, caller common.Address, outcome domain.Outcome) error
	Cancel(ctx context.Context, marketID string, caller common.Address) error
}

// ResolutionHandler serves outcome proposal, dispute and finalization
// endpoints.
type ResolutionHandler struct {
	resolution ResolutionService
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler with the given service and
// logger.
func NewResolutionHandler(resolution ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolution: resolution,
		logger:     logger,
	}
}

type resolveRequest struct {
	Caller  string `json:"caller"`
	Outcome string `json:"outcome"`
}

// Resolve proposes an outcome for a market past its resolution time, opening
// the dispute window. Resolver only.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.resolution.Resolve)
}

// AdminResolve finalizes a disputed market with an authoritative outcome.
// Admin only.
// POST /api/markets/{id}/admin-resolve
func (h *ResolutionHandler) AdminResolve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.resolution.AdminResolve)
}

func (h *ResolutionHandler) resolve(w http.ResponseWriter, r *http.Request, op func(context.Context, string, common.Address, domain.Outcome) error) {
	id := pathParam(r, "id")

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := op(r.Context(), id, caller, domain.Outcome(req.Outcome)); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"outcome":   req.Outcome,
	})
}

type disputeRequest struct {
	Disputer string `json:"disputer"`
	Bond     string `json:"bond"`
	Reason   string `json:"reason"`
}

// disputeResponse is the wire shape of a filed dispute.
type disputeResponse struct {
	ID        string     `json:"id"`
	MarketID  string     `json:"market_id"`
	Disputer  string     `json:"disputer"`
	Bond      string     `json:"bond"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`
	FiledAt   time.Time  `json:"filed_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// Dispute challenges a proposed outcome within the dispute window.
// POST /api/markets/{id}/dispute
func (h *ResolutionHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req disputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	disputer, ok := parseAddress(req.Disputer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid disputer address")
		return
	}
	bond, ok := parseAmount(req.Bond)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond amount")
		return
	}

	rec, err := h.resolution.Dispute(r.Context(), id, disputer, bond, req.Reason)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, disputeResponse{
		ID:        rec.ID,
		MarketID:  rec.MarketID,
		Disputer:  rec.Disputer.Hex(),
		Bond:      amountString(rec.Bond),
		Reason:    rec.Reason,
		Status:    string(rec.Status),
		FiledAt:   rec.FiledAt,
		SettledAt: rec.SettledAt,
	})
}

// Cancel voids a market; all stakes become refundable. Admin only.
// POST /api/markets/{id}/cancel
func (h *ResolutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.resolution.Cancel(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"state":     string(domain.MarketCancelled),
	})
}
