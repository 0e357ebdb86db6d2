package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// FactoryService defines the market lifecycle operations the factory handler
// requires from the service layer.
type FactoryService interface {
	CreateMarket(ctx context.Context, creator common.Address, cfg domain.MarketConfig, bond *big.Int) (*domain.Market, error)
	CreateMarketWithCurve(ctx context.Context, creator common.Address, cfg domain.MarketConfig, curveID string, params domain.CurveParams, bond *big.Int) (*domain.Market, error)
	Approve(ctx context.Context, marketID string, caller common.Address) error
	Activate(ctx context.Context, marketID string, caller common.Address) error
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	Paused() bool
	RefundCreatorBond(ctx context.Context, caller common.Address, marketID string) (*domain.BondRecord, error)
	HeldBond(ctx context.Context, marketID string) (domain.BondRecord, error)
	TotalHeldBonds(ctx context.Context) (*big.Int, error)
}

// FactoryHandler serves market creation and lifecycle endpoints.
type FactoryHandler struct {
	factory FactoryService
	logger  *slog.Logger
}

// NewFactoryHandler creates a FactoryHandler with the given service and logger.
func NewFactoryHandler(factory FactoryService, logger *slog.Logger) *FactoryHandler {
	return &FactoryHandler{
		factory: factory,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Creator     string `json:"creator"`
	Question    string `json:"question"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	YesLabel    string `json:"yes_label,omitempty"`
	NoLabel     string `json:"no_label,omitempty"`

	EndTime        time.Time `json:"end_time"`
	ResolutionTime time.Time `json:"resolution_time"`

	Bond string `json:"bond"`

	// CurveID selects a registered curve; empty means the default. Params is
	// a curve-specific JSON blob.
	CurveID string          `json:"curve_id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CreateMarket proposes a new market on the default curve, escrowing the
// creator bond.
// POST /api/markets
func (h *FactoryHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

// CreateMarketWithCurve proposes a new market on an explicitly chosen curve.
// POST /api/markets/curve
func (h *FactoryHandler) CreateMarketWithCurve(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *FactoryHandler) create(w http.ResponseWriter, r *http.Request, explicitCurve bool) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if explicitCurve && req.CurveID == "" {
		writeError(w, http.StatusBadRequest, "curve_id is required")
		return
	}
	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	bond, ok := parseAmount(req.Bond)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bond amount")
		return
	}

	cfg := domain.MarketConfig{
		Question:       req.Question,
		Description:    req.Description,
		Category:       req.Category,
		YesLabel:       req.YesLabel,
		NoLabel:        req.NoLabel,
		EndTime:        req.EndTime,
		ResolutionTime: req.ResolutionTime,
	}

	var (
		m   *domain.Market
		err error
	)
	if req.CurveID != "" {
		m, err = h.factory.CreateMarketWithCurve(r.Context(), creator, cfg, req.CurveID, domain.CurveParams(req.Params), bond)
	} else {
		m, err = h.factory.CreateMarket(r.Context(), creator, cfg, bond)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMarketResponse(*m))
}

type callerRequest struct {
	Caller string `json:"caller"`
}

// Approve moves a proposed market to approved. Operator only.
// POST /api/markets/{id}/approve
func (h *FactoryHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.factory.Approve)
}

// Activate opens an approved market for betting. Operator only.
// POST /api/markets/{id}/activate
func (h *FactoryHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.factory.Activate)
}

func (h *FactoryHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string, common.Address) error) {
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

	if err := op(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"market_id": id, "status": "ok"})
}

// Pause halts new market creation. Pauser only.
// POST /api/admin/pause
func (h *FactoryHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.pauseToggle(w, r, h.factory.Pause)
}

// Unpause resumes market creation. Pauser only.
// POST /api/admin/unpause
func (h *FactoryHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.pauseToggle(w, r, h.factory.Unpause)
}

func (h *FactoryHandler) pauseToggle(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address) error) {
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

	if err := op(r.Context(), caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"paused": h.factory.Paused()})
}

// bondResponse is the wire shape of a creator bond record.
type bondResponse struct {
	MarketID   string     `json:"market_id"`
	Creator    string     `json:"creator"`
	HeldAmount string     `json:"held_amount"`
	EscrowedAt time.Time  `json:"escrowed_at"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

func toBondResponse(b domain.BondRecord) bondResponse {
	return bondResponse{
		MarketID:   b.MarketID,
		Creator:    b.Creator.Hex(),
		HeldAmount: amountString(b.HeldAmount),
		EscrowedAt: b.EscrowedAt,
		RefundedAt: b.RefundedAt,
	}
}

// GetBond returns the creator bond record for a market.
// GET /api/markets/{id}/bond
func (h *FactoryHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	bond, err := h.factory.HeldBond(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toBondResponse(bond))
}

// RefundBond releases the creator bond after finalization.
// POST /api/markets/{id}/bond-refund
func (h *FactoryHandler) RefundBond(w http.ResponseWriter, r *http.Request) {
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

	released, err := h.factory.RefundCreatorBond(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toBondResponse(*released))
}

// TotalBonds returns the sum of all currently escrowed creator bonds.
// GET /api/bonds/total
func (h *FactoryHandler) TotalBonds(w http.ResponseWriter, r *http.Request) {
	total, err := h.factory.TotalHeldBonds(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"total_held": amountString(total)})
}
