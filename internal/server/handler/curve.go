package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// CurveService defines the curve catalog operations the curve handler
// requires from the service layer.
type CurveService interface {
	List(ctx context.Context) ([]domain.CurveRegistration, error)
	Register(ctx context.Context, caller common.Address, id, version, baseID string) (domain.CurveRegistration, error)
	SetActive(ctx context.Context, caller common.Address, id string, active bool) error
}

// CurveHandler serves the bonding-curve catalog endpoints.
type CurveHandler struct {
	curves CurveService
	logger *slog.Logger
}

// NewCurveHandler creates a CurveHandler with the given service and logger.
func NewCurveHandler(curves CurveService, logger *slog.Logger) *CurveHandler {
	return &CurveHandler{
		curves: curves,
		logger: logger,
	}
}

// curveResponse is the wire shape of one curve catalog entry.
type curveResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

func toCurveResponse(c domain.CurveRegistration) curveResponse {
	return curveResponse{
		ID:           c.ID,
		Name:         c.Name,
		Version:      c.Version,
		Active:       c.Active,
		RegisteredAt: c.RegisteredAt,
	}
}

// ListCurves returns the full curve catalog, including deactivated entries.
// GET /api/curves
func (h *CurveHandler) ListCurves(w http.ResponseWriter, r *http.Request) {
	curves, err := h.curves.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]curveResponse, 0, len(curves))
	for _, c := range curves {
		out = append(out, toCurveResponse(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{"curves": out})
}

type registerCurveRequest struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Version string `json:"version"`
	// Base names an already-registered curve whose pricing implementation the
	// new entry reuses.
	Base string `json:"base"`
}

// RegisterCurve adds a catalog entry backed by an existing implementation.
// Admin only.
// POST /api/curves
func (h *CurveHandler) RegisterCurve(w http.ResponseWriter, r *http.Request) {
	var req registerCurveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if req.ID == "" || req.Base == "" {
		writeError(w, http.StatusBadRequest, "id and base are required")
		return
	}

	reg, err := h.curves.Register(r.Context(), caller, req.ID, req.Version, req.Base)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCurveResponse(reg))
}

type curveStatusRequest struct {
	Caller string `json:"caller"`
	Active bool   `json:"active"`
}

// SetCurveStatus toggles a curve's activation flag. Deactivated curves reject
// new markets but keep pricing existing ones. Admin only.
// PUT /api/curves/{id}/status
func (h *CurveHandler) SetCurveStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req curveStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.curves.SetActive(r.Context(), caller, id, req.Active); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"curve_id": id,
		"active":   req.Active,
	})
}
