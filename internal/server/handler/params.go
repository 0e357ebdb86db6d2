package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// ParamService defines the parameter operations the params handler requires
// from the service layer.
type ParamService interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, caller common.Address, key, value string) error
}

// ParamHandler serves the protocol tunables endpoints.
type ParamHandler struct {
	params ParamService
	logger *slog.Logger
}

// NewParamHandler creates a ParamHandler with the given service and logger.
func NewParamHandler(params ParamService, logger *slog.Logger) *ParamHandler {
	return &ParamHandler{
		params: params,
		logger: logger,
	}
}

// ListParams returns all tunables with stored overrides applied.
// GET /api/params
func (h *ParamHandler) ListParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.params.All(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"params": params})
}

type setParamRequest struct {
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

// SetParam updates a single tunable. Admin only.
// PUT /api/params/{key}
func (h *ParamHandler) SetParam(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")

	var req setParamRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.params.Set(r.Context(), caller, key, req.Value); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": req.Value,
	})
}
