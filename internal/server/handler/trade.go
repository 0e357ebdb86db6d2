package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/engine"
)

// TradeService defines the write-side market operations the trade handler
// requires from the service layer.
type TradeService interface {
	PlaceBet(ctx context.Context, marketID string, bettor common.Address, outcome domain.Outcome, amount *big.Int, minOddsBps int64) (*engine.BetResult, error)
	SellShares(ctx context.Context, marketID string, seller common.Address, outcome domain.Outcome, shares *big.Int) (*engine.SellResult, error)
	ClaimWinnings(ctx context.Context, marketID string, claimer common.Address) (*big.Int, error)
	ClaimRefund(ctx context.Context, marketID string, claimer common.Address) (*big.Int, error)
}

// TradeHandler serves bet, sell and claim endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

type betRequest struct {
	Bettor     string `json:"bettor"`
	Outcome    string `json:"outcome"`
	Amount     string `json:"amount"`
	MinOddsBps int64  `json:"min_odds_bps,omitempty"`
}

type betResponse struct {
	MarketID    string `json:"market_id"`
	Shares      string `json:"shares"`
	NetStake    string `json:"net_stake"`
	Fee         string `json:"fee"`
	PriceYesBps int64  `json:"price_yes_bps"`
	PriceNoBps  int64  `json:"price_no_bps"`
}

// PlaceBet stakes an amount on one side of a market.
// POST /api/markets/{id}/bets
func (h *TradeHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req betRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	bettor, ok := parseAddress(req.Bettor)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bettor address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	res, err := h.trades.PlaceBet(r.Context(), id, bettor, domain.Outcome(req.Outcome), amount, req.MinOddsBps)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, betResponse{
		MarketID:    id,
		Shares:      amountString(res.Shares),
		NetStake:    amountString(res.NetStake),
		Fee:         amountString(res.Fee),
		PriceYesBps: res.PriceYesBps,
		PriceNoBps:  res.PriceNoBps,
	})
}

type sellRequest struct {
	Seller  string `json:"seller"`
	Outcome string `json:"outcome"`
	Shares  string `json:"shares"`
}

type sellResponse struct {
	MarketID    string `json:"market_id"`
	Refund      string `json:"refund"`
	PriceYesBps int64  `json:"price_yes_bps"`
	PriceNoBps  int64  `json:"price_no_bps"`
}

// SellShares sells previously bought shares back to the curve.
// POST /api/markets/{id}/sells
func (h *TradeHandler) SellShares(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	seller, ok := parseAddress(req.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid share amount")
		return
	}

	res, err := h.trades.SellShares(r.Context(), id, seller, domain.Outcome(req.Outcome), shares)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sellResponse{
		MarketID:    id,
		Refund:      amountString(res.Refund),
		PriceYesBps: res.PriceYesBps,
		PriceNoBps:  res.PriceNoBps,
	})
}

type claimRequest struct {
	Claimer string `json:"claimer"`
}

// ClaimWinnings pays out a winning position from a finalized market.
// POST /api/markets/{id}/claim
func (h *TradeHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, false)
}

// ClaimRefund returns a bettor's stake from a cancelled market.
// POST /api/markets/{id}/refund
func (h *TradeHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, true)
}

func (h *TradeHandler) claim(w http.ResponseWriter, r *http.Request, refund bool) {
	id := pathParam(r, "id")

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claimer, ok := parseAddress(req.Claimer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid claimer address")
		return
	}

	var (
		amount *big.Int
		err    error
	)
	if refund {
		amount, err = h.trades.ClaimRefund(r.Context(), id, claimer)
	} else {
		amount, err = h.trades.ClaimWinnings(r.Context(), id, claimer)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"claimer":   claimer.Hex(),
		"amount":    amountString(amount),
	})
}
