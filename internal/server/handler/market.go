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

// MarketService defines the read-side methods the market handler requires
// from the service layer. It is declared locally so the handler package does
// not depend on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Odds(ctx context.Context, marketID string) (int64, int64, error)
	Position(ctx context.Context, marketID string, user common.Address) (domain.Position, error)
	Payout(ctx context.Context, marketID string, user common.Address) (*big.Int, error)
}

// MarketHandler serves market read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketResponse is the wire shape of a market. Wad amounts are rendered as
// base-10 strings so JavaScript clients never lose precision.
type marketResponse struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	YesLabel    string `json:"yes_label"`
	NoLabel     string `json:"no_label"`

	CurveID string `json:"curve_id"`

	State   string `json:"state"`
	Outcome string `json:"outcome,omitempty"`

	PoolYes     string `json:"pool_yes"`
	PoolNo      string `json:"pool_no"`
	SharesYes   string `json:"shares_yes"`
	SharesNo    string `json:"shares_no"`
	TotalVolume string `json:"total_volume"`
	FeesAccrued string `json:"fees_accrued"`

	Creator string `json:"creator"`

	EndTime        time.Time `json:"end_time"`
	ResolutionTime time.Time `json:"resolution_time"`

	ProposedOutcome string     `json:"proposed_outcome,omitempty"`
	ProposedBy      string     `json:"proposed_by,omitempty"`
	ProposalAt      *time.Time `json:"proposal_at,omitempty"`
	Escalated       bool       `json:"escalated,omitempty"`

	Snapshot *snapshotResponse `json:"snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// snapshotResponse is the wire shape of a payout snapshot.
type snapshotResponse struct {
	WinningOutcome string    `json:"winning_outcome"`
	TotalPool      string    `json:"total_pool"`
	WinningPool    string    `json:"winning_pool"`
	WinningShares  string    `json:"winning_shares"`
	FinalizedAt    time.Time `json:"finalized_at"`
}

// positionResponse is the wire shape of a position.
type positionResponse struct {
	MarketID      string    `json:"market_id"`
	User          string    `json:"user"`
	SharesYes     string    `json:"shares_yes"`
	SharesNo      string    `json:"shares_no"`
	TotalInvested string    `json:"total_invested"`
	Claimed       bool      `json:"claimed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func amountString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func toMarketResponse(m domain.Market) marketResponse {
	resp := marketResponse{
		ID:              m.ID,
		Question:        m.Question,
		Description:     m.Description,
		Category:        m.Category,
		YesLabel:        m.YesLabel,
		NoLabel:         m.NoLabel,
		CurveID:         m.CurveID,
		State:           string(m.State),
		Outcome:         string(m.Outcome),
		PoolYes:         amountString(m.PoolYes),
		PoolNo:          amountString(m.PoolNo),
		SharesYes:       amountString(m.SharesYes),
		SharesNo:        amountString(m.SharesNo),
		TotalVolume:     amountString(m.TotalVolume),
		FeesAccrued:     amountString(m.FeesAccrued),
		Creator:         m.Creator.Hex(),
		EndTime:         m.EndTime,
		ResolutionTime:  m.ResolutionTime,
		ProposedOutcome: string(m.ProposedOutcome),
		Escalated:       m.Escalated,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if !m.ProposalAt.IsZero() {
		at := m.ProposalAt
		resp.ProposalAt = &at
		resp.ProposedBy = m.ProposedBy.Hex()
	}
	if m.Snapshot != nil {
		resp.Snapshot = &snapshotResponse{
			WinningOutcome: string(m.Snapshot.WinningOutcome),
			TotalPool:      amountString(m.Snapshot.TotalPool),
			WinningPool:    amountString(m.Snapshot.WinningPool),
			WinningShares:  amountString(m.Snapshot.WinningShares),
			FinalizedAt:    m.Snapshot.FinalizedAt,
		}
	}
	return resp
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		MarketID:      p.MarketID,
		User:          p.User.Hex(),
		SharesYes:     amountString(p.SharesYes),
		SharesNo:      amountString(p.SharesNo),
		TotalInvested: amountString(p.TotalInvested),
		Claimed:       p.Claimed,
		UpdatedAt:     p.UpdatedAt,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns markets with pagination, optionally filtered by state.
// GET /api/markets?state=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

// GetOdds returns the current implied odds for both sides in basis points.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	yes, no, err := h.markets.Odds(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"yes_bps":   yes,
		"no_bps":    no,
	})
}

// GetPosition returns a user's position in a market. Users with no position
// get an empty one rather than a 404.
// GET /api/markets/{id}/position?address=0x...
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	addr, ok := parseAddress(r.URL.Query().Get("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	pos, err := h.markets.Position(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// GetPayout returns the amount a user would receive from a finalized or
// cancelled market, before claiming.
// GET /api/markets/{id}/payout?address=0x...
func (h *MarketHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	addr, ok := parseAddress(r.URL.Query().Get("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	payout, err := h.markets.Payout(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"user":      addr.Hex(),
		"payout":    amountString(payout),
	})
}
