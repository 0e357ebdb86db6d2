package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
)

// Creation limits.
const (
	maxQuestionLen    = 500
	maxDescriptionLen = 2000
	maxLabelLen       = 100
	maxMarketHorizon  = 365 * 24 * time.Hour
)

// defaultLiquidity is the LMSR depth bound when the creator does not pick a
// curve: 100 whole units.
var defaultLiquidity = domain.Wad(100)

// Factory validates creation requests, escrows the creator bond and
// instantiates markets. It fails closed: a pause or a disabled creation flag
// blocks both the plain and the curve-selecting path.
type Factory struct {
	curves CurveSource
	roles  domain.RoleDirectory
	params domain.ParamStore
	ledger domain.Ledger
	bonds  domain.BondStore
	log    *slog.Logger

	mu     sync.RWMutex
	paused bool
}

func NewFactory(curves CurveSource, roles domain.RoleDirectory, params domain.ParamStore, ledger domain.Ledger, bonds domain.BondStore, log *slog.Logger) *Factory {
	return &Factory{
		curves: curves,
		roles:  roles,
		params: params,
		ledger: ledger,
		bonds:  bonds,
		log:    log.With("component", "factory"),
	}
}

// CreateMarket instantiates a market on the default curve with the default
// liquidity depth.
func (f *Factory) CreateMarket(ctx context.Context, now time.Time, creator common.Address, cfg domain.MarketConfig, bond *big.Int) (*domain.Market, *domain.BondRecord, error) {
	params, err := curve.EncodeLMSRParams(defaultLiquidity)
	if err != nil {
		return nil, nil, fmt.Errorf("factory: default params: %w", err)
	}
	return f.CreateMarketWithCurve(ctx, now, creator, cfg, curve.DefaultID, params, bond)
}

// CreateMarketWithCurve instantiates a market on an explicitly chosen curve.
func (f *Factory) CreateMarketWithCurve(ctx context.Context, now time.Time, creator common.Address, cfg domain.MarketConfig, curveID string, params domain.CurveParams, bond *big.Int) (*domain.Market, *domain.BondRecord, error) {
	if err := f.creationOpen(ctx); err != nil {
		return nil, nil, err
	}
	if err := validateConfig(now, cfg); err != nil {
		return nil, nil, err
	}

	minBond, err := f.params.GetAmount(ctx, domain.ParamMinCreatorBond)
	if err != nil {
		return nil, nil, fmt.Errorf("factory: create: %w", err)
	}
	if bond == nil || bond.Cmp(minBond) < 0 {
		return nil, nil, domain.ErrInsufficientBond
	}

	impl, reg, err := f.curves.Resolve(ctx, curveID)
	if err != nil {
		return nil, nil, err
	}
	if ok, reason := impl.ValidateParams(params); !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrInvalidCurveParams, reason)
	}

	state := domain.MarketActive
	requireApproval, err := f.params.GetBool(ctx, domain.ParamRequireApproval)
	if err != nil {
		return nil, nil, fmt.Errorf("factory: create: %w", err)
	}
	if requireApproval {
		state = domain.MarketProposed
	}

	m := &domain.Market{
		ID:             uuid.NewString(),
		Question:       cfg.Question,
		Description:    cfg.Description,
		Category:       cfg.Category,
		YesLabel:       cfg.YesLabel,
		NoLabel:        cfg.NoLabel,
		CurveID:        reg.ID,
		CurveParams:    params.Clone(),
		State:          state,
		PoolYes:        new(big.Int),
		PoolNo:         new(big.Int),
		SharesYes:      new(big.Int),
		SharesNo:       new(big.Int),
		TotalVolume:    new(big.Int),
		FeesAccrued:    new(big.Int),
		Creator:        creator,
		EndTime:        cfg.EndTime,
		ResolutionTime: cfg.ResolutionTime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	record := &domain.BondRecord{
		MarketID:   m.ID,
		Creator:    creator,
		HeldAmount: domain.CloneAmount(bond),
		EscrowedAt: now,
	}
	// Collect the bond first so a creator who cannot fund it never leaves a
	// durable escrow row behind. If the row write fails the withdrawal is
	// returned, keeping ledger and escrow in step.
	if err := f.ledger.Withdraw(ctx, creator, bond); err != nil {
		return nil, nil, fmt.Errorf("factory: escrow bond: %w", err)
	}
	if err := f.bonds.Create(ctx, *record); err != nil {
		if depErr := f.ledger.Deposit(ctx, creator, bond); depErr != nil {
			f.log.Error("bond return after failed escrow write",
				"market_id", m.ID,
				"creator", creator.Hex(),
				"error", depErr)
		}
		return nil, nil, fmt.Errorf("factory: escrow bond: %w", err)
	}

	f.log.Info("market created",
		"market_id", m.ID,
		"creator", creator.Hex(),
		"curve", reg.ID,
		"state", string(state))
	return m, record, nil
}

// Pause halts market creation. PAUSER role.
func (f *Factory) Pause(ctx context.Context, caller common.Address) error {
	return f.setPaused(ctx, caller, true)
}

// Unpause resumes market creation. PAUSER role.
func (f *Factory) Unpause(ctx context.Context, caller common.Address) error {
	return f.setPaused(ctx, caller, false)
}

// Paused reports the current pause flag.
func (f *Factory) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

// RefundCreatorBond releases an escrowed bond back to the creator. OPERATOR
// role. The record is zeroed before value moves, so a second refund fails
// with ErrNoBondHeld.
func (f *Factory) RefundCreatorBond(ctx context.Context, now time.Time, caller common.Address, marketID string) (*domain.BondRecord, error) {
	ok, err := f.roles.HasRole(ctx, caller, domain.RoleOperator)
	if err != nil {
		return nil, fmt.Errorf("factory: role check: %w", err)
	}
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	released, err := f.bonds.Release(ctx, marketID, now)
	if err != nil {
		return nil, err
	}
	if err := f.ledger.Deposit(ctx, released.Creator, released.HeldAmount); err != nil {
		return nil, fmt.Errorf("factory: refund bond: %w", err)
	}
	f.log.Info("creator bond refunded",
		"market_id", marketID,
		"creator", released.Creator.Hex(),
		"amount", released.HeldAmount.String())
	return &released, nil
}

// HeldBond returns the bond record for a market.
func (f *Factory) HeldBond(ctx context.Context, marketID string) (domain.BondRecord, error) {
	return f.bonds.Get(ctx, marketID)
}

// TotalHeldBonds returns the sum of all escrowed creator bonds.
func (f *Factory) TotalHeldBonds(ctx context.Context) (*big.Int, error) {
	return f.bonds.TotalHeld(ctx)
}

func (f *Factory) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	ok, err := f.roles.HasRole(ctx, caller, domain.RolePauser)
	if err != nil {
		return fmt.Errorf("factory: role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
	f.log.Warn("factory pause toggled", "paused", paused, "caller", caller.Hex())
	return nil
}

func (f *Factory) creationOpen(ctx context.Context) error {
	if f.Paused() {
		return domain.ErrFactoryPaused
	}
	emergency, err := f.params.GetBool(ctx, domain.ParamEmergencyPause)
	if err != nil {
		return fmt.Errorf("factory: create: %w", err)
	}
	if emergency {
		return domain.ErrFactoryPaused
	}
	active, err := f.params.GetBool(ctx, domain.ParamMarketCreationActive)
	if err != nil {
		return fmt.Errorf("factory: create: %w", err)
	}
	if !active {
		return domain.ErrCreationDisabled
	}
	return nil
}

// validateConfig enforces the creation rules: question 1..500 chars,
// description up to 2000, labels 1..100 and distinct (case-sensitively, so
// "Yes" and "yes" are two labels), and now < endTime <= resolutionTime <=
// now + 365 days.
func validateConfig(now time.Time, cfg domain.MarketConfig) error {
	if n := len(cfg.Question); n < 1 || n > maxQuestionLen {
		return domain.ErrInvalidQuestion
	}
	if len(cfg.Description) > maxDescriptionLen {
		return domain.ErrInvalidDescription
	}
	for _, label := range []string{cfg.YesLabel, cfg.NoLabel} {
		if n := len(label); n < 1 || n > maxLabelLen {
			return domain.ErrInvalidOutcomeLabels
		}
	}
	if cfg.YesLabel == cfg.NoLabel {
		return domain.ErrInvalidOutcomeLabels
	}
	if !cfg.EndTime.After(now) {
		return domain.ErrInvalidEndTime
	}
	if cfg.ResolutionTime.Before(cfg.EndTime) {
		return domain.ErrInvalidEndTime
	}
	if cfg.ResolutionTime.After(now.Add(maxMarketHorizon)) {
		return domain.ErrInvalidResolutionTime
	}
	return nil
}
