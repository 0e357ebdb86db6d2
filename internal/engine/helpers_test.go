package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
)

var (
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	operatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	resolverAddr = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	pauserAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	aliceAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bobAddr      = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

var testStart = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeRoles struct {
	grants map[common.Address][]string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{grants: map[common.Address][]string{
		adminAddr:    {domain.RoleAdmin},
		operatorAddr: {domain.RoleOperator},
		resolverAddr: {domain.RoleResolver},
		pauserAddr:   {domain.RolePauser},
	}}
}

func (f *fakeRoles) HasRole(_ context.Context, caller common.Address, role string) (bool, error) {
	for _, r := range f.grants[caller] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

type fakeParams struct {
	amounts   map[string]*big.Int
	ints      map[string]int64
	durations map[string]time.Duration
	bools     map[string]bool
}

func newFakeParams() *fakeParams {
	return &fakeParams{
		amounts: map[string]*big.Int{
			domain.ParamMinimumBet:     big.NewInt(10_000_000_000_000_000),  // 0.01
			domain.ParamMaximumBet:     domain.Wad(100),                     // 100
			domain.ParamMinCreatorBond: big.NewInt(100_000_000_000_000_000), // 0.1
			domain.ParamMinDisputeBond: big.NewInt(100_000_000_000_000_000), // 0.1
		},
		ints: map[string]int64{
			domain.ParamPlatformFeePercent: 500,
		},
		durations: map[string]time.Duration{
			domain.ParamDisputeWindow: 48 * time.Hour,
		},
		bools: map[string]bool{
			domain.ParamRequireApproval:      false,
			domain.ParamMarketCreationActive: true,
			domain.ParamEmergencyPause:       false,
		},
	}
}

func (f *fakeParams) GetAmount(_ context.Context, key string) (*big.Int, error) {
	v, ok := f.amounts[key]
	if !ok {
		return nil, fmt.Errorf("param %s: %w", key, domain.ErrNotFound)
	}
	return new(big.Int).Set(v), nil
}

func (f *fakeParams) GetInt(_ context.Context, key string) (int64, error) {
	v, ok := f.ints[key]
	if !ok {
		return 0, fmt.Errorf("param %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeParams) GetDuration(_ context.Context, key string) (time.Duration, error) {
	v, ok := f.durations[key]
	if !ok {
		return 0, fmt.Errorf("param %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeParams) GetBool(_ context.Context, key string) (bool, error) {
	v, ok := f.bools[key]
	if !ok {
		return false, fmt.Errorf("param %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (f *fakeParams) Set(_ context.Context, _, _ string) error { return nil }
func (f *fakeParams) All(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

type fakeLedger struct {
	balances map[common.Address]*big.Int
}

func newFakeLedger() *fakeLedger {
	l := &fakeLedger{balances: make(map[common.Address]*big.Int)}
	for _, a := range []common.Address{aliceAddr, bobAddr} {
		l.balances[a] = domain.Wad(1000)
	}
	return l
}

func (l *fakeLedger) balance(a common.Address) *big.Int {
	if b, ok := l.balances[a]; ok {
		return b
	}
	b := new(big.Int)
	l.balances[a] = b
	return b
}

func (l *fakeLedger) Deposit(_ context.Context, a common.Address, amount *big.Int) error {
	l.balance(a).Add(l.balance(a), amount)
	return nil
}

func (l *fakeLedger) Withdraw(_ context.Context, a common.Address, amount *big.Int) error {
	b := l.balance(a)
	if b.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	b.Sub(b, amount)
	return nil
}

func (l *fakeLedger) Balance(_ context.Context, a common.Address) (*big.Int, error) {
	return new(big.Int).Set(l.balance(a)), nil
}

type memBondStore struct {
	rows map[string]domain.BondRecord
}

func newMemBondStore() *memBondStore {
	return &memBondStore{rows: make(map[string]domain.BondRecord)}
}

func (s *memBondStore) Create(_ context.Context, b domain.BondRecord) error {
	if _, ok := s.rows[b.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	b.HeldAmount = domain.CloneAmount(b.HeldAmount)
	s.rows[b.MarketID] = b
	return nil
}

func (s *memBondStore) Get(_ context.Context, marketID string) (domain.BondRecord, error) {
	row, ok := s.rows[marketID]
	if !ok {
		return domain.BondRecord{}, domain.ErrNotFound
	}
	return row, nil
}

func (s *memBondStore) Release(_ context.Context, marketID string, at time.Time) (domain.BondRecord, error) {
	row, ok := s.rows[marketID]
	if !ok {
		return domain.BondRecord{}, domain.ErrNotFound
	}
	if !row.Held() {
		return domain.BondRecord{}, domain.ErrNoBondHeld
	}
	released := row
	released.HeldAmount = domain.CloneAmount(row.HeldAmount)
	row.HeldAmount = new(big.Int)
	row.RefundedAt = &at
	s.rows[marketID] = row
	return released, nil
}

func (s *memBondStore) TotalHeld(_ context.Context) (*big.Int, error) {
	total := new(big.Int)
	for _, row := range s.rows {
		if row.Held() {
			total.Add(total, row.HeldAmount)
		}
	}
	return total, nil
}

type memDisputeStore struct {
	rows map[string]domain.DisputeRecord
}

func newMemDisputeStore() *memDisputeStore {
	return &memDisputeStore{rows: make(map[string]domain.DisputeRecord)}
}

func (s *memDisputeStore) Create(_ context.Context, d domain.DisputeRecord) error {
	s.rows[d.ID] = d
	return nil
}

func (s *memDisputeStore) Settle(_ context.Context, id string, status domain.DisputeStatus, at time.Time) error {
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = status
	row.SettledAt = &at
	s.rows[id] = row
	return nil
}

func (s *memDisputeStore) GetActive(_ context.Context, marketID string) (domain.DisputeRecord, error) {
	for _, row := range s.rows {
		if row.MarketID == marketID && row.Status == domain.DisputeActive {
			return row, nil
		}
	}
	return domain.DisputeRecord{}, domain.ErrNotFound
}

func (s *memDisputeStore) ListByMarket(_ context.Context, marketID string) ([]domain.DisputeRecord, error) {
	var out []domain.DisputeRecord
	for _, row := range s.rows {
		if row.MarketID == marketID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memDisputeStore) Aggregate(_ context.Context, marketID string) (int, *big.Int, error) {
	count := 0
	total := new(big.Int)
	for _, row := range s.rows {
		if row.MarketID == marketID {
			count++
			total.Add(total, row.Bond)
		}
	}
	return count, total, nil
}

// testCurves serves the builtin strategies without a backing store.
type testCurves struct {
	inactive map[string]bool
}

func (c *testCurves) impl(id string) (curve.BondingCurve, bool) {
	switch id {
	case curve.IDLMSR:
		return curve.LMSR{}, true
	case curve.IDLinear:
		return curve.Linear{}, true
	case curve.IDExponential:
		return curve.Exponential{}, true
	case curve.IDSigmoid:
		return curve.Sigmoid{}, true
	}
	return nil, false
}

func (c *testCurves) Resolve(_ context.Context, id string) (curve.BondingCurve, domain.CurveRegistration, error) {
	impl, ok := c.impl(id)
	if !ok {
		return nil, domain.CurveRegistration{}, domain.ErrCurveNotFound
	}
	if c.inactive[id] {
		return nil, domain.CurveRegistration{}, domain.ErrCurveInactive
	}
	return impl, domain.CurveRegistration{ID: id, Name: impl.Name(), Active: true}, nil
}

func (c *testCurves) Lookup(id string) (curve.BondingCurve, error) {
	impl, ok := c.impl(id)
	if !ok {
		return nil, domain.ErrCurveNotFound
	}
	return impl, nil
}

type fixture struct {
	engine  *Engine
	factory *Factory
	manager *ResolutionManager
	roles   *fakeRoles
	params  *fakeParams
	ledger  *fakeLedger
	bonds   *memBondStore
	dispute *memDisputeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roles := newFakeRoles()
	params := newFakeParams()
	ledger := newFakeLedger()
	bonds := newMemBondStore()
	disputes := newMemDisputeStore()
	curves := &testCurves{inactive: map[string]bool{}}
	log := slog.Default()

	eng := New(curves, roles, params, ledger, treasuryAddr, log)
	return &fixture{
		engine:  eng,
		factory: NewFactory(curves, roles, params, ledger, bonds, log),
		manager: NewResolutionManager(eng, params, ledger, disputes, BondWeightedPolicy{Multiple: 3}, treasuryAddr, log),
		roles:   roles,
		params:  params,
		ledger:  ledger,
		bonds:   bonds,
		dispute: disputes,
	}
}

// activeMarket returns a fresh LMSR market open for trading.
func activeMarket(t *testing.T) *domain.Market {
	t.Helper()
	params, err := curve.EncodeLMSRParams(domain.Wad(100))
	if err != nil {
		t.Fatalf("encode params: %v", err)
	}
	return &domain.Market{
		ID:             "mkt-1",
		Question:       "Will it ship this quarter?",
		YesLabel:       "Yes",
		NoLabel:        "No",
		CurveID:        curve.IDLMSR,
		CurveParams:    params,
		State:          domain.MarketActive,
		PoolYes:        new(big.Int),
		PoolNo:         new(big.Int),
		SharesYes:      new(big.Int),
		SharesNo:       new(big.Int),
		TotalVolume:    new(big.Int),
		FeesAccrued:    new(big.Int),
		Creator:        aliceAddr,
		EndTime:        testStart.Add(72 * time.Hour),
		ResolutionTime: testStart.Add(96 * time.Hour),
		CreatedAt:      testStart,
		UpdatedAt:      testStart,
	}
}

func checkVolumeInvariant(t *testing.T, m *domain.Market) {
	t.Helper()
	sum := new(big.Int).Add(m.PoolYes, m.PoolNo)
	if m.TotalVolume.Cmp(sum) != 0 {
		t.Errorf("totalVolume = %v, want poolYes+poolNo = %v", m.TotalVolume, sum)
	}
}
