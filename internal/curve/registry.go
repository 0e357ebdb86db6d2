package curve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// Registry catalogs the pricing strategies markets may bind to. The strategy
// implementations live in process; the catalog rows live in the store so
// activation state survives restarts. Deactivating an entry only blocks new
// bindings: markets already bound keep pricing through Lookup.
type Registry struct {
	roles domain.RoleDirectory
	store domain.CurveStore
	clock domain.Clock
	log   *slog.Logger

	mu    sync.RWMutex
	impls map[string]BondingCurve
}

func NewRegistry(roles domain.RoleDirectory, store domain.CurveStore, clock domain.Clock, log *slog.Logger) *Registry {
	return &Registry{
		roles: roles,
		store: store,
		clock: clock,
		log:   log.With("component", "curve_registry"),
		impls: make(map[string]BondingCurve),
	}
}

// Bootstrap registers the built-in strategies, skipping any already present
// in the catalog. Safe to call on every startup.
func (r *Registry) Bootstrap(ctx context.Context) error {
	builtin := []struct {
		id   string
		impl BondingCurve
	}{
		{IDLMSR, LMSR{}},
		{IDLinear, Linear{}},
		{IDExponential, Exponential{}},
		{IDSigmoid, Sigmoid{}},
	}
	for _, b := range builtin {
		r.mu.Lock()
		r.impls[b.id] = b.impl
		r.mu.Unlock()

		if _, err := r.store.Get(ctx, b.id); err == nil {
			continue
		}
		reg := domain.CurveRegistration{
			ID:           b.id,
			Name:         b.impl.Name(),
			Version:      "1.0.0",
			Active:       true,
			RegisteredAt: r.clock.Now(),
		}
		if err := r.store.Create(ctx, reg); err != nil {
			return fmt.Errorf("curve registry: bootstrap %s: %w", b.id, err)
		}
		r.log.Info("registered builtin curve", "id", b.id, "name", reg.Name)
	}
	return nil
}

// Register adds a new strategy under id. Admin only; duplicate ids fail with
// ErrCurveExists.
func (r *Registry) Register(ctx context.Context, caller common.Address, id, version string, impl BondingCurve) (domain.CurveRegistration, error) {
	if err := r.requireAdmin(ctx, caller); err != nil {
		return domain.CurveRegistration{}, err
	}
	if id == "" || impl == nil {
		return domain.CurveRegistration{}, domain.ErrInvalidParamValue
	}
	existing, err := r.store.List(ctx)
	if err != nil {
		return domain.CurveRegistration{}, fmt.Errorf("curve registry: register %s: %w", id, err)
	}
	for _, reg := range existing {
		if reg.Name == impl.Name() {
			return domain.CurveRegistration{}, domain.ErrCurveExists
		}
	}

	r.mu.Lock()
	if _, dup := r.impls[id]; dup {
		r.mu.Unlock()
		return domain.CurveRegistration{}, domain.ErrCurveExists
	}
	r.impls[id] = impl
	r.mu.Unlock()

	reg := domain.CurveRegistration{
		ID:           id,
		Name:         impl.Name(),
		Version:      version,
		Active:       true,
		RegisteredAt: r.clock.Now(),
	}
	if err := r.store.Create(ctx, reg); err != nil {
		r.mu.Lock()
		delete(r.impls, id)
		r.mu.Unlock()
		return domain.CurveRegistration{}, fmt.Errorf("curve registry: register %s: %w", id, err)
	}
	r.log.Info("registered curve", "id", id, "version", version, "caller", caller.Hex())
	return reg, nil
}

// SetActive flips the activation flag on a catalog entry. Admin only.
func (r *Registry) SetActive(ctx context.Context, caller common.Address, id string, active bool) error {
	if err := r.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if _, err := r.store.Get(ctx, id); err != nil {
		return domain.ErrCurveNotFound
	}
	if err := r.store.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("curve registry: set active %s: %w", id, err)
	}
	r.log.Info("curve activation changed", "id", id, "active", active, "caller", caller.Hex())
	return nil
}

// Resolve returns the strategy for a NEW market binding: the entry must
// exist and be active.
func (r *Registry) Resolve(ctx context.Context, id string) (BondingCurve, domain.CurveRegistration, error) {
	reg, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, domain.CurveRegistration{}, domain.ErrCurveNotFound
	}
	if !reg.Active {
		return nil, domain.CurveRegistration{}, domain.ErrCurveInactive
	}
	impl, err := r.Lookup(id)
	if err != nil {
		return nil, domain.CurveRegistration{}, err
	}
	return impl, reg, nil
}

// Lookup returns the strategy implementation regardless of activation, for
// markets already bound to it.
func (r *Registry) Lookup(id string) (BondingCurve, error) {
	r.mu.RLock()
	impl, ok := r.impls[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrCurveNotFound
	}
	return impl, nil
}

// List returns the full catalog.
func (r *Registry) List(ctx context.Context) ([]domain.CurveRegistration, error) {
	regs, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("curve registry: list: %w", err)
	}
	return regs, nil
}

func (r *Registry) requireAdmin(ctx context.Context, caller common.Address) error {
	ok, err := r.roles.HasRole(ctx, caller, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("curve registry: role check: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}
