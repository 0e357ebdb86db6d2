package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/curve"
	"github.com/kektech/marketd/internal/domain"
)

// CurveService fronts the curve registry with audit logging and event
// publication for the admin surface.
type CurveService struct {
	registry *curve.Registry
	bus      domain.SignalBus
	audit    domain.AuditStore
	clock    domain.Clock
	logger   *slog.Logger
}

// NewCurveService creates a CurveService with all required dependencies.
func NewCurveService(
	registry *curve.Registry,
	bus domain.SignalBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *CurveService {
	return &CurveService{
		registry: registry,
		bus:      bus,
		audit:    audit,
		clock:    clock,
		logger:   logger.With(slog.String("component", "curve_service")),
	}
}

// List returns the curve catalog.
func (s *CurveService) List(ctx context.Context) ([]domain.CurveRegistration, error) {
	return s.registry.List(ctx)
}

// Register adds a new catalog entry reusing the implementation registered
// under baseID. Admin only.
func (s *CurveService) Register(ctx context.Context, caller common.Address, id, version, baseID string) (domain.CurveRegistration, error) {
	impl, err := s.registry.Lookup(baseID)
	if err != nil {
		return domain.CurveRegistration{}, err
	}
	reg, err := s.registry.Register(ctx, caller, id, version, impl)
	if err != nil {
		return domain.CurveRegistration{}, err
	}
	if err := s.audit.Log(ctx, "curve_registered", map[string]any{
		"curve_id": id,
		"version":  version,
		"base_id":  baseID,
		"by":       caller.Hex(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	publishEvent(ctx, s.bus, s.logger, domain.TopicCurveRegistered, domain.CurveStatusEvent{
		CurveID:   reg.ID,
		Name:      reg.Name,
		Active:    reg.Active,
		Timestamp: s.clock.Now(),
	})
	return reg, nil
}

// SetActive toggles a catalog entry's activation flag. Admin only.
func (s *CurveService) SetActive(ctx context.Context, caller common.Address, id string, active bool) error {
	if err := s.registry.SetActive(ctx, caller, id, active); err != nil {
		return err
	}
	if err := s.audit.Log(ctx, "curve_status_changed", map[string]any{
		"curve_id": id,
		"active":   active,
		"by":       caller.Hex(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	publishEvent(ctx, s.bus, s.logger, domain.TopicCurveStatusChanged, domain.CurveStatusEvent{
		CurveID:   id,
		Active:    active,
		Timestamp: s.clock.Now(),
	})
	return nil
}
