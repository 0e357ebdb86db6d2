package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// knownParams maps parameter keys to a validator for incoming values.
var knownParams = map[string]func(string) bool{
	domain.ParamMinimumBet:             validAmount,
	domain.ParamMaximumBet:             validAmount,
	domain.ParamPlatformFeePercent:     validInt,
	domain.ParamMinCreatorBond:         validAmount,
	domain.ParamDisputeWindow:          validInt,
	domain.ParamMinDisputeBond:         validAmount,
	domain.ParamAgreementThreshold:     validInt,
	domain.ParamDisagreementThreshold:  validInt,
	domain.ParamEscalationBondMultiple: validInt,
	domain.ParamRequireApproval:        validBool,
	domain.ParamMarketCreationActive:   validBool,
	domain.ParamEmergencyPause:         validBool,
}

func validAmount(v string) bool {
	n, ok := new(big.Int).SetString(v, 10)
	return ok && n.Sign() >= 0
}

func validInt(v string) bool {
	n, err := strconv.ParseInt(v, 10, 64)
	return err == nil && n >= 0
}

func validBool(v string) bool {
	_, err := strconv.ParseBool(v)
	return err == nil
}

// ParamService gates parameter writes behind the admin role and audits every
// change.
type ParamService struct {
	params domain.ParamStore
	roles  domain.RoleDirectory
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewParamService creates a ParamService with all required dependencies.
func NewParamService(
	params domain.ParamStore,
	roles domain.RoleDirectory,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ParamService {
	return &ParamService{
		params: params,
		roles:  roles,
		audit:  audit,
		logger: logger.With(slog.String("component", "param_service")),
	}
}

// All returns every parameter with defaults overlaid by stored overrides.
func (s *ParamService) All(ctx context.Context) (map[string]string, error) {
	return s.params.All(ctx)
}

// Set updates a tunable. The key must be known, the value must parse for the
// key's type, and the caller must hold the admin role.
func (s *ParamService) Set(ctx context.Context, caller common.Address, key, value string) error {
	valid, ok := knownParams[key]
	if !ok {
		return fmt.Errorf("param_service: set %q: unknown key: %w", key, domain.ErrValidation)
	}
	if !valid(value) {
		return fmt.Errorf("param_service: set %q=%q: %w", key, value, domain.ErrInvalidParamValue)
	}

	isAdmin, err := s.roles.HasRole(ctx, caller, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("param_service: role check: %w", err)
	}
	if !isAdmin {
		return fmt.Errorf("param_service: set %q: %w", key, domain.ErrUnauthorized)
	}

	if err := s.params.Set(ctx, key, value); err != nil {
		return fmt.Errorf("param_service: set %q: %w", key, err)
	}

	if err := s.audit.Log(ctx, "param_updated", map[string]any{
		"key":   key,
		"value": value,
		"by":    caller.Hex(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "parameter updated",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("by", caller.Hex()),
	)
	return nil
}
