package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

var (
	svcAdminAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	svcOtherAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testLogger   = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fakeParamStore struct {
	values map[string]string
	setErr error
}

func newFakeParamStore() *fakeParamStore {
	return &fakeParamStore{values: map[string]string{}}
}

func (f *fakeParamStore) GetAmount(_ context.Context, key string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(f.values[key], 10)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

func (f *fakeParamStore) GetInt(_ context.Context, key string) (int64, error) {
	n, ok := new(big.Int).SetString(f.values[key], 10)
	if !ok {
		return 0, domain.ErrNotFound
	}
	return n.Int64(), nil
}

func (f *fakeParamStore) GetDuration(ctx context.Context, key string) (time.Duration, error) {
	n, err := f.GetInt(ctx, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func (f *fakeParamStore) GetBool(_ context.Context, key string) (bool, error) {
	return f.values[key] == "true", nil
}

func (f *fakeParamStore) Set(_ context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeParamStore) All(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

type fakeRoles struct {
	admins map[common.Address]bool
	err    error
}

func (f *fakeRoles) HasRole(_ context.Context, caller common.Address, role string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if role == domain.RoleAdmin {
		return f.admins[caller], nil
	}
	return false, nil
}

type fakeAudit struct {
	events []string
	err    error
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestParamServiceSet(t *testing.T) {
	tests := []struct {
		name    string
		caller  common.Address
		key     string
		value   string
		wantErr error
	}{
		{"admin sets amount", svcAdminAddr, domain.ParamMinimumBet, "1000000000000000000", nil},
		{"admin sets flag", svcAdminAddr, domain.ParamEmergencyPause, "true", nil},
		{"admin sets bps", svcAdminAddr, domain.ParamPlatformFeePercent, "250", nil},
		{"unknown key", svcAdminAddr, "maxFrobs", "3", domain.ErrValidation},
		{"negative amount", svcAdminAddr, domain.ParamMinimumBet, "-1", domain.ErrInvalidParamValue},
		{"non-numeric amount", svcAdminAddr, domain.ParamMaximumBet, "lots", domain.ErrInvalidParamValue},
		{"non-bool flag", svcAdminAddr, domain.ParamRequireApproval, "maybe", domain.ErrInvalidParamValue},
		{"non-admin caller", svcOtherAddr, domain.ParamMinimumBet, "1", domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeParamStore()
			audit := &fakeAudit{}
			svc := NewParamService(store, &fakeRoles{admins: map[common.Address]bool{svcAdminAddr: true}}, audit, testLogger)

			err := svc.Set(context.Background(), tt.caller, tt.key, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if len(audit.events) != 0 {
					t.Error("rejected write still audited")
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if store.values[tt.key] != tt.value {
				t.Errorf("stored %q = %q, want %q", tt.key, store.values[tt.key], tt.value)
			}
			if len(audit.events) != 1 || audit.events[0] != "param_updated" {
				t.Errorf("audit events = %v", audit.events)
			}
		})
	}
}

func TestParamServiceSetRoleCheckError(t *testing.T) {
	svc := NewParamService(newFakeParamStore(), &fakeRoles{err: errors.New("directory down")}, &fakeAudit{}, testLogger)
	err := svc.Set(context.Background(), svcAdminAddr, domain.ParamMinimumBet, "1")
	if err == nil || errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want wrapped directory error", err)
	}
}

func TestParamServiceSetSurvivesAuditFailure(t *testing.T) {
	store := newFakeParamStore()
	svc := NewParamService(store, &fakeRoles{admins: map[common.Address]bool{svcAdminAddr: true}}, &fakeAudit{err: errors.New("disk full")}, testLogger)
	if err := svc.Set(context.Background(), svcAdminAddr, domain.ParamDisputeWindow, "86400"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if store.values[domain.ParamDisputeWindow] != "86400" {
		t.Error("value not stored despite audit failure being non-fatal")
	}
}

func TestParamServiceAll(t *testing.T) {
	store := newFakeParamStore()
	store.values[domain.ParamMinimumBet] = "5"
	svc := NewParamService(store, &fakeRoles{}, &fakeAudit{}, testLogger)
	all, err := svc.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all[domain.ParamMinimumBet] != "5" {
		t.Errorf("All = %v", all)
	}
}
