// Package roles implements the role directory from static configuration.
package roles

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kektech/marketd/internal/domain"
)

// StaticDirectory answers role queries from an in-memory table seeded at
// startup. Admins implicitly hold every role.
type StaticDirectory struct {
	grants map[string]map[common.Address]bool
}

// compile-time interface check
var _ domain.RoleDirectory = (*StaticDirectory)(nil)

// NewStaticDirectory builds a directory from role name to address-list
// assignments. Address strings must be valid hex addresses; invalid entries
// are ignored (config validation rejects them before this point).
func NewStaticDirectory(assignments map[string][]string) *StaticDirectory {
	grants := make(map[string]map[common.Address]bool, len(assignments))
	for role, addrs := range assignments {
		set := make(map[common.Address]bool, len(addrs))
		for _, a := range addrs {
			if common.IsHexAddress(a) {
				set[common.HexToAddress(a)] = true
			}
		}
		grants[role] = set
	}
	return &StaticDirectory{grants: grants}
}

// HasRole reports whether caller holds role. Admin grants satisfy any role
// query.
func (d *StaticDirectory) HasRole(_ context.Context, caller common.Address, role string) (bool, error) {
	if d.grants[role][caller] {
		return true, nil
	}
	if role != domain.RoleAdmin && d.grants[domain.RoleAdmin][caller] {
		return true, nil
	}
	return false, nil
}
