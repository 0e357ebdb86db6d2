package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kektech/marketd/internal/domain"
)

// LedgerStore implements domain.Ledger over the ledger_accounts table. A
// CHECK (balance >= 0) constraint backs the overdraft guard so a racing
// withdrawal cannot drive an account negative.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Deposit credits amount to account, creating the account row on first use.
func (s *LedgerStore) Deposit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("postgres: deposit: negative amount: %w", domain.ErrValidation)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_accounts (account, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET
			balance = ledger_accounts.balance + EXCLUDED.balance,
			updated_at = now()`,
		account.Hex(), encodeBig(amount))
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account.Hex(), err)
	}
	return nil
}

// Withdraw debits amount from account. The balance >= amount guard in the
// WHERE clause makes an overdraft miss the row instead of tripping the table
// constraint.
func (s *LedgerStore) Withdraw(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("postgres: withdraw: negative amount: %w", domain.ErrValidation)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledger_accounts
		SET balance = balance - $2, updated_at = now()
		WHERE account = $1 AND balance >= $2`,
		account.Hex(), encodeBig(amount))
	if err != nil {
		return fmt.Errorf("postgres: withdraw from %s: %w", account.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Balance returns the account balance; unknown accounts read as zero.
func (s *LedgerStore) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM ledger_accounts WHERE account = $1`,
		account.Hex()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: balance of %s: %w", account.Hex(), err)
	}
	return decodeBig(balance)
}
