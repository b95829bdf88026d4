package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientBalance is returned by Deduct when the account cannot
// cover the amount. The ledger is left untouched.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// Repository is the persistence contract for the ledger. Every balance
// mutation appends exactly one transaction in the same database
// transaction, so neither can exist without the other.
type Repository interface {
	GetOrCreate(ctx context.Context, ownerID string) (*Account, error)
	Deduct(ctx context.Context, ownerID string, amount int, operation, resourceID, settlementID string) (*Transaction, error)
	Add(ctx context.Context, ownerID string, amount int, operation string) (*Transaction, error)
	Reset(ctx context.Context, ownerID string, newBalance int) (*Transaction, error)
	GrantFreeCredits(ctx context.Context, ownerID string, amount int, minAge string) (bool, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// GetOrCreate returns the owner's account, creating an empty one if this is
// the first access.
func (r *postgresRepository) GetOrCreate(ctx context.Context, ownerID string) (*Account, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO credit_accounts (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ensuring credit account: %w", err)
	}

	var a Account
	err = r.pool.QueryRow(ctx,
		`SELECT owner_id, balance, used_total, free_credits_granted, created_at, last_updated
		 FROM credit_accounts WHERE owner_id = $1`, ownerID,
	).Scan(&a.OwnerID, &a.Balance, &a.UsedTotal, &a.FreeCreditsGranted, &a.CreatedAt, &a.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("fetching credit account: %w", err)
	}
	return &a, nil
}

// Deduct atomically subtracts amount if the balance covers it and appends
// the transaction. The conditional UPDATE keeps the balance non-negative
// even under concurrent deductions.
func (r *postgresRepository) Deduct(ctx context.Context, ownerID string, amount int, operation, resourceID, settlementID string) (*Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning deduct tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceAfter int
	err = tx.QueryRow(ctx,
		`UPDATE credit_accounts
		 SET balance = balance - $2,
		     used_total = used_total + $2,
		     last_updated = NOW()
		 WHERE owner_id = $1 AND balance >= $2
		 RETURNING balance`, ownerID, amount,
	).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("deducting credits: %w", err)
	}

	entry, err := appendTransaction(ctx, tx, &Transaction{
		OwnerID:      ownerID,
		Type:         TxDeduct,
		Amount:       amount,
		Operation:    operation,
		ResourceID:   resourceID,
		SettlementID: settlementID,
		BalanceAfter: balanceAfter,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing deduct: %w", err)
	}
	return entry, nil
}

// Add credits the account and appends the transaction.
func (r *postgresRepository) Add(ctx context.Context, ownerID string, amount int, operation string) (*Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning add tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceAfter int
	err = tx.QueryRow(ctx,
		`UPDATE credit_accounts
		 SET balance = balance + $2,
		     last_updated = NOW()
		 WHERE owner_id = $1
		 RETURNING balance`, ownerID, amount,
	).Scan(&balanceAfter)
	if err != nil {
		return nil, fmt.Errorf("adding credits: %w", err)
	}

	entry, err := appendTransaction(ctx, tx, &Transaction{
		OwnerID:      ownerID,
		Type:         TxAdd,
		Amount:       amount,
		Operation:    operation,
		BalanceAfter: balanceAfter,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing add: %w", err)
	}
	return entry, nil
}

// Reset sets the balance to an absolute value (privileged operation).
func (r *postgresRepository) Reset(ctx context.Context, ownerID string, newBalance int) (*Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE credit_accounts
		 SET balance = $2, last_updated = NOW()
		 WHERE owner_id = $1`, ownerID, newBalance)
	if err != nil {
		return nil, fmt.Errorf("resetting balance: %w", err)
	}

	entry, err := appendTransaction(ctx, tx, &Transaction{
		OwnerID:      ownerID,
		Type:         TxReset,
		Amount:       newBalance,
		Operation:    "admin_reset",
		BalanceAfter: newBalance,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing reset: %w", err)
	}
	return entry, nil
}

// GrantFreeCredits grants the starting balance exactly once per account.
// The eligibility age check and the idempotency flag flip happen in the
// same UPDATE, so concurrent grant attempts cannot double-credit.
func (r *postgresRepository) GrantFreeCredits(ctx context.Context, ownerID string, amount int, minAge string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning grant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceAfter int
	err = tx.QueryRow(ctx,
		`UPDATE credit_accounts
		 SET balance = balance + $2,
		     free_credits_granted = TRUE,
		     last_updated = NOW()
		 WHERE owner_id = $1
		   AND free_credits_granted = FALSE
		   AND created_at <= NOW() - $3::interval
		 RETURNING balance`, ownerID, amount, minAge,
	).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("granting free credits: %w", err)
	}

	if _, err := appendTransaction(ctx, tx, &Transaction{
		OwnerID:      ownerID,
		Type:         TxAdd,
		Amount:       amount,
		Operation:    "free_grant",
		BalanceAfter: balanceAfter,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing grant: %w", err)
	}
	return true, nil
}

// ListTransactions returns the most recent ledger entries, newest first.
func (r *postgresRepository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error) {
	if limit < 1 || limit > transactionRetention {
		limit = transactionRetention
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, type, amount, operation,
		        COALESCE(resource_id, ''), COALESCE(settlement_id, ''), balance_after, created_at
		 FROM credit_transactions
		 WHERE owner_id = $1
		 ORDER BY id DESC
		 LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var entries []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Type, &t.Amount, &t.Operation,
			&t.ResourceID, &t.SettlementID, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, nil
}

// appendTransaction inserts the ledger entry and trims the account's log to
// the retention window inside the caller's transaction.
func appendTransaction(ctx context.Context, tx pgx.Tx, t *Transaction) (*Transaction, error) {
	err := tx.QueryRow(ctx,
		`INSERT INTO credit_transactions (owner_id, type, amount, operation, resource_id, settlement_id, balance_after)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		 RETURNING id, created_at`,
		t.OwnerID, t.Type, t.Amount, t.Operation, t.ResourceID, t.SettlementID, t.BalanceAfter,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("appending transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM credit_transactions
		 WHERE owner_id = $1 AND id NOT IN (
		   SELECT id FROM credit_transactions
		   WHERE owner_id = $1 ORDER BY id DESC LIMIT $2
		 )`, t.OwnerID, transactionRetention)
	if err != nil {
		return nil, fmt.Errorf("trimming transaction log: %w", err)
	}

	return t, nil
}
