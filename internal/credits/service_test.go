package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medianamer-platform/medianamer/internal/config"
)

// memRepo is an in-memory Repository honoring the ledger semantics.
type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account
	log      map[string][]Transaction
	nextID   int64

	failDeduct error
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts: make(map[string]*Account),
		log:      make(map[string][]Transaction),
	}
}

func (r *memRepo) GetOrCreate(_ context.Context, ownerID string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[ownerID]
	if !ok {
		a = &Account{OwnerID: ownerID, CreatedAt: time.Now().Add(-48 * time.Hour), LastUpdated: time.Now()}
		r.accounts[ownerID] = a
	}
	copied := *a
	return &copied, nil
}

func (r *memRepo) append(ownerID, txType, operation, resourceID, settlementID string, amount, balanceAfter int) *Transaction {
	r.nextID++
	entry := Transaction{
		ID: r.nextID, OwnerID: ownerID, Type: txType, Amount: amount,
		Operation: operation, ResourceID: resourceID, SettlementID: settlementID,
		BalanceAfter: balanceAfter, CreatedAt: time.Now(),
	}
	r.log[ownerID] = append(r.log[ownerID], entry)
	if len(r.log[ownerID]) > transactionRetention {
		r.log[ownerID] = r.log[ownerID][len(r.log[ownerID])-transactionRetention:]
	}
	return &entry
}

func (r *memRepo) Deduct(_ context.Context, ownerID string, amount int, operation, resourceID, settlementID string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDeduct != nil {
		return nil, r.failDeduct
	}
	a, ok := r.accounts[ownerID]
	if !ok || a.Balance < amount {
		return nil, ErrInsufficientBalance
	}
	a.Balance -= amount
	a.UsedTotal += amount
	return r.append(ownerID, TxDeduct, operation, resourceID, settlementID, amount, a.Balance), nil
}

func (r *memRepo) Add(_ context.Context, ownerID string, amount int, operation string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[ownerID]
	a.Balance += amount
	return r.append(ownerID, TxAdd, operation, "", "", amount, a.Balance), nil
}

func (r *memRepo) Reset(_ context.Context, ownerID string, newBalance int) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[ownerID]
	a.Balance = newBalance
	return r.append(ownerID, TxReset, "admin_reset", "", "", newBalance, newBalance), nil
}

func (r *memRepo) GrantFreeCredits(_ context.Context, ownerID string, amount int, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[ownerID]
	if a.FreeCreditsGranted {
		return false, nil
	}
	a.FreeCreditsGranted = true
	a.Balance += amount
	r.append(ownerID, TxAdd, "free_grant", "", "", amount, a.Balance)
	return true, nil
}

func (r *memRepo) ListTransactions(_ context.Context, ownerID string, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.log[ownerID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Transaction, len(entries))
	for i := range entries {
		out[len(entries)-1-i] = entries[i]
	}
	return out, nil
}

// stubSettlement fails a configurable number of times before confirming.
type stubSettlement struct {
	failures  int
	terminal  bool
	calls     int
	requestID string
}

func (s *stubSettlement) Deduct(_ context.Context, _ string, _ int, requestID string) (*SettlementResult, error) {
	s.calls++
	s.requestID = requestID
	if s.calls <= s.failures {
		if s.terminal {
			return nil, &TerminalSettlementError{StatusCode: 402, Reason: "insufficient balance on server"}
		}
		return nil, fmt.Errorf("settlement service HTTP 503: unavailable")
	}
	return &SettlementResult{Confirmed: true, RemainingBalance: 42}, nil
}

func testService(repo Repository, settlement SettlementClient) *Service {
	svc := NewService(repo, settlement, config.CreditsConfig{
		FreeGrantAmount: 10,
		MinAccountAge:   24 * time.Hour,
		MaxRetries:      3,
	})
	svc.backoffBase = time.Millisecond
	return svc
}

func TestDeduct_Sufficient(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo, &stubSettlement{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	entry, err := svc.Deduct(ctx, "u1", 3, "rename", "res-1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.BalanceAfter)
	assert.Equal(t, TxDeduct, entry.Type)
	assert.Equal(t, "res-1", entry.ResourceID)

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestDeduct_Insufficient(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo, &stubSettlement{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)
	_, err = svc.Deduct(ctx, "u1", 3, "rename", "res-1")
	require.NoError(t, err)

	// balance=2, deduct 3 must fail without mutation
	before, _ := svc.Status(ctx, "u1")
	_, err = svc.Deduct(ctx, "u1", 3, "rename", "res-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	after, _ := svc.Status(ctx, "u1")
	assert.Equal(t, 2, after.Balance)
	assert.Equal(t, before.UsedTotal, after.UsedTotal)
	assert.Len(t, after.RecentTransactions, len(before.RecentTransactions))
}

func TestDeduct_NegativeAmount(t *testing.T) {
	svc := testService(newMemRepo(), &stubSettlement{})
	_, err := svc.Deduct(context.Background(), "u1", -1, "rename", "")
	assert.Error(t, err)
}

func TestDeductWithSettlement_RetriesThenSucceeds(t *testing.T) {
	repo := newMemRepo()
	stub := &stubSettlement{failures: 2}
	svc := testService(repo, stub)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	entry, err := svc.DeductWithSettlement(ctx, "u1", 1, "rename", "res-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, 4, entry.BalanceAfter)
	assert.Equal(t, stub.requestID, entry.SettlementID)

	// Exactly one committed deduction despite the retries.
	status, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	deducts := 0
	for _, tx := range status.RecentTransactions {
		if tx.Type == TxDeduct {
			deducts++
		}
	}
	assert.Equal(t, 1, deducts)
}

func TestDeductWithSettlement_ExhaustsRetries(t *testing.T) {
	repo := newMemRepo()
	stub := &stubSettlement{failures: 10}
	svc := testService(repo, stub)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	_, err = svc.DeductWithSettlement(ctx, "u1", 1, "rename", "res-1")
	require.Error(t, err)
	assert.Equal(t, 3, stub.calls)

	// No local mutation after remote failure.
	balance, _ := svc.Balance(ctx, "u1")
	assert.Equal(t, 5, balance)
}

func TestDeductWithSettlement_TerminalNotRetried(t *testing.T) {
	repo := newMemRepo()
	stub := &stubSettlement{failures: 10, terminal: true}
	svc := testService(repo, stub)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	_, err = svc.DeductWithSettlement(ctx, "u1", 1, "rename", "res-1")
	require.Error(t, err)
	var terminal *TerminalSettlementError
	assert.True(t, errors.As(err, &terminal))
	assert.Equal(t, 1, stub.calls)
}

func TestDeductWithSettlement_InsufficientSkipsRemote(t *testing.T) {
	repo := newMemRepo()
	stub := &stubSettlement{}
	svc := testService(repo, stub)

	_, err := svc.DeductWithSettlement(context.Background(), "u1", 1, "rename", "res-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, stub.calls)
}

func TestDeductWithSettlement_ContextCancelAbortsBackoff(t *testing.T) {
	repo := newMemRepo()
	stub := &stubSettlement{failures: 10}
	svc := testService(repo, stub)
	svc.backoffBase = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = svc.DeductWithSettlement(ctx, "u1", 1, "rename", "res-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitializeFreeCredits_Idempotent(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo, &stubSettlement{})
	ctx := context.Background()

	granted, err := svc.InitializeFreeCredits(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = svc.InitializeFreeCredits(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, granted)

	balance, _ := svc.Balance(ctx, "u1")
	assert.Equal(t, 10, balance)
}

func TestReset(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo, &stubSettlement{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 7, "topup")
	require.NoError(t, err)

	entry, err := svc.Reset(ctx, "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, entry.BalanceAfter)

	balance, _ := svc.Balance(ctx, "u1")
	assert.Equal(t, 100, balance)
}

func TestScenario_DeductSequence(t *testing.T) {
	repo := newMemRepo()
	svc := testService(repo, &stubSettlement{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, "topup")
	require.NoError(t, err)

	entry, err := svc.Deduct(ctx, "u1", 3, "rename", "")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.BalanceAfter)

	_, err = svc.Deduct(ctx, "u1", 3, "rename", "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, _ := svc.Balance(ctx, "u1")
	assert.Equal(t, 2, balance)
}
