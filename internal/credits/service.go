package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/metrics"
)

// Service owns ledger semantics: local mutations, the remote-settlement
// round trip with bounded retry, and the one-time free grant.
type Service struct {
	repo       Repository
	settlement SettlementClient
	cfg        config.CreditsConfig

	// backoffBase is the first retry delay; doubled per attempt.
	backoffBase time.Duration
}

func NewService(repo Repository, settlement SettlementClient, cfg config.CreditsConfig) *Service {
	return &Service{
		repo:        repo,
		settlement:  settlement,
		cfg:         cfg,
		backoffBase: time.Second,
	}
}

func (s *Service) Balance(ctx context.Context, ownerID string) (int, error) {
	account, err := s.repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) HasSufficient(ctx context.Context, ownerID string, amount int) (bool, error) {
	balance, err := s.Balance(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Deduct performs a local-only deduction. Returns ErrInsufficientBalance
// without any mutation when the balance cannot cover the amount.
func (s *Service) Deduct(ctx context.Context, ownerID string, amount int, operation, resourceID string) (*Transaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("deduct amount must be non-negative, got %d", amount)
	}
	if _, err := s.repo.GetOrCreate(ctx, ownerID); err != nil {
		return nil, err
	}

	entry, err := s.repo.Deduct(ctx, ownerID, amount, operation, resourceID, "")
	if err != nil {
		return nil, err
	}
	metrics.CreditDeductionsTotal.Inc()
	return entry, nil
}

// DeductWithSettlement deducts against the remote settlement service before
// committing the local ledger change. Transient remote failures retry with
// exponential backoff; terminal ones abort immediately. After the retries
// are exhausted the local ledger is untouched.
//
// There is no two-phase guarantee: a crash after remote confirmation but
// before the local commit leaves the account charged remotely only. The
// settlement request id is stored on the local transaction so operators can
// reconcile that gap.
func (s *Service) DeductWithSettlement(ctx context.Context, ownerID string, amount int, operation, resourceID string) (*Transaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("deduct amount must be non-negative, got %d", amount)
	}

	// Cheap local pre-check so we do not charge remotely for an account
	// that cannot cover the amount anyway.
	ok, err := s.HasSufficient(ctx, ownerID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	requestID := uuid.New().String()

	var result *SettlementResult
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		result, err = s.settlement.Deduct(ctx, ownerID, amount, requestID)
		if err == nil {
			break
		}

		if errors.Is(err, ErrSettlementNotConfigured) {
			return nil, err
		}
		var terminal *TerminalSettlementError
		if errors.As(err, &terminal) {
			return nil, err
		}

		if attempt == s.cfg.MaxRetries-1 {
			return nil, fmt.Errorf("settlement failed after %d attempts: %w", s.cfg.MaxRetries, err)
		}

		delay := s.backoffBase << attempt
		slog.Warn("settlement attempt failed, retrying",
			"owner", ownerID,
			"attempt", attempt+1,
			"retry_in", delay,
			"error", err,
		)
		metrics.SettlementRetriesTotal.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("settlement aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	entry, err := s.repo.Deduct(ctx, ownerID, amount, operation, resourceID, requestID)
	if err != nil {
		// Remote charged, local commit failed: the divergence the design
		// accepts. Logged loudly with the request id for reconciliation.
		slog.Error("local ledger commit failed after remote settlement",
			"owner", ownerID,
			"amount", amount,
			"settlement_request_id", requestID,
			"remote_remaining", result.RemainingBalance,
			"error", err,
		)
		return nil, fmt.Errorf("committing settled deduction: %w", err)
	}

	metrics.CreditDeductionsTotal.Inc()
	return entry, nil
}

func (s *Service) Add(ctx context.Context, ownerID string, amount int, operation string) (*Transaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("add amount must be non-negative, got %d", amount)
	}
	if _, err := s.repo.GetOrCreate(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.repo.Add(ctx, ownerID, amount, operation)
}

// Reset sets the balance to an absolute value. Privileged; the caller is
// responsible for authorization.
func (s *Service) Reset(ctx context.Context, ownerID string, newBalance int) (*Transaction, error) {
	if newBalance < 0 {
		return nil, fmt.Errorf("reset balance must be non-negative, got %d", newBalance)
	}
	if _, err := s.repo.GetOrCreate(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.repo.Reset(ctx, ownerID, newBalance)
}

// InitializeFreeCredits grants the starting balance once per account,
// gated on minimum account age. Returns whether a grant happened.
func (s *Service) InitializeFreeCredits(ctx context.Context, ownerID string) (bool, error) {
	if _, err := s.repo.GetOrCreate(ctx, ownerID); err != nil {
		return false, err
	}

	minAge := fmt.Sprintf("%d seconds", int(s.cfg.MinAccountAge.Seconds()))
	granted, err := s.repo.GrantFreeCredits(ctx, ownerID, s.cfg.FreeGrantAmount, minAge)
	if err != nil {
		return false, err
	}
	if granted {
		slog.Info("free credits granted", "owner", ownerID, "amount", s.cfg.FreeGrantAmount)
	}
	return granted, nil
}

// Status returns the balance plus recent ledger entries for API display.
func (s *Service) Status(ctx context.Context, ownerID string) (*Status, error) {
	account, err := s.repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListTransactions(ctx, ownerID, 20)
	if err != nil {
		return nil, err
	}

	return &Status{
		Balance:            account.Balance,
		UsedTotal:          account.UsedTotal,
		FreeCreditsGranted: account.FreeCreditsGranted,
		RecentTransactions: entries,
	}, nil
}
