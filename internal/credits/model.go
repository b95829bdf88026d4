package credits

import (
	"time"
)

// Transaction types.
const (
	TxAdd    = "add"
	TxDeduct = "deduct"
	TxReset  = "reset"
)

// transactionRetention bounds the per-account transaction log to the most
// recent entries.
const transactionRetention = 100

// Account is one user's credit balance. Created lazily on first access,
// mutated only through ledger operations, never deleted.
type Account struct {
	OwnerID            string    `json:"owner_id"`
	Balance            int       `json:"balance"`
	UsedTotal          int       `json:"used_total"`
	FreeCreditsGranted bool      `json:"free_credits_granted"`
	CreatedAt          time.Time `json:"created_at"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Transaction is one immutable ledger entry. BalanceAfter records the
// balance the mutation produced, so the log is auditable on its own.
type Transaction struct {
	ID           int64     `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Type         string    `json:"type"`
	Amount       int       `json:"amount"`
	Operation    string    `json:"operation"`
	ResourceID   string    `json:"resource_id,omitempty"`
	SettlementID string    `json:"settlement_id,omitempty"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// Status is the API response for credit_status.
type Status struct {
	Balance            int           `json:"balance"`
	UsedTotal          int           `json:"used_total"`
	FreeCreditsGranted bool          `json:"free_credits_granted"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}
