package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Log matches the audit_logs table schema.
type Log struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    string          `json:"owner_id"`
	EventType  string          `json:"event_type"`
	Severity   string          `json:"severity"`
	ResourceID string          `json:"resource_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	EventType string
	Severity  string
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
