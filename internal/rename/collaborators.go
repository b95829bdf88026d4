package rename

import (
	"context"

	"github.com/medianamer-platform/medianamer/internal/credits"
)

// ContentAnalyzer inspects a resource's content and yields a descriptor
// for name generation. Failures degrade to metadata-only descriptors.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, res *Resource) (*ContentAnalysis, error)
}

// ContextExtractor pulls naming signal from the pages referencing a
// resource. Failures are non-fatal; naming proceeds without the signal.
type ContextExtractor interface {
	Extract(ctx context.Context, res *Resource) (*PageContext, error)
}

// NameGenerationService produces candidate SEO names from a descriptor and
// page context. Remote, subject to timeout and bounded retry.
type NameGenerationService interface {
	Generate(ctx context.Context, descriptor string, pageCtx *PageContext, count int) ([]string, error)
}

// CreditService is the ledger surface the orchestrator depends on.
type CreditService interface {
	Balance(ctx context.Context, ownerID string) (int, error)
	HasSufficient(ctx context.Context, ownerID string, amount int) (bool, error)
	DeductWithSettlement(ctx context.Context, ownerID string, amount int, operation, resourceID string) (*credits.Transaction, error)
	InitializeFreeCredits(ctx context.Context, ownerID string) (bool, error)
}

// Publisher emits audit events. Publishing is best-effort from the
// orchestrator's point of view.
type Publisher interface {
	PublishEvent(ctx context.Context, ownerID, eventType, severity, resourceID, details string) error
}
