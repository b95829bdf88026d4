package rename

import (
	"time"

	"github.com/google/uuid"

	"github.com/medianamer-platform/medianamer/internal/fallback"
)

// Method records how a rename was produced.
const (
	MethodAI       = "ai"
	MethodManual   = "manual"
	MethodFallback = "fallback"
)

// historyRetention bounds the per-resource operation history.
const historyRetention = 50

// renameCost is the credit price of one AI-assisted rename. Manual renames
// and suggestion listings are free.
const renameCost = 1

// Resource is a media item eligible for renaming. ModifiedAt feeds the
// content-addressed cache key so edits naturally miss stale entries.
type Resource struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title,omitempty"`
	AltText     string    `json:"alt_text,omitempty"`
	URL         string    `json:"url,omitempty"`
	CurrentName string    `json:"current_name,omitempty"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// ContentAnalysis is the output of deep content inspection.
type ContentAnalysis struct {
	Descriptor      string   `json:"descriptor"`
	ExtractedText   string   `json:"extracted_text,omitempty"`
	DetectedObjects []string `json:"detected_objects,omitempty"`
}

// PageContext is the surrounding-page signal used to steer naming.
type PageContext struct {
	Keywords   []string `json:"keywords,omitempty"`
	Headings   []string `json:"headings,omitempty"`
	PageTitles []string `json:"page_titles,omitempty"`
}

// OperationRecord is one row of the append-only rename history.
type OperationRecord struct {
	ID                    uuid.UUID `json:"id"`
	ResourceID            string    `json:"resource_id"`
	OwnerID               string    `json:"owner_id"`
	Method                string    `json:"method"`
	SuggestionsConsidered int       `json:"suggestions_considered"`
	SelectedName          string    `json:"selected_name"`
	CreditsUsed           int       `json:"credits_used"`
	FallbackUsed          bool      `json:"fallback_used"`
	ErrorOccurred         bool      `json:"error_occurred"`
	CreatedAt             time.Time `json:"created_at"`
}

// Result is the outcome of a single rename or suggestion request. The
// embedded envelope is populated uniformly for success and failure.
type Result struct {
	fallback.Envelope
	ResourceID   string   `json:"resource_id"`
	SelectedName string   `json:"selected_name,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
	Method       string   `json:"method,omitempty"`
	CacheHit     bool     `json:"cache_hit"`
	CreditsUsed  int      `json:"credits_used"`
}

// BulkSummary partitions a bulk run. Successful+Failed always equals Total.
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkResult is the aggregate outcome of a sequential bulk rename.
type BulkResult struct {
	Results []Result    `json:"results"`
	Summary BulkSummary `json:"summary"`
}
