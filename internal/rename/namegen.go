package rename

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/fallback"
)

// aiClient talks to the external AI provider. One provider serves all three
// collaborator roles: content analysis, context extraction, and name
// generation.
type aiClient struct {
	cfg    config.NameGenConfig
	client *http.Client
}

// NewAIClient builds the HTTP collaborator client. The returned value
// implements ContentAnalyzer, ContextExtractor, and NameGenerationService.
func NewAIClient(cfg config.NameGenConfig) *aiClient {
	return &aiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeRequest struct {
	ResourceID string `json:"resource_id"`
	URL        string `json:"url,omitempty"`
	Filename   string `json:"filename"`
}

type extractRequest struct {
	ResourceID string `json:"resource_id"`
	URL        string `json:"url,omitempty"`
}

type generateRequest struct {
	Descriptor string   `json:"descriptor"`
	Keywords   []string `json:"keywords,omitempty"`
	Headings   []string `json:"headings,omitempty"`
	PageTitles []string `json:"page_titles,omitempty"`
	Count      int      `json:"count"`
}

type generateResponse struct {
	Names []string `json:"names"`
}

// Analyze performs deep content inspection via the provider.
func (c *aiClient) Analyze(ctx context.Context, res *Resource) (*ContentAnalysis, error) {
	var analysis ContentAnalysis
	err := c.post(ctx, "/v1/analyze", analyzeRequest{
		ResourceID: res.ID,
		URL:        res.URL,
		Filename:   res.Filename,
	}, &analysis)
	if err != nil {
		// Configuration failures keep their kind; everything else is a
		// content-analysis failure.
		var kindErr *fallback.KindError
		if errors.As(err, &kindErr) {
			return nil, err
		}
		return nil, fallback.Tag(fallback.KindContentAnalysis,
			fmt.Errorf("content analysis for %s: %w", res.ID, err))
	}
	if analysis.Descriptor == "" {
		return nil, fallback.Tag(fallback.KindContentAnalysis,
			fmt.Errorf("content analysis for %s: empty descriptor", res.ID))
	}
	return &analysis, nil
}

// Extract pulls page-context signal. A failure here is reported but callers
// treat it as soft; naming proceeds without the signal.
func (c *aiClient) Extract(ctx context.Context, res *Resource) (*PageContext, error) {
	var pageCtx PageContext
	err := c.post(ctx, "/v1/context", extractRequest{
		ResourceID: res.ID,
		URL:        res.URL,
	}, &pageCtx)
	if err != nil {
		return nil, fmt.Errorf("context extraction for %s: %w", res.ID, err)
	}
	return &pageCtx, nil
}

// Generate requests candidate names, retrying transient failures with
// exponential backoff up to MaxRetries attempts.
func (c *aiClient) Generate(ctx context.Context, descriptor string, pageCtx *PageContext, count int) ([]string, error) {
	if count <= 0 {
		count = c.cfg.DefaultSuggested
	}
	req := generateRequest{Descriptor: descriptor, Count: count}
	if pageCtx != nil {
		req.Keywords = pageCtx.Keywords
		req.Headings = pageCtx.Headings
		req.PageTitles = pageCtx.PageTitles
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Second << (attempt - 1)
			slog.Warn("name generation failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fallback.Tag(fallback.KindAIService,
					fmt.Errorf("name generation aborted: %w", ctx.Err()))
			case <-timer.C:
			}
		}

		var resp generateResponse
		if err := c.post(ctx, "/v1/generate", req, &resp); err != nil {
			// Credential and configuration failures never heal on retry.
			var kindErr *fallback.KindError
			if errors.As(err, &kindErr) && kindErr.Kind == fallback.KindConfiguration {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(resp.Names) == 0 {
			lastErr = fmt.Errorf("provider returned no names")
			continue
		}
		return resp.Names, nil
	}

	return nil, fallback.Tag(fallback.KindAIService,
		fmt.Errorf("name generation failed after %d attempts: %w", c.cfg.MaxRetries, lastErr))
}

func (c *aiClient) post(ctx context.Context, path string, payload, dest any) error {
	if c.cfg.URL == "" || c.cfg.APIKey == "" {
		return fallback.Tag(fallback.KindConfiguration,
			fmt.Errorf("name generation service is not configured"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fallback.Tag(fallback.KindConfiguration,
			fmt.Errorf("provider rejected credentials: status %d", resp.StatusCode))
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding provider response: %w", err)
	}
	return nil
}
