package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/medianamer-platform/medianamer/internal/cache"
	"github.com/medianamer-platform/medianamer/internal/credits"
	"github.com/medianamer-platform/medianamer/internal/fallback"
	"github.com/medianamer-platform/medianamer/internal/metrics"
	"github.com/medianamer-platform/medianamer/internal/ratelimit"
)

// Service orchestrates renames: validation, rate limiting, cache lookups,
// collaborator calls, the rename commit, credit deduction, history, and
// fallback dispatch. Every failure past admission is classified once and
// surfaced as a uniform envelope.
type Service struct {
	repo       Repository
	credits    CreditService
	limiter    *ratelimit.Limiter
	cache      *cache.Manager
	analyzer   ContentAnalyzer
	extractor  ContextExtractor
	generator  NameGenerationService
	dispatcher *fallback.Dispatcher
	publisher  Publisher

	defaultSuggested int
	aiDisabled       atomic.Bool
}

// NewService wires the orchestrator and registers its fallback strategies.
func NewService(
	repo Repository,
	creditSvc CreditService,
	limiter *ratelimit.Limiter,
	cacheMgr *cache.Manager,
	analyzer ContentAnalyzer,
	extractor ContextExtractor,
	generator NameGenerationService,
	publisher Publisher,
	defaultSuggested int,
) *Service {
	if defaultSuggested < 1 {
		defaultSuggested = 3
	}

	s := &Service{
		repo:             repo,
		credits:          creditSvc,
		limiter:          limiter,
		cache:            cacheMgr,
		analyzer:         analyzer,
		extractor:        extractor,
		generator:        generator,
		dispatcher:       fallback.NewDispatcher(fallback.NewClassifier()),
		publisher:        publisher,
		defaultSuggested: defaultSuggested,
	}

	s.dispatcher.Register(fallback.KindConfiguration, fallback.Strategy{
		Name: "disable_ai", Handle: s.configurationStrategy,
	})
	s.dispatcher.Register(fallback.KindAIService, fallback.Strategy{
		Name: "metadata_rename", Handle: s.metadataRenameStrategy,
	})
	s.dispatcher.Register(fallback.KindContentAnalysis, fallback.Strategy{
		Name: "metadata_descriptors", Handle: s.metadataDescriptorStrategy,
	})
	s.dispatcher.Register(fallback.KindCredit, fallback.Strategy{
		Name: "report_balance", Handle: s.creditStrategy,
	})
	s.dispatcher.Register(fallback.KindValidation, fallback.Strategy{
		Name: "reject_input", Handle: s.validationStrategy,
	})
	s.dispatcher.Register(fallback.KindSystem, fallback.Strategy{
		Name: "report_system_error", Handle: s.systemStrategy,
	})

	return s
}

// Rename renames one resource. A non-empty selectedName takes the manual
// path: no AI calls, no credit charge. The returned error is non-nil only
// for rate-limit rejection; every other failure is folded into the result
// envelope.
func (s *Service) Rename(ctx context.Context, ownerID, resourceID, selectedName string, admin bool) (*Result, error) {
	if err := s.admit(ctx, ownerID, ratelimit.OpRename, admin, resourceID); err != nil {
		return nil, err
	}
	return s.renameOne(ctx, ownerID, resourceID, selectedName), nil
}

// Suggest returns candidate names without committing anything. Free of
// charge but rate limited.
func (s *Service) Suggest(ctx context.Context, ownerID, resourceID string, count int, admin bool) (*Result, error) {
	if err := s.admit(ctx, ownerID, ratelimit.OpSuggest, admin, resourceID); err != nil {
		return nil, err
	}

	if resourceID == "" {
		return s.failResult(ctx, ownerID, resourceID, "suggest",
			fallback.Tag(fallback.KindValidation, errors.New("resource id is required"))), nil
	}

	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return s.failResult(ctx, ownerID, resourceID, "suggest", s.tagRepoError(err)), nil
	}

	if s.aiDisabled.Load() {
		return s.failResult(ctx, ownerID, resourceID, "suggest",
			fallback.Tag(fallback.KindConfiguration, errors.New("ai naming is disabled"))), nil
	}

	if count < 1 {
		count = s.defaultSuggested
	}
	names, cacheHit, err := s.suggestions(ctx, res, count)
	if err != nil {
		return s.failResult(ctx, ownerID, resourceID, "suggest", err), nil
	}

	return &Result{
		Envelope:    fallback.OK(),
		ResourceID:  resourceID,
		Suggestions: names,
		CacheHit:    cacheHit,
	}, nil
}

// RenameBulk renames resources sequentially. A balance pre-check
// short-circuits remaining items once credits run out; short-circuited
// items consume no rate-limit or cache slots.
func (s *Service) RenameBulk(ctx context.Context, ownerID string, resourceIDs []string, admin bool) (*BulkResult, error) {
	if err := s.admit(ctx, ownerID, ratelimit.OpBulk, admin, ""); err != nil {
		return nil, err
	}

	out := &BulkResult{
		Results: make([]Result, 0, len(resourceIDs)),
		Summary: BulkSummary{Total: len(resourceIDs)},
	}

	exhausted := false
	for _, resourceID := range resourceIDs {
		if !exhausted {
			if ok, err := s.credits.HasSufficient(ctx, ownerID, renameCost); err == nil && !ok {
				exhausted = true
			}
		}

		var r *Result
		if exhausted {
			r = &Result{
				Envelope: fallback.Envelope{
					Success:             false,
					ErrorKind:           fallback.KindCredit,
					Message:             "insufficient credits: remaining items skipped",
					ManualPathAvailable: true,
				},
				ResourceID: resourceID,
			}
		} else {
			r = s.renameOne(ctx, ownerID, resourceID, "")
		}

		if r.Success {
			out.Summary.Successful++
		} else {
			out.Summary.Failed++
		}
		out.Results = append(out.Results, *r)
	}

	return out, nil
}

// History lists the most recent rename operations for a resource.
func (s *Service) History(ctx context.Context, resourceID string, limit int) ([]OperationRecord, error) {
	return s.repo.History(ctx, resourceID, limit)
}

func (s *Service) admit(ctx context.Context, ownerID string, op ratelimit.Operation, admin bool, resourceID string) error {
	err := s.limiter.Admit(ctx, ownerID, op, admin)
	if err == nil {
		return nil
	}
	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		s.publish(ctx, ownerID, "rate_limit_exceeded", "warn", resourceID,
			fmt.Sprintf("operation %s rejected: %s", op, limitErr.Error()))
	}
	return err
}

func (s *Service) renameOne(ctx context.Context, ownerID, resourceID, selectedName string) *Result {
	if resourceID == "" {
		return s.failResult(ctx, ownerID, resourceID, "rename",
			fallback.Tag(fallback.KindValidation, errors.New("resource id is required")))
	}

	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return s.failResult(ctx, ownerID, resourceID, "rename", s.tagRepoError(err))
	}

	if selectedName != "" {
		return s.manualRename(ctx, ownerID, res, selectedName)
	}
	return s.aiRename(ctx, ownerID, res)
}

func (s *Service) manualRename(ctx context.Context, ownerID string, res *Resource, name string) *Result {
	if !ValidName(name) {
		return s.failResult(ctx, ownerID, res.ID, "rename",
			fallback.Tag(fallback.KindValidation,
				fmt.Errorf("selected name %q is not a valid slug", name)))
	}

	if err := s.repo.CommitRename(ctx, res.ID, name); err != nil {
		return s.failResult(ctx, ownerID, res.ID, "rename", s.tagRepoError(err))
	}
	s.invalidate(ctx, res.ID)
	s.record(ctx, &OperationRecord{
		ResourceID:   res.ID,
		OwnerID:      ownerID,
		Method:       MethodManual,
		SelectedName: name,
	})
	s.publish(ctx, ownerID, "rename_completed", "info", res.ID,
		fmt.Sprintf("manual rename to %q", name))
	metrics.RenamesTotal.WithLabelValues(MethodManual, "success").Inc()

	return &Result{
		Envelope:     fallback.OK(),
		ResourceID:   res.ID,
		SelectedName: name,
		Method:       MethodManual,
	}
}

func (s *Service) aiRename(ctx context.Context, ownerID string, res *Resource) *Result {
	if s.aiDisabled.Load() {
		return s.failResult(ctx, ownerID, res.ID, "rename",
			fallback.Tag(fallback.KindConfiguration, errors.New("ai naming is disabled")))
	}

	if granted, err := s.credits.InitializeFreeCredits(ctx, ownerID); err != nil {
		slog.Warn("free credit initialization failed", "error", err, "owner", ownerID)
	} else if granted {
		slog.Info("free credits granted", "owner", ownerID)
	}

	ok, err := s.credits.HasSufficient(ctx, ownerID, renameCost)
	if err != nil {
		return s.failResult(ctx, ownerID, res.ID, "rename",
			fallback.Tag(fallback.KindSystem, fmt.Errorf("checking balance: %w", err)))
	}
	if !ok {
		return s.failResult(ctx, ownerID, res.ID, "rename",
			fallback.Tag(fallback.KindCredit, errors.New("insufficient credits")))
	}

	names, cacheHit, err := s.suggestions(ctx, res, s.defaultSuggested)
	if err != nil {
		return s.failResult(ctx, ownerID, res.ID, "rename", err)
	}
	name := names[0]

	if err := s.repo.CommitRename(ctx, res.ID, name); err != nil {
		return s.failResult(ctx, ownerID, res.ID, "rename", s.tagRepoError(err))
	}

	if _, err := s.credits.DeductWithSettlement(ctx, ownerID, renameCost, "rename", res.ID); err != nil {
		s.record(ctx, &OperationRecord{
			ResourceID:            res.ID,
			OwnerID:               ownerID,
			Method:                MethodAI,
			SuggestionsConsidered: len(names),
			SelectedName:          name,
			ErrorOccurred:         true,
		})
		return s.failResult(ctx, ownerID, res.ID, "rename", s.tagDeductError(err))
	}

	s.invalidate(ctx, res.ID)
	s.record(ctx, &OperationRecord{
		ResourceID:            res.ID,
		OwnerID:               ownerID,
		Method:                MethodAI,
		SuggestionsConsidered: len(names),
		SelectedName:          name,
		CreditsUsed:           renameCost,
	})
	s.publish(ctx, ownerID, "rename_completed", "info", res.ID,
		fmt.Sprintf("ai rename to %q", name))
	metrics.RenamesTotal.WithLabelValues(MethodAI, "success").Inc()

	return &Result{
		Envelope:     fallback.OK(),
		ResourceID:   res.ID,
		SelectedName: name,
		Suggestions:  names,
		Method:       MethodAI,
		CacheHit:     cacheHit,
		CreditsUsed:  renameCost,
	}
}

// suggestions resolves candidate names through the cache tiers, degrading
// to metadata-only descriptors when deep content analysis fails.
func (s *Service) suggestions(ctx context.Context, res *Resource, count int) ([]string, bool, error) {
	key := cache.Key(res.ID, res.ModifiedAt)

	var cached []string
	if hit, err := s.cache.Get(ctx, cache.TypeSuggestions, key, &cached); err == nil && hit && len(cached) > 0 {
		return cached, true, nil
	}

	descriptor, err := s.descriptor(ctx, res, key)
	if err != nil {
		return nil, false, err
	}

	pageCtx := s.pageContext(ctx, res, key)

	names, err := s.generator.Generate(ctx, descriptor, pageCtx, count)
	if err != nil {
		return nil, false, err
	}

	slugs := make([]string, 0, len(names))
	for _, n := range names {
		if slug := Slugify(n); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	if len(slugs) == 0 {
		return nil, false, fallback.Tag(fallback.KindAIService,
			fmt.Errorf("no usable names generated for %s", res.ID))
	}

	if err := s.cache.Set(ctx, cache.TypeSuggestions, key, res.ID, slugs); err != nil {
		slog.Warn("caching suggestions failed", "error", err, "resource", res.ID)
	}
	return slugs, false, nil
}

func (s *Service) descriptor(ctx context.Context, res *Resource, key string) (string, error) {
	var analysis ContentAnalysis
	if hit, err := s.cache.Get(ctx, cache.TypeContentAnalysis, key, &analysis); err == nil && hit {
		return analysis.Descriptor, nil
	}

	result, err := s.analyzer.Analyze(ctx, res)
	if err != nil {
		// Degrade to metadata-only descriptors; naming continues.
		slog.Warn("content analysis failed, using metadata descriptor",
			"error", err, "resource", res.ID)
		if desc := MetadataDescriptor(res); desc != "" {
			return desc, nil
		}
		return "", fallback.Tag(fallback.KindContentAnalysis,
			fmt.Errorf("content analysis failed and resource %s has no metadata: %w", res.ID, err))
	}

	if err := s.cache.Set(ctx, cache.TypeContentAnalysis, key, res.ID, result); err != nil {
		slog.Warn("caching content analysis failed", "error", err, "resource", res.ID)
	}
	return result.Descriptor, nil
}

func (s *Service) pageContext(ctx context.Context, res *Resource, key string) *PageContext {
	var cached PageContext
	if hit, err := s.cache.Get(ctx, cache.TypeContext, key, &cached); err == nil && hit {
		return &cached
	}

	pageCtx, err := s.extractor.Extract(ctx, res)
	if err != nil {
		// Soft failure: naming works without page context.
		slog.Warn("context extraction failed", "error", err, "resource", res.ID)
		return nil
	}

	if err := s.cache.Set(ctx, cache.TypeContext, key, res.ID, pageCtx); err != nil {
		slog.Warn("caching page context failed", "error", err, "resource", res.ID)
	}
	return pageCtx
}

// failResult runs the fallback dispatcher and folds its envelope into a
// Result. A strategy may itself complete a rename (metadata fallbacks); in
// that case the committed name is read back for the caller.
func (s *Service) failResult(ctx context.Context, ownerID, resourceID, operation string, err error) *Result {
	env := s.dispatcher.Dispatch(ctx, err, fallback.Failure{
		OwnerID:    ownerID,
		ResourceID: resourceID,
		Operation:  operation,
	})

	r := &Result{Envelope: env, ResourceID: resourceID}
	if env.Success {
		r.Method = MethodFallback
		if res, getErr := s.repo.GetResource(ctx, resourceID); getErr == nil {
			r.SelectedName = res.CurrentName
		}
		metrics.RenamesTotal.WithLabelValues(MethodFallback, "success").Inc()
	} else {
		metrics.RenamesTotal.WithLabelValues(operation, "failure").Inc()
	}
	return r
}

func (s *Service) tagRepoError(err error) error {
	if errors.Is(err, ErrResourceNotFound) {
		return fallback.Tag(fallback.KindValidation, err)
	}
	return fallback.Tag(fallback.KindSystem, err)
}

func (s *Service) tagDeductError(err error) error {
	var terminal *credits.TerminalSettlementError
	switch {
	case errors.Is(err, credits.ErrInsufficientBalance):
		return fallback.Tag(fallback.KindCredit, err)
	case errors.Is(err, credits.ErrSettlementNotConfigured):
		return fallback.Tag(fallback.KindConfiguration, err)
	case errors.As(err, &terminal):
		return fallback.Tag(fallback.KindCredit, err)
	default:
		return fallback.Tag(fallback.KindSystem, err)
	}
}

func (s *Service) invalidate(ctx context.Context, resourceID string) {
	if n, err := s.cache.Invalidate(ctx, resourceID); err != nil {
		slog.Warn("cache invalidation failed", "error", err, "resource", resourceID)
	} else if n > 0 {
		slog.Debug("cache invalidated", "resource", resourceID, "entries", n)
	}
}

func (s *Service) record(ctx context.Context, rec *OperationRecord) {
	if err := s.repo.RecordOperation(ctx, rec); err != nil {
		slog.Error("recording rename history failed", "error", err, "resource", rec.ResourceID)
	}
}

func (s *Service) publish(ctx context.Context, ownerID, eventType, severity, resourceID, details string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, ownerID, eventType, severity, resourceID, details); err != nil {
		slog.Warn("publishing audit event failed", "error", err, "event_type", eventType)
	}
}
