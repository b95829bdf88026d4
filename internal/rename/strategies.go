package rename

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medianamer-platform/medianamer/internal/fallback"
)

// configurationStrategy disables AI naming process-wide until the service
// is reconfigured and restarted. Manual renames stay available.
func (s *Service) configurationStrategy(ctx context.Context, f fallback.Failure) (fallback.Envelope, error) {
	if s.aiDisabled.CompareAndSwap(false, true) {
		slog.Error("disabling ai naming until reconfigured", "error", f.Err)
		s.publish(ctx, f.OwnerID, "ai_disabled", "error", f.ResourceID, f.Err.Error())
	}
	return fallback.Envelope{
		Success:             false,
		ErrorKind:           fallback.KindConfiguration,
		Message:             "ai naming is disabled until the service is reconfigured; manual rename remains available",
		ManualPathAvailable: true,
	}, nil
}

// metadataRenameStrategy commits a name derived from the resource's own
// metadata when the AI provider fails.
func (s *Service) metadataRenameStrategy(ctx context.Context, f fallback.Failure) (fallback.Envelope, error) {
	return s.commitMetadataRename(ctx, f, "metadata_rename")
}

// metadataDescriptorStrategy handles content-analysis failures that
// survived the inline degrade: the resource carried no usable metadata for
// a descriptor, so a direct metadata rename is attempted as a last step.
func (s *Service) metadataDescriptorStrategy(ctx context.Context, f fallback.Failure) (fallback.Envelope, error) {
	return s.commitMetadataRename(ctx, f, "metadata_descriptors")
}

func (s *Service) commitMetadataRename(ctx context.Context, f fallback.Failure, strategyName string) (fallback.Envelope, error) {
	if f.Operation != "rename" {
		// Suggestions have nothing to commit; report the degraded state.
		return fallback.Envelope{
			Success:             false,
			ErrorKind:           f.Kind,
			Message:             f.Err.Error(),
			ManualPathAvailable: true,
		}, nil
	}

	res, err := s.repo.GetResource(ctx, f.ResourceID)
	if err != nil {
		return fallback.Envelope{}, fmt.Errorf("loading resource for fallback: %w", err)
	}

	name, err := MetadataName(res)
	if err != nil {
		return fallback.Envelope{}, err
	}

	if err := s.repo.CommitRename(ctx, f.ResourceID, name); err != nil {
		return fallback.Envelope{}, fmt.Errorf("committing fallback rename: %w", err)
	}
	s.invalidate(ctx, f.ResourceID)
	s.record(ctx, &OperationRecord{
		ResourceID:   f.ResourceID,
		OwnerID:      f.OwnerID,
		Method:       MethodFallback,
		SelectedName: name,
		FallbackUsed: true,
	})
	s.publish(ctx, f.OwnerID, "rename_completed", "warn", f.ResourceID,
		fmt.Sprintf("fallback rename to %q after %s", name, f.Kind))

	return fallback.Envelope{
		Success:              true,
		Message:              fmt.Sprintf("renamed to %q using metadata-derived name", name),
		ManualPathAvailable:  true,
		FallbackStrategyUsed: strategyName,
	}, nil
}

// creditStrategy reports the current balance and shortfall. Never retried,
// no side effects.
func (s *Service) creditStrategy(ctx context.Context, f fallback.Failure) (fallback.Envelope, error) {
	msg := "insufficient credits"
	if balance, err := s.credits.Balance(ctx, f.OwnerID); err == nil {
		msg = fmt.Sprintf("insufficient credits: balance %d, need %d", balance, renameCost)
	}
	return fallback.Envelope{
		Success:             false,
		ErrorKind:           fallback.KindCredit,
		Message:             msg,
		ManualPathAvailable: true,
	}, nil
}

// validationStrategy rejects malformed input outright. The one kind with
// no manual path: the input itself is unusable.
func (s *Service) validationStrategy(_ context.Context, f fallback.Failure) (fallback.Envelope, error) {
	return fallback.Envelope{
		Success:             false,
		ErrorKind:           fallback.KindValidation,
		Message:             f.Err.Error(),
		ManualPathAvailable: false,
	}, nil
}

func (s *Service) systemStrategy(ctx context.Context, f fallback.Failure) (fallback.Envelope, error) {
	s.publish(ctx, f.OwnerID, "system_error", "error", f.ResourceID, f.Err.Error())
	return fallback.Envelope{
		Success:             false,
		ErrorKind:           fallback.KindSystem,
		Message:             "an internal error occurred; the rename was not completed",
		ManualPathAvailable: true,
	}, nil
}
