package fallback

import (
	"context"
	"log/slog"

	"github.com/medianamer-platform/medianamer/internal/metrics"
)

// Envelope is the uniform result returned for every operation, success or
// failure. ManualPathAvailable tells the caller whether a manual (non-AI)
// rename remains possible; it is false only for validation errors.
type Envelope struct {
	Success              bool   `json:"success"`
	ErrorKind            Kind   `json:"error_kind,omitempty"`
	Message              string `json:"message,omitempty"`
	ManualPathAvailable  bool   `json:"manual_path_available"`
	FallbackStrategyUsed string `json:"fallback_strategy_used,omitempty"`
}

// OK returns a success envelope.
func OK() Envelope {
	return Envelope{Success: true, ManualPathAvailable: true}
}

// Failure carries the classified error and its operation context into a
// recovery strategy.
type Failure struct {
	Kind       Kind
	Err        error
	OwnerID    string
	ResourceID string
	Operation  string
}

// Strategy is a registered recovery path for one error kind. Handle may
// perform side effects (e.g. commit a metadata-derived rename) and returns
// the envelope to surface.
type Strategy struct {
	Name   string
	Handle func(ctx context.Context, f Failure) (Envelope, error)
}

// Dispatcher classifies a raw failure and runs the registered strategy for
// its kind. A missing or failing strategy degrades to a generic envelope;
// the original and secondary errors are both logged, never lost.
type Dispatcher struct {
	classifier *Classifier
	strategies map[Kind]Strategy
}

func NewDispatcher(classifier *Classifier) *Dispatcher {
	return &Dispatcher{
		classifier: classifier,
		strategies: make(map[Kind]Strategy),
	}
}

// Register installs the strategy for a kind, replacing any previous one.
func (d *Dispatcher) Register(kind Kind, s Strategy) {
	d.strategies[kind] = s
}

// Dispatch classifies err, runs the matching strategy, and returns the
// final envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, err error, f Failure) Envelope {
	kind := d.classifier.Classify(err)
	f.Kind = kind
	f.Err = err

	metrics.FallbacksTotal.WithLabelValues(string(kind)).Inc()
	slog.Warn("operation failed, dispatching fallback",
		"kind", kind,
		"error", err,
		"owner", f.OwnerID,
		"resource", f.ResourceID,
		"operation", f.Operation,
	)

	strategy, ok := d.strategies[kind]
	if !ok {
		return d.generic(kind, err)
	}

	env, strategyErr := strategy.Handle(ctx, f)
	if strategyErr != nil {
		slog.Error("fallback strategy failed",
			"kind", kind,
			"strategy", strategy.Name,
			"original_error", err,
			"strategy_error", strategyErr,
		)
		return d.generic(kind, err)
	}

	if env.FallbackStrategyUsed == "" && !env.Success {
		env.FallbackStrategyUsed = strategy.Name
	}
	return env
}

func (d *Dispatcher) generic(kind Kind, err error) Envelope {
	return Envelope{
		Success:             false,
		ErrorKind:           kind,
		Message:             err.Error(),
		ManualPathAvailable: kind != KindValidation,
	}
}
