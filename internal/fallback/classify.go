package fallback

import (
	"errors"
	"strings"
)

// Kind is the single error taxonomy for the whole service. Every raw
// failure is classified exactly once, at the orchestrator boundary.
type Kind string

const (
	KindConfiguration   Kind = "configuration_error"
	KindAIService       Kind = "ai_service_error"
	KindContentAnalysis Kind = "content_analysis_error"
	KindCredit          Kind = "credit_error"
	KindValidation      Kind = "validation_error"
	KindSystem          Kind = "system_error"
)

// KindError tags an error with its kind at the point of origin. Classify
// honors the tag before falling back to message patterns.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string { return e.Err.Error() }
func (e *KindError) Unwrap() error { return e.Err }

// Tag wraps err with an explicit kind.
func Tag(kind Kind, err error) error {
	return &KindError{Kind: kind, Err: err}
}

type rule struct {
	kind     Kind
	patterns []string
}

// Classifier maps raw failures to a Kind using an ordered rule table over
// the lowercased failure message. First match wins; no match is a
// system_error.
type Classifier struct {
	rules []rule
}

func NewClassifier() *Classifier {
	return &Classifier{
		rules: []rule{
			{KindConfiguration, []string{"api key", "credential", "not configured", "misconfigured"}},
			{KindCredit, []string{"insufficient credit", "credit balance", "no credits"}},
			{KindValidation, []string{"validation", "invalid input", "is required", "must be"}},
			{KindContentAnalysis, []string{"content analysis", "analyzing content", "unsupported format", "corrupt"}},
			{KindAIService, []string{"name generation", "ai service", "model overloaded", "completion"}},
			{KindSystem, []string{"timeout", "connection", "unavailable", "internal"}},
		},
	}
}

// Classify resolves the error's kind. Tagged errors short-circuit the
// pattern rules.
func (c *Classifier) Classify(err error) Kind {
	if err == nil {
		return KindSystem
	}

	var tagged *KindError
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	msg := strings.ToLower(err.Error())
	for _, r := range c.rules {
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return r.kind
			}
		}
	}
	return KindSystem
}
