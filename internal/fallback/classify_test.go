package fallback

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TaggedErrors(t *testing.T) {
	c := NewClassifier()

	for _, kind := range []Kind{
		KindConfiguration, KindAIService, KindContentAnalysis,
		KindCredit, KindValidation, KindSystem,
	} {
		err := Tag(kind, errors.New("anything at all"))
		assert.Equal(t, kind, c.Classify(err), "kind %s", kind)
	}
}

func TestClassify_TagSurvivesWrapping(t *testing.T) {
	c := NewClassifier()

	err := fmt.Errorf("deducting credits: %w", Tag(KindCredit, errors.New("insufficient credit balance")))
	assert.Equal(t, KindCredit, c.Classify(err))
}

func TestClassify_PatternRules(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		msg  string
		want Kind
	}{
		{"missing API key for provider", KindConfiguration},
		{"insufficient credit balance", KindCredit},
		{"validation failed: name is required", KindValidation},
		{"content analysis failed for image", KindContentAnalysis},
		{"name generation request rejected", KindAIService},
		{"connection refused", KindSystem},
		{"something entirely novel", KindSystem},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(errors.New(tc.msg)), "message %q", tc.msg)
	}
}

func TestClassify_OrderMatters(t *testing.T) {
	c := NewClassifier()

	// Mentions both credentials and a timeout; configuration rules run first.
	err := errors.New("credential check timeout")
	assert.Equal(t, KindConfiguration, c.Classify(err))
}

func TestClassify_NilError(t *testing.T) {
	assert.Equal(t, KindSystem, NewClassifier().Classify(nil))
}
