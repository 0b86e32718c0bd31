package services

import (
	"context"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/ports"
)

// KeywordClassifier labels a prompt as math when it is plain arithmetic: an
// addition phrase or a bare expression of sums and differences. Code and chaining phrases are sas,
// since chaining needs the session's context.
type KeywordClassifier struct{}

var _ ports.Classifier = KeywordClassifier{}

func (KeywordClassifier) Classify(ctx context.Context, prompt string) (ports.PromptKind, error) {
	text := strings.TrimSpace(prompt)
	switch {
	case text == "", strings.Contains(text, ";"):
		return ports.PromptKindSAS, nil
	case chainPattern.MatchString(text):
		return ports.PromptKindSAS, nil
	case !numberPattern.MatchString(text):
		return ports.PromptKindSAS, nil
	case isAdditionPhrase(text), arithmeticPattern.MatchString(text):
		return ports.PromptKindMath, nil
	default:
		return ports.PromptKindSAS, nil
	}
}
