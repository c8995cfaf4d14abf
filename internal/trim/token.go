// Package trim shrinks a context package to fit an absolute token budget.
// It is a staged, irreversible pipeline: images first, then low-relevance
// records, then change-list caps, then free-text truncation, then everything
// that remains. Each stage re-measures before the next runs, and the whole
// pipeline is idempotent once a package is compliant.
package trim

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates the token cost of a serialized payload.
type Counter interface {
	Count(text string) int
}

// Estimator is the default unit heuristic: one unit per four characters,
// rounded up. Deterministic and monotonic; exactness is not the contract.
type Estimator struct{}

func (Estimator) Count(text string) int {
	return (len(text) + 3) / 4
}

// Tiktoken counts exactly using a tiktoken encoding. Slower than Estimator;
// use when the downstream consumer's tokenizer is known.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktoken returns a counter for the given model, falling back to the
// cl100k_base encoding when the model is unknown.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{encoding: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

var (
	_ Counter = Estimator{}
	_ Counter = (*Tiktoken)(nil)
)
