// Package llm is the boundary to the external text-generation service.
package llm

import (
	"context"
	"errors"
)

// ErrGenerationFailed wraps every failure of the text-generation service.
var ErrGenerationFailed = errors.New("generation failed")

// Options controls a single generation request.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Disabled is a Generator that never produces text. Callers treat the empty
// result as "nothing to say".
type Disabled struct{}

// Generate always returns an empty string.
func (Disabled) Generate(context.Context, string, Options) (string, error) {
	return "", nil
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
