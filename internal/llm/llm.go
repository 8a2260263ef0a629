// Package llm defines the text-generation capability consumed by the
// compactor, plus the Gemini-backed implementation used in production.
// No streaming and no structured-output mode is assumed: callers get raw
// text back and own all response parsing.
package llm

import "context"

// Generator produces text from a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
