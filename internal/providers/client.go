// Package providers holds the LLM client implementations used when
// sub-queries run through a provider API instead of an external CLI.
package providers

import "context"

// LLMClient answers a single prompt with a single completion. Sub-query
// dispatch needs nothing more: the conversation lives in the prompt.
type LLMClient interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}
