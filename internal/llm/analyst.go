// Package llm provides the Analyst abstraction and concrete implementations
// that turn triage issues and deep-dive findings into a root-cause narrative.
//
// An Analyst is optional for a diagnostic run: every caller treats a failed
// or missing analysis as an empty narrative.
package llm

import (
	"context"
	"time"
)

// Analyst generates a free-text analysis from a system and a user prompt.
type Analyst interface {
	GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider names an LLM backend.
type Provider string

const (
	// ProviderAuto picks Anthropic when an API key is available and Ollama
	// otherwise.
	ProviderAuto      Provider = ""
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderGroq      Provider = "groq"
	ProviderOpenAI    Provider = "openai"
	// ProviderNone disables analysis.
	ProviderNone Provider = "none"
)

// Config selects and configures an Analyst.
type Config struct {
	Provider Provider
	// Model defaults per provider.
	Model string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	APIKey  string
	// Timeout bounds one HTTP request. Zero means the provider default.
	Timeout time.Duration
}
