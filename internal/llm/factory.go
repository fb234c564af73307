package llm

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	opsv1alpha1 "github.com/tonyjoanes/gopher-doctor/api/v1alpha1"
)

// New builds the Analyst described by cfg. ProviderNone yields a nil
// Analyst and no error. ProviderAuto prefers Anthropic when an API key is
// present and falls back to a local Ollama otherwise.
func New(cfg Config) (Analyst, error) {
	provider := cfg.Provider
	if provider == ProviderAuto {
		provider = ProviderOllama
		if cfg.APIKey != "" {
			provider = ProviderAnthropic
		}
	}

	model := cfg.Model
	if model == "" {
		model = defaultModelFor(provider)
	}

	switch provider {
	case ProviderNone:
		return nil, nil
	case ProviderAnthropic:
		return NewAnthropicClient(model, cfg.APIKey, cfg.BaseURL), nil
	case ProviderOllama:
		o := NewOllamaClient(model, cfg.BaseURL)
		if cfg.Timeout > 0 {
			o.http.Timeout = cfg.Timeout
		}
		return o, nil
	case ProviderGroq, ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an API key", provider)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = groqBaseURL
			if provider == ProviderOpenAI {
				baseURL = openAIBaseURL
			}
		}
		return newChatCompletionsClient(string(provider), model, cfg.APIKey, baseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q: must be one of anthropic, ollama, groq, openai, none", provider)
	}
}

// NewFromSpec builds the Analyst for a NamespaceCheckup. Keys are read from
// the Secret named by spec.llmSecretRef in the checkup's namespace: "apiKey"
// is required for hosted providers and "baseUrl" optionally overrides the
// endpoint. A nil Analyst means analysis is disabled.
func NewFromSpec(ctx context.Context, c client.Client, nc *opsv1alpha1.NamespaceCheckup) (Analyst, error) {
	spec := nc.Spec
	if spec.SkipAnalysis || spec.LLMProvider == "" || spec.LLMProvider == opsv1alpha1.LLMProviderNone {
		return nil, nil
	}

	cfg := Config{Provider: Provider(spec.LLMProvider), Model: spec.LLMModel}
	if spec.LLMSecretRef != "" {
		// the base URL is optional for every provider
		if u, err := ReadSecretKey(ctx, c, nc.Namespace, spec.LLMSecretRef, "baseUrl"); err == nil {
			cfg.BaseURL = u
		}
	}

	switch spec.LLMProvider {
	case opsv1alpha1.LLMProviderAnthropic, opsv1alpha1.LLMProviderGroq, opsv1alpha1.LLMProviderOpenAI:
		apiKey, err := ReadSecretKey(ctx, c, nc.Namespace, spec.LLMSecretRef, "apiKey")
		if err != nil {
			return nil, fmt.Errorf("reading LLM API key secret %q: %w", spec.LLMSecretRef, err)
		}
		cfg.APIKey = apiKey
	}
	return New(cfg)
}

// defaultModelFor returns a sensible default model name for each provider.
func defaultModelFor(provider Provider) string {
	switch provider {
	case ProviderAnthropic:
		return defaultAnthropicModel
	case ProviderGroq:
		return "llama-3.3-70b-versatile"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return defaultOllamaModel
	}
}

// ReadSecretKey fetches a single string value from a Kubernetes Secret. The
// controller reads its GitHub token and webhook URL through it as well.
func ReadSecretKey(ctx context.Context, c client.Client, namespace, secretName, key string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name is empty")
	}

	var secret corev1.Secret
	if err := c.Get(ctx, types.NamespacedName{
		Namespace: namespace,
		Name:      secretName,
	}, &secret); err != nil {
		return "", fmt.Errorf("get secret %s/%s: %w", namespace, secretName, err)
	}

	val, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("secret %s/%s has no key %q", namespace, secretName, key)
	}
	return string(val), nil
}
