package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "gpt-oss"
)

// OllamaClient calls a locally-running Ollama server.
// No API key is required, which suits air-gapped clusters.
type OllamaClient struct {
	Model   string
	BaseURL string
	http    *http.Client
}

// NewOllamaClient constructs an OllamaClient.
// baseURL defaults to "http://localhost:11434" when empty.
func NewOllamaClient(model, baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		// first token can be slow on a cold model
		http: &http.Client{Timeout: 3 * time.Minute},
	}
}

// GenerateAnalysis retries once on transient failure.
func (o *OllamaClient) GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := o.generateOnce(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("ollama analysis failed after 2 attempts: %w", lastErr)
}

// --- Ollama /api/chat request/response types ---

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func (o *OllamaClient) generateOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:    o.Model,
		Messages: messages(systemPrompt, userPrompt),
		Stream:   false,
		Options:  ollamaOptions{Temperature: 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http POST ollama: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", apiResp.Error)
	}
	if apiResp.Message.Content == "" {
		return "", fmt.Errorf("ollama returned no content (status %d)", resp.StatusCode)
	}
	return apiResp.Message.Content, nil
}
