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
	groqBaseURL   = "https://api.groq.com/openai/v1"
	openAIBaseURL = "https://api.openai.com/v1"
)

// ChatCompletionsClient calls an OpenAI-compatible chat completions API.
// Groq and OpenAI differ only in base URL and model names.
type ChatCompletionsClient struct {
	// Name labels errors, e.g. "groq".
	Name    string
	Model   string
	APIKey  string
	BaseURL string
	http    *http.Client
}

// NewGroqClient constructs a client for the Groq inference API.
func NewGroqClient(model, apiKey string) *ChatCompletionsClient {
	return newChatCompletionsClient("groq", model, apiKey, groqBaseURL, 0)
}

// NewOpenAIClient constructs a client for OpenAI or any compatible server
// reachable at baseURL.
func NewOpenAIClient(model, apiKey, baseURL string) *ChatCompletionsClient {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return newChatCompletionsClient("openai", model, apiKey, baseURL, 0)
}

func newChatCompletionsClient(name, model, apiKey, baseURL string, timeout time.Duration) *ChatCompletionsClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatCompletionsClient{
		Name:    name,
		Model:   model,
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GenerateAnalysis retries once on failure before returning an error.
func (g *ChatCompletionsClient) GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := g.generateOnce(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s analysis failed after 2 attempts: %w", g.Name, lastErr)
}

// --- OpenAI-compatible request/response types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func messages(systemPrompt, userPrompt string) []chatMessage {
	var out []chatMessage
	if systemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	return append(out, chatMessage{Role: "user", Content: userPrompt})
}

func (g *ChatCompletionsClient) generateOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.Model,
		Messages:    messages(systemPrompt, userPrompt),
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http POST %s: %w", g.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return "", fmt.Errorf("decoding %s response (status %d): %w", g.Name, resp.StatusCode, err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("%s API error (%s): %s", g.Name, apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s returned no content (status %d)", g.Name, resp.StatusCode)
	}
	return apiResp.Choices[0].Message.Content, nil
}
