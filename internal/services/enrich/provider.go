// -----------------------------------------------------------------------
// Completion Providers - model clients for structured location parsing
// -----------------------------------------------------------------------

package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
)

// ProviderType identifies which API family serves a model
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai-compatible"
	ProviderGemini ProviderType = "gemini"
	ProviderClaude ProviderType = "claude"
)

// Completion knobs shared by every provider. Location parsing wants
// near-deterministic short answers.
const (
	completionTemperature = 0.1
	completionMaxTokens   = 500
)

// DetectProvider infers the API family from the model name. Slash-qualified
// names that are not claude or gemini ("google/...", "meta-llama/...") go
// through the OpenAI-compatible endpoint, which is how routers expose them.
func DetectProvider(model string) ProviderType {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude-"), strings.HasPrefix(m, "claude/"), strings.HasPrefix(m, "anthropic/"):
		return ProviderClaude
	case strings.HasPrefix(m, "gemini-"), strings.HasPrefix(m, "gemini/"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

// NormalizeModel removes the provider prefix from model names used with
// direct clients ("claude/claude-sonnet-4" -> "claude-sonnet-4").
func NormalizeModel(model string) string {
	m := strings.TrimSpace(model)
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/"} {
		if strings.HasPrefix(strings.ToLower(m), prefix) {
			return m[len(prefix):]
		}
	}
	return m
}

// Factory builds the completion provider for the configured model, creating
// API clients lazily and reusing them across calls.
type Factory struct {
	config common.EnrichConfig
	logger arbor.ILogger

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient *anthropic.Client
}

// NewFactory creates a provider factory from the enrichment configuration.
func NewFactory(config common.EnrichConfig, logger arbor.ILogger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// Provider returns the completion provider for the configured model.
func (f *Factory) Provider(ctx context.Context) (interfaces.CompletionProvider, error) {
	if f.config.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for model %q", f.config.Model)
	}

	provider := DetectProvider(f.config.Model)
	model := NormalizeModel(f.config.Model)

	switch provider {
	case ProviderClaude:
		client, err := f.getClaudeClient()
		if err != nil {
			return nil, err
		}
		return &claudeProvider{client: client, model: model}, nil
	case ProviderGemini:
		client, err := f.getGeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return &geminiProvider{client: client, model: model}, nil
	default:
		return &openAIProvider{
			baseURL: strings.TrimRight(f.config.BaseURL, "/"),
			apiKey:  f.config.APIKey,
			model:   f.config.Model,
			httpClient: &http.Client{
				Timeout: 60 * time.Second,
			},
		}, nil
	}
}

// getGeminiClient returns a Gemini client, creating one if necessary
func (f *Factory) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// getClaudeClient returns a Claude client, creating one if necessary
func (f *Factory) getClaudeClient() (*anthropic.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claudeClient != nil {
		return f.claudeClient, nil
	}

	client := anthropic.NewClient(
		option.WithAPIKey(f.config.APIKey),
	)

	f.claudeClient = &client
	return f.claudeClient, nil
}

// Close releases provider clients.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geminiClient = nil
	f.claudeClient = nil
	return nil
}

// --- OpenAI-compatible HTTP provider (OpenRouter, vLLM, OpenAI itself) ---

type openAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// chatRequest mirrors the /v1/chat/completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse mirrors the relevant fields of the response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *openAIProvider) Name() string { return string(ProviderOpenAI) }

func (p *openAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint returned HTTP %d: %s", resp.StatusCode, string(respBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return "", fmt.Errorf("parse completion response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("completion error (%s): %s", chatResp.Error.Type, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// --- Gemini direct provider ---

type geminiProvider struct {
	client *genai.Client
	model  string
}

func (p *geminiProvider) Name() string { return string(ProviderGemini) }

func (p *geminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(completionTemperature)),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(userPrompt), config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}
	return text, nil
}

// --- Claude direct provider ---

type claudeProvider struct {
	client *anthropic.Client
	model  string
}

func (p *claudeProvider) Name() string { return string(ProviderClaude) }

func (p *claudeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   completionMaxTokens,
		Temperature: anthropic.Float(completionTemperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}
