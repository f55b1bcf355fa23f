package interfaces

import (
	"context"

	"github.com/karanbh01/role-aggr/internal/models"
)

// LocationParser resolves raw location strings into structured geography.
// Implementations never fail a job: any error degrades to a low-confidence
// or Unknown result.
type LocationParser interface {
	// ParseOne resolves a single raw location string.
	ParseOne(ctx context.Context, raw string) models.Location

	// ParseBatch resolves many raw strings with at most one model call for
	// all cache misses combined. The result slice always has len(raws)
	// entries, positionally aligned with the input.
	ParseBatch(ctx context.Context, raws []string) []models.Location

	// Enabled reports whether model-backed parsing is configured. When
	// false, Parse* return Unknown placeholders without any calls.
	Enabled() bool
}

// CompletionProvider is a minimal chat-completion client. The location
// parser is provider-agnostic; implementations wrap OpenAI-compatible HTTP
// APIs, Gemini, or Claude.
type CompletionProvider interface {
	// Complete sends one system+user prompt pair and returns the raw model
	// text, which may include markdown code fences.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name identifies the provider for logs, e.g. "openai-compatible".
	Name() string
}
