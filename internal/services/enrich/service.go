// -----------------------------------------------------------------------
// Location Enrichment - structured geography from raw location strings
// -----------------------------------------------------------------------

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
	"github.com/karanbh01/role-aggr/internal/models"
)

// systemPrompt demands strict JSON so responses parse without a second
// round trip. Full country names and coarse regions keep the read side's
// filters simple.
const systemPrompt = `You are a location parser. Parse location strings into structured JSON with fields: city, country, region, confidence.

Rules:
- "city": the city name, or the cleaned input when no city is identifiable.
- "country": the FULL country name ("United Kingdom", not "UK"; "United States", not "USA").
- "region": exactly one of: Americas, Europe, Asia, Oceania, Africa, Middle East, Remote, Unknown.
- "confidence": your confidence in the parse, a number from 0.1 to 1.0.
- Use "Unknown" for any field you cannot determine.
- Remote positions get city "Remote" and region "Remote" unless a country is named.
- Respond with JSON ONLY: a single object for a single location, a JSON array (same order, same length) for a numbered list. No prose.`

const (
	// confidenceGate is the minimum model confidence accepted into the
	// cache; weaker parses degrade to the cleaned-string fallback.
	confidenceGate = 0.5
	// fallbackConfidence marks values produced without a usable model parse.
	fallbackConfidence = 0.1

	maxAttempts           = 3
	initialBackoff        = 1 * time.Second
	maxBackoff            = 90 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// CleanFunc strips platform label noise ("Locations: ") from a raw string.
// It supplies the fallback city when the model parse is rejected.
type CleanFunc func(raw string) string

var locationsPrefix = regexp.MustCompile(`(?i)^\s*locations?\s*:?\s*`)

// defaultClean is used when no platform parser is plugged in.
func defaultClean(raw string) string {
	return strings.TrimSpace(locationsPrefix.ReplaceAllString(raw, ""))
}

// Service resolves raw location strings into structured geography with one
// model call per batch of cache misses. Failures degrade to fallbacks; a
// crawl never stalls on enrichment.
type Service struct {
	provider interfaces.CompletionProvider // nil when enrichment is disabled
	cache    interfaces.LocationCache
	clean    CleanFunc
	timeout  time.Duration
	logger   arbor.ILogger
}

// NewService creates the enrichment service. provider may be nil, which
// disables model calls entirely; clean may be nil to use the default label
// stripper.
func NewService(config common.EnrichConfig, provider interfaces.CompletionProvider, cache interfaces.LocationCache, clean CleanFunc, logger arbor.ILogger) *Service {
	timeout := defaultRequestTimeout
	if config.RequestTimeout != "" {
		if parsed, err := time.ParseDuration(config.RequestTimeout); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	if clean == nil {
		clean = defaultClean
	}
	return &Service{
		provider: provider,
		cache:    cache,
		clean:    clean,
		timeout:  timeout,
		logger:   logger,
	}
}

// Enabled reports whether model-backed parsing is configured.
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// cacheKey normalizes a raw location string into its cache key.
func cacheKey(raw string) string {
	return "loc::" + strings.ToLower(strings.TrimSpace(raw))
}

// ParseOne resolves a single raw location string.
func (s *Service) ParseOne(ctx context.Context, raw string) models.Location {
	if strings.TrimSpace(raw) == "" {
		return models.UnknownLocation()
	}
	if loc, ok := s.cache.Get(cacheKey(raw)); ok {
		return loc
	}
	if !s.Enabled() {
		return models.UnknownLocation()
	}

	response, err := s.completeWithRetry(ctx, "Parse this location: "+raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("location", raw).Msg("Location parse failed, using fallback")
		return s.fallback(raw)
	}

	parsed := s.parseResponse(response, 1)
	return s.accept(raw, parsed[0])
}

// ParseBatch resolves many raw strings with at most one model call for all
// cache misses combined. The result always has len(raws) entries, aligned
// with the input.
func (s *Service) ParseBatch(ctx context.Context, raws []string) []models.Location {
	results := make([]models.Location, len(raws))
	if len(raws) == 0 {
		return results
	}

	// Partition into cached and unique misses, preserving first-seen order
	var misses []string
	seen := make(map[string]bool)
	for i, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			results[i] = models.UnknownLocation()
			continue
		}
		key := cacheKey(raw)
		if loc, ok := s.cache.Get(key); ok {
			results[i] = loc
			continue
		}
		if !seen[key] {
			seen[key] = true
			misses = append(misses, raw)
		}
	}

	if len(misses) > 0 {
		s.resolveMisses(ctx, misses)
	}

	// Second pass: every miss is now either cached or gets a fallback
	for i, raw := range raws {
		if results[i] != (models.Location{}) {
			continue
		}
		if loc, ok := s.cache.Get(cacheKey(raw)); ok {
			results[i] = loc
		} else {
			results[i] = s.fallback(raw)
		}
	}
	return results
}

// resolveMisses issues the single batch call and caches accepted values.
func (s *Service) resolveMisses(ctx context.Context, misses []string) {
	if !s.Enabled() {
		return
	}

	var prompt strings.Builder
	prompt.WriteString("Parse these locations:\n")
	for i, raw := range misses {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, raw)
	}

	s.logger.Debug().Int("unique", len(misses)).Msg("Requesting batch location parse")
	response, err := s.completeWithRetry(ctx, prompt.String())
	if err != nil {
		s.logger.Warn().Err(err).Int("count", len(misses)).Msg("Batch location parse failed, falling back per item")
		return
	}

	parsed := s.parseResponse(response, len(misses))
	for i, raw := range misses {
		s.accept(raw, parsed[i])
	}
}

// accept applies the confidence gate: a strong parse is cached and
// returned, a weak or invalid one degrades to the fallback, which is never
// cached so a later run may try again.
func (s *Service) accept(raw string, loc models.Location) models.Location {
	if loc.Confidence < confidenceGate {
		return s.fallback(raw)
	}
	if err := s.cache.Set(cacheKey(raw), loc); err != nil {
		s.logger.Warn().Err(err).Str("location", raw).Msg("Failed to cache parsed location")
	}
	return loc
}

// fallback keeps the cleaned raw string as the city so downstream filters
// still have something human-readable to show.
func (s *Service) fallback(raw string) models.Location {
	return models.Location{
		City:       s.clean(raw),
		Country:    "Unknown",
		Region:     "Unknown",
		Confidence: fallbackConfidence,
	}
}

// completeWithRetry calls the provider up to maxAttempts times with
// exponential backoff, honoring API-suggested retry delays.
func (s *Service) completeWithRetry(ctx context.Context, userPrompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		response, err := s.provider.Complete(callCtx, systemPrompt, userPrompt)
		cancel()
		if err == nil {
			return response, nil
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		backoff := initialBackoff << attempt // 1s, 2s, 4s
		if delay := extractRetryDelay(err); delay > 0 {
			backoff = delay + 5*time.Second
		}
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		s.logger.Debug().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Location parse call failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("location parse failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryDelayPattern matches "Please retry in 45.3s" and "retryDelay: 45s",
// the two shapes rate-limited providers embed in error messages.
var retryDelayPattern = regexp.MustCompile(`(?i)(?:please retry in |retrydelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	m := retryDelayPattern.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// parseResponse turns raw model output into exactly expected locations,
// padding short or malformed responses with zero values so the caller's
// confidence gate converts them to fallbacks.
func (s *Service) parseResponse(response string, expected int) []models.Location {
	results := make([]models.Location, expected)

	payload := extractJSON(response)
	if payload == "" {
		s.logger.Warn().Msg("No JSON payload found in location parse response")
		return results
	}

	var items []locationItem
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		// Some models wrap the array, others return a bare object
		var wrapped struct {
			Locations []locationItem `json:"locations"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapped); err == nil && len(wrapped.Locations) > 0 {
			items = wrapped.Locations
		} else {
			var single locationItem
			if err := json.Unmarshal([]byte(payload), &single); err != nil {
				s.logger.Warn().Msg("Malformed JSON in location parse response")
				return results
			}
			items = []locationItem{single}
		}
	}

	if len(items) != expected {
		s.logger.Warn().
			Int("expected", expected).
			Int("received", len(items)).
			Msg("Location parse response length mismatch")
	}
	for i := 0; i < expected && i < len(items); i++ {
		results[i] = items[i].toLocation()
	}
	return results
}

// locationItem tolerates confidence arriving as a number or a string.
type locationItem struct {
	City       string          `json:"city"`
	Country    string          `json:"country"`
	Region     string          `json:"region"`
	Confidence json.RawMessage `json:"confidence"`
}

func (it locationItem) toLocation() models.Location {
	loc := models.Location{
		City:    orUnknown(it.City),
		Country: orUnknown(it.Country),
		Region:  orUnknown(it.Region),
	}
	if len(it.Confidence) > 0 {
		var f float64
		if err := json.Unmarshal(it.Confidence, &f); err == nil {
			loc.Confidence = f
		} else {
			var str string
			if err := json.Unmarshal(it.Confidence, &str); err == nil {
				if f, err := strconv.ParseFloat(str, 64); err == nil {
					loc.Confidence = f
				}
			}
		}
	}
	return loc
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return strings.TrimSpace(s)
}

// extractJSON pulls the JSON payload out of a model response that may be
// wrapped in a code fence or surrounded by prose.
func extractJSON(response string) string {
	text := strings.TrimSpace(response)

	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		} else {
			text = strings.TrimSpace(rest)
		}
	}

	// Prefer an array; a lone object is valid for single parses
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			return text[start : end+1]
		}
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return ""
}

var _ interfaces.LocationParser = (*Service)(nil)
