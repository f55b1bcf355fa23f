package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/models"
)

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	prompts   []string
	responses []string // consumed in order; the last one repeats
	err       error
	failTimes int // fail this many calls before succeeding
}

func (p *fakeProvider) Complete(_ context.Context, _, userPrompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts = append(p.prompts, userPrompt)
	if p.failTimes > 0 {
		p.failTimes--
		return "", errors.New("transient upstream error")
	}
	if p.err != nil {
		return "", p.err
	}
	if len(p.responses) == 0 {
		return "[]", nil
	}
	response := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return response, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]models.Location
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]models.Location)}
}

func (c *mapCache) Get(key string) (models.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.entries[key]
	return loc, ok
}

func (c *mapCache) Set(key string, loc models.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
	return nil
}

func (c *mapCache) Close() error { return nil }

func newTestService(provider *fakeProvider, cache *mapCache) *Service {
	config := common.EnrichConfig{RequestTimeout: "5s"}
	if provider == nil {
		return NewService(config, nil, cache, nil, arbor.NewLogger())
	}
	return NewService(config, provider, cache, nil, arbor.NewLogger())
}

func TestParseOne_CacheHit(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	cached := models.Location{City: "London", Country: "United Kingdom", Region: "Europe", Confidence: 0.95}
	require.NoError(t, cache.Set("loc::london, uk", cached))

	s := newTestService(provider, cache)

	got := s.ParseOne(context.Background(), "  London, UK  ")
	assert.Equal(t, cached, got, "key normalization: trim and lowercase")
	assert.Zero(t, provider.callCount(), "cache hits make no model calls")
}

func TestParseOne_Disabled(t *testing.T) {
	s := newTestService(nil, newMapCache())

	assert.False(t, s.Enabled())
	got := s.ParseOne(context.Background(), "Paris, France")
	assert.Equal(t, models.UnknownLocation(), got)
}

func TestParseOne_EmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestService(provider, newMapCache())

	got := s.ParseOne(context.Background(), "   ")
	assert.Equal(t, models.UnknownLocation(), got)
	assert.Zero(t, provider.callCount())
}

func TestParseOne_AcceptsAndCaches(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"city": "Sydney", "country": "Australia", "region": "Oceania", "confidence": 0.9}`,
	}}
	cache := newMapCache()
	s := newTestService(provider, cache)

	got := s.ParseOne(context.Background(), "Sydney")
	assert.Equal(t, "Sydney", got.City)
	assert.Equal(t, "Australia", got.Country)
	assert.Equal(t, "Oceania", got.Region)

	cached, ok := cache.Get("loc::sydney")
	require.True(t, ok, "confident parses are cached")
	assert.Equal(t, got, cached)
}

func TestParseOne_LowConfidenceNotCached(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"city": "Somewhere", "country": "Unknown", "region": "Unknown", "confidence": 0.2}`,
	}}
	cache := newMapCache()
	s := newTestService(provider, cache)

	got := s.ParseOne(context.Background(), "Locations: Somewhere odd")
	assert.Equal(t, "Somewhere odd", got.City, "fallback city is the cleaned raw string")
	assert.Equal(t, "Unknown", got.Country)
	assert.InDelta(t, 0.1, got.Confidence, 0.001)

	_, ok := cache.Get("loc::locations: somewhere odd")
	assert.False(t, ok, "rejected parses stay out of the cache so later runs retry")
}

func TestParseBatch_OneCallForUniqueMisses(t *testing.T) {
	provider := &fakeProvider{responses: []string{`[
		{"city": "London", "country": "United Kingdom", "region": "Europe", "confidence": 0.95},
		{"city": "Tokyo", "country": "Japan", "region": "Asia", "confidence": 0.9}
	]`}}
	cache := newMapCache()
	cached := models.Location{City: "Berlin", Country: "Germany", Region: "Europe", Confidence: 0.9}
	require.NoError(t, cache.Set(cacheKey("Berlin"), cached))

	s := newTestService(provider, cache)

	raws := []string{"London, UK", "Berlin", "Tokyo", "London, UK", ""}
	results := s.ParseBatch(context.Background(), raws)

	require.Len(t, results, len(raws))
	assert.Equal(t, 1, provider.callCount(), "one model call covers every unique miss")
	assert.Equal(t, "London", results[0].City)
	assert.Equal(t, cached, results[1])
	assert.Equal(t, "Tokyo", results[2].City)
	assert.Equal(t, results[0], results[3], "duplicate raws share one parse")
	assert.Equal(t, models.UnknownLocation(), results[4])

	// the batch prompt enumerates only the two misses
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "1. London, UK")
	assert.Contains(t, provider.prompts[0], "2. Tokyo")
	assert.NotContains(t, provider.prompts[0], "Berlin")
}

func TestParseBatch_AllCached(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	loc := models.Location{City: "Oslo", Country: "Norway", Region: "Europe", Confidence: 0.9}
	require.NoError(t, cache.Set(cacheKey("Oslo"), loc))

	s := newTestService(provider, cache)
	results := s.ParseBatch(context.Background(), []string{"Oslo", "oslo", " OSLO "})

	for _, got := range results {
		assert.Equal(t, loc, got)
	}
	assert.Zero(t, provider.callCount())
}

func TestParseBatch_FencedResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"Here you go:\n```json\n[{\"city\": \"Madrid\", \"country\": \"Spain\", \"region\": \"Europe\", \"confidence\": 0.9}]\n```",
	}}
	s := newTestService(provider, newMapCache())

	results := s.ParseBatch(context.Background(), []string{"Madrid"})
	require.Len(t, results, 1)
	assert.Equal(t, "Madrid", results[0].City)
	assert.Equal(t, "Spain", results[0].Country)
}

func TestParseBatch_ShortResponsePadsWithFallbacks(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`[{"city": "Lisbon", "country": "Portugal", "region": "Europe", "confidence": 0.9}]`,
	}}
	s := newTestService(provider, newMapCache())

	results := s.ParseBatch(context.Background(), []string{"Lisbon", "Porto"})
	require.Len(t, results, 2)
	assert.Equal(t, "Lisbon", results[0].City)
	assert.Equal(t, "Porto", results[1].City, "missing entries fall back to the cleaned raw")
	assert.InDelta(t, 0.1, results[1].Confidence, 0.001)
}

func TestParseBatch_Disabled(t *testing.T) {
	s := newTestService(nil, newMapCache())

	results := s.ParseBatch(context.Background(), []string{"Locations: Austin, TX", "Remote"})
	require.Len(t, results, 2)
	assert.Equal(t, "Austin, TX", results[0].City)
	assert.Equal(t, "Unknown", results[0].Country)
	assert.Equal(t, "Remote", results[1].City)
}

func TestCompleteWithRetry_RecoversFromTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		failTimes: 2,
		responses: []string{`{"city": "Rome", "country": "Italy", "region": "Europe", "confidence": 0.9}`},
	}
	s := newTestService(provider, newMapCache())

	got := s.ParseOne(context.Background(), "Rome")
	assert.Equal(t, "Rome", got.City)
	assert.Equal(t, 3, provider.callCount())
}

func TestCompleteWithRetry_ContextCancel(t *testing.T) {
	provider := &fakeProvider{err: errors.New("always failing")}
	s := newTestService(provider, newMapCache())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	got := s.ParseOne(ctx, "Nowhere")
	assert.Equal(t, "Nowhere", got.City, "cancellation degrades to the fallback")
}

func TestExtractRetryDelay(t *testing.T) {
	tests := []struct {
		message  string
		expected time.Duration
	}{
		{"429: Please retry in 12s", 12 * time.Second},
		{"rate limited, retryDelay: 45s", 45 * time.Second},
		{"please retry in 2.5s", 2500 * time.Millisecond},
		{"internal error", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractRetryDelay(errors.New(tt.message)), tt.message)
	}
	assert.Zero(t, extractRetryDelay(nil))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare array", `[{"a":1}]`, `[{"a":1}]`},
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced plain", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around array", "Sure: [{\"a\":1}] hope that helps", `[{"a":1}]`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"no json", "sorry, I cannot do that", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestLocationItemConfidence(t *testing.T) {
	s := newTestService(&fakeProvider{}, newMapCache())

	// string confidence, as some models emit
	got := s.parseResponse(`{"city": "Lima", "country": "Peru", "region": "Americas", "confidence": "0.8"}`, 1)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.8, got[0].Confidence, 0.001)

	// missing fields become Unknown
	got = s.parseResponse(`{"confidence": 0.9}`, 1)
	assert.Equal(t, "Unknown", got[0].City)
	assert.Equal(t, "Unknown", got[0].Country)
	assert.Equal(t, "Unknown", got[0].Region)
}

func TestDefaultClean(t *testing.T) {
	assert.Equal(t, "London, UK", defaultClean("Locations: London, UK"))
	assert.Equal(t, "Remote", defaultClean("location Remote"))
	assert.Equal(t, "Paris", defaultClean("  Paris  "))
	assert.Equal(t, "", defaultClean("   "))
}

func TestSystemPromptShape(t *testing.T) {
	// the prompt pins the response contract the parser depends on
	assert.True(t, strings.Contains(systemPrompt, "JSON"))
	for _, region := range []string{"Americas", "Europe", "Asia", "Oceania", "Africa", "Middle East", "Remote", "Unknown"} {
		assert.Contains(t, systemPrompt, region)
	}
}
