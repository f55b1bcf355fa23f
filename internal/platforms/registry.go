// Package platforms maps platform names to scraper implementations.
// Platforms register themselves at build time from their package init, the
// same way database/sql drivers do; there is no runtime discovery.
package platforms

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/interfaces"
)

// Deps carries the shared dependencies every platform scraper receives.
type Deps struct {
	Logger arbor.ILogger
}

// Builder constructs one platform's scraper.
type Builder func(deps Deps) (interfaces.PlatformScraper, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Builder)
)

// Register makes a platform available under name. It panics on a duplicate
// name because that is a programming error, not a runtime condition.
func Register(name string, builder Builder) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		panic("platforms: Register called with empty name")
	}
	if builder == nil {
		panic("platforms: Register called with nil builder for " + name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[key]; exists {
		panic("platforms: duplicate registration for " + key)
	}
	registry[key] = builder
}

// New builds the scraper registered under name. Lookup is case-insensitive.
func New(name string, deps Deps) (interfaces.PlatformScraper, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	mu.RLock()
	builder, ok := registry[key]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown platform %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return builder(deps)
}

// Supported reports whether a scraper is registered under name.
func Supported(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns the registered platform names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
