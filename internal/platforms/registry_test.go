package platforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/interfaces"
)

type stubScraper struct {
	interfaces.PlatformScraper
	name string
}

func (s stubScraper) Platform() string { return s.name }

func register(t *testing.T, name string) {
	t.Helper()
	Register(name, func(Deps) (interfaces.PlatformScraper, error) {
		return stubScraper{name: name}, nil
	})
	t.Cleanup(func() {
		mu.Lock()
		delete(registry, name)
		mu.Unlock()
	})
}

func TestRegistryLookup(t *testing.T) {
	register(t, "testplatform")

	deps := Deps{Logger: arbor.NewLogger()}

	scraper, err := New("testplatform", deps)
	require.NoError(t, err)
	assert.Equal(t, "testplatform", scraper.Platform())

	// lookup is case-insensitive and trims whitespace
	scraper, err = New("  TestPlatform  ", deps)
	require.NoError(t, err)
	assert.Equal(t, "testplatform", scraper.Platform())
}

func TestRegistryUnknownPlatform(t *testing.T) {
	_, err := New("no-such-platform", Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestRegistrySupported(t *testing.T) {
	register(t, "anotherplatform")

	assert.True(t, Supported("anotherplatform"))
	assert.True(t, Supported("ANOTHERPLATFORM"))
	assert.False(t, Supported("missing"))
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { Register("", nil) })
	assert.Panics(t, func() {
		Register("nilbuilder", nil)
	})

	register(t, "dup")
	assert.Panics(t, func() {
		Register("dup", func(Deps) (interfaces.PlatformScraper, error) { return nil, nil })
	})
}

func TestNamesSorted(t *testing.T) {
	register(t, "zeta")
	register(t, "alpha")

	names := Names()
	require.GreaterOrEqual(t, len(names), 2)
	assert.IsIncreasing(t, names)
}
