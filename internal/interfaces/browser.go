package interfaces

import (
	"context"
	"time"
)

// BrowserTab is one isolated page context inside a headless browser session.
// Closing a tab never disturbs sibling tabs.
type BrowserTab interface {
	// Navigate loads a listing URL and settles on network idle. A settle
	// timeout is not fatal: implementations log a warning and proceed,
	// since the list markup is usually present before idle.
	Navigate(ctx context.Context, url string) error

	// NavigateDetail loads a job detail URL, waiting only for DOM content.
	NavigateDetail(ctx context.Context, url string) error

	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Probe reports whether selector becomes visible within timeout.
	// Absence is an answer, not an error.
	Probe(ctx context.Context, selector string, timeout time.Duration) bool

	// ClickNext clicks selector and waits for the DOM to settle again.
	ClickNext(ctx context.Context, selector string) error

	// ScrollToExhaust scrolls the page until the count of itemSelector
	// matches stops growing, and returns the final count.
	ScrollToExhaust(ctx context.Context, itemSelector string) (int, error)

	// Count returns how many elements currently match selector.
	Count(ctx context.Context, selector string) (int, error)

	// HTML returns the rendered document's outer HTML.
	HTML(ctx context.Context) (string, error)

	Close()
}

// BrowserSession owns one headless browser process and the tabs opened in it.
type BrowserSession interface {
	NewTab(ctx context.Context) (BrowserTab, error)
	Close()
}
