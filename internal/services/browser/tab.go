package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/karanbh01/role-aggr/internal/common"
)

const (
	listNavigateTimeout   = 30 * time.Second
	detailNavigateTimeout = 60 * time.Second
	networkIdleBudget     = 20 * time.Second
	networkQuietWindow    = 500 * time.Millisecond
	clickSettleBudget     = 10 * time.Second

	scrollMaxIterations = 20
	scrollStagnantLimit = 5
	scrollSettleDelay   = 1 * time.Second
)

// extraHeaders are sent with every request so boards serve the same markup
// they serve desktop browsers.
var extraHeaders = network.Headers{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Tab is one isolated page context. It tracks its own network activity so
// navigations can settle on quiet rather than a fixed sleep.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	logger  arbor.ILogger

	inflight     atomic.Int64
	lastActivity atomic.Int64 // unix nanos of the last network event
}

// prepare enables the network domain, bypasses CSP, applies headers and
// resource blocking, and installs the activity tracker. Must run before the
// first navigation.
func (t *Tab) prepare(config common.BrowserConfig) error {
	if err := chromedp.Run(t.ctx, prepareActions(config)...); err != nil {
		return err
	}

	t.touch()
	chromedp.ListenTarget(t.ctx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			t.inflight.Add(1)
			t.touch()
		case *network.EventLoadingFinished, *network.EventLoadingFailed, *network.EventRequestServedFromCache:
			if t.inflight.Add(-1) < 0 {
				t.inflight.Store(0)
			}
			t.touch()
		}
	})
	return nil
}

// prepareActions builds the one-time setup commands for a fresh tab. CSP
// bypass lets injected expressions run on boards that lock down script-src.
func prepareActions(config common.BrowserConfig) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		page.SetBypassCSP(true),
		network.SetExtraHTTPHeaders(extraHeaders),
	}
	if patterns := blockPatterns(config.BlockedResources); len(patterns) > 0 {
		actions = append(actions, network.SetBlockedURLs(patterns))
	}
	return actions
}

// blockPatterns converts resource extensions ("png", "css") to URL patterns
// understood by the browser's request blocker.
func blockPatterns(extensions []string) []string {
	patterns := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		patterns = append(patterns, "*."+ext, "*."+ext+"?*")
	}
	return patterns
}

func (t *Tab) touch() {
	t.lastActivity.Store(time.Now().UnixNano())
}

// Navigate loads a listing URL. The load event is required; network idle is
// best-effort, since list markup is usually complete before trackers and
// analytics go quiet.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(t.ctx, listNavigateTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if err := t.waitNetworkIdle(ctx, networkIdleBudget); err != nil {
		t.logger.Warn().Str("url", url).Msg("Network did not go idle, proceeding with current page state")
	}
	return nil
}

// NavigateDetail loads a job detail URL, waiting only for the load event.
func (t *Tab) NavigateDetail(ctx context.Context, url string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(t.ctx, detailNavigateTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// waitNetworkIdle blocks until no request has been in flight for a quiet
// window, or budget elapses.
func (t *Tab) waitNetworkIdle(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if t.inflight.Load() <= 0 {
			last := time.Unix(0, t.lastActivity.Load())
			if time.Since(last) >= networkQuietWindow {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ctx.Done():
			return t.ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitVisible blocks until selector is visible or timeout elapses.
func (t *Tab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("selector %q not visible within %s: %w", selector, timeout, err)
	}
	return nil
}

// Probe reports whether selector becomes visible within timeout.
func (t *Tab) Probe(ctx context.Context, selector string, timeout time.Duration) bool {
	return t.WaitVisible(ctx, selector, timeout) == nil
}

// ClickNext clicks selector and waits for the triggered requests to settle.
// A settle timeout is not an error; the click failing is.
func (t *Tab) ClickNext(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(t.ctx, clickSettleBudget)
	defer cancel()
	if err := chromedp.Run(clickCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}

	if err := t.waitNetworkIdle(ctx, clickSettleBudget); err != nil {
		t.logger.Debug().Str("selector", selector).Msg("Page did not settle after click, proceeding")
	}
	return nil
}

// ScrollToExhaust scrolls to the bottom of the page until the count of
// itemSelector matches stops growing, and returns the final count.
func (t *Tab) ScrollToExhaust(ctx context.Context, itemSelector string) (int, error) {
	final, err := scrollUntilStable(
		func() (int, error) {
			count, err := t.Count(ctx, itemSelector)
			if err != nil {
				return 0, fmt.Errorf("failed to count %q while scrolling: %w", itemSelector, err)
			}
			return count, nil
		},
		func() error {
			if err := chromedp.Run(t.ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
				return fmt.Errorf("scroll failed: %w", err)
			}
			return nil
		},
		func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.ctx.Done():
				return t.ctx.Err()
			case <-time.After(scrollSettleDelay):
				return nil
			}
		},
	)
	if err != nil {
		return final, err
	}

	t.logger.Debug().Int("items", final).Str("selector", itemSelector).Msg("Scroll exhausted")
	return final, nil
}

// scrollUntilStable drives the infinite-scroll loop: count, scroll, settle.
// Growth resets the stagnation counter; scrollStagnantLimit consecutive
// passes without growth stop the loop, and scrollMaxIterations caps it on
// pages that keep producing rows. Returns the highest count observed.
func scrollUntilStable(count func() (int, error), scroll func() error, wait func() error) (int, error) {
	previous := 0
	stagnant := 0

	for attempt := 0; attempt < scrollMaxIterations; attempt++ {
		n, err := count()
		if err != nil {
			return previous, err
		}

		if n > previous {
			previous = n
			stagnant = 0
		} else {
			stagnant++
			if stagnant >= scrollStagnantLimit {
				break
			}
		}

		if err := scroll(); err != nil {
			return previous, err
		}
		if err := wait(); err != nil {
			return previous, err
		}
	}

	return previous, nil
}

// Count returns how many elements currently match selector.
func (t *Tab) Count(ctx context.Context, selector string) (int, error) {
	var count int
	expr := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := chromedp.Run(t.ctx, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, err
	}
	return count, nil
}

// HTML returns the rendered document's outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(t.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return html, nil
}

// Close releases the tab's page context.
func (t *Tab) Close() {
	t.cancel()
}
