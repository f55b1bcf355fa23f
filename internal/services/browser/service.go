// -----------------------------------------------------------------------
// Browser Service - headless Chrome session management via chromedp
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/interfaces"
)

// startupTestTimeout bounds the about:blank smoke test run on every new
// browser process.
const startupTestTimeout = 30 * time.Second

// Service creates headless browser sessions from configuration.
type Service struct {
	config common.BrowserConfig
	rps    float64
	logger arbor.ILogger
}

// NewService creates a browser service. politenessRPS caps navigations per
// second across all tabs of a session; <= 0 disables the limit.
func NewService(config common.BrowserConfig, politenessRPS float64, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		rps:    politenessRPS,
		logger: logger,
	}
}

// Session owns one headless Chrome process. Tabs opened from it share the
// process but render in isolated contexts.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	limiter       *rate.Limiter
	config        common.BrowserConfig
	logger        arbor.ILogger
}

// OpenSession starts a browser process and verifies it responds.
func (s *Service) OpenSession(ctx context.Context) (interfaces.BrowserSession, error) {
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Smoke test: a browser that cannot reach about:blank is unusable
	testCtx, testCancel := context.WithTimeout(browserCtx, startupTestTimeout)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	limit := rate.Inf
	if s.rps > 0 {
		limit = rate.Limit(s.rps)
	}

	s.logger.Debug().
		Bool("headless", s.config.Headless).
		Dur("startup_time", time.Since(start)).
		Msg("Browser session started")

	return &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		limiter:       rate.NewLimiter(limit, 1),
		config:        s.config,
		logger:        s.logger,
	}, nil
}

func (s *Service) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(s.config.UserAgent),
		chromedp.WindowSize(s.config.WindowWidth, s.config.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	}
	if s.config.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}

// NewTab opens an isolated page context. The caller must Close it.
func (sess *Session) NewTab(ctx context.Context) (interfaces.BrowserTab, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tabCtx, tabCancel := chromedp.NewContext(sess.browserCtx)

	t := &Tab{
		ctx:     tabCtx,
		cancel:  tabCancel,
		limiter: sess.limiter,
		logger:  sess.logger,
	}
	if err := t.prepare(sess.config); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}
	return t, nil
}

// Close tears the browser process down. Tabs still open die with it.
func (sess *Session) Close() {
	sess.browserCancel()
	sess.allocCancel()
	sess.logger.Debug().Msg("Browser session closed")
}

// IsTargetClosed reports whether err means the tab or browser is gone, in
// which case retrying inside the same session cannot succeed.
func IsTargetClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "browser closed") ||
		strings.Contains(msg, "websocket: close")
}
