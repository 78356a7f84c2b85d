package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"svg2png/internal/config"
	"svg2png/internal/domain"
	"svg2png/internal/infra/chrome"
	"svg2png/internal/infra/logging"
)

// poolAcquireTimeout bounds the wait for a free tab.
const poolAcquireTimeout = 5 * time.Second

var errRendererClosed = errors.New("renderer closed")

// Browser renders SVG by screenshotting an HTML page in headless Chrome. With
// chrome.pool_size 0 every call launches and tears down its own browser.
type Browser struct {
	cfg config.Config

	mu      sync.Mutex
	pool    *chrome.Pool
	poolErr error
	closed  bool
}

func NewBrowser(cfg config.Config) *Browser {
	return &Browser{cfg: cfg}
}

func (b *Browser) Name() string { return config.EngineChromium }

// getPool creates the tab pool on first use. A failed init is remembered and
// returned to every later caller.
func (b *Browser) getPool() (*chrome.Pool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errRendererClosed
	}
	if b.cfg.Chrome.PoolSize <= 0 {
		return nil, nil
	}
	if b.pool != nil {
		return b.pool, nil
	}
	if b.poolErr != nil {
		return nil, b.poolErr
	}
	pool, err := chrome.NewPool(b.cfg)
	if err != nil {
		b.poolErr = err
		return nil, err
	}
	b.pool = pool
	return b.pool, nil
}

// PoolStats reports tab pool usage. It returns nil stats when pooling is off.
func (b *Browser) PoolStats() (*chrome.Stats, error) {
	pool, err := b.getPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, nil
	}
	s := pool.Stats(int(b.cfg.Render.Timeout / time.Second))
	return &s, nil
}

func (b *Browser) Render(ctx context.Context, doc domain.Document) ([]byte, error) {
	width, height := targetSize(b.cfg, doc)
	transparent := b.cfg.Render.Background == config.BackgroundTransparent

	html, err := buildPage(doc.Markup, width, height, transparent)
	if err != nil {
		return nil, err
	}
	path, err := writeTempPage(b.cfg.Render.TempDir, html)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove temp page", "path", path, "error", err)
		}
	}()

	pageURL, err := fileURL(path)
	if err != nil {
		return nil, err
	}

	pool, err := b.getPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return renderWithChrome(ctx, b.cfg, pageURL, width, height)
	}
	return b.renderPooled(ctx, pool, pageURL, width, height)
}

func (b *Browser) renderPooled(ctx context.Context, pool *chrome.Pool, pageURL string, width, height int) ([]byte, error) {
	acquireCtx, acquireCancel := context.WithTimeout(ctx, poolAcquireTimeout)
	tab, err := pool.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		return nil, fmt.Errorf("acquire chrome tab: %w", err)
	}

	runCtx, cancel := withTimeout(tab.Ctx, b.cfg.Render.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	png, renderErr := screenshotInTab(runCtx, b.cfg, pageURL, width, height)
	stop()
	cancel()

	pool.Release(tab, renderErr)
	return png, renderErr
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// renderWithChrome launches a dedicated browser for a single screenshot.
func renderWithChrome(ctx context.Context, cfg config.Config, pageURL string, width, height int) ([]byte, error) {
	profileDir, err := os.MkdirTemp(cfg.Render.TempDir, "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chrome.AllocatorOptions(cfg, profileDir)...)
	defer allocCancel()
	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	chromeCtx, timeoutCancel := withTimeout(chromeCtx, cfg.Render.Timeout)
	defer timeoutCancel()

	return screenshotInTab(chromeCtx, cfg, pageURL, width, height)
}

// screenshotInTab loads pageURL in the tab bound to ctx and captures it as PNG.
func screenshotInTab(ctx context.Context, cfg config.Config, pageURL string, width, height int) ([]byte, error) {
	var buf []byte
	actions := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
	}
	if cfg.Render.Background == config.BackgroundTransparent {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}).Do(ctx)
		}))
	}
	actions = append(actions,
		navigateAndWaitIdle(pageURL, cfg.Chrome.NetworkIdleTimeout),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitForRenderReady(ctx, cfg.Chrome.SettleDelay)
		}),
	)
	if cfg.Chrome.FullPage {
		actions = append(actions, chromedp.FullScreenshot(&buf, 100))
	} else {
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
	}

	if err := chromedp.Run(ctx, actions); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("screenshot returned no data")
	}
	return buf, nil
}

// navigateAndWaitIdle navigates and then waits for the page's networkIdle
// lifecycle event. Only the loader returned by this navigation counts, so
// events replayed for the tab's blank page are ignored. Missing the event
// within idleTimeout is not an error.
func navigateAndWaitIdle(pageURL string, idleTimeout time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		idle := newIdleTracker()
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chromedp.ListenTarget(listenCtx, func(ev any) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				idle.observe(e.LoaderID)
			}
		})

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}
		_, loader, errorText, err := page.Navigate(pageURL).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		idle.expect(loader)

		if err := waitForNetworkIdle(ctx, idle.done, idleTimeout); err != nil {
			return err
		}
		return chromedp.WaitReady("body", chromedp.ByQuery).Do(ctx)
	}
}

// idleTracker signals done once networkIdle is seen for the expected loader,
// whether the event arrives before or after the loader is known.
type idleTracker struct {
	mu    sync.Mutex
	known bool
	want  cdp.LoaderID
	seen  map[cdp.LoaderID]bool
	done  chan struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{seen: make(map[cdp.LoaderID]bool), done: make(chan struct{}, 1)}
}

func (t *idleTracker) observe(loader cdp.LoaderID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.known {
		if loader == t.want {
			t.signal()
		}
		return
	}
	t.seen[loader] = true
}

func (t *idleTracker) expect(loader cdp.LoaderID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = true
	t.want = loader
	if t.seen[loader] {
		t.signal()
	}
	t.seen = nil
}

func (t *idleTracker) signal() {
	select {
	case t.done <- struct{}{}:
	default:
	}
}

func waitForNetworkIdle(ctx context.Context, idle <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return nil
	case <-timer.C:
		logging.Warn("Network idle not observed; continuing", "waited", timeout.String())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitForRenderReady gives deferred rendering a fixed delay to settle. There
// is no completion signal from the page, so this is a heuristic.
func waitForRenderReady(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
