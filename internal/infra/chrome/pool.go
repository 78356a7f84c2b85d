package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"svg2png/internal/config"
	"svg2png/internal/infra/logging"
)

var (
	ErrPoolClosed   = errors.New("chrome pool closed")
	ErrPoolDisabled = errors.New("chrome pool disabled: pool_size must be > 0")
)

// Tab is a browser tab leased from the pool.
type Tab struct {
	Ctx     context.Context
	cancel  context.CancelFunc
	browser *browser
}

// browser is one generation of the shared Chrome process. A retired browser
// stays up until its last leased tab is released.
type browser struct {
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string

	started   bool
	launching chan struct{}
	leased    int
	retired   bool

	once sync.Once
}

func (b *browser) shutdown() {
	b.once.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		if b.allocCancel != nil {
			b.allocCancel()
		}
		if b.profileDir != "" {
			_ = os.RemoveAll(b.profileDir)
		}
	})
}

// Pool shares a single Chrome process across a fixed number of tabs. The
// browser is launched lazily on the first Acquire.
type Pool struct {
	mu  sync.Mutex
	cfg config.Config
	sem chan struct{}

	cur    *browser
	gen    uint64
	closed bool

	restarts    int
	lastRestart time.Time
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	TimeoutSecs  int       `json:"timeout_secs"`
	Generation   uint64    `json:"generation"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart,omitzero"`
}

// AllocatorOptions returns the exec allocator flags used for every browser
// launch, pooled or not.
func AllocatorOptions(cfg config.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("hide-scrollbars", true),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		// The page under render is loaded from a file:// URL.
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if cfg.Chrome.Path != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Chrome.Path))
	}
	if cfg.Chrome.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// NewPool prepares a pool of cfg.Chrome.PoolSize tabs. No process is started
// until the first Acquire.
func NewPool(cfg config.Config) (*Pool, error) {
	if cfg.Chrome.PoolSize <= 0 {
		return nil, ErrPoolDisabled
	}
	p := &Pool{
		cfg: cfg,
		sem: make(chan struct{}, cfg.Chrome.PoolSize),
	}
	for i := 0; i < cfg.Chrome.PoolSize; i++ {
		p.sem <- struct{}{}
	}
	b, err := p.newBrowser()
	if err != nil {
		return nil, err
	}
	p.cur = b
	logging.Info("Chrome pool created", "size", cfg.Chrome.PoolSize, "profile_dir", b.profileDir)
	return p, nil
}

// createProfileDir makes a fresh user data dir below cfg.Chrome.UserDataDir,
// or below the system temp dir when unset.
func createProfileDir(cfg config.Config) (string, error) {
	base := cfg.Chrome.UserDataDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", fmt.Errorf("create chrome profile base %s: %w", base, err)
		}
	}
	dir, err := os.MkdirTemp(base, "svg2png-chrome-*")
	if err != nil {
		return "", fmt.Errorf("create chrome profile dir: %w", err)
	}
	return dir, nil
}

// newBrowser builds a new allocator and browser context without launching
// anything. Callers hold p.mu or own p exclusively.
func (p *Pool) newBrowser() (*browser, error) {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, dir)...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	p.gen++
	return &browser{
		gen:         p.gen,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		profileDir:  dir,
	}, nil
}

// lease returns the current browser with one more tab counted against it,
// launching it first if needed. The launch runs without p.mu held so Stats
// and Close stay responsive. Browsers built around an externally supplied
// context have no allocator and count as started.
func (p *Pool) lease(ctx context.Context) (*browser, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		b := p.cur
		if b == nil {
			p.mu.Unlock()
			return nil, errors.New("chrome pool not initialised")
		}
		if b.started || b.allocCancel == nil {
			b.leased++
			p.mu.Unlock()
			return b, nil
		}
		if b.launching != nil {
			wait := b.launching
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		b.launching = make(chan struct{})
		p.mu.Unlock()

		err := p.launch(b)

		p.mu.Lock()
		close(b.launching)
		b.launching = nil
		if err == nil {
			b.started = true
			b.leased++
			p.mu.Unlock()
			return b, nil
		}
		if p.cur == b && !p.closed {
			nb, nerr := p.newBrowser()
			if nerr != nil {
				logging.Error("Cannot prepare chrome after failed launch", "error", nerr)
			}
			p.cur = nb
		}
		p.mu.Unlock()
		b.shutdown()
		return nil, err
	}
}

// launch starts the browser process, bounded by render.timeout.
func (p *Pool) launch(b *browser) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(b.ctx) }()

	timeout := p.cfg.Render.Timeout
	if timeout <= 0 {
		if err := <-done; err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		return nil
	case <-timer.C:
		b.cancel()
		return fmt.Errorf("launch chrome after %s: %w", timeout, context.DeadlineExceeded)
	}
}

// Acquire waits for a free slot and opens a new tab in the shared browser.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.sem:
	}

	b, err := p.lease(ctx)
	if err != nil {
		p.sem <- struct{}{}
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	return &Tab{Ctx: tabCtx, cancel: cancel, browser: b}, nil
}

// Release closes the tab and returns its slot. A session-level failure of a
// tab from the current browser restarts the pool. Failures of tabs from a
// browser that was already replaced are ignored.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab == nil {
		p.sem <- struct{}{}
		return
	}
	if tab.cancel != nil {
		tab.cancel()
	}

	var stale *browser
	restart := false
	if b := tab.browser; b != nil {
		p.mu.Lock()
		b.leased--
		if b.retired && b.leased == 0 {
			stale = b
		}
		restart = !p.closed && b == p.cur && browserFailed(b, renderErr)
		p.mu.Unlock()
	}
	p.sem <- struct{}{}

	if stale != nil {
		stale.shutdown()
	}
	if restart {
		logging.Warn("Chrome session interrupted; restarting pool", "generation", tab.browser.gen, "error", renderErr)
		if err := p.replace(tab.browser); err != nil {
			logging.Error("Chrome pool restart failed", "error", err)
		}
	}
}

// browserFailed reports whether renderErr means b itself went away. A
// cancellation while b is still alive came from the caller, not Chrome.
func browserFailed(b *browser, renderErr error) bool {
	if !IsSessionInterrupted(renderErr) || errors.Is(renderErr, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(renderErr, context.Canceled) {
		return b.ctx.Err() != nil
	}
	return true
}

// Restart replaces the browser process and its profile dir. Tabs already
// leased keep the old browser until they are released.
func (p *Pool) Restart() error {
	return p.replace(nil)
}

// replace swaps in a fresh browser. With a non-nil from, nothing happens
// unless from is still current.
func (p *Pool) replace(from *browser) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if from != nil && p.cur != from {
		return nil
	}
	nb, err := p.newBrowser()
	if err != nil {
		return err
	}
	old := p.cur
	p.cur = nb
	p.restarts++
	p.lastRestart = time.Now()

	if old != nil {
		old.retired = true
		if old.leased == 0 {
			old.shutdown()
		}
	}
	return nil
}

// Close shuts the current browser down. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.cur != nil {
		p.cur.retired = true
		p.cur.shutdown()
	}
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	st := Stats{
		Enabled:      !p.closed,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.Chrome.PoolSize,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
	if p.cur != nil && !p.closed {
		st.ProfileDir = p.cur.profileDir
		st.Generation = p.cur.gen
	}
	return st
}

// IsSessionInterrupted reports whether err means the browser or tab went away
// rather than the page failing to render.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "browser closed", "invalid context"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
