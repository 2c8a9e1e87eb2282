// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/navcrawl/internal/config"
)

// ErrNotStarted is returned by NewPage before Start.
var ErrNotStarted = errors.New("browser: manager not started")

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome process and the tabs opened on it.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	mu    sync.Mutex
	pages map[string]*Page
	done  bool
}

// NewManager creates a manager. The browser is launched by Start.
func NewManager(cfg config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		pages:  make(map[string]*Page),
	}
}

// execOptions builds the allocator flags from the browser section.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.Maximize {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	} else if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Start launches Chrome. Calling it twice is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserCtx != nil {
		return nil
	}

	// The allocator must outlive ctx; Shutdown is what ends it.
	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), execOptions(m.cfg.Browser)...)
	m.browserCtx, m.browserStop = chromedp.NewContext(m.allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run launches the process.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserStop()
		m.allocCancel()
		m.browserCtx = nil
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	m.logger.Info("Browser launched.", zap.Bool("headless", m.cfg.Browser.Headless))
	return nil
}

// NewPage opens a tab and starts its event harvester.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if m.browserCtx == nil || m.done {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	var mainFrame cdp.FrameID
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		// a page target's main frame shares its id
		mainFrame = cdp.FrameID(c.Target.TargetID)
	}

	page := newPage(tabCtx, tabCancel, mainFrame, m.cfg, m.logger)
	if err := page.init(ctx); err != nil {
		tabCancel()
		return nil, err
	}
	page.onClose = func() {
		m.mu.Lock()
		delete(m.pages, page.ID())
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.pages[page.ID()] = page
	m.mu.Unlock()
	m.logger.Debug("Page opened.", zap.String("page_id", page.ID()))
	return page, nil
}

// Shutdown closes every open page, then the browser. It is safe to call
// more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done || m.browserCtx == nil {
		m.done = true
		m.mu.Unlock()
		return nil
	}
	m.done = true
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser.", zap.Int("open_pages", len(pages)))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pages {
		g.Go(func() error {
			return p.Close(gctx)
		})
	}
	pageErr := g.Wait()
	if pageErr != nil {
		m.logger.Warn("Error while closing pages.", zap.Error(pageErr))
	}

	cleanupCtx, cancel := context.WithTimeout(Detach(ctx), shutdownGracePeriod)
	defer cancel()

	var shutdownErr error
	if err := chromedp.Cancel(m.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		shutdownErr = fmt.Errorf("failed to close browser: %w", err)
	}
	m.browserStop()
	m.allocCancel()

	select {
	case <-m.allocCtx.Done():
	case <-cleanupCtx.Done():
		m.logger.Warn("Timed out waiting for the browser process to exit.")
	}

	m.logger.Info("Browser shutdown complete.")
	return shutdownErr
}
