// internal/browser/page.go
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/wait"
)

//go:embed js/runtime.js
var runtimeScript string

const (
	readyPollInterval = 100 * time.Millisecond
	screenshotTimeout = 5 * time.Second
)

// Page is one browser tab.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.Config
	logger *zap.Logger

	dispatcher *Dispatcher
	harvester  *Harvester

	onClose   func()
	closeOnce sync.Once
}

func newPage(tabCtx context.Context, cancel context.CancelFunc, mainFrame cdp.FrameID, cfg config.Config, logger *zap.Logger) *Page {
	id := uuid.NewString()
	log := logger.Named("page").With(zap.String("page_id", id))
	dispatcher := NewDispatcher()
	return &Page{
		id:         id,
		ctx:        tabCtx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     log,
		dispatcher: dispatcher,
		harvester:  NewHarvester(tabCtx, mainFrame, dispatcher, log),
	}
}

func (p *Page) init(ctx context.Context) error {
	if err := p.harvester.Start(); err != nil {
		return err
	}
	if len(p.cfg.Network.Headers) > 0 {
		headers := make(network.Headers, len(p.cfg.Network.Headers))
		for k, v := range p.cfg.Network.Headers {
			headers[k] = v
		}
		if err := p.run(ctx, network.SetExtraHTTPHeaders(headers)); err != nil {
			return fmt.Errorf("failed to set extra headers: %w", err)
		}
	}
	return nil
}

// ID identifies the page in logs.
func (p *Page) ID() string { return p.id }

// run executes actions against the tab, bounded by both the tab and ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the page to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	_, err := p.Open(ctx, url)
	return err
}

// Open loads url, waits for the page to settle and returns the status of
// the top-level document response. The status is 0 for same-document
// navigations.
func (p *Page) Open(ctx context.Context, url string) (int, error) {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.Network.NavigationTimeout)
	defer cancel()

	p.logger.Debug("Navigating.", zap.String("url", url))
	p.harvester.ResetDocument()

	var errorText string
	err := p.run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, _, errorText, _, err = cdppage.Navigate(url).Do(ctx)
		return err
	}))
	if err != nil {
		return 0, fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if errorText != "" {
		return 0, fmt.Errorf("navigation to %s failed: %s", url, errorText)
	}

	if err := p.stabilize(navCtx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if navCtx.Err() != nil {
			return p.harvester.DocumentStatus(), fmt.Errorf("navigation to %s timed out after %s", url, p.cfg.Network.NavigationTimeout)
		}
		p.logger.Debug("Page did not fully settle.", zap.String("url", url), zap.Error(err))
	}
	return p.harvester.DocumentStatus(), nil
}

// stabilize waits for the document to finish loading and then for the
// network to go quiet, bounded by the settle timeout.
func (p *Page) stabilize(ctx context.Context) error {
	settleCtx, cancel := context.WithTimeout(ctx, p.cfg.Network.SettleTimeout)
	defer cancel()

	ready, err := wait.Until(settleCtx, p.cfg.Network.SettleTimeout, readyPollInterval, func(ctx context.Context) (bool, error) {
		var state string
		if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("document not ready within %s", p.cfg.Network.SettleTimeout)
	}

	idleCtx, idleCancel := CombineContext(p.ctx, settleCtx)
	defer idleCancel()
	return p.harvester.WaitNetworkIdle(idleCtx, p.cfg.Network.PostLoadWait)
}

// Location returns the current page URL.
func (p *Page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Evaluate runs script in the main document and decodes its value into res.
func (p *Page) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

// call invokes a helper from js/runtime.js with JSON encoded arguments.
func (p *Page) call(ctx context.Context, res interface{}, fn string, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode argument for %s: %w", fn, err)
		}
		encoded[i] = string(b)
	}
	script := runtimeScript + "\nwindow.__navcrawl." + fn + "(" + strings.Join(encoded, ", ") + ");"
	if err := p.Evaluate(ctx, script, res); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

// Screenshot captures the element matching selector, or the full page when
// selector is empty.
func (p *Page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if selector == "" {
		err := p.run(ctx, chromedp.FullScreenshot(&buf, 90))
		return buf, err
	}
	shotCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()
	err := p.run(shotCtx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible))
	return buf, err
}

// ShowStatus writes message into a small overlay in the page, or removes
// the overlay when message is empty. It does nothing unless the overlay is
// enabled.
func (p *Page) ShowStatus(ctx context.Context, message string) error {
	if !p.cfg.Browser.StatusOverlay {
		return nil
	}
	return p.call(ctx, nil, "status", message)
}

// Subscribe registers fn for this page's events until the subscription is
// closed.
func (p *Page) Subscribe(fn func(Event)) *Subscription {
	return p.dispatcher.Subscribe(fn)
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.harvester.Stop()
		closeCtx, cancel := context.WithTimeout(Detach(ctx), shutdownGracePeriod)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()
		select {
		case err = <-done:
		case <-closeCtx.Done():
			err = closeCtx.Err()
		}
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Page closed.")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
