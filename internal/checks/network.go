// internal/checks/network.go
package checks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/browser"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
)

// Finding kinds reported by the network validator.
const (
	KindHTTPError      = "http_error"
	KindNetworkFailure = "network_failure"
	KindCORS           = "cors"
	KindConsoleError   = "console_error"
	KindException      = "exception"
)

// Network reports failed HTTP responses, failed requests, console errors
// and uncaught exceptions seen while a page loads.
type Network struct {
	logger *zap.Logger
}

// NewNetwork returns the network validator.
func NewNetwork(logger *zap.Logger) *Network {
	return &Network{logger: logger.Named("checks.network")}
}

func (n *Network) Category() Category { return CategoryRequest }

// Begin subscribes to the page's events. The subscription lives until the
// probe is closed.
func (n *Network) Begin(_ context.Context, page Page, link discovery.NavigationLink) (Probe, error) {
	p := &networkProbe{link: link, logger: n.logger, seen: make(map[string]bool)}
	p.sub = page.Subscribe(p.observe)
	return p, nil
}

type networkProbe struct {
	link   discovery.NavigationLink
	logger *zap.Logger
	sub    *browser.Subscription

	mu       sync.Mutex
	findings []Finding
	seen     map[string]bool
}

func (p *networkProbe) observe(ev browser.Event) {
	var f Finding
	switch e := ev.(type) {
	case browser.ResponseEvent:
		if e.Status < 400 {
			return
		}
		f = Finding{Kind: KindHTTPError, URL: e.URL, Status: e.Status, Detail: fmt.Sprintf("%d %s", e.Status, e.StatusText)}
	case browser.RequestFailedEvent:
		if e.Canceled {
			return
		}
		kind := KindNetworkFailure
		if e.CORS {
			kind = KindCORS
		}
		f = Finding{Kind: kind, URL: e.URL, Detail: e.ErrorText}
	case browser.ConsoleEvent:
		if e.Level != "error" {
			return
		}
		f = Finding{Kind: KindConsoleError, Detail: e.Text}
	case browser.ExceptionEvent:
		f = Finding{Kind: KindException, Detail: e.Text}
	default:
		return
	}
	f.Category = CategoryRequest

	key := f.Kind + "|" + f.URL
	if f.URL == "" {
		key += "|" + f.Detail
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	p.findings = append(p.findings, f)
}

func (p *networkProbe) Finish(context.Context) ([]Finding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Finding, len(p.findings))
	copy(out, p.findings)
	for _, f := range out {
		p.logger.Warn("Request problem.",
			zap.String("page", p.link.Text),
			zap.String("kind", f.Kind),
			zap.String("url", f.URL),
			zap.String("detail", f.Detail))
	}
	return out, nil
}

func (p *networkProbe) Close() {
	p.sub.Close()
}
