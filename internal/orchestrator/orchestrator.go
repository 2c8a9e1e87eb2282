// File: internal/orchestrator/orchestrator.go
// Description: Runs the two crawl modes against one browser page. It is
// injected with its components through interfaces so tests can drive it
// without a browser.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/browser"
	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/linkcache"
	"github.com/xkilldash9x/navcrawl/internal/profile"
	"github.com/xkilldash9x/navcrawl/internal/session"
	"github.com/xkilldash9x/navcrawl/internal/visitor"
	"github.com/xkilldash9x/navcrawl/internal/wait"
)

const shutdownTimeout = 30 * time.Second

// Page is everything the run does to the tab.
type Page interface {
	visitor.Page
	discovery.Surface
	Close(ctx context.Context) error
}

// Browser launches the browser and hands out pages.
type Browser interface {
	Start(ctx context.Context) error
	NewPage(ctx context.Context) (Page, error)
	Shutdown(ctx context.Context) error
}

// Session logs in and keeps the session alive across the run.
type Session interface {
	visitor.SessionKeeper
	Establish(ctx context.Context, page session.FormSurface) (bool, error)
}

// Discoverer produces the navigation link set.
type Discoverer interface {
	Discover(ctx context.Context, s discovery.Surface, appType profile.AppType, p profile.Profile) ([]discovery.NavigationLink, error)
}

// LinkSource loads a previously persisted link set.
type LinkSource interface {
	Load() ([]discovery.NavigationLink, error)
}

// Visitor walks the link set.
type Visitor interface {
	VisitAll(ctx context.Context, page visitor.Page, links []discovery.NavigationLink) (visitor.Results, error)
}

// Components are the collaborators of a run.
type Components struct {
	Browser    Browser
	Session    Session
	Discoverer Discoverer
	Cache      LinkSource
	Visitor    Visitor
}

// Orchestrator manages the lifecycle of one run.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger
	comp   Components
}

// New creates an orchestrator with its dependencies provided as interfaces.
func New(cfg *config.Config, logger *zap.Logger, comp Components) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		comp.Browser == nil ||
		comp.Session == nil ||
		comp.Discoverer == nil ||
		comp.Cache == nil ||
		comp.Visitor == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:    *cfg,
		logger: logger.Named("orchestrator"),
		comp:   comp,
	}, nil
}

// CrawlOutcome is what a full crawl produced.
type CrawlOutcome struct {
	Links     []discovery.NavigationLink
	FromCache bool
	Results   visitor.Results
}

// RunDiscover logs in, discovers the navigation links and persists them.
func (o *Orchestrator) RunDiscover(ctx context.Context) (links []discovery.NavigationLink, err error) {
	page, release, err := o.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer release(&err)

	return o.discover(ctx, page)
}

// RunCrawl visits every link and runs the validators on each page. With
// useCache the persisted link set is used when one exists; otherwise links
// are discovered live first.
func (o *Orchestrator) RunCrawl(ctx context.Context, useCache bool) (outcome CrawlOutcome, err error) {
	page, release, err := o.prepare(ctx)
	if err != nil {
		return outcome, err
	}
	defer release(&err)

	if useCache {
		outcome.Links, err = o.comp.Cache.Load()
		switch {
		case err == nil:
			outcome.FromCache = true
			o.logger.Info("Using cached links.", zap.Int("links", len(outcome.Links)))
		case errors.Is(err, linkcache.ErrNoArtifact):
			o.logger.Info("No cached links available; discovering live.")
		default:
			return outcome, err
		}
	}
	if !outcome.FromCache {
		if outcome.Links, err = o.discover(ctx, page); err != nil {
			return outcome, err
		}
	}
	if len(outcome.Links) == 0 {
		o.logger.Warn("No links to visit.")
		outcome.Results = visitor.NewResults()
		return outcome, nil
	}

	if grace := o.cfg.Visit.GracePeriod; grace > 0 {
		o.logger.Info("Starting the visit shortly; interrupt now to abort.",
			zap.Int("links", len(outcome.Links)),
			zap.Duration("grace_period", grace))
		_ = page.ShowStatus(ctx, fmt.Sprintf("Visiting %d pages shortly", len(outcome.Links)))
		if err = wait.Sleep(ctx, grace); err != nil {
			return outcome, err
		}
	}

	outcome.Results, err = o.comp.Visitor.VisitAll(ctx, page, outcome.Links)
	return outcome, err
}

// prepare launches the browser, opens the page and establishes the session.
// release must be deferred by the caller; it closes everything and folds a
// shutdown failure into *errp when the run itself succeeded.
func (o *Orchestrator) prepare(ctx context.Context) (Page, func(errp *error), error) {
	shutdown := func() error {
		cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), shutdownTimeout)
		defer cancel()
		return o.comp.Browser.Shutdown(cleanupCtx)
	}

	if err := o.comp.Browser.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	page, err := o.comp.Browser.NewPage(ctx)
	if err != nil {
		if serr := shutdown(); serr != nil {
			o.logger.Warn("Browser shutdown failed.", zap.Error(serr))
		}
		return nil, nil, fmt.Errorf("failed to open page: %w", err)
	}
	release := func(errp *error) {
		if serr := shutdown(); serr != nil {
			o.logger.Warn("Browser shutdown failed.", zap.Error(serr))
			if *errp == nil {
				*errp = serr
			}
		}
	}

	_ = page.ShowStatus(ctx, "Logging in")
	confirmed, err := o.comp.Session.Establish(ctx, page)
	if err != nil {
		release(&err)
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}
	if !confirmed {
		// skipped or unconfirmed logins leave the page wherever the flow stopped
		if err := page.Navigate(ctx, o.cfg.Target); err != nil {
			release(&err)
			return nil, nil, fmt.Errorf("could not open target: %w", err)
		}
	}
	return page, release, nil
}

func (o *Orchestrator) discover(ctx context.Context, page Page) ([]discovery.NavigationLink, error) {
	_ = page.ShowStatus(ctx, "Discovering navigation links")
	appType := profile.Select(ctx, o.cfg.Navigation.Profile, page, o.logger)
	p := profile.Resolve(appType, o.cfg.Navigation.Overrides)

	links, err := o.comp.Discoverer.Discover(ctx, page, appType, p)
	if err != nil {
		return nil, fmt.Errorf("link discovery failed: %w", err)
	}
	_ = page.ShowStatus(ctx, "")
	return links, nil
}
