package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/browser"
	"github.com/xkilldash9x/navcrawl/internal/checks"
	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/linkcache"
	"github.com/xkilldash9x/navcrawl/internal/session"
	"github.com/xkilldash9x/navcrawl/internal/visitor"
)

// chromeBrowser narrows *browser.Manager to the Browser interface.
type chromeBrowser struct {
	*browser.Manager
}

func (b chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := b.Manager.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options adjust a run built from configuration.
type Options struct {
	// SkipChecks disables validators by category.
	SkipChecks []checks.Category
}

// Build wires the production components from cfg.
func Build(cfg *config.Config, logger *zap.Logger, opts Options) (*Orchestrator, error) {
	sess := session.NewManager(cfg.Login, cfg.LoginURL(), session.Credentials{
		Username: cfg.Login.Username,
		Password: cfg.Login.Password,
	}, logger)
	cache := linkcache.New(cfg.Cache.Path, logger)

	validators, err := checks.Build(checkSettings(cfg.Checks, opts.SkipChecks, logger), logger)
	if err != nil {
		return nil, err
	}

	visitCfg := cfg.Visit
	if visitCfg.HomeURL == "" {
		visitCfg.HomeURL = cfg.Target
	}

	return New(cfg, logger, Components{
		Browser:    chromeBrowser{browser.NewManager(*cfg, logger)},
		Session:    sess,
		Discoverer: discovery.NewEngine(cfg.Discovery, sess, cache, logger),
		Cache:      cache,
		Visitor:    visitor.New(visitCfg, sess, validators, logger),
	})
}

func checkSettings(cfg config.ChecksConfig, skip []checks.Category, logger *zap.Logger) checks.Settings {
	skipped := make(map[checks.Category]bool, len(skip))
	for _, c := range skip {
		skipped[c] = true
	}
	s := checks.Settings{
		Requests:    cfg.Requests && !skipped[checks.CategoryRequest],
		Colors:      cfg.Colors && !skipped[checks.CategoryColor],
		Text:        cfg.Text && !skipped[checks.CategoryText],
		Palette:     cfg.Palette,
		SearchTexts: cfg.SearchTexts,
	}
	if cfg.Screenshots {
		s.Shots = checks.NewScreenshots(cfg.ScreenshotDir, logger)
	}
	return s
}
