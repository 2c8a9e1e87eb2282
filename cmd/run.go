// File: cmd/run.go
package cmd

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/orchestrator"
)

// ErrProblemsFound is returned by crawl when any check reported an error.
// The summary has already been printed, so it carries no further detail.
var ErrProblemsFound = errors.New("problems found")

// runner is the part of the orchestrator the commands drive.
type runner interface {
	RunDiscover(ctx context.Context) ([]discovery.NavigationLink, error)
	RunCrawl(ctx context.Context, useCache bool) (orchestrator.CrawlOutcome, error)
}

// newRunner is swapped out by tests.
var newRunner = func(cfg *config.Config, logger *zap.Logger, opts orchestrator.Options) (runner, error) {
	return orchestrator.Build(cfg, logger, opts)
}
