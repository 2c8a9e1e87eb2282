// internal/checks/checks.go
package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/browser"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
)

// Category groups findings for the run summary.
type Category string

const (
	CategoryRequest    Category = "request"
	CategoryColor      Category = "color"
	CategoryText       Category = "text"
	CategoryNavigation Category = "navigation"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryRequest, CategoryColor, CategoryText, CategoryNavigation}

// Finding is one problem observed on a page.
type Finding struct {
	Category   Category `json:"category"`
	Kind       string   `json:"kind"`
	Detail     string   `json:"detail"`
	URL        string   `json:"url,omitempty"`
	Status     int      `json:"status,omitempty"`
	Screenshot string   `json:"screenshot,omitempty"`
}

// Page is the live tab a validator inspects.
type Page interface {
	Subscribe(fn func(browser.Event)) *browser.Subscription
	Evaluate(ctx context.Context, script string, res interface{}) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
}

// Validator checks one aspect of every visited page. Begin is called
// before navigation so event based validators see the whole load.
type Validator interface {
	Category() Category
	Begin(ctx context.Context, page Page, link discovery.NavigationLink) (Probe, error)
}

// Probe is a validator's hold on one page visit. Close must be called
// exactly once the visit is over, whatever happened in between.
type Probe interface {
	Finish(ctx context.Context) ([]Finding, error)
	Close()
}

// Settings selects and configures validators.
type Settings struct {
	Requests    bool
	Colors      bool
	Text        bool
	Palette     []string
	SearchTexts []string
	Shots       *Screenshots
}

// Build returns the enabled validators in a stable order.
func Build(cfg Settings, logger *zap.Logger) ([]Validator, error) {
	var validators []Validator
	if cfg.Requests {
		validators = append(validators, NewNetwork(logger))
	}
	if cfg.Colors {
		p, err := NewPalette(cfg.Palette, cfg.Shots, logger)
		if err != nil {
			return nil, err
		}
		validators = append(validators, p)
	}
	if cfg.Text {
		validators = append(validators, NewText(cfg.SearchTexts, cfg.Shots, logger))
	}
	return validators, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 40 {
		s = s[:40]
	}
	if s == "" {
		return "page"
	}
	return s
}

// Screenshots writes element captures for findings. A nil *Screenshots
// captures nothing.
type Screenshots struct {
	dir    string
	logger *zap.Logger
	seq    int
}

// NewScreenshots returns a writer into dir.
func NewScreenshots(dir string, logger *zap.Logger) *Screenshots {
	return &Screenshots{dir: dir, logger: logger.Named("screenshots")}
}

// Capture saves the element matching selector and returns the file path,
// or "" when nothing was written.
func (s *Screenshots) Capture(ctx context.Context, page Page, link discovery.NavigationLink, kind, selector string) string {
	if s == nil {
		return ""
	}
	buf, err := page.Screenshot(ctx, selector)
	if err != nil || len(buf) == 0 {
		s.logger.Debug("Element screenshot failed.", zap.String("selector", selector), zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("Could not create screenshot directory.", zap.String("dir", s.dir), zap.Error(err))
		return ""
	}
	s.seq++
	path := filepath.Join(s.dir, fmt.Sprintf("%03d_%s_%s.png", s.seq, slug(link.Text), kind))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.logger.Warn("Could not write screenshot.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}
