// internal/visitor/visitor.go
package visitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/navcrawl/internal/checks"
	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/session"
)

// Outcome is the result of visiting one link.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeNavigationError Outcome = "navigation_error"
	OutcomeSessionLost     Outcome = "session_lost"
)

// Page is the tab the visitor drives.
type Page interface {
	checks.Page
	session.FormSurface
	// Open navigates and returns the top-level document status.
	Open(ctx context.Context, url string) (int, error)
	ShowStatus(ctx context.Context, message string) error
}

// SessionKeeper checks and restores the authenticated session.
type SessionKeeper interface {
	IsAlive(ctx context.Context, page session.Locator) (bool, error)
	Recover(ctx context.Context, page session.FormSurface) (bool, error)
	IsExpiredURL(rawURL string) bool
}

// LinkOutcome records what happened on one link.
type LinkOutcome struct {
	Link     discovery.NavigationLink `json:"link"`
	Outcome  Outcome                  `json:"outcome"`
	Status   int                      `json:"status,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Findings []checks.Finding         `json:"findings,omitempty"`
}

// Results aggregates a visit run.
type Results struct {
	Visited int                     `json:"visited"`
	Counts  map[checks.Category]int `json:"counts"`
	Links   []LinkOutcome           `json:"links"`
}

// NewResults returns results with every category present.
func NewResults() Results {
	counts := make(map[checks.Category]int, len(checks.Categories))
	for _, c := range checks.Categories {
		counts[c] = 0
	}
	return Results{Counts: counts}
}

// Total is the sum of all category counts.
func (r Results) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Visitor walks a link list on one page.
type Visitor struct {
	cfg        config.VisitConfig
	keeper     SessionKeeper
	validators []checks.Validator
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New builds a visitor. keeper may be nil when the target needs no login.
func New(cfg config.VisitConfig, keeper SessionKeeper, validators []checks.Validator, logger *zap.Logger) *Visitor {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Visitor{
		cfg:        cfg,
		keeper:     keeper,
		validators: validators,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.Named("visitor"),
	}
}

// VisitAll visits every link in order. Problems with one link are recorded
// and the loop moves on. The only error returned is a failed mandatory
// session recovery, alongside the results gathered so far, or the context
// ending.
func (v *Visitor) VisitAll(ctx context.Context, page Page, links []discovery.NavigationLink) (Results, error) {
	results := NewResults()
	v.logger.Info("Visiting links.", zap.Int("links", len(links)), zap.Int("validators", len(v.validators)))

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		_ = page.ShowStatus(ctx, fmt.Sprintf("Checking %s (%d/%d)", link.Text, i+1, len(links)))

		outcome, err := v.visit(ctx, page, link)
		if err != nil {
			return results, err
		}
		results.Visited++
		results.Links = append(results.Links, outcome)
		if outcome.Outcome != OutcomeOK {
			results.Counts[checks.CategoryNavigation]++
		}
		for _, f := range outcome.Findings {
			results.Counts[f.Category]++
		}
	}

	_ = page.ShowStatus(ctx, "")
	v.logger.Info("Visit finished.", zap.Int("visited", results.Visited), zap.Int("errors", results.Total()))
	return results, nil
}

func (v *Visitor) visit(ctx context.Context, page Page, link discovery.NavigationLink) (LinkOutcome, error) {
	log := v.logger.With(zap.String("text", link.Text), zap.String("href", link.Href))
	out := LinkOutcome{Link: link, Outcome: OutcomeOK}

	// One recovery per link, whether the session died before or during
	// navigation.
	recovered := false
	if v.keeper != nil {
		ok, didRecover, err := v.ensureSession(ctx, page, log)
		if err != nil {
			return out, err
		}
		if !ok {
			out.Outcome = OutcomeSessionLost
			out.Error = "session expired and could not be recovered"
			return out, nil
		}
		recovered = didRecover
	}

	for {
		res, expired, err := v.open(ctx, page, link, log)
		if err != nil || !expired {
			return res, err
		}
		if recovered {
			log.Warn("Session expired again after recovery; skipping link.", zap.String("location", res.Error))
			res.Outcome = OutcomeSessionLost
			res.Error = "session expired again after recovery"
			return res, nil
		}
		recovered = true
		log.Warn("Session expired during navigation; recovering.")
		ok, err := v.keeper.Recover(ctx, page)
		if err != nil {
			return out, fmt.Errorf("session recovery failed: %w", err)
		}
		if !ok {
			log.Warn("Session could not be recovered; skipping link.")
			out.Outcome = OutcomeSessionLost
			out.Error = "session expired and could not be recovered"
			return out, nil
		}
	}
}

// open navigates to link with fresh validators attached. expired reports a
// landing on the login page, in which case no findings are collected and
// Error holds the location.
func (v *Visitor) open(ctx context.Context, page Page, link discovery.NavigationLink, log *zap.Logger) (out LinkOutcome, expired bool, err error) {
	out = LinkOutcome{Link: link, Outcome: OutcomeOK}
	if err := v.limiter.Wait(ctx); err != nil {
		return out, false, err
	}

	probes := make([]checks.Probe, 0, len(v.validators))
	defer func() {
		for _, p := range probes {
			p.Close()
		}
	}()
	for _, val := range v.validators {
		probe, err := val.Begin(ctx, page, link)
		if err != nil {
			log.Warn("Validator could not start.", zap.String("category", string(val.Category())), zap.Error(err))
			continue
		}
		probes = append(probes, probe)
	}

	status, navErr := page.Open(ctx, link.Href)
	out.Status = status
	if navErr == nil && status >= 400 {
		navErr = fmt.Errorf("HTTP %d", status)
	}
	if navErr == nil && v.keeper != nil {
		if loc, lerr := page.Location(ctx); lerr == nil && v.keeper.IsExpiredURL(loc) {
			out.Error = loc
			return out, true, nil
		}
	}
	if navErr != nil {
		if ctx.Err() != nil {
			return out, false, ctx.Err()
		}
		log.Warn("Navigation failed.", zap.Int("status", status), zap.Error(navErr))
		out.Outcome = OutcomeNavigationError
		out.Error = navErr.Error()
		v.returnHome(ctx, page)
		return out, false, nil
	}

	for _, p := range probes {
		findings, err := p.Finish(ctx)
		if err != nil {
			log.Warn("Validator failed on page.", zap.Error(err))
			continue
		}
		out.Findings = append(out.Findings, findings...)
	}
	if len(out.Findings) == 0 {
		log.Info("Page OK.")
	} else {
		log.Warn("Page has problems.", zap.Int("findings", len(out.Findings)))
	}
	return out, false, nil
}

// ensureSession recovers an expired session before navigating. recovered
// reports whether Recover was attempted.
func (v *Visitor) ensureSession(ctx context.Context, page Page, log *zap.Logger) (ok, recovered bool, err error) {
	alive, err := v.keeper.IsAlive(ctx, page)
	if err != nil {
		log.Debug("Liveness check failed; assuming the session is alive.", zap.Error(err))
		return true, false, nil
	}
	if alive {
		return true, false, nil
	}
	ok, err = v.keeper.Recover(ctx, page)
	if err != nil {
		return false, true, fmt.Errorf("session recovery failed: %w", err)
	}
	if !ok {
		log.Warn("Session could not be recovered; skipping link.")
	}
	return ok, true, nil
}

func (v *Visitor) returnHome(ctx context.Context, page Page) {
	if v.cfg.HomeURL == "" {
		return
	}
	if _, err := page.Open(ctx, v.cfg.HomeURL); err != nil {
		v.logger.Debug("Could not return to the home page.", zap.Error(err))
	}
}
