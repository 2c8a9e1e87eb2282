// Package session owns the authenticated state of the crawl: logging in,
// noticing when the application has logged us out, and logging back in.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/wait"
)

var (
	// ErrLoginFieldsNotFound means the username or password field never
	// appeared, or could not be filled.
	ErrLoginFieldsNotFound = errors.New("session: login fields not found")
	// ErrLoginFailed means every submission strategy failed.
	ErrLoginFailed = errors.New("session: login submission failed")
	// ErrLoginNotConfirmed means the post-login state never showed up.
	ErrLoginNotConfirmed = errors.New("session: login not confirmed")
)

// State is the conceptual authentication state of the crawl.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Credentials for the account used by the crawl.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either half is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// Manager runs the login flow and tracks session state.
type Manager struct {
	cfg      config.LoginConfig
	loginURL string
	creds    Credentials
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

// NewManager creates a manager that logs in at loginURL with creds.
func NewManager(cfg config.LoginConfig, loginURL string, creds Credentials, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		loginURL: loginURL,
		creds:    creds,
		logger:   logger.Named("session"),
		state:    Unauthenticated,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Debug("Session state changed.", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// fail applies the mandatory-login policy: hard errors only propagate when
// login is required for the run.
func (m *Manager) fail(err error) (bool, error) {
	m.setState(Unauthenticated)
	if m.cfg.Mandatory {
		return false, err
	}
	m.logger.Warn("Login failed; continuing without an authenticated session.", zap.Error(err))
	return false, nil
}

// Establish logs in on page. It reports whether the login was confirmed.
// Missing credentials, a skipped login, or any failure while login is not
// mandatory return (false, nil). An unconfirmed but otherwise complete
// login is treated optimistically as authenticated.
func (m *Manager) Establish(ctx context.Context, page FormSurface) (bool, error) {
	if m.cfg.Skip {
		m.logger.Info("Login skipped by configuration.")
		return false, nil
	}
	if m.creds.Empty() {
		if m.cfg.Mandatory {
			return false, fmt.Errorf("%w: no credentials configured", ErrLoginFieldsNotFound)
		}
		m.logger.Info("No credentials configured; continuing unauthenticated.")
		return false, nil
	}

	m.setState(Authenticating)
	m.logger.Info("Starting login.", zap.String("url", m.loginURL))

	if err := page.Navigate(ctx, m.loginURL); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return m.fail(fmt.Errorf("%w: could not open login page: %v", ErrLoginFieldsNotFound, err))
	}

	fields, err := m.locateFields(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return m.fail(err)
	}

	if err := m.fillField(ctx, page, "username", fields.username, m.creds.Username); err != nil {
		return m.fail(err)
	}
	if err := m.fillField(ctx, page, "password", fields.password, m.creds.Password); err != nil {
		return m.fail(err)
	}

	if err := m.submit(ctx, page, fields); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return m.fail(err)
	}

	confirmed, err := m.confirm(ctx, page)
	if err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	if !confirmed {
		if m.cfg.Mandatory {
			m.setState(Unauthenticated)
			return false, ErrLoginNotConfirmed
		}
		location, _ := page.Location(ctx)
		m.logger.Warn("Login could not be confirmed; proceeding optimistically.",
			zap.String("location", location),
			zap.String("expected_path", m.cfg.ExpectedPath))
		m.setState(Authenticated)
		return false, nil
	}

	m.setState(Authenticated)
	m.logger.Info("Login confirmed.")
	return true, nil
}

type loginFields struct {
	username string
	password string
	detected DetectedFields
}

// locateFields polls until both fields are found in the document or any
// frame. Candidate order is configuration, heuristic detection, then common
// patterns.
func (m *Manager) locateFields(ctx context.Context, page FormSurface) (loginFields, error) {
	var found loginFields
	ok, err := wait.Until(ctx, m.cfg.FindTimeout, m.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		detected, derr := page.DetectLoginFields(ctx)
		if derr != nil {
			m.logger.Debug("Login field heuristic failed.", zap.Error(derr))
		}

		user, userOK, err := page.FindField(ctx, candidates(
			[]string{m.cfg.UsernameSelector}, []string{detected.Username}, commonUsernameSelectors))
		if err != nil {
			return false, err
		}
		pass, passOK, err := page.FindField(ctx, candidates(
			[]string{m.cfg.PasswordSelector}, []string{detected.Password}, commonPasswordSelectors))
		if err != nil {
			return false, err
		}
		if userOK && passOK {
			found = loginFields{username: user, password: pass, detected: detected}
			return true, nil
		}
		return false, nil
	})
	if err != nil && ctx.Err() != nil {
		return found, ctx.Err()
	}
	if !ok {
		if err != nil {
			return found, fmt.Errorf("%w within %s: %v", ErrLoginFieldsNotFound, m.cfg.FindTimeout, err)
		}
		return found, fmt.Errorf("%w within %s", ErrLoginFieldsNotFound, m.cfg.FindTimeout)
	}
	return found, nil
}

// fillField fills and verifies, retrying once on a mismatch.
func (m *Manager) fillField(ctx context.Context, page FormSurface, name, ref, value string) error {
	for attempt := 1; attempt <= 2; attempt++ {
		verified, err := page.Fill(ctx, ref, value, m.cfg.KeyDelay)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Debug("Field fill failed.", zap.String("field", name), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if verified {
			return nil
		}
		m.logger.Debug("Field value did not verify.", zap.String("field", name), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%w: %s field could not be filled", ErrLoginFieldsNotFound, name)
}

type submitStrategy struct {
	name string
	run  func(ctx context.Context) (bool, error)
}

// submit tries each strategy in order and stops at the first success.
func (m *Manager) submit(ctx context.Context, page FormSurface, fields loginFields) error {
	strategies := []submitStrategy{
		{"native-click", func(ctx context.Context) (bool, error) {
			ref, ok, err := m.findSubmit(ctx, page, fields.detected)
			if err != nil || !ok {
				return false, err
			}
			return page.ClickNative(ctx, ref)
		}},
		{"form-submit", func(ctx context.Context) (bool, error) {
			return page.SubmitForm(ctx, fields.password)
		}},
		{"enter-key", func(ctx context.Context) (bool, error) {
			if err := page.PressEnter(ctx, fields.password); err != nil {
				return false, err
			}
			return true, nil
		}},
	}

	for _, s := range strategies {
		ok, err := s.run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			m.logger.Debug("Submit strategy failed.", zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		if ok {
			m.logger.Debug("Login form submitted.", zap.String("strategy", s.name))
			return nil
		}
		m.logger.Debug("Submit strategy not applicable.", zap.String("strategy", s.name))
	}
	return ErrLoginFailed
}

func (m *Manager) findSubmit(ctx context.Context, page FormSurface, detected DetectedFields) (string, bool, error) {
	for _, sel := range candidates([]string{m.cfg.SubmitSelector}, []string{detected.Submit}, commonSubmitSelectors) {
		var (
			ref string
			ok  bool
			err error
		)
		if base, text, isText := splitContains(sel); isText {
			ref, ok, err = page.FindByText(ctx, base, text)
		} else {
			ref, ok, err = page.FindField(ctx, []string{sel})
		}
		if err != nil {
			return "", false, err
		}
		if ok {
			return ref, true, nil
		}
	}
	return "", false, nil
}

// confirm polls for the post-login state. A page that keeps reporting the
// exact same "still on the login form" observation fails fast.
func (m *Manager) confirm(ctx context.Context, page FormSurface) (bool, error) {
	var (
		lastObservation string
		repeats         int
		stale           bool
	)
	passwordCandidates := candidates([]string{m.cfg.PasswordSelector}, commonPasswordSelectors)

	ok, err := wait.Until(ctx, m.cfg.ConfirmTimeout, m.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		location, err := page.Location(ctx)
		if err != nil {
			return false, err
		}
		if pathMatches(location, m.cfg.ExpectedPath) {
			return true, nil
		}

		_, loginVisible, err := page.FindField(ctx, passwordCandidates)
		if err != nil {
			return false, err
		}
		if !loginVisible {
			if m.cfg.ShellSelector != "" {
				if present, err := page.Present(ctx, m.cfg.ShellSelector); err == nil && present {
					return true, nil
				}
			} else if m.cfg.ExpectedPath == "" && !m.IsExpiredURL(location) {
				return true, nil
			}
		}

		observation := fmt.Sprintf("%s|%t", location, loginVisible)
		if loginVisible && observation == lastObservation {
			repeats++
			if m.cfg.StaleObservationCap > 0 && repeats >= m.cfg.StaleObservationCap {
				stale = true
				return true, nil
			}
		} else {
			repeats = 0
		}
		lastObservation = observation
		return false, nil
	})
	if stale {
		m.logger.Debug("Login page did not change; giving up early.", zap.String("observation", lastObservation))
		return false, nil
	}
	return ok, err
}

// pathMatches reports whether the URL path equals or ends with expected.
func pathMatches(rawURL, expected string) bool {
	if expected == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.TrimSuffix(u.Path, "/")
	expected = strings.TrimSuffix(expected, "/")
	if expected == "" {
		return path == ""
	}
	return path == expected || strings.HasSuffix(path, expected) || strings.HasSuffix(u.Fragment, expected)
}

// IsExpiredURL reports whether rawURL looks like a login or expired-session
// page.
func (m *Manager) IsExpiredURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, pattern := range m.cfg.ExpiredURLPatterns {
		if pattern = strings.ToLower(strings.TrimSpace(pattern)); pattern != "" && strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IsAlive checks the current page URL against the expired-session patterns.
func (m *Manager) IsAlive(ctx context.Context, page Locator) (bool, error) {
	location, err := page.Location(ctx)
	if err != nil {
		return false, fmt.Errorf("could not read page location: %w", err)
	}
	if m.IsExpiredURL(location) {
		if m.State() != Expired {
			m.logger.Warn("Session expired.", zap.String("location", location))
		}
		m.setState(Expired)
		return false, nil
	}
	return true, nil
}

// Recover runs the login flow once in place and reports whether the page
// is usable afterwards. Errors only surface when login is mandatory.
func (m *Manager) Recover(ctx context.Context, page FormSurface) (bool, error) {
	m.logger.Info("Attempting session recovery.")
	if _, err := m.Establish(ctx, page); err != nil {
		m.setState(Expired)
		return false, err
	}
	alive, err := m.IsAlive(ctx, page)
	if err != nil {
		return false, nil
	}
	if alive {
		m.setState(Authenticated)
		m.logger.Info("Session recovered.")
	}
	return alive, nil
}
