// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and handed to components by value, section by section.
type Config struct {
	Target     string           `mapstructure:"target" yaml:"target"`
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	Login      LoginConfig      `mapstructure:"login" yaml:"login"`
	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery" yaml:"discovery"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Visit      VisitConfig      `mapstructure:"visit" yaml:"visit"`
	Checks     ChecksConfig     `mapstructure:"checks" yaml:"checks"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the controlled browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Maximize        bool     `mapstructure:"maximize" yaml:"maximize"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// StatusOverlay paints a small banner into the page describing the current step.
	StatusOverlay bool `mapstructure:"status_overlay" yaml:"status_overlay"`
}

// NetworkConfig controls navigation timing.
type NetworkConfig struct {
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	SettleTimeout     time.Duration     `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
}

// LoginConfig describes how to authenticate against the target application.
type LoginConfig struct {
	URL              string `mapstructure:"url" yaml:"url"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"-"`
	UsernameSelector string `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector string `mapstructure:"password_selector" yaml:"password_selector"`
	// SubmitSelector accepts plain CSS or the `button:contains('Text')` form.
	SubmitSelector string `mapstructure:"submit_selector" yaml:"submit_selector"`
	ExpectedPath   string `mapstructure:"expected_path" yaml:"expected_path"`
	ShellSelector  string `mapstructure:"shell_selector" yaml:"shell_selector"`
	Skip           bool   `mapstructure:"skip" yaml:"skip"`
	Mandatory      bool   `mapstructure:"mandatory" yaml:"mandatory"`

	FindTimeout         time.Duration `mapstructure:"find_timeout" yaml:"find_timeout"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	KeyDelay            time.Duration `mapstructure:"key_delay" yaml:"key_delay"`
	StaleObservationCap int           `mapstructure:"stale_observation_cap" yaml:"stale_observation_cap"`
	ExpiredURLPatterns  []string      `mapstructure:"expired_url_patterns" yaml:"expired_url_patterns"`
}

// NavigationConfig selects a navigation profile and optional per-field overrides.
type NavigationConfig struct {
	// Profile is a profile name or "auto" for DOM fingerprint detection.
	Profile   string            `mapstructure:"profile" yaml:"profile"`
	Overrides SelectorOverrides `mapstructure:"overrides" yaml:"overrides"`
}

// SelectorOverrides replace individual profile selectors when non-empty.
type SelectorOverrides struct {
	MainPanel    string `mapstructure:"main_panel" yaml:"main_panel"`
	MainItems    string `mapstructure:"main_items" yaml:"main_items"`
	AsideWrapper string `mapstructure:"aside_wrapper" yaml:"aside_wrapper"`
	FinalLink    string `mapstructure:"final_link" yaml:"final_link"`
	Collapsable  string `mapstructure:"collapsable" yaml:"collapsable"`
	ClickTarget  string `mapstructure:"click_target" yaml:"click_target"`
}

// DiscoveryConfig tunes the link discovery strategies.
type DiscoveryConfig struct {
	PanelTimeout        time.Duration `mapstructure:"panel_timeout" yaml:"panel_timeout"`
	PanelSettle         time.Duration `mapstructure:"panel_settle" yaml:"panel_settle"`
	ClickSettle         time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxExpandIterations int           `mapstructure:"max_expand_iterations" yaml:"max_expand_iterations"`
	MinExpectedLinks    int           `mapstructure:"min_expected_links" yaml:"min_expected_links"`
	ExcludeTexts        []string      `mapstructure:"exclude_texts" yaml:"exclude_texts"`
}

// CacheConfig locates the persisted link artifact.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// VisitConfig controls the page visitor loop.
type VisitConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	// RateLimit is the number of navigations per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	HomeURL   string  `mapstructure:"home_url" yaml:"home_url"`
}

// ChecksConfig enables and configures the per-page validators.
type ChecksConfig struct {
	Requests      bool     `mapstructure:"requests" yaml:"requests"`
	Colors        bool     `mapstructure:"colors" yaml:"colors"`
	Text          bool     `mapstructure:"text" yaml:"text"`
	Palette       []string `mapstructure:"palette" yaml:"palette"`
	SearchTexts   []string `mapstructure:"search_texts" yaml:"search_texts"`
	Screenshots   bool     `mapstructure:"screenshots" yaml:"screenshots"`
	ScreenshotDir string   `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// ReportConfig controls the run report output.
type ReportConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a configuration populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so that
	// AutomaticEnv can resolve them during Unmarshal.
	v.SetDefault("target", "")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "navcrawl")
	v.SetDefault("logger.log_file", "navcrawl.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.maximize", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.status_overlay", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.post_load_wait", "500ms")
	v.SetDefault("network.settle_timeout", "15s")

	// -- Login --
	v.SetDefault("login.url", "")
	v.SetDefault("login.username", "")
	v.SetDefault("login.password", "")
	v.SetDefault("login.shell_selector", "")
	v.SetDefault("login.username_selector", "#email")
	v.SetDefault("login.password_selector", "#password")
	v.SetDefault("login.submit_selector", "button:contains('Entrar')")
	v.SetDefault("login.expected_path", "/app/paginainicial")
	v.SetDefault("login.skip", false)
	v.SetDefault("login.mandatory", false)
	v.SetDefault("login.find_timeout", "15s")
	v.SetDefault("login.confirm_timeout", "20s")
	v.SetDefault("login.poll_interval", "300ms")
	v.SetDefault("login.key_delay", "30ms")
	v.SetDefault("login.stale_observation_cap", 20)
	v.SetDefault("login.expired_url_patterns", []string{
		"/login", "signin", "sign-in", "session-expired", "sessao-expirada", "/expired",
	})

	// -- Navigation --
	v.SetDefault("navigation.profile", "auto")
	for _, key := range []string{"main_panel", "main_items", "aside_wrapper", "final_link", "collapsable", "click_target"} {
		v.SetDefault("navigation.overrides."+key, "")
	}

	// -- Discovery --
	v.SetDefault("discovery.panel_timeout", "5s")
	v.SetDefault("discovery.panel_settle", "750ms")
	v.SetDefault("discovery.click_settle", "300ms")
	v.SetDefault("discovery.poll_interval", "100ms")
	v.SetDefault("discovery.max_expand_iterations", 10)
	v.SetDefault("discovery.min_expected_links", 10)
	v.SetDefault("discovery.exclude_texts", []string{
		"logout", "log out", "log-out", "sign out", "signout", "sair",
		"logoff", "log off", "desconectar", "encerrar sessão",
	})

	// -- Cache --
	v.SetDefault("cache.path", "links_map.json")

	// -- Visit --
	v.SetDefault("visit.grace_period", "5s")
	v.SetDefault("visit.rate_limit", 0.0)
	v.SetDefault("visit.home_url", "")

	// -- Checks --
	v.SetDefault("checks.requests", true)
	v.SetDefault("checks.colors", true)
	v.SetDefault("checks.text", true)
	v.SetDefault("checks.palette", []string{"#ffffff", "#000000", "#f8f9fa", "#1e293b", "#1f3f6e"})
	v.SetDefault("checks.search_texts", []string{})
	v.SetDefault("checks.screenshots", false)
	v.SetDefault("checks.screenshot_dir", "screenshots")

	// -- Report --
	v.SetDefault("report.output", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Decode unmarshals and normalizes the configuration without validating
// it. Commands that never touch the target use it directly.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// List values coming from the environment arrive as a single string.
	cfg.Checks.Palette = splitList(cfg.Checks.Palette)
	cfg.Checks.SearchTexts = splitList(cfg.Checks.SearchTexts)
	cfg.Login.ExpiredURLPatterns = splitList(cfg.Login.ExpiredURLPatterns)
	cfg.Discovery.ExcludeTexts = splitList(cfg.Discovery.ExcludeTexts)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Cache.Path, &c.Report.Output, &c.Checks.ScreenshotDir, &c.Logger.LogFile, &c.Browser.UserDataDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// splitList flattens entries that contain comma separated values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// LoginURL returns the configured login URL, falling back to the target.
func (c *Config) LoginURL() string {
	if c.Login.URL != "" {
		return c.Login.URL
	}
	return c.Target
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is a required configuration field")
	}
	u, err := url.Parse(c.Target)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target must be an absolute http(s) URL, got %q", c.Target)
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if err := c.Login.Validate(); err != nil {
		return fmt.Errorf("login configuration invalid: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery configuration invalid: %w", err)
	}
	if c.Visit.RateLimit < 0 {
		return fmt.Errorf("visit.rate_limit must not be negative")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	return nil
}

// Validate checks the login settings.
func (l *LoginConfig) Validate() error {
	if l.FindTimeout <= 0 || l.ConfirmTimeout <= 0 {
		return fmt.Errorf("find_timeout and confirm_timeout must be positive durations")
	}
	if l.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if l.Mandatory && !l.Skip && (l.Username == "" || l.Password == "") {
		return fmt.Errorf("mandatory login requires both username and password")
	}
	return nil
}

// Validate checks the discovery settings.
func (d *DiscoveryConfig) Validate() error {
	if d.MaxExpandIterations <= 0 {
		return fmt.Errorf("max_expand_iterations must be greater than 0")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}
