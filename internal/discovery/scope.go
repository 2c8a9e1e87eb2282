// internal/discovery/scope.go
package discovery

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Anchor is an <a> element as the page reports it. Href is the resolved,
// absolute href property; RawHref is the attribute exactly as authored.
type Anchor struct {
	Text    string `json:"text"`
	Href    string `json:"href"`
	RawHref string `json:"rawHref"`
}

var (
	errEmptyHref   = errors.New("empty href")
	errFragment    = errors.New("bare fragment")
	errScript      = errors.New("javascript pseudo-url")
	errScheme      = errors.New("unsupported scheme")
	errCrossOrigin = errors.New("cross origin")
	errEmptyText   = errors.New("empty text")
	errDenied      = errors.New("denylisted label")
)

// OriginScope decides which anchors discovery may keep. it is strict:
// scheme, host and port must all match the page under test.
type OriginScope struct {
	origin string
	deny   []string
}

// NewOriginScope builds a scope from the current page URL and the logout
// label denylist.
func NewOriginScope(pageURL string, denyTexts []string) (*OriginScope, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("page URL must be absolute http(s): %s", pageURL)
	}

	deny := make([]string, 0, len(denyTexts))
	for _, d := range denyTexts {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			deny = append(deny, d)
		}
	}
	return &OriginScope{origin: originOf(u), deny: deny}, nil
}

// originOf renders scheme://host[:port] with default ports dropped, so
// https://a.com and https://a.com:443 compare equal.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		// ipv6 literal
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// Origin returns the normalized origin of the page under test.
func (s *OriginScope) Origin() string { return s.origin }

// Validate turns an anchor into a NavigationLink or explains why it was
// rejected. rejection reasons are only used for debug logging.
func (s *OriginScope) Validate(a Anchor) (NavigationLink, error) {
	raw := strings.TrimSpace(a.RawHref)
	if raw == "" {
		raw = strings.TrimSpace(a.Href)
	}
	switch {
	case raw == "":
		return NavigationLink{}, errEmptyHref
	case strings.HasPrefix(raw, "#") && !isHashRoute(raw):
		return NavigationLink{}, errFragment
	case strings.HasPrefix(strings.ToLower(raw), "javascript:"):
		return NavigationLink{}, errScript
	}

	href := strings.TrimSpace(a.Href)
	if href == "" {
		return NavigationLink{}, errEmptyHref
	}
	u, err := url.Parse(href)
	if err != nil {
		return NavigationLink{}, fmt.Errorf("invalid href: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NavigationLink{}, errScheme
	}
	if originOf(u) != s.origin {
		return NavigationLink{}, errCrossOrigin
	}

	text := strings.Join(strings.Fields(a.Text), " ")
	if text == "" {
		return NavigationLink{}, errEmptyText
	}
	if s.IsDenied(text) {
		return NavigationLink{}, errDenied
	}
	return NavigationLink{Text: text, Href: dedupKey(href)}, nil
}

// isHashRoute reports whether a fragment-only href is a client-side route
// (`#/reports`, `#!/reports`) rather than an in-page anchor.
func isHashRoute(raw string) bool {
	return strings.HasPrefix(raw, "#/") || strings.HasPrefix(raw, "#!/")
}

// IsDenied reports whether a label looks like a logout control. matching is
// a case-insensitive substring check.
func (s *OriginScope) IsDenied(text string) bool {
	lower := strings.ToLower(text)
	for _, d := range s.deny {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
