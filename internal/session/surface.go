package session

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// DetectedFields are selectors found by the in-page login form heuristic.
// Any of them may be empty.
type DetectedFields struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Submit   string `json:"submit"`
}

// FormSurface is what the session manager needs from a page. Element refs
// returned by one call are valid input to the others until the document
// changes. Lookups cover the main document and every reachable frame.
type FormSurface interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// FindField returns a ref for the first candidate that matches a
	// visible element.
	FindField(ctx context.Context, candidates []string) (ref string, found bool, err error)
	DetectLoginFields(ctx context.Context) (DetectedFields, error)
	// FindByText returns a ref for the first element matching selector
	// whose visible text contains text (case-insensitive). An empty
	// selector means any button-like element.
	FindByText(ctx context.Context, selector, text string) (ref string, found bool, err error)
	// Fill types value into the field and reports whether the field holds
	// exactly value afterwards.
	Fill(ctx context.Context, ref, value string, keyDelay time.Duration) (verified bool, err error)
	// ClickNative dispatches real mouse events at the element centre.
	ClickNative(ctx context.Context, ref string) (bool, error)
	// SubmitForm submits the form enclosing ref.
	SubmitForm(ctx context.Context, ref string) (bool, error)
	PressEnter(ctx context.Context, ref string) error
	Present(ctx context.Context, selector string) (bool, error)
}

// Locator reads the current page URL.
type Locator interface {
	Location(ctx context.Context) (string, error)
}

var (
	commonUsernameSelectors = []string{
		"input[name='username']",
		"input[id='username']",
		"input[type='text'][name*='user']",
		"input[name='email']",
		"input[id='email']",
		"input[type='email']",
		"input[autocomplete='username']",
	}
	commonPasswordSelectors = []string{
		"input[name='password']",
		"input[id='password']",
		"input[type='password']",
	}
	commonSubmitSelectors = []string{
		"button[type='submit']",
		"input[type='submit']",
		"button:contains('Login')",
		"button:contains('Sign In')",
		"button:contains('Entrar')",
		"form button",
	}
)

var containsPattern = regexp.MustCompile(`^(.*?):contains\(\s*['"]?(.*?)['"]?\s*\)\s*$`)

// splitContains separates the jQuery style `sel:contains('Text')` syntax
// into a plain selector and the text to match. ok is false for plain CSS.
func splitContains(selector string) (base, text string, ok bool) {
	m := containsPattern.FindStringSubmatch(strings.TrimSpace(selector))
	if m == nil {
		return selector, "", false
	}
	return strings.TrimSpace(m[1]), m[2], true
}

// candidates joins selector sources in priority order, skipping blanks and
// repeats.
func candidates(sources ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		for _, s := range src {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
