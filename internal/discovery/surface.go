// internal/discovery/surface.go
package discovery

import "context"

// Entry is one element matched by a selector, tagged with an opaque ref the
// surface can later resolve for clicks.
type Entry struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
	// Anchors holds the element itself when it is an anchor, plus any
	// descendant anchors carrying an href.
	Anchors []Anchor `json:"anchors"`
}

// Surface is the slice of a live page that discovery drives. the browser
// package implements it against chromedp; tests implement it over a static
// document.
type Surface interface {
	Location(ctx context.Context) (string, error)
	// Count returns how many elements currently match selector.
	Count(ctx context.Context, selector string) (int, error)
	// Entries returns the elements matching selector in document order.
	Entries(ctx context.Context, selector string) ([]Entry, error)
	// Anchors returns anchors from every element matching selector.
	Anchors(ctx context.Context, selector string) ([]Anchor, error)
	// Click dispatches a real click on the first element matching target
	// inside ref (or on ref itself when target is empty). it reports false
	// when nothing clickable was found.
	Click(ctx context.Context, ref, target string) (bool, error)
	// DeepAnchors walks open shadow roots looking for panel, then items
	// inside it, returning their anchors. an absent panel means the whole
	// document.
	DeepAnchors(ctx context.Context, panel, items string) ([]Anchor, error)
	// Dismiss closes any open flyout by clicking outside of it.
	Dismiss(ctx context.Context) error
}

// SessionGuard tells discovery whether a URL belongs to the login flow.
type SessionGuard interface {
	IsExpiredURL(rawURL string) bool
}

// Saver persists a discovered link set.
type Saver interface {
	Save(links []NavigationLink) error
}
