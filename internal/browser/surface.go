// internal/browser/surface.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/session"
	"github.com/xkilldash9x/navcrawl/internal/wait"
)

var (
	_ discovery.Surface   = (*Page)(nil)
	_ session.FormSurface = (*Page)(nil)
)

// -- discovery.Surface --

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.call(ctx, &n, "count", selector)
	return n, err
}

func (p *Page) Entries(ctx context.Context, selector string) ([]discovery.Entry, error) {
	var entries []discovery.Entry
	err := p.call(ctx, &entries, "entries", selector)
	return entries, err
}

func (p *Page) Anchors(ctx context.Context, selector string) ([]discovery.Anchor, error) {
	var anchors []discovery.Anchor
	err := p.call(ctx, &anchors, "anchors", selector)
	return anchors, err
}

func (p *Page) DeepAnchors(ctx context.Context, panel, items string) ([]discovery.Anchor, error) {
	var anchors []discovery.Anchor
	err := p.call(ctx, &anchors, "deepAnchors", panel, items)
	return anchors, err
}

// Click uses the element's own click(), which menu components listen for
// even when the element is partly covered.
func (p *Page) Click(ctx context.Context, ref, target string) (bool, error) {
	var clicked bool
	err := p.call(ctx, &clicked, "click", ref, target)
	return clicked, err
}

// Dismiss clicks the document body and presses Escape.
func (p *Page) Dismiss(ctx context.Context) error {
	if err := p.call(ctx, nil, "dismiss"); err != nil {
		return err
	}
	return p.run(ctx, chromedp.KeyEvent(kb.Escape))
}

// -- session.FormSurface --

func (p *Page) FindField(ctx context.Context, candidates []string) (string, bool, error) {
	var ref string
	if err := p.call(ctx, &ref, "findField", candidates); err != nil {
		return "", false, err
	}
	return ref, ref != "", nil
}

func (p *Page) DetectLoginFields(ctx context.Context) (session.DetectedFields, error) {
	var fields session.DetectedFields
	err := p.call(ctx, &fields, "detectLogin")
	return fields, err
}

func (p *Page) FindByText(ctx context.Context, selector, text string) (string, bool, error) {
	var ref string
	if err := p.call(ctx, &ref, "findByText", selector, text); err != nil {
		return "", false, err
	}
	return ref, ref != "", nil
}

// Fill selects the field's content with a triple click, clears it and types
// value one key at a time.
func (p *Page) Fill(ctx context.Context, ref, value string, keyDelay time.Duration) (bool, error) {
	pt, err := p.point(ctx, ref)
	if err != nil {
		return false, err
	}
	if !pt.Found {
		return false, nil
	}
	if err := p.run(ctx, chromedp.MouseClickXY(pt.X, pt.Y, chromedp.ClickCount(3))); err != nil {
		return false, err
	}

	var ready bool
	if err := p.call(ctx, &ready, "beginFill", ref); err != nil {
		return false, err
	}
	if !ready {
		return false, nil
	}
	for _, r := range value {
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return false, err
		}
		if err := wait.Sleep(ctx, keyDelay); err != nil {
			return false, err
		}
	}
	var got *string
	if err := p.call(ctx, &got, "endFill", ref); err != nil {
		return false, err
	}
	return got != nil && *got == value, nil
}

// elementPoint is the viewport centre of an element.
type elementPoint struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (p *Page) point(ctx context.Context, ref string) (elementPoint, error) {
	var pt elementPoint
	err := p.call(ctx, &pt, "point", ref)
	return pt, err
}

// ClickNative dispatches mouse events at the centre of the element, as a
// user click would.
func (p *Page) ClickNative(ctx context.Context, ref string) (bool, error) {
	pt, err := p.point(ctx, ref)
	if err != nil {
		return false, err
	}
	if !pt.Found {
		return false, nil
	}
	if err := p.run(ctx, chromedp.MouseClickXY(pt.X, pt.Y)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Page) SubmitForm(ctx context.Context, ref string) (bool, error) {
	var submitted bool
	err := p.call(ctx, &submitted, "submitForm", ref)
	return submitted, err
}

func (p *Page) PressEnter(ctx context.Context, ref string) error {
	if err := p.call(ctx, nil, "focus", ref); err != nil {
		return err
	}
	return p.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (p *Page) Present(ctx context.Context, selector string) (bool, error) {
	var present bool
	err := p.call(ctx, &present, "present", selector)
	return present, err
}
