// internal/discovery/fakedom_test.go
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fakeDOM is a static document that behaves like a page for discovery.
// clicks run handlers registered by data-action so tests can script panel
// behaviour.
type fakeDOM struct {
	doc        *goquery.Document
	location   string
	handlers   map[string]func(d *fakeDOM)
	clicks     map[string]int
	dismissals int
	nextRef    int
}

func newFakeDOM(location, html string) *fakeDOM {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return &fakeDOM{
		doc:      doc,
		location: location,
		handlers: make(map[string]func(d *fakeDOM)),
		clicks:   make(map[string]int),
	}
}

func (d *fakeDOM) on(action string, fn func(d *fakeDOM)) *fakeDOM {
	d.handlers[action] = fn
	return d
}

func (d *fakeDOM) appendToBody(html string) {
	d.doc.Find("body").AppendHtml(html)
}

func (d *fakeDOM) Location(context.Context) (string, error) { return d.location, nil }

func (d *fakeDOM) Count(_ context.Context, selector string) (int, error) {
	return d.doc.Find(selector).Length(), nil
}

func (d *fakeDOM) Entries(_ context.Context, selector string) ([]Entry, error) {
	var entries []Entry
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("data-ref")
		if !ok {
			d.nextRef++
			ref = fmt.Sprintf("r%d", d.nextRef)
			s.SetAttr("data-ref", ref)
		}
		entries = append(entries, Entry{
			Ref:     fmt.Sprintf(`[data-ref="%s"]`, ref),
			Text:    strings.TrimSpace(s.Text()),
			Anchors: d.anchorsOf(s),
		})
	})
	return entries, nil
}

func (d *fakeDOM) Anchors(_ context.Context, selector string) ([]Anchor, error) {
	var anchors []Anchor
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		anchors = append(anchors, d.anchorsOf(s)...)
	})
	return anchors, nil
}

func (d *fakeDOM) Click(_ context.Context, ref, target string) (bool, error) {
	el := d.doc.Find(ref).First()
	if el.Length() == 0 {
		return false, nil
	}
	if target != "" {
		el = el.Find(target).First()
		if el.Length() == 0 {
			return false, nil
		}
	}
	action, ok := el.Closest("[data-action]").Attr("data-action")
	if !ok {
		return true, nil
	}
	d.clicks[action]++
	if fn := d.handlers[action]; fn != nil {
		fn(d)
	}
	return true, nil
}

func (d *fakeDOM) DeepAnchors(_ context.Context, panel, items string) ([]Anchor, error) {
	root := d.doc.Find(panel)
	if root.Length() == 0 {
		root = d.doc.Selection
	}
	var anchors []Anchor
	root.Find(items).Each(func(_ int, s *goquery.Selection) {
		anchors = append(anchors, d.anchorsOf(s)...)
	})
	return anchors, nil
}

func (d *fakeDOM) Dismiss(context.Context) error {
	d.dismissals++
	d.doc.Find(".fuse-vertical-navigation-aside-wrapper").Remove()
	return nil
}

func (d *fakeDOM) anchorsOf(s *goquery.Selection) []Anchor {
	base, _ := url.Parse(d.location)
	var out []Anchor
	collect := func(a *goquery.Selection) {
		raw, _ := a.Attr("href")
		resolved := raw
		if ref, err := url.Parse(strings.TrimSpace(raw)); err == nil {
			resolved = base.ResolveReference(ref).String()
		}
		text := a.Find("span").First().Text()
		if strings.TrimSpace(text) == "" {
			text = a.Text()
		}
		out = append(out, Anchor{Text: strings.TrimSpace(text), Href: resolved, RawHref: raw})
	}
	if goquery.NodeName(s) == "a" {
		if _, ok := s.Attr("href"); ok {
			collect(s)
		}
	}
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) { collect(a) })
	return out
}
