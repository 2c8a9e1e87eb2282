// internal/discovery/types.go
package discovery

import "strings"

// NavigationLink is a single destination reachable from the app's navigation.
type NavigationLink struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Key is the dedup identity of a link. query strings count, an empty
// trailing fragment does not.
func (l NavigationLink) Key() string {
	return dedupKey(l.Href)
}

func dedupKey(href string) string {
	return strings.TrimSuffix(strings.TrimSpace(href), "#")
}

// LinkSet is an ordered, href-keyed collection. the first text seen for an
// href wins. not safe for concurrent use; discovery is single threaded.
type LinkSet struct {
	index map[string]int
	links []NavigationLink
}

// NewLinkSet creates an empty set.
func NewLinkSet() *LinkSet {
	return &LinkSet{index: make(map[string]int)}
}

// Add inserts the link unless its href is already present. it reports
// whether the link was new.
func (s *LinkSet) Add(link NavigationLink) bool {
	key := link.Key()
	if key == "" {
		return false
	}
	if _, exists := s.index[key]; exists {
		return false
	}
	link.Href = key
	link.Text = strings.TrimSpace(link.Text)
	s.index[key] = len(s.links)
	s.links = append(s.links, link)
	return true
}

// AddAll adds every link in order and returns how many were new.
func (s *LinkSet) AddAll(links []NavigationLink) int {
	added := 0
	for _, l := range links {
		if s.Add(l) {
			added++
		}
	}
	return added
}

// Contains reports whether href is already in the set.
func (s *LinkSet) Contains(href string) bool {
	_, ok := s.index[dedupKey(href)]
	return ok
}

// Len returns the number of unique links.
func (s *LinkSet) Len() int { return len(s.links) }

// Links returns a copy of the links in first-discovery order.
func (s *LinkSet) Links() []NavigationLink {
	out := make([]NavigationLink, len(s.links))
	copy(out, s.links)
	return out
}

// Dedup applies the set semantics to a plain slice.
func Dedup(links []NavigationLink) []NavigationLink {
	set := NewLinkSet()
	set.AddAll(links)
	return set.Links()
}
