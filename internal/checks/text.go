// internal/checks/text.go
package checks

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/discovery"
)

//go:embed js/text.js
var textScript string

// KindText marks a forbidden token in visible text.
const KindText = "text"

// baseTokens are always searched for.
var baseTokens = []string{"null", "nan"}

// Text reports visible text containing forbidden tokens as whole words.
type Text struct {
	tokens  []string
	pattern string
	shots   *Screenshots
	logger  *zap.Logger
}

// NewText searches for the base tokens plus extra.
func NewText(extra []string, shots *Screenshots, logger *zap.Logger) *Text {
	var tokens []string
	seen := make(map[string]bool)
	for _, t := range append(append([]string{}, baseTokens...), extra...) {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		tokens = append(tokens, t)
	}
	return &Text{
		tokens:  tokens,
		pattern: tokenPattern(tokens),
		shots:   shots,
		logger:  logger.Named("checks.text"),
	}
}

// tokenPattern builds a case-insensitive whole-word alternation. The
// syntax is shared by RE2 and JavaScript.
func tokenPattern(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return `\b(` + strings.Join(quoted, "|") + `)\b`
}

// Tokens returns the searched tokens.
func (t *Text) Tokens() []string { return append([]string(nil), t.tokens...) }

func (t *Text) Category() Category { return CategoryText }

func (t *Text) Begin(_ context.Context, page Page, link discovery.NavigationLink) (Probe, error) {
	return &textProbe{text: t, page: page, link: link}, nil
}

type textMatch struct {
	Token    string `json:"token"`
	Sample   string `json:"sample"`
	Selector string `json:"selector"`
}

type textProbe struct {
	text *Text
	page Page
	link discovery.NavigationLink
}

func (p *textProbe) Finish(ctx context.Context) ([]Finding, error) {
	arg, err := json.Marshal(p.text.pattern)
	if err != nil {
		return nil, err
	}
	var matches []textMatch
	if err := p.page.Evaluate(ctx, "("+textScript+")("+string(arg)+")", &matches); err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}

	findings := make([]Finding, 0, len(matches))
	for _, m := range matches {
		f := Finding{
			Category: CategoryText,
			Kind:     KindText,
			Detail:   fmt.Sprintf("%q in %q", m.Token, m.Sample),
		}
		f.Screenshot = p.text.shots.Capture(ctx, p.page, p.link, "text_"+slug(m.Token), m.Selector)
		p.text.logger.Warn("Forbidden text found.", zap.String("page", p.link.Text), zap.String("token", m.Token), zap.String("sample", m.Sample))
		findings = append(findings, f)
	}
	return findings, nil
}

func (p *textProbe) Close() {}
