// internal/checks/palette.go
package checks

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/discovery"
)

//go:embed js/colors.js
var colorsScript string

// KindColor marks a color outside the palette.
const KindColor = "color"

var errInvisibleColor = errors.New("fully transparent")

// NormalizeColor converts a CSS color as reported by getComputedStyle, or a
// palette entry, into lowercase #rrggbb. Fully transparent colors return
// errInvisibleColor.
func NormalizeColor(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return "", errors.New("empty color")
	case s == "transparent":
		return "", errInvisibleColor
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(s)
		if err != nil {
			return "", fmt.Errorf("invalid hex color %q", raw)
		}
		return c.Hex(), nil
	case strings.HasPrefix(s, "rgb"):
		return normalizeRGB(s, raw)
	default:
		return "", fmt.Errorf("unsupported color %q", raw)
	}
}

func normalizeRGB(s, raw string) (string, error) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return "", fmt.Errorf("invalid rgb color %q", raw)
	}
	parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) < 3 || len(parts) > 4 {
		return "", fmt.Errorf("invalid rgb color %q", raw)
	}
	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return "", fmt.Errorf("invalid rgb color %q", raw)
		}
		ch[i] = min(max(v, 0), 255) / 255
	}
	if len(parts) == 4 {
		alpha := strings.TrimSuffix(parts[3], "%")
		a, err := strconv.ParseFloat(alpha, 64)
		if err != nil {
			return "", fmt.Errorf("invalid rgb color %q", raw)
		}
		if a == 0 {
			return "", errInvisibleColor
		}
	}
	return colorful.Color{R: ch[0], G: ch[1], B: ch[2]}.Hex(), nil
}

// Palette reports colors used on a page that are not in the allowed set.
type Palette struct {
	allowed map[string]bool
	shots   *Screenshots
	logger  *zap.Logger
}

// NewPalette validates and normalizes the allowed colors.
func NewPalette(colors []string, shots *Screenshots, logger *zap.Logger) (*Palette, error) {
	allowed := make(map[string]bool, len(colors))
	for _, c := range colors {
		hex, err := NormalizeColor(c)
		if err != nil {
			return nil, fmt.Errorf("palette entry %q: %w", c, err)
		}
		allowed[hex] = true
	}
	if len(allowed) == 0 {
		return nil, errors.New("palette is empty")
	}
	return &Palette{allowed: allowed, shots: shots, logger: logger.Named("checks.palette")}, nil
}

func (p *Palette) Category() Category { return CategoryColor }

func (p *Palette) Begin(_ context.Context, page Page, link discovery.NavigationLink) (Probe, error) {
	return &paletteProbe{palette: p, page: page, link: link}, nil
}

type colorSample struct {
	Color    string `json:"color"`
	Property string `json:"property"`
	Selector string `json:"selector"`
}

type paletteProbe struct {
	palette *Palette
	page    Page
	link    discovery.NavigationLink
}

func (p *paletteProbe) Finish(ctx context.Context) ([]Finding, error) {
	var samples []colorSample
	if err := p.page.Evaluate(ctx, "("+colorsScript+")()", &samples); err != nil {
		return nil, fmt.Errorf("collect colors: %w", err)
	}

	log := p.palette.logger
	seen := make(map[string]bool)
	var findings []Finding
	for _, s := range samples {
		key := s.Color + "|" + s.Property
		if seen[key] {
			continue
		}
		seen[key] = true

		hex, err := NormalizeColor(s.Color)
		if errors.Is(err, errInvisibleColor) {
			continue
		}
		if err != nil {
			log.Debug("Unparseable color skipped.", zap.String("color", s.Color), zap.Error(err))
			continue
		}
		if p.palette.allowed[hex] {
			continue
		}
		f := Finding{
			Category: CategoryColor,
			Kind:     KindColor,
			Detail:   fmt.Sprintf("%s: %s -> %s", s.Property, s.Color, hex),
		}
		f.Screenshot = p.palette.shots.Capture(ctx, p.page, p.link, "color", s.Selector)
		log.Warn("Color outside palette.", zap.String("page", p.link.Text), zap.String("detail", f.Detail))
		findings = append(findings, f)
	}
	return findings, nil
}

func (p *paletteProbe) Close() {}
