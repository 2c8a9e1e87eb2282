package profile

import (
	"context"
	_ "embed"

	"go.uber.org/zap"
)

// Prober evaluates a script in the current document and decodes its result.
type Prober interface {
	Evaluate(ctx context.Context, script string, res interface{}) error
}

//go:embed fingerprint.js
var fingerprintScript string

// fingerprint is what fingerprint.js reports about the document.
type fingerprint struct {
	NestedMenu bool `json:"nestedMenu"`
	Bootstrap  bool `json:"bootstrap"`
	Navbar     bool `json:"navbar"`
	Sidebar    bool `json:"sidebar"`
}

// Classify turns a fingerprint into an AppType. The nested menu component
// wins over everything else because it is the most specific marker.
func (f fingerprint) Classify() AppType {
	switch {
	case f.NestedMenu:
		return NestedMenu
	case f.Bootstrap:
		return Bootstrap
	case f.Navbar:
		return GenericNavbar
	case f.Sidebar:
		return Sidebar
	default:
		return Generic
	}
}

// Detect inspects the live document. Detection problems are logged and
// treated as Generic so discovery can still proceed.
func Detect(ctx context.Context, p Prober, logger *zap.Logger) AppType {
	var fp fingerprint
	if err := p.Evaluate(ctx, fingerprintScript, &fp); err != nil {
		logger.Warn("Could not fingerprint navigation markup; using generic profile.", zap.Error(err))
		return Generic
	}
	appType := fp.Classify()
	logger.Debug("Navigation markup fingerprinted.", zap.Stringer("app_type", appType), zap.Any("fingerprint", fp))
	return appType
}

// Select honours an explicit profile name and only fingerprints the page
// for "auto" or an empty name.
func Select(ctx context.Context, name string, p Prober, logger *zap.Logger) AppType {
	switch name {
	case "", "auto":
		return Detect(ctx, p, logger)
	default:
		return ParseAppType(name)
	}
}
