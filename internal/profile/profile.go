// Package profile maps an application's navigation markup to the selector set
// used by link discovery.
package profile

import (
	"strings"

	"github.com/xkilldash9x/navcrawl/internal/config"
)

// AppType classifies the navigation structure of the application under test.
type AppType int

const (
	// Generic is any application without a recognised navigation component.
	Generic AppType = iota
	// NestedMenu is the component-based vertical navigation with aside
	// flyouts and collapsible groups (Fuse style).
	NestedMenu
	GenericNavbar
	Bootstrap
	Sidebar
)

var appTypeNames = map[AppType]string{
	Generic:       "generic",
	NestedMenu:    "nested_menu",
	GenericNavbar: "generic_navbar",
	Bootstrap:     "bootstrap",
	Sidebar:       "sidebar",
}

func (a AppType) String() string {
	if name, ok := appTypeNames[a]; ok {
		return name
	}
	return "generic"
}

// ParseAppType maps a configured profile name to an AppType. Unknown names
// resolve to Generic; "angular_fuse" is accepted as an alias of nested_menu.
func ParseAppType(name string) AppType {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "angular_fuse" || name == "fuse" {
		return NestedMenu
	}
	for t, n := range appTypeNames {
		if n == name {
			return t
		}
	}
	return Generic
}

// Profile is the set of selectors discovery works with.
type Profile struct {
	MainPanel    string `json:"mainPanel"`
	MainItems    string `json:"mainItems"`
	AsideWrapper string `json:"asideWrapper"`
	FinalLink    string `json:"finalLink"`
	Collapsable  string `json:"collapsable"`
	ClickTarget  string `json:"clickTarget"`
}

const (
	anyLink        = `a[href]:not([href="#"]):not([href=""])`
	fuseMainPanel  = "fuse-vertical-navigation > div.fuse-vertical-navigation-wrapper > div.fuse-vertical-navigation-content"
	fuseAsidePanel = "div.fuse-vertical-navigation-aside-wrapper > fuse-vertical-navigation-aside-item > div.fuse-vertical-navigation-item-children"
)

var builtin = map[AppType]Profile{
	Generic: {
		MainPanel:    "#navigation, #horizontal-menu, nav, .navbar, .menu, .header, .sidebar",
		MainItems:    anyLink,
		AsideWrapper: ".dropdown-menu, .submenu",
		FinalLink:    anyLink,
		Collapsable:  ".dropdown, .has-submenu",
		ClickTarget:  "a",
	},
	NestedMenu: {
		MainPanel: fuseMainPanel,
		MainItems: fuseMainPanel + " > fuse-vertical-navigation-basic-item, " +
			fuseMainPanel + " > fuse-vertical-navigation-aside-item",
		AsideWrapper: fuseAsidePanel,
		FinalLink:    fuseAsidePanel + " fuse-vertical-navigation-basic-item a",
		Collapsable: "fuse-vertical-navigation-collapsable-item.fuse-vertical-navigation-item-collapsed > a, " +
			"fuse-vertical-navigation-collapsable-item.fuse-vertical-navigation-item-collapsed > div > div",
		ClickTarget: "div > div",
	},
	GenericNavbar: {
		MainPanel:    "#navigation",
		MainItems:    anyLink,
		AsideWrapper: ".dropdown-menu, .submenu, .sub-nav",
		FinalLink:    anyLink,
		Collapsable:  ".dropdown, .has-submenu, .has-children",
		ClickTarget:  "a, .dropdown-toggle, .menu-toggle",
	},
	Bootstrap: {
		MainPanel:    ".navbar-nav, #navigation, nav",
		MainItems:    anyLink,
		AsideWrapper: ".dropdown-menu",
		FinalLink:    anyLink,
		Collapsable:  ".dropdown",
		ClickTarget:  "a",
	},
	Sidebar: {
		MainPanel:    "#navigation, .sidebar, .side-nav",
		MainItems:    anyLink,
		AsideWrapper: ".sub-menu, .submenu",
		FinalLink:    anyLink,
		Collapsable:  ".has-submenu, .expandable",
		ClickTarget:  "a, .toggle",
	},
}

// Builtin returns the unmodified profile for an app type.
func Builtin(appType AppType) Profile {
	if p, ok := builtin[appType]; ok {
		return p
	}
	return builtin[Generic]
}

// Resolve produces the effective profile. A non-empty override replaces the
// matching field; any field the named profile leaves empty falls back to the
// generic profile. Resolve never fails.
func Resolve(appType AppType, overrides config.SelectorOverrides) Profile {
	p := Builtin(appType)
	generic := builtin[Generic]

	pick := func(override, named, fallback string) string {
		if s := strings.TrimSpace(override); s != "" {
			return s
		}
		if named != "" {
			return named
		}
		return fallback
	}

	return Profile{
		MainPanel:    pick(overrides.MainPanel, p.MainPanel, generic.MainPanel),
		MainItems:    pick(overrides.MainItems, p.MainItems, generic.MainItems),
		AsideWrapper: pick(overrides.AsideWrapper, p.AsideWrapper, generic.AsideWrapper),
		FinalLink:    pick(overrides.FinalLink, p.FinalLink, generic.FinalLink),
		Collapsable:  pick(overrides.Collapsable, p.Collapsable, generic.Collapsable),
		ClickTarget:  pick(overrides.ClickTarget, p.ClickTarget, generic.ClickTarget),
	}
}
