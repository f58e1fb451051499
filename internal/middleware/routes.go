package middleware

import (
	"net/url"
	"regexp"
	"strings"
)

// RouteClass is how the gate treats a path.
type RouteClass int

const (
	// Protected paths need a session token.
	Protected RouteClass = iota
	// Excluded paths never reach the gate: assets and operational endpoints.
	Excluded
	// AuthProvider paths belong to the auth endpoints and are always allowed.
	AuthProvider
	// Public paths are allowed with or without a session.
	Public
)

func (c RouteClass) String() string {
	switch c {
	case Excluded:
		return "excluded"
	case AuthProvider:
		return "auth_provider"
	case Public:
		return "public"
	default:
		return "protected"
	}
}

type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchPrefix
	MatchPattern
)

// Rule classifies the paths it matches.
type Rule struct {
	Kind    MatchKind
	Pattern string
	Class   RouteClass

	re *regexp.Regexp
}

func (r Rule) matches(path string) bool {
	switch r.Kind {
	case MatchExact:
		return path == r.Pattern
	case MatchPrefix:
		return strings.HasPrefix(path, r.Pattern)
	case MatchPattern:
		return r.re != nil && r.re.MatchString(path)
	}
	return false
}

// RouteTable is an ordered list of rules. Rules are grouped by class and
// groups are tried in the order exclusions, auth provider, public; the
// first match wins and anything unmatched is protected.
type RouteTable struct {
	rules []Rule
}

var classOrder = []RouteClass{Excluded, AuthProvider, Public}

// NewRouteTable compiles the pattern rules and orders rules by precedence.
// Order within a class is kept.
func NewRouteTable(rules []Rule) (*RouteTable, error) {
	ordered := make([]Rule, 0, len(rules))
	for _, class := range classOrder {
		for _, r := range rules {
			if r.Class != class {
				continue
			}
			if r.Kind == MatchPattern {
				re, err := regexp.Compile(r.Pattern)
				if err != nil {
					return nil, err
				}
				r.re = re
			}
			ordered = append(ordered, r)
		}
	}
	return &RouteTable{rules: ordered}, nil
}

// MustRouteTable is NewRouteTable for static tables.
func MustRouteTable(rules []Rule) *RouteTable {
	t, err := NewRouteTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns the class of the first matching rule, or Protected.
func (t *RouteTable) Classify(path string) RouteClass {
	for _, r := range t.rules {
		if r.matches(path) {
			return r.Class
		}
	}
	return Protected
}

// DefaultRules is the route table of the dashboard front-end.
func DefaultRules() []Rule {
	rules := []Rule{
		{Kind: MatchPrefix, Pattern: "/static/", Class: Excluded},
		{Kind: MatchPrefix, Pattern: "/assets/", Class: Excluded},
		{Kind: MatchPrefix, Pattern: "/_build/", Class: Excluded},
		{Kind: MatchExact, Pattern: "/favicon.ico", Class: Excluded},
		{Kind: MatchExact, Pattern: "/health", Class: Excluded},
		{Kind: MatchPrefix, Pattern: "/health/", Class: Excluded},
		{Kind: MatchExact, Pattern: "/metrics", Class: Excluded},
		{Kind: MatchPattern, Pattern: `\.(svg|png|jpg|jpeg|gif|webp|ico|woff|woff2|ttf|eot)$`, Class: Excluded},

		{Kind: MatchPrefix, Pattern: "/api/auth", Class: AuthProvider},

		{Kind: MatchExact, Pattern: "/", Class: Public},
	}
	for _, p := range []string{
		"/login", "/register", "/forgot-password", "/reset-password",
		"/about", "/contact", "/privacy", "/terms", "/pricing", "/features",
	} {
		rules = append(rules, Rule{Kind: MatchPrefix, Pattern: p, Class: Public})
	}
	return rules
}

// Decision is the outcome of authorizing a request path.
type Decision int

const (
	Allow Decision = iota
	Deny
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Deny:
		return "deny"
	case Redirect:
		return "redirect"
	default:
		return "allow"
	}
}

const (
	// LoginPath is where unauthenticated dashboard visitors are sent.
	LoginPath = "/login"
	// dashboardPrefix marks paths answered with a redirect instead of a 401.
	dashboardPrefix = "/dashboard"
)

// Authorize decides a request for path. Presence of a token is enough;
// whether it is errored is for the page to deal with.
func (t *RouteTable) Authorize(hasToken bool, path string) Decision {
	if t.Classify(path) != Protected || hasToken {
		return Allow
	}
	if path == dashboardPrefix || strings.HasPrefix(path, dashboardPrefix+"/") {
		return Redirect
	}
	return Deny
}

// LoginRedirect builds the login URL that returns to callback afterwards.
func LoginRedirect(callback string) string {
	return LoginPath + "?callbackUrl=" + url.QueryEscape(callback)
}
