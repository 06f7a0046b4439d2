package server

import (
	"path"
	"regexp"
	"strings"
	"sync"

	x402 "github.com/x402-labs/x402-go"
	"github.com/x402-labs/x402-go/extensions"
)

// PaymentOption is one way a route may be paid for, before a scheme turns
// it into a concrete PaymentRequirements.
type PaymentOption struct {
	Scheme  string
	Network x402.Network
	Price   x402.Price
	PayTo   string
	Extra   map[string]interface{}
}

// ExtensionBinding attaches a registered extension to a route, per
// spec.md §4.5's "declare(required) -> declaration" lifecycle.
type ExtensionBinding struct {
	Extension extensions.ServerExtension
	Required  bool
}

// RouteConfig is the gated configuration attached to a matched route,
// per spec.md §4.4: "RouteConfig{accepts, mimeType, description}".
type RouteConfig struct {
	Accepts           []PaymentOption
	MimeType          string
	Description       string
	MaxTimeoutSeconds int
	Extensions        []ExtensionBinding
}

// Route binds one or more methods and path patterns to a RouteConfig.
// Methods is matched case-insensitively; an empty or "*" entry matches any
// method. Patterns is evaluated in order and the pattern list matches if
// any element matches (spec.md §4.4: "A pattern list matches if any
// element matches").
type Route struct {
	Methods  []string
	Patterns []string
	Config   RouteConfig

	compileOnce sync.Once
	compiled    []compiledPattern
}

// RouteTable is consulted in registration order; the first Route whose
// method and pattern list matches wins.
type RouteTable []*Route

type patternKind int

const (
	kindExact patternKind = iota
	kindGlob
	kindRegex
)

type compiledPattern struct {
	kind    patternKind
	literal string
	re      *regexp.Regexp
}

// classify determines a pattern's kind, in spec.md §4.4's stated priority:
// exact string, then glob (contains * or ?), then a "regex:" prefix.
func classify(pattern string) patternKind {
	if strings.HasPrefix(pattern, "regex:") {
		return kindRegex
	}
	if strings.ContainsAny(pattern, "*?") {
		return kindGlob
	}
	return kindExact
}

// globToRegexp translates a glob pattern into an anchored regexp. "**"
// matches any sequence including "/"; a lone "*" matches within a single
// path segment; "?" matches exactly one non-"/" character.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func compilePattern(pattern string) (compiledPattern, error) {
	switch classify(pattern) {
	case kindRegex:
		re, err := regexp.Compile(strings.TrimPrefix(pattern, "regex:"))
		if err != nil {
			return compiledPattern{}, err
		}
		return compiledPattern{kind: kindRegex, re: re}, nil
	case kindGlob:
		re, err := globToRegexp(pattern)
		if err != nil {
			return compiledPattern{}, err
		}
		return compiledPattern{kind: kindGlob, re: re}, nil
	default:
		return compiledPattern{kind: kindExact, literal: pattern}, nil
	}
}

func (r *Route) compile() {
	r.compileOnce.Do(func() {
		r.compiled = make([]compiledPattern, 0, len(r.Patterns))
		for _, p := range r.Patterns {
			cp, err := compilePattern(p)
			if err != nil {
				// An unparseable regex pattern never matches rather than
				// panicking at request time; misconfiguration surfaces as
				// "route never gates", which is loud in integration tests.
				continue
			}
			r.compiled = append(r.compiled, cp)
		}
	})
}

func (r *Route) matchesMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == "*" || strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (r *Route) matchesPath(p string) bool {
	r.compile()
	for _, cp := range r.compiled {
		switch cp.kind {
		case kindExact:
			if cp.literal == p {
				return true
			}
		default:
			if cp.re != nil && cp.re.MatchString(p) {
				return true
			}
		}
	}
	return false
}

// Match returns the first route matching method and the request path
// (path.Clean'd so trailing slashes don't split exact matches), or nil.
func (t RouteTable) Match(method, requestPath string) *Route {
	cleaned := path.Clean(requestPath)
	if requestPath == "" {
		cleaned = "/"
	}
	for _, route := range t {
		if route.matchesMethod(method) && route.matchesPath(cleaned) {
			return route
		}
	}
	return nil
}
