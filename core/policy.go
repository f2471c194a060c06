package core

import "strings"

// AccessRule maps one method + path pattern to an access requirement.
// Pattern is either an exact path or a prefix ending in "/*".
type AccessRule struct {
	Method  string
	Pattern string
	Public  bool
}

// AccessPolicy is a static ordered rule table consulted by the request gate.
// Rules are evaluated in order, first match wins; an unmatched request
// requires authentication (deny by default).
type AccessPolicy struct {
	rules []AccessRule
}

func NewAccessPolicy(rules []AccessRule) *AccessPolicy {
	return &AccessPolicy{rules: rules}
}

// DefaultAccessPolicy opens the auth endpoints and the health probe; every
// application route, reads included, requires a valid token.
func DefaultAccessPolicy() *AccessPolicy {
	return NewAccessPolicy([]AccessRule{
		{Method: "POST", Pattern: "/api/auth/login", Public: true},
		{Method: "POST", Pattern: "/api/auth/register", Public: true},
		{Method: "POST", Pattern: "/api/auth/validate", Public: true},
		{Method: "GET", Pattern: "/healthz", Public: true},
		{Method: "OPTIONS", Pattern: "/*", Public: true},
	})
}

// IsPublic reports whether the request may proceed without an authenticated
// identity.
func (p *AccessPolicy) IsPublic(method, path string) bool {
	for _, r := range p.rules {
		if r.Method != "" && r.Method != method {
			continue
		}
		if matchPattern(r.Pattern, path) {
			return r.Public
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return prefix == "" || path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return pattern == path
}
