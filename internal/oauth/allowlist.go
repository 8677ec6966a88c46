package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// RedirectAllowlist authorizes post-login redirect targets. A candidate is
// accepted only when its scheme, host and effective port equal those of the
// default callback URI; the path is free.
type RedirectAllowlist struct {
	def    string
	scheme string
	host   string
	port   string
}

func NewRedirectAllowlist(defaultCallback string) (*RedirectAllowlist, error) {
	u, err := parseAbsolute(defaultCallback)
	if err != nil {
		return nil, fmt.Errorf("default callback uri: %w", err)
	}
	return &RedirectAllowlist{
		def:    defaultCallback,
		scheme: u.Scheme,
		host:   strings.ToLower(u.Hostname()),
		port:   effectivePort(u),
	}, nil
}

func (a *RedirectAllowlist) Default() string { return a.def }

func (a *RedirectAllowlist) IsAuthorized(candidate string) bool {
	if strings.TrimSpace(candidate) == "" {
		return false
	}
	u, err := parseAbsolute(candidate)
	if err != nil {
		return false
	}
	return u.Scheme == a.scheme &&
		strings.ToLower(u.Hostname()) == a.host &&
		effectivePort(u) == a.port
}

// Resolve returns candidate when authorized and the default otherwise.
func (a *RedirectAllowlist) Resolve(candidate string) string {
	if a.IsAuthorized(candidate) {
		return candidate
	}
	return a.def
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute uri", raw)
	}
	return u, nil
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
