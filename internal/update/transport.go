package update

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// AuthTransport adds a bearer token to requests aimed at one repository on
// the release API. Requests to any other host or path, including redirects to
// download mirrors, pass through untouched.
type AuthTransport struct {
	Next       http.RoundTripper
	Token      string
	Host       string // API host, compared case-insensitively
	PathPrefix string // e.g. "/repos/owner/name"
}

// NewAuthTransport scopes token to apiURL's host and the given "owner/name"
// repository under apiURL's path.
func NewAuthTransport(next http.RoundTripper, apiURL, repo, token string) (*AuthTransport, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url: missing host in %q", apiURL)
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &AuthTransport{
		Next:       next,
		Token:      strings.TrimSpace(token),
		Host:       u.Host,
		PathPrefix: strings.TrimSuffix(u.Path, "/") + "/repos/" + strings.Trim(repo, "/"),
	}, nil
}

// Matches reports whether u is covered by the token's scope.
func (t *AuthTransport) Matches(u *url.URL) bool {
	if u == nil || !strings.EqualFold(u.Host, t.Host) {
		return false
	}
	prefix := strings.ToLower(t.PathPrefix)
	p := strings.ToLower(u.Path)
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	if t.Token == "" || !t.Matches(req.URL) {
		return next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.Token)
	return next.RoundTrip(req)
}

var _ http.RoundTripper = (*AuthTransport)(nil)
