package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sunmorgn/aria-labels/internal/cache"
	"github.com/sunmorgn/aria-labels/internal/debug"
	apperrors "github.com/sunmorgn/aria-labels/internal/errors"
	"github.com/sunmorgn/aria-labels/internal/plugin"

	ghapi "github.com/google/go-github/v68/github"
)

// Default configuration values.
const (
	DefaultRepository = "sunmorgn/aria-labels"
	DefaultAPIURL     = "https://api.github.com/"
	DefaultPluginFile = "aria-labels/aria-labels.php"
	DefaultSlug       = "aria-labels"
	DefaultTimeout    = 10 * time.Second
	DefaultTTL        = 12 * time.Hour

	// CacheKey is the transient the latest release is stored under.
	CacheKey = "aria_labels_github_response"

	userAgent = "aria-labels-updater"
)

// Error variables for specific error conditions.
var (
	ErrRateLimited    = fmt.Errorf("rate limited by release API")
	ErrInvalidVersion = fmt.Errorf("invalid version format")
)

// Release is the subset of the release feed the updater uses.
type Release struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body"`
	ZipballURL  string    `json:"zipball_url"`
	HTMLURL     string    `json:"html_url"`
}

// IsZero reports whether r carries no release.
func (r Release) IsZero() bool {
	return r.TagName == ""
}

// Version returns the tag without its leading 'v'.
func (r Release) Version() string {
	return TrimTag(r.TagName)
}

// Checker fetches the latest release and caches it.
type Checker struct {
	owner      string
	repo       string
	apiURL     string
	token      string
	pluginFile string
	slug       string
	ttl        time.Duration
	store      cache.Store
	httpClient *http.Client
	gh         *ghapi.Client
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHTTPClient sets the base HTTP client. Its transport is wrapped with an
// AuthTransport; the client itself is not modified.
func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		clone := *c.httpClient
		clone.Timeout = timeout
		c.httpClient = &clone
	}
}

// WithToken sets the bearer token for private repositories.
func WithToken(token string) CheckerOption {
	return func(c *Checker) {
		c.token = strings.TrimSpace(token)
	}
}

// WithAPIURL points the checker at a different API base URL.
func WithAPIURL(apiURL string) CheckerOption {
	return func(c *Checker) {
		if apiURL != "" {
			c.apiURL = apiURL
		}
	}
}

// WithCache sets the transient store.
func WithCache(store cache.Store) CheckerOption {
	return func(c *Checker) {
		c.store = store
	}
}

// WithTTL sets how long a fetched release stays cached.
func WithTTL(ttl time.Duration) CheckerOption {
	return func(c *Checker) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPlugin sets the plugin's main file (relative to the plugins root) and slug.
func WithPlugin(file, slug string) CheckerOption {
	return func(c *Checker) {
		if file != "" {
			c.pluginFile = file
		}
		if slug != "" {
			c.slug = slug
		}
	}
}

// NewChecker creates a checker for repo, given as "owner/name".
func NewChecker(repo string, opts ...CheckerOption) (*Checker, error) {
	owner, name, ok := strings.Cut(strings.Trim(strings.TrimSpace(repo), "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("repository must be owner/name, got %q", repo), nil)
	}

	c := &Checker{
		owner:      owner,
		repo:       name,
		apiURL:     DefaultAPIURL,
		pluginFile: DefaultPluginFile,
		slug:       DefaultSlug,
		ttl:        DefaultTTL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = cache.NewMemory()
	}

	base := c.apiURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConfigurationError, "parse api url", err)
	}

	auth, err := NewAuthTransport(c.httpClient.Transport, base, owner+"/"+name, c.token)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConfigurationError, "configure auth", err)
	}
	authed := *c.httpClient
	authed.Transport = auth
	c.httpClient = &authed

	c.gh = ghapi.NewClient(c.httpClient)
	c.gh.BaseURL = baseURL
	c.gh.UserAgent = userAgent
	return c, nil
}

// HTTPClient returns the client used for API calls. Downloads should use it
// too so they carry the same scoped token.
func (c *Checker) HTTPClient() *http.Client {
	return c.httpClient
}

// Repository returns "owner/name".
func (c *Checker) Repository() string {
	return c.owner + "/" + c.repo
}

// Latest returns the latest release, from cache when fresh unless force is
// set. Any failure is logged and reported as no release.
func (c *Checker) Latest(ctx context.Context, force bool) (Release, bool) {
	if !force {
		if rel, ok := c.cached(ctx); ok {
			return rel, true
		}
	}

	rel, err := c.fetch(ctx)
	if err != nil {
		debug.Logf("update: fetch latest release of %s: %v", c.Repository(), err)
		return Release{}, false
	}
	if rel.IsZero() {
		return Release{}, false
	}

	payload, err := json.Marshal(rel)
	if err == nil {
		err = c.store.Set(ctx, CacheKey, payload, c.ttl)
	}
	if err != nil {
		debug.Logf("update: %v", apperrors.New(apperrors.CodeCacheFailed, "cache release", err))
	}
	return rel, true
}

func (c *Checker) cached(ctx context.Context) (Release, bool) {
	payload, ok, err := c.store.Get(ctx, CacheKey)
	if err != nil {
		debug.Logf("update: read cached release: %v", err)
		return Release{}, false
	}
	if !ok {
		return Release{}, false
	}
	var rel Release
	if err := json.Unmarshal(payload, &rel); err != nil || rel.IsZero() {
		debug.Logf("update: discarding unreadable cached release: %v", err)
		_ = c.store.Delete(ctx, CacheKey)
		return Release{}, false
	}
	return rel, true
}

// fetch asks the release API for the latest release.
func (c *Checker) fetch(ctx context.Context) (Release, error) {
	r, _, err := c.gh.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	if err != nil {
		return Release{}, classify(err)
	}
	return Release{
		TagName:     r.GetTagName(),
		PublishedAt: r.GetPublishedAt().Time,
		Body:        r.GetBody(),
		ZipballURL:  r.GetZipballURL(),
		HTMLURL:     r.GetHTMLURL(),
	}, nil
}

func classify(err error) error {
	var (
		rateErr   *ghapi.RateLimitError
		abuseErr  *ghapi.AbuseRateLimitError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return apperrors.New(apperrors.CodeFetchFailed, ErrRateLimited.Error(), err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.New(apperrors.CodeDecodeFailed, "decode release", err)
	default:
		return apperrors.New(apperrors.CodeFetchFailed, "fetch release", err)
	}
}

// Offer is an update entry for one plugin file.
type Offer struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Slug       string `json:"slug"`
	Package    string `json:"package"`
	NewVersion string `json:"new_version"`
}

// UpdateTransient is the host's record of installed versions (Checked, keyed
// by plugin file) and the updates it offers (Response).
type UpdateTransient struct {
	Checked  map[string]string `json:"checked"`
	Response map[string]Offer  `json:"response,omitempty"`
}

// Offer adds an update entry for the plugin to t when the plugin is listed in
// t.Checked and the latest release is newer than the installed version. It
// reports whether an entry was added.
func (c *Checker) Offer(ctx context.Context, t *UpdateTransient) bool {
	if t == nil || len(t.Checked) == 0 {
		return false
	}
	installed, ok := t.Checked[c.pluginFile]
	if !ok {
		return false
	}
	rel, ok := c.Latest(ctx, false)
	if !ok || !IsNewer(rel.TagName, installed) {
		return false
	}
	if t.Response == nil {
		t.Response = make(map[string]Offer)
	}
	t.Response[c.pluginFile] = Offer{
		ID:         rel.HTMLURL,
		URL:        rel.HTMLURL,
		Slug:       c.slug,
		Package:    rel.ZipballURL,
		NewVersion: rel.TagName,
	}
	return true
}

// Sections are the tabs of the plugin information dialog.
type Sections struct {
	Description string `json:"Description"`
	Updates     string `json:"Updates"`
}

// PluginInfo describes the plugin and its latest release.
type PluginInfo struct {
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Requires         string    `json:"requires"`
	RequiresPHP      string    `json:"requires_php"`
	Version          string    `json:"version"`
	Author           string    `json:"author"`
	AuthorProfile    string    `json:"author_profile"`
	LastUpdated      time.Time `json:"last_updated"`
	Homepage         string    `json:"homepage"`
	ShortDescription string    `json:"short_description"`
	Sections         Sections  `json:"sections"`
	DownloadLink     string    `json:"download_link"`
}

// PluginInformation merges the local manifest with the latest release. It
// reports false when slug is not this plugin's or no release is available.
func (c *Checker) PluginInformation(ctx context.Context, slug string, m plugin.Manifest) (PluginInfo, bool) {
	if slug != c.slug {
		return PluginInfo{}, false
	}
	rel, ok := c.Latest(ctx, false)
	if !ok {
		return PluginInfo{}, false
	}
	return PluginInfo{
		Name:             m.Name,
		Slug:             c.slug,
		Requires:         m.RequiresWP,
		RequiresPHP:      m.RequiresPHP,
		Version:          rel.TagName,
		Author:           m.Author,
		AuthorProfile:    m.AuthorURI,
		LastUpdated:      rel.PublishedAt,
		Homepage:         m.PluginURI,
		ShortDescription: m.Description,
		Sections: Sections{
			Description: m.Description,
			Updates:     rel.Body,
		},
		DownloadLink: rel.ZipballURL,
	}, true
}
