// Package tracker is the authenticated HTTP session with the tracker site.
// It fetches the promotional listing, downloads .torrent files, and keeps
// the login cookies on disk between runs.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrLoginFailed is returned when every login attempt was rejected.
var ErrLoginFailed = errors.New("tracker login failed")

const (
	DefaultTimeout            = 30 * time.Second
	DefaultListingPath        = "torrents.php"
	DefaultCookiePath         = "./data/cookies.json"
	DefaultLoggedInMarker     = "最近消息"
	DefaultLoggedOutMarker    = "未登录"
	DefaultLoginAttempts      = 5
	DefaultLoginRetryInterval = time.Second

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config configures a Session. Zero values take the defaults above.
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	ListingPath string
	CookiePath  string
	UserAgent   string

	// Page text that shows whether the session is signed in.
	LoggedInMarker  string
	LoggedOutMarker string

	Timeout            time.Duration
	LoginAttempts      int
	LoginRetryInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListingPath == "" {
		c.ListingPath = DefaultListingPath
	}
	if c.CookiePath == "" {
		c.CookiePath = DefaultCookiePath
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.LoggedInMarker == "" {
		c.LoggedInMarker = DefaultLoggedInMarker
	}
	if c.LoggedOutMarker == "" {
		c.LoggedOutMarker = DefaultLoggedOutMarker
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = DefaultLoginAttempts
	}
	if c.LoginRetryInterval <= 0 {
		c.LoginRetryInterval = DefaultLoginRetryInterval
	}
}

// Page is a fetched tracker page.
type Page struct {
	Status        int
	Body          []byte
	Authenticated bool
}

// Document parses the page body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Session is a cookie-carrying HTTP client for the tracker.
type Session struct {
	cfg    Config
	base   *url.URL
	jar    *cookiejar.Jar
	client *http.Client
	fs     afero.Fs
	log    zerolog.Logger
}

// New creates a session. Cookies are persisted to cfg.CookiePath on fs.
func New(cfg Config, fs afero.Fs, log zerolog.Logger) (*Session, error) {
	cfg.applyDefaults()

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid tracker url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("tracker url must use http or https scheme")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Session{
		cfg:  cfg,
		base: base,
		jar:  jar,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		fs:  fs,
		log: log.With().Str("component", "tracker").Logger(),
	}, nil
}

// URL resolves a site-relative path.
func (s *Session) URL(path string) string {
	return s.base.String() + strings.TrimPrefix(path, "/")
}

func (s *Session) do(ctx context.Context, method, path string, form url.Values) (int, []byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.URL(path), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return resp.StatusCode, data, nil
}

// Fetch gets a site page. Authenticated is false when the page carries the
// logged-out marker.
func (s *Session) Fetch(ctx context.Context, path string) (*Page, error) {
	status, body, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return &Page{
		Status:        status,
		Body:          body,
		Authenticated: !bytes.Contains(body, []byte(s.cfg.LoggedOutMarker)),
	}, nil
}

// FetchListing gets the promotional listing page.
func (s *Session) FetchListing(ctx context.Context) (*Page, error) {
	page, err := s.Fetch(ctx, s.cfg.ListingPath)
	if err != nil {
		return nil, err
	}
	if page.Status != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d fetching listing", page.Status)
	}
	return page, nil
}

// Download returns the .torrent file for a listing id.
func (s *Session) Download(ctx context.Context, id string) ([]byte, error) {
	path := "download.php?" + url.Values{"id": {id}}.Encode()
	status, body, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d downloading torrent %s", status, id)
	}
	return body, nil
}

// LoggedIn checks the index page for the logged-in marker.
func (s *Session) LoggedIn(ctx context.Context) (bool, error) {
	_, body, err := s.do(ctx, http.MethodGet, "index.php", nil)
	if err != nil {
		return false, err
	}
	return bytes.Contains(body, []byte(s.cfg.LoggedInMarker)), nil
}

// Login restores saved cookies and, if they are no longer valid, signs in
// with the configured credentials. Rejected attempts are retried at a
// constant interval up to LoginAttempts times.
func (s *Session) Login(ctx context.Context) error {
	if err := s.loadCookies(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to load saved cookies")
	}

	if ok, err := s.LoggedIn(ctx); err == nil && ok {
		s.log.Debug().Msg("Saved session is still valid")
		return nil
	}

	form := url.Values{}
	form.Set("logintype", "username")
	form.Set("userinput", s.cfg.Username)
	form.Set("password", s.cfg.Password)
	form.Set("autologin", "yes")

	attempt := 0
	op := func() error {
		attempt++
		_, body, err := s.do(ctx, http.MethodPost, "takelogin.php", form)
		if err != nil {
			return err
		}
		if !bytes.Contains(body, []byte(s.cfg.LoggedInMarker)) {
			return ErrLoginFailed
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.LoginRetryInterval), uint64(s.cfg.LoginAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Login failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		s.log.Error().Err(err).Int("attempts", attempt).Msg("Login failed")
		if errors.Is(err, ErrLoginFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	s.log.Info().Msg("Logged in to tracker")
	if err := s.saveCookies(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save cookies")
	}
	return nil
}

// savedCookie is the on-disk form of a session cookie.
type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Session) loadCookies() error {
	data, err := afero.ReadFile(s.fs, s.cfg.CookiePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	s.jar.SetCookies(s.base, cookies)
	return nil
}

func (s *Session) saveCookies() error {
	var saved []savedCookie
	for _, c := range s.jar.Cookies(s.base) {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.cfg.CookiePath), 0o755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.cfg.CookiePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}
