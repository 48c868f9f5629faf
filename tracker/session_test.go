package tracker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validSession = "abc123"
	cookiePath   = "/data/cookies.json"
)

// fakeTracker serves the handful of pages the session touches.
type fakeTracker struct {
	mu sync.Mutex

	password      string
	rejectLogins  int // reject this many correct logins first
	loginPosts    int
	lastUserAgent string
	lastLoginForm map[string]string
}

func (f *fakeTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUserAgent = r.UserAgent()

	cookie, err := r.Cookie("c_secure_pass")
	authed := err == nil && cookie.Value == validSession

	switch r.URL.Path {
	case "/index.php", "/torrents.php":
		if !authed {
			io.WriteString(w, "<html><body>未登录!</body></html>")
			return
		}
		io.WriteString(w, "<html><body>最近消息 <table class=\"torrents\"></table></body></html>")
	case "/takelogin.php":
		f.loginPosts++
		_ = r.ParseForm()
		f.lastLoginForm = map[string]string{
			"logintype": r.PostForm.Get("logintype"),
			"userinput": r.PostForm.Get("userinput"),
			"autologin": r.PostForm.Get("autologin"),
		}
		if r.PostForm.Get("password") != f.password || f.rejectLogins > 0 {
			f.rejectLogins--
			io.WriteString(w, "<html><body>登录失败</body></html>")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "c_secure_pass", Value: validSession, Path: "/"})
		io.WriteString(w, "<html><body>最近消息</body></html>")
	case "/download.php":
		if !authed {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("id") != "101" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-bittorrent")
		io.WriteString(w, "d8:announce3:urle")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Test helper: session against a fake tracker
func newTestSession(t *testing.T, fake *fakeTracker, fs afero.Fs) *Session {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := New(Config{
		BaseURL:            server.URL,
		Username:           "alice",
		Password:           "hunter2",
		CookiePath:         cookiePath,
		LoginAttempts:      3,
		LoginRetryInterval: time.Millisecond,
	}, fs, zerolog.Nop())
	require.NoError(t, err)
	return s
}

// TestNew_InvalidURL verifies the scheme check
func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://tracker.example"}, afero.NewMemMapFs(), zerolog.Nop())
	assert.Error(t, err)
}

// TestNew_Defaults verifies zero config values take defaults
func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{BaseURL: "https://tracker.example/"}, afero.NewMemMapFs(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, s.client.Timeout)
	assert.Equal(t, DefaultLoginAttempts, s.cfg.LoginAttempts)
	assert.Equal(t, "https://tracker.example/torrents.php", s.URL(s.cfg.ListingPath))
	assert.Equal(t, "https://tracker.example/index.php", s.URL("/index.php"))
}

// TestFetchListing_Unauthenticated verifies the logged-out marker
func TestFetchListing_Unauthenticated(t *testing.T) {
	s := newTestSession(t, &fakeTracker{password: "hunter2"}, afero.NewMemMapFs())

	page, err := s.FetchListing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.False(t, page.Authenticated)
}

// TestLogin_PostsCredentials verifies a fresh login saves cookies
func TestLogin_PostsCredentials(t *testing.T) {
	fake := &fakeTracker{password: "hunter2"}
	fs := afero.NewMemMapFs()
	s := newTestSession(t, fake, fs)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx))
	assert.Equal(t, 1, fake.loginPosts)
	assert.Equal(t, map[string]string{
		"logintype": "username",
		"userinput": "alice",
		"autologin": "yes",
	}, fake.lastLoginForm)
	assert.Equal(t, DefaultUserAgent, fake.lastUserAgent)

	data, err := afero.ReadFile(fs, cookiePath)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"c_secure_pass","value":"abc123"}]`, string(data))

	page, err := s.FetchListing(ctx)
	require.NoError(t, err)
	assert.True(t, page.Authenticated)

	doc, err := page.Document()
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("table.torrents").Length())
}

// TestLogin_ReusesSavedCookies verifies a valid cookie file skips the form
func TestLogin_ReusesSavedCookies(t *testing.T) {
	fake := &fakeTracker{password: "hunter2"}
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, cookiePath, []byte(`[{"name":"c_secure_pass","value":"abc123"}]`), 0o600))

	s := newTestSession(t, fake, fs)
	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, 0, fake.loginPosts)
}

// TestLogin_StaleCookies verifies expired cookies fall back to the form
func TestLogin_StaleCookies(t *testing.T) {
	fake := &fakeTracker{password: "hunter2"}
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, cookiePath, []byte(`[{"name":"c_secure_pass","value":"expired"}]`), 0o600))

	s := newTestSession(t, fake, fs)
	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, 1, fake.loginPosts)
}

// TestLogin_RetriesUntilAccepted verifies rejected attempts are retried
func TestLogin_RetriesUntilAccepted(t *testing.T) {
	fake := &fakeTracker{password: "hunter2", rejectLogins: 2}
	s := newTestSession(t, fake, afero.NewMemMapFs())

	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, 3, fake.loginPosts)
}

// TestLogin_GivesUp verifies the attempt limit
func TestLogin_GivesUp(t *testing.T) {
	fake := &fakeTracker{password: "other"}
	fs := afero.NewMemMapFs()
	s := newTestSession(t, fake, fs)

	err := s.Login(context.Background())
	assert.True(t, errors.Is(err, ErrLoginFailed))
	assert.Equal(t, 3, fake.loginPosts)

	exists, err := afero.Exists(fs, cookiePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestDownload verifies torrent download by id
func TestDownload(t *testing.T) {
	fake := &fakeTracker{password: "hunter2"}
	s := newTestSession(t, fake, afero.NewMemMapFs())
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))

	content, err := s.Download(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "d8:announce3:urle", string(content))

	_, err = s.Download(ctx, "999")
	assert.Error(t, err)
}
