// Package qbittorrent implements agent.Agent over the qBittorrent WebUI API
// v2.
package qbittorrent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/cenkalti/backoff/v4"
	"github.com/pevans/promobot/agent"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every WebUI request.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL is how long a sync/maindata snapshot is reused.
	DefaultCacheTTL = 300 * time.Second

	// DefaultAddSettle is the wait between uploading a torrent and looking
	// it up, giving qBittorrent time to register it.
	DefaultAddSettle = time.Second

	// DefaultLoginAttempts bounds login tries while the WebUI is starting.
	DefaultLoginAttempts = 5

	// DefaultLoginRetryInterval is the wait between login tries.
	DefaultLoginRetryInterval = 5 * time.Second

	// DefaultTag marks torrents added by the bot. Only tagged torrents form
	// the managed set.
	DefaultTag = "promobot"
)

const (
	formContentType = "application/x-www-form-urlencoded"
	torrentMimeType = "application/x-bittorrent"
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	SavePath string // empty keeps qBittorrent's default
	Tag      string

	Timeout   time.Duration
	CacheTTL  time.Duration
	AddSettle time.Duration

	LoginAttempts      int
	LoginRetryInterval time.Duration
}

// Client is a qBittorrent WebUI client scoped to the torrents carrying
// Config.Tag. It is not safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	loggedIn   bool
	snap       *snapshot
	now        func() time.Time
	log        zerolog.Logger
}

// snapshot is a cached sync/maindata response.
type snapshot struct {
	data      mainData
	fetchedAt time.Time
}

type mainData struct {
	Torrents    map[string]torrentInfo `json:"torrents"`
	ServerState serverState            `json:"server_state"`
}

type torrentInfo struct {
	Name    string `json:"name"`
	AddedOn int64  `json:"added_on"`
	UpSpeed int64  `json:"upspeed"`
	State   string `json:"state"`
	Size    int64  `json:"size"`
	Tags    string `json:"tags"`
}

type serverState struct {
	FreeSpaceOnDisk int64 `json:"free_space_on_disk"`
}

// Ensure Client implements the agent interface
var _ agent.Agent = (*Client)(nil)

// New creates a client. Zero durations, a zero LoginAttempts, and an empty
// Tag take their defaults; a zero AddSettle skips the wait.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.AddSettle < 0 {
		cfg.AddSettle = 0
	}
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = DefaultLoginAttempts
	}
	if cfg.LoginRetryInterval <= 0 {
		cfg.LoginRetryInterval = DefaultLoginRetryInterval
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	jar, _ := cookiejar.New(nil)
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		now: time.Now,
		log: log.With().Str("component", "qbittorrent").Logger(),
	}
}

// Login authenticates with the WebUI. Unreachable or non-200 answers are
// retried at a constant interval up to LoginAttempts times, covering a
// qBittorrent that is still starting; rejected credentials are not retried.
func (c *Client) Login(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		return c.login(ctx)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.LoginRetryInterval), uint64(c.cfg.LoginAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("qBittorrent login failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return err
	}

	c.log.Debug().Int("attempts", attempt).Msg("Logged in to qBittorrent")
	c.loggedIn = true
	return nil
}

func (c *Client) login(ctx context.Context) error {
	data := url.Values{}
	data.Set("username", c.cfg.Username)
	data.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/auth/login", strings.NewReader(data.Encode()))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create login request: %w", err))
	}
	req.Header.Set("Content-Type", formContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	result := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d: %s", resp.StatusCode, result)
	}
	if result == "Fails." {
		return backoff.Permanent(fmt.Errorf("login failed: invalid credentials"))
	}
	if result != "Ok." {
		return backoff.Permanent(fmt.Errorf("unexpected login response: %s", result))
	}
	return nil
}

// request makes an authenticated request. A 403 means the session expired;
// the client logs in again and retries once.
func (c *Client) request(ctx context.Context, method, endpoint, contentType string, payload []byte) ([]byte, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, method, endpoint, contentType, payload)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		c.loggedIn = false
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("re-login failed: %w", err)
		}

		resp, err = c.do(ctx, method, endpoint, contentType, payload)
		if err != nil {
			return nil, fmt.Errorf("retry request failed: %w", err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	return io.ReadAll(resp.Body)
}

// StatusError is a non-200 WebUI response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d - %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) postForm(ctx context.Context, endpoint string, data url.Values) ([]byte, error) {
	return c.request(ctx, http.MethodPost, endpoint, formContentType, []byte(data.Encode()))
}

// mainData returns the sync/maindata snapshot, reusing the cached one when
// it is younger than CacheTTL and forceRefresh is false.
func (c *Client) mainData(ctx context.Context, forceRefresh bool) (mainData, error) {
	if !forceRefresh && c.snap != nil && c.now().Sub(c.snap.fetchedAt) < c.cfg.CacheTTL {
		return c.snap.data, nil
	}

	body, err := c.request(ctx, http.MethodGet, "/api/v2/sync/maindata", "", nil)
	if err != nil {
		return mainData{}, err
	}

	var data mainData
	if err := json.Unmarshal(body, &data); err != nil {
		return mainData{}, fmt.Errorf("failed to unmarshal main data: %w", err)
	}

	c.snap = &snapshot{data: data, fetchedAt: c.now()}
	return data, nil
}

// ListManaged returns the tagged torrents from a fresh snapshot, ordered by
// info hash.
func (c *Client) ListManaged(ctx context.Context) ([]agent.ManagedTorrent, error) {
	data, err := c.mainData(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}

	var out []agent.ManagedTorrent
	for hash, info := range data.Torrents {
		if !hasTag(info.Tags, c.cfg.Tag) {
			continue
		}
		out = append(out, toManaged(hash, info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Remove deletes a torrent by info hash.
func (c *Client) Remove(ctx context.Context, id string, deleteData bool) error {
	data := url.Values{}
	data.Set("hashes", id)
	data.Set("deleteFiles", strconv.FormatBool(deleteData))

	if _, err := c.postForm(ctx, "/api/v2/torrents/delete", data); err != nil {
		return fmt.Errorf("failed to delete torrent %s: %w", id, err)
	}
	return nil
}

// Resume starts a paused torrent. qBittorrent 5.x renamed torrents/resume
// to torrents/start; older versions answer 404 there and get the old name.
func (c *Client) Resume(ctx context.Context, id string) error {
	data := url.Values{}
	data.Set("hashes", id)

	_, err := c.postForm(ctx, "/api/v2/torrents/start", data)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		_, err = c.postForm(ctx, "/api/v2/torrents/resume", data)
	}
	if err != nil {
		return fmt.Errorf("failed to resume torrent %s: %w", id, err)
	}
	return nil
}

// Acquire uploads a .torrent file tagged with Config.Tag, then looks the
// torrent up by info hash in a fresh snapshot.
func (c *Client) Acquire(ctx context.Context, content []byte, paused bool) (*agent.ManagedTorrent, error) {
	mi, err := metainfo.Load(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to load torrent metainfo: %w", err)
	}
	hash := mi.HashInfoBytes().HexString()

	payload, contentType, err := c.addForm(content, paused)
	if err != nil {
		return nil, err
	}

	body, err := c.request(ctx, http.MethodPost, "/api/v2/torrents/add", contentType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}
	if strings.TrimSpace(string(body)) == "Fails." {
		return nil, fmt.Errorf("qBittorrent rejected torrent %s", hash)
	}

	if c.cfg.AddSettle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.AddSettle):
		}
	}

	data, err := c.mainData(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to look up added torrent: %w", err)
	}

	info, ok := data.Torrents[hash]
	if !ok {
		return nil, fmt.Errorf("torrent %s: %w", hash, agent.ErrNotFound)
	}

	t := toManaged(hash, info)
	c.log.Info().Str("id", hash).Str("name", t.Name).Msg("Torrent added")
	return &t, nil
}

func (c *Client) addForm(content []byte, paused bool) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// "stopped" is the 5.x name of "paused"; each version ignores the other.
	fields := map[string]string{
		"paused":  strconv.FormatBool(paused),
		"stopped": strconv.FormatBool(paused),
		"tags":    c.cfg.Tag,
	}
	if c.cfg.SavePath != "" {
		fields["savepath"] = c.cfg.SavePath
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="torrents"; filename="torrent.torrent"`)
	header.Set("Content-Type", torrentMimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to write torrent content: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// FreeDiskBytes reports server_state.free_space_on_disk.
func (c *Client) FreeDiskBytes(ctx context.Context, forceRefresh bool) (int64, error) {
	data, err := c.mainData(ctx, forceRefresh)
	if err != nil {
		return 0, fmt.Errorf("failed to read free space: %w", err)
	}
	return data.ServerState.FreeSpaceOnDisk, nil
}

func hasTag(tags, tag string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}

func toManaged(hash string, info torrentInfo) agent.ManagedTorrent {
	return agent.ManagedTorrent{
		ID:         hash,
		Name:       info.Name,
		AddedAt:    time.Unix(info.AddedOn, 0),
		UploadRate: info.UpSpeed,
		Status:     mapState(info.State),
		TotalSize:  info.Size,
	}
}

// mapState folds qBittorrent torrent states into agent statuses.
func mapState(state string) agent.Status {
	switch state {
	case "checkingDL", "checkingUP", "checkingResumeData", "moving":
		return agent.StatusChecking
	case "allocating", "downloading", "metaDL", "pausedDL", "queuedDL", "stalledDL", "forcedDL":
		return agent.StatusDownloading
	default:
		return agent.StatusSeeding
	}
}
