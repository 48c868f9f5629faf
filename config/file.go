// Package config loads promobot settings from a YAML file, an optional .env
// file, and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pevans/promobot/agent/qbittorrent"
	"github.com/pevans/promobot/bot"
	"github.com/pevans/promobot/capacity"
	"github.com/pevans/promobot/eligibility"
	"github.com/pevans/promobot/ledger"
	"github.com/pevans/promobot/listing"
	"github.com/pevans/promobot/tracker"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no -c flag is given.
const DefaultPath = "config.yaml"

// Environment variables that override secrets and the ledger location.
const (
	EnvTrackerUsername     = "PROMOBOT_TRACKER_USERNAME"
	EnvTrackerPassword     = "PROMOBOT_TRACKER_PASSWORD"
	EnvQBittorrentUsername = "PROMOBOT_QBITTORRENT_USERNAME"
	EnvQBittorrentPassword = "PROMOBOT_QBITTORRENT_PASSWORD"
	EnvLedgerDSN           = "PROMOBOT_LEDGER_DSN"
)

// TrackerConfig is the tracker section.
type TrackerConfig struct {
	URL                string   `yaml:"url"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	ListingPath        string   `yaml:"listing_path"`
	CookiePath         string   `yaml:"cookie_path"`
	UserAgent          string   `yaml:"user_agent"`
	LoggedInMarker     string   `yaml:"logged_in_marker"`
	LoggedOutMarker    string   `yaml:"logged_out_marker"`
	Timeout            Duration `yaml:"timeout"`
	LoginAttempts      int      `yaml:"login_attempts"`
	LoginRetryInterval Duration `yaml:"login_retry_interval"`
}

// QBittorrentConfig is the qbittorrent section.
type QBittorrentConfig struct {
	URL                string   `yaml:"url"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	SavePath           string   `yaml:"save_path"`
	Tag                string   `yaml:"tag"`
	Timeout            Duration `yaml:"timeout"`
	CacheTTL           Duration `yaml:"cache_ttl"`
	AddSettle          Duration `yaml:"add_settle"`
	LoginAttempts      int      `yaml:"login_attempts"`
	LoginRetryInterval Duration `yaml:"login_retry_interval"`
}

// BotConfig is the bot section: loop timing, eligibility, and capacity
// limits. Sizes are in GiB.
type BotConfig struct {
	ScanInterval      Duration `yaml:"scan_interval"`
	DiskCheckInterval Duration `yaml:"disk_check_interval"`
	Promotions        []string `yaml:"promotions"`
	StrictThreshold   int      `yaml:"strict_threshold"`

	MaxItemCount       int   `yaml:"max_item_count"`
	MaxTotalSizeGiB    int64 `yaml:"max_total_size_gib"`
	ItemSizeFloorGiB   int64 `yaml:"item_size_floor_gib"`
	ItemSizeCeilingGiB int64 `yaml:"item_size_ceiling_gib"`
	MinFreeDiskGiB     int64 `yaml:"min_free_disk_gib"`
	ProtectedUploadKiB int64 `yaml:"protected_upload_kib"`
}

// LedgerConfig is the ledger section. See ledger.NewStore for types.
type LedgerConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// LogConfig is the log section.
type LogConfig struct {
	Level  string `yaml:"level"`  // zerolog level name
	Format string `yaml:"format"` // console or json
}

// StatusConfig is the status section. An empty Listen disables the status
// API.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// FileConfig represents the structure of config.yaml.
type FileConfig struct {
	Tracker     TrackerConfig     `yaml:"tracker"`
	QBittorrent QBittorrentConfig `yaml:"qbittorrent"`
	Bot         BotConfig         `yaml:"bot"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Log         LogConfig         `yaml:"log"`
	Status      StatusConfig      `yaml:"status"`
}

// Default returns the settings used for anything the file leaves out.
func Default() *FileConfig {
	return &FileConfig{
		QBittorrent: QBittorrentConfig{
			Tag:       qbittorrent.DefaultTag,
			AddSettle: Duration(qbittorrent.DefaultAddSettle),
		},
		Bot: BotConfig{
			ScanInterval:       Duration(bot.DefaultScanInterval),
			DiskCheckInterval:  Duration(bot.DefaultDiskCheckInterval),
			MaxItemCount:       20,
			ItemSizeFloorGiB:   capacity.DefaultItemSizeFloorGiB,
			ItemSizeCeilingGiB: capacity.DefaultItemSizeCeilingGiB,
			MinFreeDiskGiB:     50,
			ProtectedUploadKiB: capacity.DefaultProtectedUploadRate / capacity.KiB,
		},
		Ledger: LedgerConfig{
			Type: ledger.TypeFile,
			DSN:  ledger.DefaultFilePath,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path over Default and applies environment
// overrides. A missing file is not an error; the result then comes from
// defaults and the environment alone. Returns error if the file exists but
// cannot be parsed.
func Load(path string) (*FileConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// File doesn't exist -- not an error
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *FileConfig) applyEnv() {
	c.Tracker.Username = getEnv(EnvTrackerUsername, c.Tracker.Username)
	c.Tracker.Password = getEnv(EnvTrackerPassword, c.Tracker.Password)
	c.QBittorrent.Username = getEnv(EnvQBittorrentUsername, c.QBittorrent.Username)
	c.QBittorrent.Password = getEnv(EnvQBittorrentPassword, c.QBittorrent.Password)
	c.Ledger.DSN = getEnv(EnvLedgerDSN, c.Ledger.DSN)
}

// Validate reports every problem found, joined.
func (c *FileConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Tracker.URL) == "" {
		errs = append(errs, errors.New("tracker.url is required"))
	}
	if strings.TrimSpace(c.QBittorrent.URL) == "" {
		errs = append(errs, errors.New("qbittorrent.url is required"))
	}
	if c.Bot.MaxItemCount <= 0 {
		errs = append(errs, fmt.Errorf("bot.max_item_count must be positive, got %d", c.Bot.MaxItemCount))
	}
	if c.Bot.MaxTotalSizeGiB < 0 || c.Bot.MinFreeDiskGiB < 0 ||
		c.Bot.ItemSizeFloorGiB < 0 || c.Bot.ItemSizeCeilingGiB < 0 {
		errs = append(errs, errors.New("bot size limits must not be negative"))
	}
	if _, err := c.Promotions(); err != nil {
		errs = append(errs, err)
	}
	switch c.Ledger.Type {
	case "", ledger.TypeFile, ledger.TypeSQLite, ledger.TypeRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.type %q", c.Ledger.Type))
	}

	return errors.Join(errs...)
}

// Promotions parses bot.promotions. An empty list means the policy default.
func (c *FileConfig) Promotions() ([]listing.Promotion, error) {
	var out []listing.Promotion
	for _, name := range c.Bot.Promotions {
		p, ok := listing.ParsePromotion(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown promotion %q in bot.promotions", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// CapacityLimits returns the capacity limits as configured.
func (c *FileConfig) CapacityLimits() capacity.Limits {
	return capacity.Limits{
		MaxItemCount:       c.Bot.MaxItemCount,
		MaxTotalSizeGiB:    c.Bot.MaxTotalSizeGiB,
		ItemSizeFloorGiB:   c.Bot.ItemSizeFloorGiB,
		ItemSizeCeilingGiB: c.Bot.ItemSizeCeilingGiB,
		MinFreeDiskGiB:     c.Bot.MinFreeDiskGiB,
		ProtectedUploadKiB: c.Bot.ProtectedUploadKiB,
	}
}

// CapacityConfig returns the byte-based capacity config.
func (c *FileConfig) CapacityConfig() capacity.Config {
	return capacity.NewConfig(c.CapacityLimits())
}

// Orchestrator returns the bot config. Call Validate first; an
// unparseable promotion is reported here as well.
func (c *FileConfig) Orchestrator() (bot.Config, error) {
	promotions, err := c.Promotions()
	if err != nil {
		return bot.Config{}, err
	}

	policy := eligibility.NewPolicy(promotions, c.CapacityConfig())
	if c.Bot.StrictThreshold > 0 {
		policy.StrictThreshold = c.Bot.StrictThreshold
	}

	return bot.Config{
		ScanInterval:      time.Duration(c.Bot.ScanInterval),
		DiskCheckInterval: time.Duration(c.Bot.DiskCheckInterval),
		Policy:            policy,
	}, nil
}

// Session returns the tracker session config.
func (c *FileConfig) Session() tracker.Config {
	t := c.Tracker
	return tracker.Config{
		BaseURL:            t.URL,
		Username:           t.Username,
		Password:           t.Password,
		ListingPath:        t.ListingPath,
		CookiePath:         t.CookiePath,
		UserAgent:          t.UserAgent,
		LoggedInMarker:     t.LoggedInMarker,
		LoggedOutMarker:    t.LoggedOutMarker,
		Timeout:            time.Duration(t.Timeout),
		LoginAttempts:      t.LoginAttempts,
		LoginRetryInterval: time.Duration(t.LoginRetryInterval),
	}
}

// Agent returns the qBittorrent client config.
func (c *FileConfig) Agent() qbittorrent.Config {
	q := c.QBittorrent
	return qbittorrent.Config{
		BaseURL:   q.URL,
		Username:  q.Username,
		Password:  q.Password,
		SavePath:  q.SavePath,
		Tag:       q.Tag,
		Timeout:   time.Duration(q.Timeout),
		CacheTTL:  time.Duration(q.CacheTTL),
		AddSettle: time.Duration(q.AddSettle),

		LoginAttempts:      q.LoginAttempts,
		LoginRetryInterval: time.Duration(q.LoginRetryInterval),
	}
}
