package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/promobot/bot"
	"github.com/pevans/promobot/capacity"
	"github.com/pevans/promobot/ledger"
	"github.com/pevans/promobot/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `tracker:
  url: "https://tracker.example"
  username: "alice"
  password: "from-file"
  cookie_path: "/var/lib/promobot/cookies.json"
  timeout: "10s"
  login_attempts: 3
qbittorrent:
  url: "http://localhost:8080"
  username: "admin"
  save_path: "/downloads"
  cache_ttl: "2m"
  login_attempts: 10
  login_retry_interval: "3s"
bot:
  scan_interval: "2m"
  disk_check_interval: "1d"
  promotions: ["free", "double-upload"]
  strict_threshold: 30
  max_item_count: 15
  max_total_size_gib: 500
  item_size_floor_gib: 2
  min_free_disk_gib: 40
ledger:
  type: "sqlite"
  dsn: "/var/lib/promobot/ledger.db"
log:
  level: "debug"
  format: "json"
status:
  listen: ":9090"
`

// Test helper: write a config file into a temp dir
func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad_NoFile verifies a missing file yields defaults
func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 20, cfg.Bot.MaxItemCount)
	assert.Equal(t, ledger.TypeFile, cfg.Ledger.Type)
	assert.Equal(t, Duration(bot.DefaultScanInterval), cfg.Bot.ScanInterval)
}

// TestLoad_ValidConfig verifies every section is read
func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://tracker.example", cfg.Tracker.URL)
	assert.Equal(t, "from-file", cfg.Tracker.Password)
	assert.Equal(t, Duration(10*time.Second), cfg.Tracker.Timeout)
	assert.Equal(t, 3, cfg.Tracker.LoginAttempts)

	assert.Equal(t, "/downloads", cfg.QBittorrent.SavePath)
	assert.Equal(t, "promobot", cfg.QBittorrent.Tag, "unset keys keep defaults")
	assert.Equal(t, Duration(2*time.Minute), cfg.QBittorrent.CacheTTL)

	assert.Equal(t, Duration(24*time.Hour), cfg.Bot.DiskCheckInterval)
	assert.Equal(t, 15, cfg.Bot.MaxItemCount)
	assert.Equal(t, int64(2), cfg.Bot.ItemSizeFloorGiB)
	assert.Equal(t, int64(capacity.DefaultItemSizeCeilingGiB), cfg.Bot.ItemSizeCeilingGiB)

	assert.Equal(t, "sqlite", cfg.Ledger.Type)
	assert.Equal(t, "/var/lib/promobot/ledger.db", cfg.Ledger.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Status.Listen)
}

// TestLoad_InvalidYAML verifies a malformed file is an error
func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "tracker: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// TestLoad_InvalidDuration verifies bad durations are reported with a line
func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "bot:\n  scan_interval: \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "invalid duration: soon")
}

// TestLoad_EnvOverrides verifies secrets and the ledger dsn come from the
// environment when set
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvTrackerPassword, "from-env")
	t.Setenv(EnvQBittorrentPassword, "qb-secret")
	t.Setenv(EnvLedgerDSN, "/tmp/ledger.db")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Tracker.Username, "unset variables leave the file value")
	assert.Equal(t, "from-env", cfg.Tracker.Password)
	assert.Equal(t, "admin", cfg.QBittorrent.Username)
	assert.Equal(t, "qb-secret", cfg.QBittorrent.Password)
	assert.Equal(t, "/tmp/ledger.db", cfg.Ledger.DSN)
}

// TestLoadDotEnv verifies .env values reach Load without overriding the
// environment
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := EnvTrackerUsername + "=dotenv-user\n" + EnvTrackerPassword + "=dotenv-pass\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	// Registers a restore, then unsets so the .env value applies
	t.Setenv(EnvTrackerUsername, "")
	require.NoError(t, os.Unsetenv(EnvTrackerUsername))
	t.Setenv(EnvTrackerPassword, "already-set")

	require.NoError(t, LoadDotEnv(envPath))

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "dotenv-user", cfg.Tracker.Username)
	assert.Equal(t, "already-set", cfg.Tracker.Password)
}

// TestLoadDotEnv_Missing verifies a missing .env file is ignored
func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

// TestValidate verifies required fields and limits
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *FileConfig)
		wantErr string
	}{
		{
			name:    "missing tracker url",
			modify:  func(c *FileConfig) { c.Tracker.URL = " " },
			wantErr: "tracker.url is required",
		},
		{
			name:    "missing qbittorrent url",
			modify:  func(c *FileConfig) { c.QBittorrent.URL = "" },
			wantErr: "qbittorrent.url is required",
		},
		{
			name:    "zero max item count",
			modify:  func(c *FileConfig) { c.Bot.MaxItemCount = 0 },
			wantErr: "bot.max_item_count must be positive",
		},
		{
			name:    "negative size limit",
			modify:  func(c *FileConfig) { c.Bot.MinFreeDiskGiB = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "unknown promotion",
			modify:  func(c *FileConfig) { c.Bot.Promotions = []string{"free", "platinum"} },
			wantErr: `unknown promotion "platinum"`,
		},
		{
			name:    "unknown ledger type",
			modify:  func(c *FileConfig) { c.Ledger.Type = "postgres" },
			wantErr: `unknown ledger.type "postgres"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Tracker.URL = "https://tracker.example"
			cfg.QBittorrent.URL = "http://localhost:8080"
			require.NoError(t, cfg.Validate())

			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestValidate_ReportsAll verifies every problem is joined into one error
func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Bot.MaxItemCount = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker.url")
	assert.Contains(t, err.Error(), "qbittorrent.url")
	assert.Contains(t, err.Error(), "max_item_count")
}

// TestCapacityConfig verifies GiB limits are converted to bytes
func TestCapacityConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	cc := cfg.CapacityConfig()
	assert.Equal(t, 15, cc.MaxItemCount)
	assert.Equal(t, 500*capacity.GiB, cc.MaxTotalSizeBytes)
	assert.Equal(t, 2*capacity.GiB, cc.ItemSizeFloorBytes)
	assert.Equal(t, 1024*capacity.GiB, cc.ItemSizeCeilingBytes)
	assert.Equal(t, 40*capacity.GiB, cc.MinFreeDiskBytes)
	assert.Equal(t, capacity.DefaultProtectedUploadRate, cc.ProtectedUploadRate)
}

// TestOrchestrator verifies the policy carries promotions and overrides
func TestOrchestrator(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	bc, err := cfg.Orchestrator()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, bc.ScanInterval)
	assert.Equal(t, 24*time.Hour, bc.DiskCheckInterval)
	assert.Equal(t, 30, bc.Policy.StrictThreshold)
	assert.Len(t, bc.Policy.Promotions, 2)
	assert.True(t, bc.Policy.Promotions[listing.PromotionFree])
	assert.True(t, bc.Policy.Promotions[listing.PromotionDoubleUpload])
	assert.Equal(t, 2*capacity.GiB, bc.Policy.FloorBytes)
}

// TestOrchestrator_DefaultPromotions verifies an empty list keeps the policy
// defaults
func TestOrchestrator_DefaultPromotions(t *testing.T) {
	bc, err := Default().Orchestrator()
	require.NoError(t, err)

	assert.True(t, bc.Policy.Promotions[listing.PromotionFree])
	assert.True(t, bc.Policy.Promotions[listing.PromotionFreeDoubleUpload])
	assert.Equal(t, 20, bc.Policy.StrictThreshold)
}

// TestSessionAndAgent verifies collaborator configs are copied through
func TestSessionAndAgent(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	sc := cfg.Session()
	assert.Equal(t, "https://tracker.example", sc.BaseURL)
	assert.Equal(t, "/var/lib/promobot/cookies.json", sc.CookiePath)
	assert.Equal(t, 10*time.Second, sc.Timeout)
	assert.Equal(t, 3, sc.LoginAttempts)

	qc := cfg.Agent()
	assert.Equal(t, "http://localhost:8080", qc.BaseURL)
	assert.Equal(t, "admin", qc.Username)
	assert.Equal(t, "/downloads", qc.SavePath)
	assert.Equal(t, "promobot", qc.Tag)
	assert.Equal(t, 2*time.Minute, qc.CacheTTL)
	assert.Equal(t, time.Second, qc.AddSettle)
	assert.Equal(t, 10, qc.LoginAttempts)
	assert.Equal(t, 3*time.Second, qc.LoginRetryInterval)
}

// TestParseDuration verifies Go syntax plus day and week suffixes
func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"2d", 48 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{" 3d ", 72 * time.Hour, false},
		{"1.5d", 0, true},
		{"d", 0, true},
		{"2x", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}
