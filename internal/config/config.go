package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tab service.
type Config struct {
	// CDP connection settings. EmbeddedBrowser makes chromedp start and own
	// the browser process instead of attaching to CDPAddress:CDPPort.
	CDPAddress      string
	CDPPort         int
	EmbeddedBrowser bool
	LaunchBrowser   bool
	ChromiumPath    string
	ProfileDir      string
	Headless        bool

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Tab bookkeeping
	MaxTabs               int
	HomePage              string
	RestoreAllTabs        bool
	IncognitoRetention    time.Duration
	AutosaveInterval      time.Duration
	BackgroundLoadTimeout time.Duration
	DesktopUserAgent      string
	OpTimeout             time.Duration

	// Thumbnails
	CaptureThumbnails bool
	ThumbnailWidth    int
	ThumbnailHeight   int
	ThumbnailRate     float64

	// Storage
	StateDir      string
	ThumbnailDir  string
	JournalDir    string
	BookmarksFile string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:            getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:               getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		EmbeddedBrowser:       getEnvBoolOrDefault("EMBEDDED_BROWSER", false),
		LaunchBrowser:         getEnvBoolOrDefault("LAUNCH_BROWSER", false),
		ChromiumPath:          getEnvOrDefault("CHROMIUM_PATH", ""),
		ProfileDir:            getEnvOrDefault("BROWSER_PROFILE_DIR", "./browser_profile"),
		Headless:              getEnvBoolOrDefault("HEADLESS", true),
		BindAddr:              getEnvOrDefault("BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:        getEnvListOrDefault("BIND_ADDR_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:      getEnvBoolOrDefault("BIND_ADDR_AUTO_FALLBACK", true),
		MaxTabs:               getEnvIntOrDefault("MAX_TABS", 16),
		HomePage:              getEnvOrDefault("HOME_PAGE", "about:blank"),
		RestoreAllTabs:        getEnvBoolOrDefault("RESTORE_ALL_TABS", false),
		IncognitoRetention:    getEnvDurationOrDefault("INCOGNITO_RETENTION", 24*time.Hour),
		AutosaveInterval:      getEnvDurationOrDefault("AUTOSAVE_INTERVAL", 30*time.Second),
		BackgroundLoadTimeout: getEnvDurationOrDefault("BACKGROUND_LOAD_TIMEOUT", 5*time.Minute),
		DesktopUserAgent:      getEnvOrDefault("DESKTOP_USER_AGENT", defaultDesktopUserAgent),
		OpTimeout:             getEnvDurationOrDefault("OP_TIMEOUT", 15*time.Second),
		CaptureThumbnails:     getEnvBoolOrDefault("CAPTURE_THUMBNAILS", true),
		ThumbnailWidth:        getEnvIntOrDefault("THUMBNAIL_WIDTH", 240),
		ThumbnailHeight:       getEnvIntOrDefault("THUMBNAIL_HEIGHT", 160),
		ThumbnailRate:         getEnvFloatOrDefault("THUMBNAIL_RATE", 2),
		StateDir:              getEnvOrDefault("STATE_DIR", "./state"),
		ThumbnailDir:          getEnvOrDefault("THUMBNAIL_DIR", "./state/thumbnails"),
		JournalDir:            getEnvOrDefault("JOURNAL_DIR", "./state/journal"),
		BookmarksFile:         getEnvOrDefault("BOOKMARKS_FILE", "./state/bookmarks.json"),
		LogLevel:              strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFile:               getEnvOrDefault("LOG_FILE", "logs/tabkeeper.log"),
	}

	if cfg.MaxTabs < 1 {
		return nil, fmt.Errorf("MAX_TABS must be at least 1, got %d", cfg.MaxTabs)
	}
	if cfg.OpTimeout < time.Second {
		cfg.OpTimeout = time.Second
	}
	if cfg.ThumbnailRate <= 0 {
		cfg.ThumbnailRate = 1
	}
	return cfg, nil
}

const defaultDesktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
