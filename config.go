package logincapture

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Constants defining the fleet protocol and defaults
const (
	RedisPrefix      = "ISOAUTOMATE:"
	WorkersSet       = RedisPrefix + "workers"
	DefaultRedisHost = "localhost"
	DefaultRedisPort = "6379"
	DefaultRedisDB   = "0"

	EnvPrefix          = "LOGINCAPTURE_"
	DefaultHomeURL     = "https://www.netflix.com"
	DefaultLoginURL    = "https://www.netflix.com/login"
	DefaultTimeZone    = "Asia/Kolkata"
	DefaultNATSSubject = "logincapture.events"
	DefaultFilePrefix  = "netflix"
)

// Engine names accepted in Config.Engines.
const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
	EngineRod        = "rod"
	EngineFleet      = "fleet"
)

// Config holds everything a Client needs. Zero timeouts fall back to the
// defaults in DefaultConfig; a zero settle duration means no wait.
type Config struct {
	HomeURL  string
	LoginURL string

	Headless     bool
	WindowWidth  int
	WindowHeight int
	ChromePath   string
	// Engines lists launch tactics in the order they are attempted.
	Engines []string

	AcquireTimeout    time.Duration
	NavigationTimeout time.Duration

	HomeSettle      time.Duration
	RevealSettle    time.Duration
	PostLoginSettle time.Duration
	ProfileSettle   time.Duration

	TimeZone    string
	CatalogFile string
	FilePrefix  string

	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	BrowserType   string

	NATSURL     string
	NATSSubject string

	EnvFile string // Custom path to .env file
}

// DefaultConfig mirrors the constants used by the hosted capture tool.
func DefaultConfig() Config {
	return Config{
		HomeURL:           DefaultHomeURL,
		LoginURL:          DefaultLoginURL,
		Headless:          true,
		WindowWidth:       1920,
		WindowHeight:      1080,
		Engines:           []string{EnginePlaywright, EngineChromedp, EngineRod, EngineFleet},
		AcquireTimeout:    90 * time.Second,
		NavigationTimeout: 30 * time.Second,
		HomeSettle:        3 * time.Second,
		RevealSettle:      time.Second,
		PostLoginSettle:   10 * time.Second,
		ProfileSettle:     5 * time.Second,
		TimeZone:          DefaultTimeZone,
		FilePrefix:        DefaultFilePrefix,
		BrowserType:       "chrome",
		NATSSubject:       DefaultNATSSubject,
	}
}

// LoadConfig reads an optional .env file and overlays environment variables
// on DefaultConfig. A missing env file is not an error.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load() // Load .env
	}

	cfg := DefaultConfig()
	cfg.EnvFile = envFile
	cfg.HomeURL = getEnv(EnvPrefix+"HOME_URL", cfg.HomeURL)
	cfg.LoginURL = getEnv(EnvPrefix+"LOGIN_URL", cfg.LoginURL)
	cfg.ChromePath = getEnv(EnvPrefix+"CHROME_PATH", cfg.ChromePath)
	cfg.TimeZone = getEnv(EnvPrefix+"TIMEZONE", cfg.TimeZone)
	cfg.CatalogFile = getEnv(EnvPrefix+"CATALOG_FILE", cfg.CatalogFile)
	cfg.FilePrefix = getEnv(EnvPrefix+"FILE_PREFIX", cfg.FilePrefix)
	cfg.BrowserType = getEnv(EnvPrefix+"BROWSER_TYPE", cfg.BrowserType)
	cfg.NATSURL = getEnv(EnvPrefix+"NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = getEnv(EnvPrefix+"NATS_SUBJECT", cfg.NATSSubject)

	if v := os.Getenv(EnvPrefix + "ENGINES"); v != "" {
		cfg.Engines = splitList(v)
	}

	var err error
	if cfg.Headless, err = envBool(EnvPrefix+"HEADLESS", cfg.Headless); err != nil {
		return Config{}, err
	}
	if cfg.WindowWidth, err = envInt(EnvPrefix+"WINDOW_WIDTH", cfg.WindowWidth); err != nil {
		return Config{}, err
	}
	if cfg.WindowHeight, err = envInt(EnvPrefix+"WINDOW_HEIGHT", cfg.WindowHeight); err != nil {
		return Config{}, err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACQUIRE_TIMEOUT", &cfg.AcquireTimeout},
		{"NAVIGATION_TIMEOUT", &cfg.NavigationTimeout},
		{"HOME_SETTLE", &cfg.HomeSettle},
		{"REVEAL_SETTLE", &cfg.RevealSettle},
		{"POST_LOGIN_SETTLE", &cfg.PostLoginSettle},
		{"PROFILE_SETTLE", &cfg.ProfileSettle},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(EnvPrefix+d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	// Fleet settings keep the unprefixed names the worker fleet uses.
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = envInt("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// FleetEnabled reports whether a Redis address is configured.
func (c Config) FleetEnabled() bool {
	return c.RedisURL != "" || c.RedisHost != ""
}

// Location resolves TimeZone, falling back to a fixed IST offset.
func (c Config) Location() *time.Location {
	name := c.TimeZone
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HomeURL == "" {
		c.HomeURL = d.HomeURL
	}
	if c.LoginURL == "" {
		c.LoginURL = d.LoginURL
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = d.WindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = d.WindowHeight
	}
	if len(c.Engines) == 0 {
		c.Engines = d.Engines
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	if c.TimeZone == "" {
		c.TimeZone = d.TimeZone
	}
	if c.FilePrefix == "" {
		c.FilePrefix = d.FilePrefix
	}
	if c.BrowserType == "" {
		c.BrowserType = d.BrowserType
	}
	if c.NATSSubject == "" {
		c.NATSSubject = d.NATSSubject
	}
	return c
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
