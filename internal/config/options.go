package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ytget/dlsync/internal/model"
)

// Environment variables read by LoadOptions
const (
	EnvServerURL         = "DLSYNC_SERVER_URL"
	EnvMode              = "DLSYNC_MODE"
	EnvPollInterval      = "DLSYNC_POLL_INTERVAL"
	EnvReconnectInterval = "DLSYNC_RECONNECT_INTERVAL"
	EnvLivenessInterval  = "DLSYNC_LIVENESS_INTERVAL"
	EnvMaxAttempts       = "DLSYNC_MAX_RECONNECT_ATTEMPTS"
	EnvRequestTimeout    = "DLSYNC_REQUEST_TIMEOUT"
	EnvFormat            = "DLSYNC_FORMAT"
	EnvQuality           = "DLSYNC_QUALITY"
	EnvHistoryPath       = "DLSYNC_HISTORY_PATH"
	EnvExpandPlaylists   = "DLSYNC_EXPAND_PLAYLISTS"
)

// Defaults shared by the desktop settings and the headless options
const (
	DefaultServerURL            = "http://127.0.0.1:8000"
	DefaultMode                 = model.ModePolling
	DefaultPollInterval         = 2000 * time.Millisecond
	DefaultReconnectInterval    = 3000 * time.Millisecond
	DefaultLivenessInterval     = 5000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
	DefaultRequestTimeout       = 10 * time.Second
	DefaultFormat               = "mp4"
	DefaultExpandPlaylists      = true
)

// Bounds applied by Normalize and by the settings setters
const (
	MinPollInterval      = 500 * time.Millisecond
	MaxPollInterval      = time.Minute
	MinReconnectInterval = 500 * time.Millisecond
	MaxReconnectInterval = time.Minute
	MinLivenessInterval  = time.Second
	MaxLivenessInterval  = 2 * time.Minute
	MaxReconnectAttempts = 20
)

// Options is the resolved configuration of the synchronization client
type Options struct {
	ServerURL            string
	Mode                 string
	PollInterval         time.Duration
	ReconnectInterval    time.Duration
	LivenessInterval     time.Duration
	MaxReconnectAttempts int
	RequestTimeout       time.Duration
	Format               string
	Quality              QualityPreset
	HistoryPath          string
	ExpandPlaylists      bool
}

// DefaultOptions returns the built-in configuration
func DefaultOptions() Options {
	return Options{
		ServerURL:            DefaultServerURL,
		Mode:                 DefaultMode,
		PollInterval:         DefaultPollInterval,
		ReconnectInterval:    DefaultReconnectInterval,
		LivenessInterval:     DefaultLivenessInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		RequestTimeout:       DefaultRequestTimeout,
		Format:               DefaultFormat,
		Quality:              DefaultQualityPreset,
		HistoryPath:          DefaultHistoryPath(),
		ExpandPlaylists:      DefaultExpandPlaylists,
	}
}

// DefaultHistoryPath returns the per-user location of the history database
func DefaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dlsync", "history.db")
}

// LoadOptions reads .env files (default ".env" when present) and then the
// DLSYNC_* environment. Variables already set in the environment win over
// the files.
func LoadOptions(files ...string) (Options, error) {
	if err := loadDotEnv(files...); err != nil {
		return Options{}, err
	}

	opts := DefaultOptions()
	var errs []error

	if v := os.Getenv(EnvServerURL); v != "" {
		opts.ServerURL = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		opts.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvFormat); v != "" {
		opts.Format = v
	}
	if v := os.Getenv(EnvQuality); v != "" {
		opts.Quality = QualityPreset(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv(EnvHistoryPath); v != "" {
		opts.HistoryPath = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvPollInterval, &opts.PollInterval},
		{EnvReconnectInterval, &opts.ReconnectInterval},
		{EnvLivenessInterval, &opts.LivenessInterval},
		{EnvRequestTimeout, &opts.RequestTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.env, err))
			continue
		}
		*d.dst = parsed
	}

	if v := os.Getenv(EnvMaxAttempts); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxAttempts, err))
		} else {
			opts.MaxReconnectAttempts = n
		}
	}
	if v := os.Getenv(EnvExpandPlaylists); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvExpandPlaylists, err))
		} else {
			opts.ExpandPlaylists = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Options{}, err
	}
	return opts.Normalize()
}

func loadDotEnv(files ...string) error {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("env file %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ParseDuration accepts Go duration strings ("2s", "1500ms") and bare
// integers, which are taken as milliseconds
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Normalize validates the server URL and mode and clamps numeric values
// into their supported ranges
func (o Options) Normalize() (Options, error) {
	o.ServerURL = strings.TrimRight(strings.TrimSpace(o.ServerURL), "/")
	u, err := url.Parse(o.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Options{}, fmt.Errorf("invalid server url %q", o.ServerURL)
	}

	switch o.Mode {
	case model.ModePolling, model.ModeWebSocket:
	case "":
		o.Mode = DefaultMode
	default:
		return Options{}, fmt.Errorf("unknown transport mode %q", o.Mode)
	}

	if !o.Quality.Valid() {
		log.Printf("config: unknown quality preset %q, using %q", o.Quality, DefaultQualityPreset)
		o.Quality = DefaultQualityPreset
	}

	o.PollInterval = clampDuration(o.PollInterval, DefaultPollInterval, MinPollInterval, MaxPollInterval)
	o.ReconnectInterval = clampDuration(o.ReconnectInterval, DefaultReconnectInterval, MinReconnectInterval, MaxReconnectInterval)
	o.LivenessInterval = clampDuration(o.LivenessInterval, DefaultLivenessInterval, MinLivenessInterval, MaxLivenessInterval)
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	o.MaxReconnectAttempts = clampInt(o.MaxReconnectAttempts, DefaultMaxReconnectAttempts, 1, MaxReconnectAttempts)
	return o, nil
}

func clampDuration(v, def, lo, hi time.Duration) time.Duration {
	switch {
	case v <= 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func clampInt(v, def, lo, hi int) int {
	switch {
	case v <= 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
