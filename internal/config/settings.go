package config

import (
	"time"

	"fyne.io/fyne/v2"

	"github.com/ytget/dlsync/internal/model"
)

// Quality presets sent with new downloads
type QualityPreset string

const (
	QualityBest   QualityPreset = "best"
	QualityMedium QualityPreset = "medium"
	QualityAudio  QualityPreset = "audio"
)

// Valid reports whether the preset is one of the known values
func (q QualityPreset) Valid() bool {
	switch q {
	case QualityBest, QualityMedium, QualityAudio:
		return true
	default:
		return false
	}
}

// Settings keys for Fyne preferences
const (
	KeyServerURL         = "server_url"
	KeyTransportMode     = "transport_mode"
	KeyPollInterval      = "poll_interval_ms"
	KeyReconnectInterval = "reconnect_interval_ms"
	KeyLivenessInterval  = "liveness_interval_ms"
	KeyMaxAttempts       = "max_reconnect_attempts"
	KeyDefaultFormat     = "default_format"
	KeyQualityPreset     = "quality_preset"
	KeyLanguage          = "app_language"
	KeyHistoryPath       = "history_path"
	KeyExpandPlaylists   = "expand_playlists"
)

// Default values
const (
	DefaultQualityPreset = QualityMedium
	DefaultLanguage      = "system"
)

// Settings manages application configuration
type Settings struct {
	app fyne.App
}

// NewSettings creates a new settings manager
func NewSettings(app fyne.App) *Settings {
	return &Settings{app: app}
}

// GetServerURL returns the base URL of the download service
func (s *Settings) GetServerURL() string {
	v := s.app.Preferences().String(KeyServerURL)
	if v == "" {
		s.SetServerURL(DefaultServerURL)
		return DefaultServerURL
	}
	return v
}

// SetServerURL sets the base URL of the download service
func (s *Settings) SetServerURL(v string) {
	if v == "" {
		v = DefaultServerURL
	}
	s.app.Preferences().SetString(KeyServerURL, v)
}

// GetTransportMode returns polling or websocket
func (s *Settings) GetTransportMode() string {
	mode := s.app.Preferences().String(KeyTransportMode)
	if mode != model.ModePolling && mode != model.ModeWebSocket {
		s.SetTransportMode(DefaultMode)
		return DefaultMode
	}
	return mode
}

// SetTransportMode sets the transport mode; unknown values fall back to polling
func (s *Settings) SetTransportMode(mode string) {
	if mode != model.ModePolling && mode != model.ModeWebSocket {
		mode = DefaultMode
	}
	s.app.Preferences().SetString(KeyTransportMode, mode)
}

// GetPollInterval returns the status polling interval
func (s *Settings) GetPollInterval() time.Duration {
	return s.duration(KeyPollInterval, DefaultPollInterval, MinPollInterval, MaxPollInterval)
}

// SetPollInterval sets the status polling interval
func (s *Settings) SetPollInterval(d time.Duration) {
	s.setDuration(KeyPollInterval, d, DefaultPollInterval, MinPollInterval, MaxPollInterval)
}

// GetReconnectInterval returns the delay between reconnection attempts
func (s *Settings) GetReconnectInterval() time.Duration {
	return s.duration(KeyReconnectInterval, DefaultReconnectInterval, MinReconnectInterval, MaxReconnectInterval)
}

// SetReconnectInterval sets the delay between reconnection attempts
func (s *Settings) SetReconnectInterval(d time.Duration) {
	s.setDuration(KeyReconnectInterval, d, DefaultReconnectInterval, MinReconnectInterval, MaxReconnectInterval)
}

// GetLivenessInterval returns the period of the connection liveness check
func (s *Settings) GetLivenessInterval() time.Duration {
	return s.duration(KeyLivenessInterval, DefaultLivenessInterval, MinLivenessInterval, MaxLivenessInterval)
}

// SetLivenessInterval sets the period of the connection liveness check
func (s *Settings) SetLivenessInterval(d time.Duration) {
	s.setDuration(KeyLivenessInterval, d, DefaultLivenessInterval, MinLivenessInterval, MaxLivenessInterval)
}

// GetMaxReconnectAttempts returns how many failures are tolerated before giving up
func (s *Settings) GetMaxReconnectAttempts() int {
	value := s.app.Preferences().Int(KeyMaxAttempts)
	if value <= 0 {
		s.SetMaxReconnectAttempts(DefaultMaxReconnectAttempts)
		return DefaultMaxReconnectAttempts
	}
	return value
}

// SetMaxReconnectAttempts sets how many failures are tolerated before giving up
func (s *Settings) SetMaxReconnectAttempts(count int) {
	if count < 1 {
		count = 1
	}
	if count > MaxReconnectAttempts {
		count = MaxReconnectAttempts
	}
	s.app.Preferences().SetInt(KeyMaxAttempts, count)
}

// GetDefaultFormat returns the container format requested for new downloads
func (s *Settings) GetDefaultFormat() string {
	return s.app.Preferences().StringWithFallback(KeyDefaultFormat, DefaultFormat)
}

// SetDefaultFormat sets the container format requested for new downloads
func (s *Settings) SetDefaultFormat(format string) {
	if format == "" {
		format = DefaultFormat
	}
	s.app.Preferences().SetString(KeyDefaultFormat, format)
}

// GetQualityPreset returns the configured quality preset
func (s *Settings) GetQualityPreset() QualityPreset {
	preset := QualityPreset(s.app.Preferences().String(KeyQualityPreset))
	if !preset.Valid() {
		s.SetQualityPreset(DefaultQualityPreset)
		return DefaultQualityPreset
	}
	return preset
}

// SetQualityPreset sets the quality preset
func (s *Settings) SetQualityPreset(preset QualityPreset) {
	if !preset.Valid() {
		preset = DefaultQualityPreset
	}
	s.app.Preferences().SetString(KeyQualityPreset, string(preset))
}

// GetQualityPresetOptions returns available quality preset options
func (s *Settings) GetQualityPresetOptions() []QualityPreset {
	return []QualityPreset{QualityBest, QualityMedium, QualityAudio}
}

// GetLanguage returns the configured language
func (s *Settings) GetLanguage() string {
	lang := s.app.Preferences().String(KeyLanguage)
	if lang == "" {
		s.SetLanguage(DefaultLanguage)
		return DefaultLanguage
	}
	return lang
}

// SetLanguage sets the application language
func (s *Settings) SetLanguage(lang string) {
	s.app.Preferences().SetString(KeyLanguage, lang)
}

// GetLanguageOptions returns available language options
func (s *Settings) GetLanguageOptions() map[string]string {
	return map[string]string{
		"system": "System Default",
		"en":     "English",
		"ru":     "Русский",
		"zh":     "中文",
	}
}

// GetHistoryPath returns the location of the local history database
func (s *Settings) GetHistoryPath() string {
	path := s.app.Preferences().String(KeyHistoryPath)
	if path == "" {
		path = DefaultHistoryPath()
		s.SetHistoryPath(path)
	}
	return path
}

// SetHistoryPath sets the location of the local history database
func (s *Settings) SetHistoryPath(path string) {
	s.app.Preferences().SetString(KeyHistoryPath, path)
}

// GetExpandPlaylists returns whether playlist URLs are split into videos before submission
func (s *Settings) GetExpandPlaylists() bool {
	return s.app.Preferences().BoolWithFallback(KeyExpandPlaylists, DefaultExpandPlaylists)
}

// SetExpandPlaylists sets whether playlist URLs are split into videos before submission
func (s *Settings) SetExpandPlaylists(expand bool) {
	s.app.Preferences().SetBool(KeyExpandPlaylists, expand)
}

// Options resolves the stored preferences into client options
func (s *Settings) Options() (Options, error) {
	return Options{
		ServerURL:            s.GetServerURL(),
		Mode:                 s.GetTransportMode(),
		PollInterval:         s.GetPollInterval(),
		ReconnectInterval:    s.GetReconnectInterval(),
		LivenessInterval:     s.GetLivenessInterval(),
		MaxReconnectAttempts: s.GetMaxReconnectAttempts(),
		RequestTimeout:       DefaultRequestTimeout,
		Format:               s.GetDefaultFormat(),
		Quality:              s.GetQualityPreset(),
		HistoryPath:          s.GetHistoryPath(),
		ExpandPlaylists:      s.GetExpandPlaylists(),
	}.Normalize()
}

func (s *Settings) duration(key string, def, lo, hi time.Duration) time.Duration {
	ms := s.app.Preferences().Int(key)
	if ms <= 0 {
		s.setDuration(key, def, def, lo, hi)
		return def
	}
	return clampDuration(time.Duration(ms)*time.Millisecond, def, lo, hi)
}

func (s *Settings) setDuration(key string, d, def, lo, hi time.Duration) {
	d = clampDuration(d, def, lo, hi)
	s.app.Preferences().SetInt(key, int(d/time.Millisecond))
}
