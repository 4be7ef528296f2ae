package config

import (
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"github.com/ytget/dlsync/internal/model"
)

func TestNewSettings(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app)

	if settings.app != app {
		t.Error("Settings app reference should match provided app")
	}
}

func TestServerURL(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if got := settings.GetServerURL(); got != DefaultServerURL {
		t.Errorf("Expected default server url %s, got %s", DefaultServerURL, got)
	}

	settings.SetServerURL("https://dl.example.com")
	if got := settings.GetServerURL(); got != "https://dl.example.com" {
		t.Errorf("Expected https://dl.example.com, got %s", got)
	}
}

func TestTransportMode(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if got := settings.GetTransportMode(); got != model.ModePolling {
		t.Errorf("Expected default mode %s, got %s", model.ModePolling, got)
	}

	settings.SetTransportMode(model.ModeWebSocket)
	if got := settings.GetTransportMode(); got != model.ModeWebSocket {
		t.Errorf("Expected %s, got %s", model.ModeWebSocket, got)
	}

	settings.SetTransportMode("carrier-pigeon")
	if got := settings.GetTransportMode(); got != model.ModePolling {
		t.Errorf("Expected unknown mode to fall back to polling, got %s", got)
	}
}

func TestIntervals(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if got := settings.GetPollInterval(); got != DefaultPollInterval {
		t.Errorf("Expected default poll interval %v, got %v", DefaultPollInterval, got)
	}
	if got := settings.GetReconnectInterval(); got != DefaultReconnectInterval {
		t.Errorf("Expected default reconnect interval %v, got %v", DefaultReconnectInterval, got)
	}
	if got := settings.GetLivenessInterval(); got != DefaultLivenessInterval {
		t.Errorf("Expected default liveness interval %v, got %v", DefaultLivenessInterval, got)
	}

	settings.SetPollInterval(1500 * time.Millisecond)
	if got := settings.GetPollInterval(); got != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s, got %v", got)
	}

	settings.SetPollInterval(10 * time.Millisecond) // Should be clamped to the minimum
	if got := settings.GetPollInterval(); got != MinPollInterval {
		t.Errorf("Expected poll interval clamped to %v, got %v", MinPollInterval, got)
	}

	settings.SetReconnectInterval(time.Hour) // Should be clamped to the maximum
	if got := settings.GetReconnectInterval(); got != MaxReconnectInterval {
		t.Errorf("Expected reconnect interval clamped to %v, got %v", MaxReconnectInterval, got)
	}
}

func TestMaxReconnectAttempts(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if got := settings.GetMaxReconnectAttempts(); got != DefaultMaxReconnectAttempts {
		t.Errorf("Expected default max attempts %d, got %d", DefaultMaxReconnectAttempts, got)
	}

	settings.SetMaxReconnectAttempts(0) // Should be clamped to 1
	if settings.GetMaxReconnectAttempts() != 1 {
		t.Error("Max attempts should be clamped to minimum 1")
	}

	settings.SetMaxReconnectAttempts(100)
	if settings.GetMaxReconnectAttempts() != MaxReconnectAttempts {
		t.Errorf("Max attempts should be clamped to maximum %d", MaxReconnectAttempts)
	}
}

func TestQualityPreset(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if preset := settings.GetQualityPreset(); preset != DefaultQualityPreset {
		t.Errorf("Expected default quality preset %s, got %s", DefaultQualityPreset, preset)
	}

	settings.SetQualityPreset(QualityAudio)
	if preset := settings.GetQualityPreset(); preset != QualityAudio {
		t.Errorf("Expected quality preset %s, got %s", QualityAudio, preset)
	}

	settings.SetQualityPreset("ultra")
	if preset := settings.GetQualityPreset(); preset != DefaultQualityPreset {
		t.Errorf("Expected unknown preset to fall back to %s, got %s", DefaultQualityPreset, preset)
	}

	if len(settings.GetQualityPresetOptions()) != 3 {
		t.Errorf("Expected 3 quality options, got %d", len(settings.GetQualityPresetOptions()))
	}
}

func TestLanguage(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if lang := settings.GetLanguage(); lang != DefaultLanguage {
		t.Errorf("Expected default language %s, got %s", DefaultLanguage, lang)
	}

	settings.SetLanguage("ru")
	if lang := settings.GetLanguage(); lang != "ru" {
		t.Errorf("Expected language ru, got %s", lang)
	}

	options := settings.GetLanguageOptions()
	for _, lang := range []string{"system", "en", "ru", "zh"} {
		if _, exists := options[lang]; !exists {
			t.Errorf("Expected language option %s to exist", lang)
		}
	}
}

func TestHistoryPathAndPlaylists(t *testing.T) {
	settings := NewSettings(test.NewApp())

	if settings.GetHistoryPath() == "" {
		t.Error("History path should not be empty")
	}
	settings.SetHistoryPath("/data/history.db")
	if got := settings.GetHistoryPath(); got != "/data/history.db" {
		t.Errorf("Expected /data/history.db, got %s", got)
	}

	if !settings.GetExpandPlaylists() {
		t.Error("Expected playlist expansion to be enabled by default")
	}
	settings.SetExpandPlaylists(false)
	if settings.GetExpandPlaylists() {
		t.Error("Expected playlist expansion to be disabled")
	}
}

func TestSettingsOptions(t *testing.T) {
	settings := NewSettings(test.NewApp())
	settings.SetServerURL("https://dl.example.com/")
	settings.SetMaxReconnectAttempts(3)

	opts, err := settings.Options()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if opts.ServerURL != "https://dl.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", opts.ServerURL)
	}
	if opts.MaxReconnectAttempts != 3 || opts.PollInterval != DefaultPollInterval {
		t.Errorf("Unexpected options: %+v", opts)
	}
}
