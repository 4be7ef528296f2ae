package ui

import "github.com/ytget/dlsync/internal/model"

// Localization manages UI text translations
type Localization struct {
	currentLanguage string
	texts           map[string]map[string]string
}

// Text keys for localization
const (
	KeyAppTitle          = "app_title"
	KeyDownload          = "download"
	KeyCancel            = "cancel"
	KeySettings          = "settings"
	KeyFile              = "file"
	KeyLanguage          = "language"
	KeyConnect           = "connect"
	KeyDisconnect        = "disconnect"
	KeyRefresh           = "refresh"
	KeyCopyURL           = "copy_url"
	KeyActive            = "active"
	KeyRecent            = "recent"
	KeyEnterURL          = "enter_url"
	KeyInvalidURL        = "invalid_url"
	KeyPleaseEnterURL    = "please_enter_url"
	KeySubmitting        = "submitting"
	KeyTaskAdded         = "task_added"
	KeyPlaylistAdded     = "playlist_added"
	KeySubmitFailed      = "submit_failed"
	KeyCancelFailed      = "cancel_failed"
	KeyDownloadCompleted = "download_completed"
	KeyDownloadFailed    = "download_failed"
	KeyServerMessage     = "server_message"
	KeyURLCopied         = "url_copied"

	KeyStateConnected    = "state_connected"
	KeyStateConnecting   = "state_connecting"
	KeyStateDisconnected = "state_disconnected"
	KeyStateError        = "state_error"

	KeyServerURL         = "server_url"
	KeyTransportMode     = "transport_mode"
	KeyPollInterval      = "poll_interval"
	KeyReconnectInterval = "reconnect_interval"
	KeyMaxAttempts       = "max_attempts"
	KeyFormat            = "format"
	KeyQualityPreset     = "quality_preset"
	KeyExpandPlaylists   = "expand_playlists"
	KeySave              = "save"
	KeySettingsSaved     = "settings_saved"
)

// NewLocalization creates a new localization manager
func NewLocalization() *Localization {
	l := &Localization{
		currentLanguage: "en",
		texts:           make(map[string]map[string]string),
	}

	l.initializeTexts()
	return l
}

// SetLanguage sets the current language
func (l *Localization) SetLanguage(lang string) {
	if lang == "system" {
		lang = "en"
	}

	if _, exists := l.texts[lang]; exists {
		l.currentLanguage = lang
	}
}

// GetText returns localized text for the given key
func (l *Localization) GetText(key string) string {
	if texts, exists := l.texts[l.currentLanguage]; exists {
		if text, found := texts[key]; found {
			return text
		}
	}

	// Fallback to English
	if texts, exists := l.texts["en"]; exists {
		if text, found := texts[key]; found {
			return text
		}
	}

	return key
}

// GetCurrentLanguage returns the current language code
func (l *Localization) GetCurrentLanguage() string {
	return l.currentLanguage
}

// GetAvailableLanguages returns map of available languages with their display names
func (l *Localization) GetAvailableLanguages() map[string]string {
	return map[string]string{
		"en": "English",
		"ru": "Русский",
		"zh": "中文",
	}
}

// ConnectionText returns the localized name of a connection state
func (l *Localization) ConnectionText(state model.ConnectionState) string {
	switch state {
	case model.ConnectionConnected:
		return l.GetText(KeyStateConnected)
	case model.ConnectionConnecting:
		return l.GetText(KeyStateConnecting)
	case model.ConnectionError:
		return l.GetText(KeyStateError)
	default:
		return l.GetText(KeyStateDisconnected)
	}
}

// initializeTexts initializes all text translations
func (l *Localization) initializeTexts() {
	l.texts["en"] = map[string]string{
		KeyAppTitle:          "Download Sync",
		KeyDownload:          "Download",
		KeyCancel:            "Cancel",
		KeySettings:          "Settings",
		KeyFile:              "File",
		KeyLanguage:          "Language",
		KeyConnect:           "Connect",
		KeyDisconnect:        "Disconnect",
		KeyRefresh:           "Refresh",
		KeyCopyURL:           "URL",
		KeyActive:            "Active",
		KeyRecent:            "Recently finished",
		KeyEnterURL:          "Enter video or playlist URL (https://...)",
		KeyInvalidURL:        "Invalid URL",
		KeyPleaseEnterURL:    "Please enter a URL",
		KeySubmitting:        "Submitting...",
		KeyTaskAdded:         "Task added",
		KeyPlaylistAdded:     "Playlist added",
		KeySubmitFailed:      "Submission failed",
		KeyCancelFailed:      "Cancellation failed",
		KeyDownloadCompleted: "Download completed",
		KeyDownloadFailed:    "Download failed",
		KeyServerMessage:     "Server",
		KeyURLCopied:         "URL copied to clipboard",

		KeyStateConnected:    "Connected",
		KeyStateConnecting:   "Connecting...",
		KeyStateDisconnected: "Disconnected",
		KeyStateError:        "Connection error",

		KeyServerURL:         "Server URL",
		KeyTransportMode:     "Transport",
		KeyPollInterval:      "Poll interval (ms)",
		KeyReconnectInterval: "Reconnect interval (ms)",
		KeyMaxAttempts:       "Max reconnect attempts",
		KeyFormat:            "Format",
		KeyQualityPreset:     "Quality Preset",
		KeyExpandPlaylists:   "Split playlists into videos",
		KeySave:              "Save",
		KeySettingsSaved:     "Settings saved. Reconnect to apply.",
	}

	l.texts["ru"] = map[string]string{
		KeyAppTitle:          "Синхронизация загрузок",
		KeyDownload:          "Скачать",
		KeyCancel:            "Отмена",
		KeySettings:          "Настройки",
		KeyFile:              "Файл",
		KeyLanguage:          "Язык",
		KeyConnect:           "Подключить",
		KeyDisconnect:        "Отключить",
		KeyRefresh:           "Обновить",
		KeyCopyURL:           "URL",
		KeyActive:            "Активные",
		KeyRecent:            "Недавно завершённые",
		KeyEnterURL:          "Введите URL видео или плейлиста (https://...)",
		KeyInvalidURL:        "Неверный URL",
		KeyPleaseEnterURL:    "Пожалуйста, введите URL",
		KeySubmitting:        "Отправка...",
		KeyTaskAdded:         "Задача добавлена",
		KeyPlaylistAdded:     "Плейлист добавлен",
		KeySubmitFailed:      "Ошибка отправки",
		KeyCancelFailed:      "Ошибка отмены",
		KeyDownloadCompleted: "Загрузка завершена",
		KeyDownloadFailed:    "Ошибка загрузки",
		KeyServerMessage:     "Сервер",
		KeyURLCopied:         "URL скопирован",

		KeyStateConnected:    "Подключено",
		KeyStateConnecting:   "Подключение...",
		KeyStateDisconnected: "Отключено",
		KeyStateError:        "Ошибка соединения",

		KeyServerURL:         "Адрес сервера",
		KeyTransportMode:     "Транспорт",
		KeyPollInterval:      "Интервал опроса (мс)",
		KeyReconnectInterval: "Интервал переподключения (мс)",
		KeyMaxAttempts:       "Макс. попыток переподключения",
		KeyFormat:            "Формат",
		KeyQualityPreset:     "Предустановка качества",
		KeyExpandPlaylists:   "Разбивать плейлисты на видео",
		KeySave:              "Сохранить",
		KeySettingsSaved:     "Настройки сохранены. Переподключитесь, чтобы применить.",
	}

	l.texts["zh"] = map[string]string{
		KeyAppTitle:          "下载同步",
		KeyDownload:          "下载",
		KeyCancel:            "取消",
		KeySettings:          "设置",
		KeyFile:              "文件",
		KeyLanguage:          "语言",
		KeyConnect:           "连接",
		KeyDisconnect:        "断开",
		KeyRefresh:           "刷新",
		KeyCopyURL:           "链接",
		KeyActive:            "进行中",
		KeyRecent:            "最近完成",
		KeyEnterURL:          "输入视频或播放列表链接 (https://...)",
		KeyInvalidURL:        "无效的链接",
		KeyPleaseEnterURL:    "请输入链接",
		KeySubmitting:        "正在提交...",
		KeyTaskAdded:         "任务已添加",
		KeyPlaylistAdded:     "播放列表已添加",
		KeySubmitFailed:      "提交失败",
		KeyCancelFailed:      "取消失败",
		KeyDownloadCompleted: "下载完成",
		KeyDownloadFailed:    "下载失败",
		KeyServerMessage:     "服务器",
		KeyURLCopied:         "链接已复制",

		KeyStateConnected:    "已连接",
		KeyStateConnecting:   "正在连接...",
		KeyStateDisconnected: "未连接",
		KeyStateError:        "连接错误",

		KeyServerURL:         "服务器地址",
		KeyTransportMode:     "传输方式",
		KeyPollInterval:      "轮询间隔 (毫秒)",
		KeyReconnectInterval: "重连间隔 (毫秒)",
		KeyMaxAttempts:       "最大重连次数",
		KeyFormat:            "格式",
		KeyQualityPreset:     "质量预设",
		KeyExpandPlaylists:   "将播放列表拆分为视频",
		KeySave:              "保存",
		KeySettingsSaved:     "设置已保存，重新连接后生效。",
	}
}
