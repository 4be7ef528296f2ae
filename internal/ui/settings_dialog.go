package ui

import (
	"sort"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/dlsync/internal/config"
	"github.com/ytget/dlsync/internal/model"
)

// SettingsDialog represents the settings configuration dialog
type SettingsDialog struct {
	settings     *config.Settings
	localization *Localization
	window       fyne.Window
	dialog       *dialog.ConfirmDialog
	onSaved      func()

	// UI components
	serverEntry    *widget.Entry
	modeSelect     *widget.Select
	pollEntry      *widget.Entry
	reconnectEntry *widget.Entry
	attemptsEntry  *widget.Entry
	formatEntry    *widget.Entry
	qualitySelect  *widget.Select
	expandCheck    *widget.Check
	languageSelect *widget.Select
}

// ShowSettingsDialog creates and shows the settings dialog. onSaved runs
// after the values were written to the preferences.
func ShowSettingsDialog(window fyne.Window, settings *config.Settings, localization *Localization, onSaved func()) {
	sd := &SettingsDialog{
		settings:     settings,
		localization: localization,
		window:       window,
		onSaved:      onSaved,
	}
	sd.createUI()
	sd.loadCurrentSettings()
	sd.dialog.Show()
}

// createUI creates the settings dialog UI
func (sd *SettingsDialog) createUI() {
	l := sd.localization

	sd.serverEntry = widget.NewEntry()
	sd.serverEntry.SetPlaceHolder(config.DefaultServerURL)

	sd.modeSelect = widget.NewSelect([]string{model.ModePolling, model.ModeWebSocket}, nil)

	sd.pollEntry = widget.NewEntry()
	sd.pollEntry.SetPlaceHolder(strconv.Itoa(int(config.DefaultPollInterval / time.Millisecond)))
	sd.reconnectEntry = widget.NewEntry()
	sd.reconnectEntry.SetPlaceHolder(strconv.Itoa(int(config.DefaultReconnectInterval / time.Millisecond)))
	sd.attemptsEntry = widget.NewEntry()
	sd.attemptsEntry.SetPlaceHolder("1-" + strconv.Itoa(config.MaxReconnectAttempts))

	sd.formatEntry = widget.NewEntry()
	sd.formatEntry.SetPlaceHolder(config.DefaultFormat)

	qualityOptions := []string{}
	for _, preset := range sd.settings.GetQualityPresetOptions() {
		qualityOptions = append(qualityOptions, string(preset))
	}
	sd.qualitySelect = widget.NewSelect(qualityOptions, nil)

	sd.expandCheck = widget.NewCheck(l.GetText(KeyExpandPlaylists), nil)

	languageOptions := []string{}
	for code := range sd.settings.GetLanguageOptions() {
		languageOptions = append(languageOptions, code)
	}
	sort.Strings(languageOptions)
	sd.languageSelect = widget.NewSelect(languageOptions, nil)

	form := widget.NewForm(
		widget.NewFormItem(l.GetText(KeyServerURL), sd.serverEntry),
		widget.NewFormItem(l.GetText(KeyTransportMode), sd.modeSelect),
		widget.NewFormItem(l.GetText(KeyPollInterval), sd.pollEntry),
		widget.NewFormItem(l.GetText(KeyReconnectInterval), sd.reconnectEntry),
		widget.NewFormItem(l.GetText(KeyMaxAttempts), sd.attemptsEntry),
		widget.NewFormItem(l.GetText(KeyFormat), sd.formatEntry),
		widget.NewFormItem(l.GetText(KeyQualityPreset), sd.qualitySelect),
		widget.NewFormItem("", sd.expandCheck),
		widget.NewFormItem(l.GetText(KeyLanguage), sd.languageSelect),
	)

	sd.dialog = dialog.NewCustomConfirm(
		l.GetText(KeySettings),
		l.GetText(KeySave),
		l.GetText(KeyCancel),
		container.NewPadded(form),
		sd.onSave,
		sd.window,
	)
	sd.dialog.Resize(fyne.NewSize(520, 420))
}

// loadCurrentSettings loads current settings into the UI
func (sd *SettingsDialog) loadCurrentSettings() {
	sd.serverEntry.SetText(sd.settings.GetServerURL())
	sd.modeSelect.SetSelected(sd.settings.GetTransportMode())
	sd.pollEntry.SetText(strconv.Itoa(int(sd.settings.GetPollInterval() / time.Millisecond)))
	sd.reconnectEntry.SetText(strconv.Itoa(int(sd.settings.GetReconnectInterval() / time.Millisecond)))
	sd.attemptsEntry.SetText(strconv.Itoa(sd.settings.GetMaxReconnectAttempts()))
	sd.formatEntry.SetText(sd.settings.GetDefaultFormat())
	sd.qualitySelect.SetSelected(string(sd.settings.GetQualityPreset()))
	sd.expandCheck.SetChecked(sd.settings.GetExpandPlaylists())
	sd.languageSelect.SetSelected(sd.settings.GetLanguage())
}

// onSave handles saving the settings
func (sd *SettingsDialog) onSave(confirmed bool) {
	if !confirmed {
		return
	}

	if sd.serverEntry.Text != "" {
		sd.settings.SetServerURL(sd.serverEntry.Text)
	}
	if sd.modeSelect.Selected != "" {
		sd.settings.SetTransportMode(sd.modeSelect.Selected)
	}
	if ms, err := config.ParseDuration(sd.pollEntry.Text); err == nil {
		sd.settings.SetPollInterval(ms)
	}
	if ms, err := config.ParseDuration(sd.reconnectEntry.Text); err == nil {
		sd.settings.SetReconnectInterval(ms)
	}
	if n, err := strconv.Atoi(sd.attemptsEntry.Text); err == nil {
		sd.settings.SetMaxReconnectAttempts(n)
	}
	sd.settings.SetDefaultFormat(sd.formatEntry.Text)
	if sd.qualitySelect.Selected != "" {
		sd.settings.SetQualityPreset(config.QualityPreset(sd.qualitySelect.Selected))
	}
	sd.settings.SetExpandPlaylists(sd.expandCheck.Checked)
	if sd.languageSelect.Selected != "" {
		sd.settings.SetLanguage(sd.languageSelect.Selected)
	}

	if sd.onSaved != nil {
		sd.onSaved()
	}
}
