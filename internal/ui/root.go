package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/dlsync/internal/bus"
	"github.com/ytget/dlsync/internal/config"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/tracker"
)

// maxSystemText caps server messages shown in the notification panel
const maxSystemText = 200

// RootUI represents the main UI structure
type RootUI struct {
	window       fyne.Window
	service      *tracker.Service
	settings     *config.Settings
	localization *Localization

	urlEntry     *widget.Entry
	downloadBtn  *widget.Button
	connectBtn   *widget.Button
	refreshBtn   *widget.Button
	stateLabel   *widget.Label
	activeHeader *widget.Label
	recentHeader *widget.Label
	activeList   *widget.List
	recentList   *widget.List

	// Notification panel
	notificationContainer *fyne.Container
	notificationLabel     *widget.Label
	notificationSpinner   *widget.ProgressBarInfinite
	notificationSeq       uint64 // touched on the UI thread only

	// written by bus handlers, read by list callbacks on the UI thread
	mu     sync.Mutex
	active []model.LocalTask
	recent []model.LocalTask
	state  model.ConnectionState

	unsubscribe []func()
}

// NewRootUI creates the main UI and subscribes it to the service bus
func NewRootUI(window fyne.Window, service *tracker.Service, settings *config.Settings) *RootUI {
	localization := NewLocalization()
	localization.SetLanguage(settings.GetLanguage())

	ui := &RootUI{
		window:       window,
		service:      service,
		settings:     settings,
		localization: localization,
		active:       service.Active(),
		recent:       service.Recent(),
		state:        service.State(),
	}

	window.SetTitle(localization.GetText(KeyAppTitle))
	ui.setupUI()

	b := service.Bus()
	ui.unsubscribe = append(ui.unsubscribe,
		b.Subscribe(bus.TopicTaskListChanged, ui.onTaskListChanged),
		b.Subscribe(bus.TopicConnectionStatusChanged, ui.onConnectionChanged),
		b.Subscribe(bus.TopicSystemStatus, ui.onSystemStatus),
		b.Subscribe(bus.TopicTaskRetired, ui.onTaskRetired),
	)
	return ui
}

// Close detaches the UI from the bus
func (ui *RootUI) Close() {
	for _, unsubscribe := range ui.unsubscribe {
		unsubscribe()
	}
	ui.unsubscribe = nil
}

// setupUI creates and arranges all UI components
func (ui *RootUI) setupUI() {
	ui.createMenu()

	ui.urlEntry = widget.NewEntry()
	ui.urlEntry.SetPlaceHolder(ui.localization.GetText(KeyEnterURL))
	ui.urlEntry.Validator = ui.validateURL
	ui.urlEntry.OnSubmitted = func(string) {
		ui.onDownloadClick()
	}

	ui.downloadBtn = widget.NewButton(ui.localization.GetText(KeyDownload), ui.onDownloadClick)
	ui.downloadBtn.Importance = widget.HighImportance

	settingsBtn := widget.NewButton(IconSettings, ui.onShowSettings)
	settingsBtn.Importance = widget.LowImportance

	topPanel := container.NewBorder(nil, nil, settingsBtn, ui.downloadBtn, ui.urlEntry)

	ui.notificationLabel = widget.NewLabel("")
	ui.notificationLabel.Truncation = fyne.TextTruncateEllipsis
	ui.notificationSpinner = widget.NewProgressBarInfinite()
	ui.notificationSpinner.Hide()
	closeBtn := widget.NewButton(IconClose, ui.hideNotification)
	closeBtn.Importance = widget.LowImportance
	ui.notificationContainer = container.NewBorder(nil, nil, ui.notificationSpinner, closeBtn, ui.notificationLabel)
	ui.notificationContainer.Hide()

	ui.stateLabel = widget.NewLabel("")
	ui.connectBtn = widget.NewButton("", ui.onConnectToggle)
	ui.refreshBtn = widget.NewButton(IconRefresh, ui.onRefresh)
	ui.refreshBtn.Importance = widget.LowImportance
	statusBar := container.NewBorder(nil, nil, nil, container.NewHBox(ui.refreshBtn, ui.connectBtn), ui.stateLabel)

	ui.activeHeader = widget.NewLabel("")
	ui.activeHeader.TextStyle = fyne.TextStyle{Bold: true}
	ui.activeList = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.active)
		},
		ui.createTaskItem,
		func(id widget.ListItemID, obj fyne.CanvasObject) { ui.updateTaskItem(id, obj, false) },
	)

	ui.recentHeader = widget.NewLabel("")
	ui.recentHeader.TextStyle = fyne.TextStyle{Bold: true}
	ui.recentList = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.recent)
		},
		ui.createTaskItem,
		func(id widget.ListItemID, obj fyne.CanvasObject) { ui.updateTaskItem(id, obj, true) },
	)
	recentBox := container.NewBorder(ui.recentHeader, nil, nil, nil, ui.recentList)

	split := container.NewVSplit(
		container.NewBorder(ui.activeHeader, nil, nil, nil, ui.activeList),
		recentBox,
	)
	split.Offset = 0.7

	content := container.NewBorder(
		container.NewVBox(topPanel, ui.notificationContainer, statusBar),
		nil,
		nil,
		nil,
		split,
	)
	ui.window.SetContent(content)
	ui.refreshUITexts()
}

// createMenu creates the application menu
func (ui *RootUI) createMenu() {
	settingsItem := fyne.NewMenuItem(ui.localization.GetText(KeySettings), ui.onShowSettings)

	languageMenu := fyne.NewMenu(ui.localization.GetText(KeyLanguage))
	for code, name := range ui.localization.GetAvailableLanguages() {
		langCode := code
		langItem := fyne.NewMenuItem(name, func() {
			ui.onLanguageChange(langCode)
		})
		langItem.Checked = ui.localization.GetCurrentLanguage() == code
		languageMenu.Items = append(languageMenu.Items, langItem)
	}

	ui.window.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu(ui.localization.GetText(KeyFile), settingsItem),
		languageMenu,
	))
}

// onLanguageChange handles language change
func (ui *RootUI) onLanguageChange(langCode string) {
	ui.localization.SetLanguage(langCode)
	ui.settings.SetLanguage(langCode)
	ui.refreshUITexts()
	ui.createMenu()
}

// refreshUITexts updates all UI texts with current language
func (ui *RootUI) refreshUITexts() {
	ui.window.SetTitle(ui.localization.GetText(KeyAppTitle))
	ui.urlEntry.SetPlaceHolder(ui.localization.GetText(KeyEnterURL))
	ui.downloadBtn.SetText(ui.localization.GetText(KeyDownload))
	ui.refreshBtn.SetText(IconRefresh + " " + ui.localization.GetText(KeyRefresh))
	ui.refreshConnection()
	ui.refreshLists()
}

// validateURL validates the entered URL
func (ui *RootUI) validateURL(input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	parsedURL, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	return nil
}

// onDownloadClick submits the entered URL in the background
func (ui *RootUI) onDownloadClick() {
	urlText := cleanText(ui.urlEntry.Text)
	if urlText == "" {
		ui.showNotification(ui.localization.GetText(KeyPleaseEnterURL), false)
		return
	}
	if err := ui.validateURL(urlText); err != nil {
		ui.showNotification(ui.localization.GetText(KeyInvalidURL)+": "+err.Error(), false)
		return
	}

	ui.downloadBtn.Disable()
	ui.showNotification(ui.localization.GetText(KeySubmitting), true)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), SubmitTimeout)
		defer cancel()
		sub, err := ui.service.Submit(ctx, urlText)

		fyne.Do(func() {
			ui.downloadBtn.Enable()
			switch {
			case sub == nil || len(sub.Tasks) == 0:
				log.Printf("ui: submit %s failed: %v", urlText, err)
				ui.showNotification(fmt.Sprintf("%s: %v", ui.localization.GetText(KeySubmitFailed), err), false)
				return
			case sub.Playlist != "":
				ui.showNotification(fmt.Sprintf("%s: %s (%d)", ui.localization.GetText(KeyPlaylistAdded), sub.Playlist, len(sub.Tasks)), false)
			default:
				ui.showNotification(ui.localization.GetText(KeyTaskAdded), false)
			}
			if err != nil {
				log.Printf("ui: some submissions of %s failed: %v", urlText, err)
			}
			ui.urlEntry.SetText("")
		})
	}()
}

// onCancelTask cancels a task; the row disappears right away
func (ui *RootUI) onCancelTask(taskID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), CancelTimeout)
		defer cancel()
		if err := ui.service.Cancel(ctx, taskID); err != nil {
			ui.showNotification(fmt.Sprintf("%s: %v", ui.localization.GetText(KeyCancelFailed), err), false)
		}
	}()
}

// onCopyURL copies the task URL to the clipboard
func (ui *RootUI) onCopyURL(taskURL string) {
	fyne.CurrentApp().Clipboard().SetContent(taskURL)
	ui.showNotification(ui.localization.GetText(KeyURLCopied), false)
}

// onConnectToggle connects or disconnects depending on the current state
func (ui *RootUI) onConnectToggle() {
	ui.mu.Lock()
	state := ui.state
	ui.mu.Unlock()

	if wantsConnect(state) {
		ui.service.Connect()
		return
	}
	ui.service.Disconnect()
}

// onRefresh requests the full task list outside the schedule
func (ui *RootUI) onRefresh() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), RefreshTimeout)
		defer cancel()
		if err := ui.service.Refresh(ctx); err != nil && !errors.Is(err, tracker.ErrNotConnected) {
			ui.showNotification(err.Error(), false)
		}
	}()
}

// onShowSettings shows the settings dialog
func (ui *RootUI) onShowSettings() {
	ShowSettingsDialog(ui.window, ui.settings, ui.localization, func() {
		ui.localization.SetLanguage(ui.settings.GetLanguage())
		ui.refreshUITexts()
		ui.createMenu()
		ui.showNotification(ui.localization.GetText(KeySettingsSaved), false)
	})
}

// createTaskItem creates a new task row for a list
func (ui *RootUI) createTaskItem() fyne.CanvasObject {
	row := NewTaskRow(ui.localization)
	row.SetCallbacks(ui.onCancelTask, ui.onCopyURL)
	return row
}

// updateTaskItem binds row id of the active or recent list
func (ui *RootUI) updateTaskItem(id widget.ListItemID, item fyne.CanvasObject, recent bool) {
	ui.mu.Lock()
	tasks := ui.active
	if recent {
		tasks = ui.recent
	}
	if id < 0 || id >= len(tasks) {
		ui.mu.Unlock()
		return
	}
	task := tasks[id]
	ui.mu.Unlock()

	if row, ok := item.(*TaskRow); ok {
		row.UpdateTask(task)
	}
}

// onTaskListChanged runs on the service executor
func (ui *RootUI) onTaskListChanged(data any) {
	list, ok := data.(tracker.TaskList)
	if !ok {
		return
	}
	ui.mu.Lock()
	ui.active = list.Active
	ui.recent = list.Recent
	ui.mu.Unlock()

	fyne.Do(ui.refreshLists)
}

// onConnectionChanged runs on the service executor
func (ui *RootUI) onConnectionChanged(data any) {
	ev, ok := data.(model.ConnectionEvent)
	if !ok {
		return
	}
	ui.mu.Lock()
	ui.state = ev.State
	ui.mu.Unlock()

	fyne.Do(ui.refreshConnection)
	if ev.State == model.ConnectionError && ev.Error != "" {
		ui.showNotification(ui.localization.ConnectionText(ev.State)+": "+ev.Error, false)
	}
}

// onSystemStatus shows opaque server messages
func (ui *RootUI) onSystemStatus(data any) {
	text := systemText(data)
	if text == "" {
		return
	}
	ui.showNotification(ui.localization.GetText(KeyServerMessage)+": "+text, false)
}

// onTaskRetired sends a desktop notification for finished downloads
func (ui *RootUI) onTaskRetired(data any) {
	task, ok := data.(model.LocalTask)
	if !ok {
		return
	}

	var title string
	switch task.Status {
	case model.TaskStatusCompleted:
		title = ui.localization.GetText(KeyDownloadCompleted)
	case model.TaskStatusFailed:
		title = ui.localization.GetText(KeyDownloadFailed)
	default:
		return
	}
	content := task.GetDisplayTitle()
	fyne.Do(func() {
		fyne.CurrentApp().SendNotification(&fyne.Notification{
			Title:   title,
			Content: content,
		})
	})
}

func (ui *RootUI) refreshLists() {
	ui.mu.Lock()
	active, recent := len(ui.active), len(ui.recent)
	ui.mu.Unlock()

	ui.activeHeader.SetText(fmt.Sprintf("%s (%d)", ui.localization.GetText(KeyActive), active))
	ui.recentHeader.SetText(fmt.Sprintf("%s (%d)", ui.localization.GetText(KeyRecent), recent))
	ui.activeList.Refresh()
	ui.recentList.Refresh()
}

func (ui *RootUI) refreshConnection() {
	ui.mu.Lock()
	state := ui.state
	ui.mu.Unlock()

	ui.stateLabel.Importance = connectionImportance(state)
	ui.stateLabel.SetText(ui.localization.ConnectionText(state) + MiddleDotSeparator + ui.service.Mode())
	if wantsConnect(state) {
		ui.connectBtn.SetText(ui.localization.GetText(KeyConnect))
		ui.connectBtn.Importance = widget.HighImportance
	} else {
		ui.connectBtn.SetText(ui.localization.GetText(KeyDisconnect))
		ui.connectBtn.Importance = widget.MediumImportance
	}
	ui.connectBtn.Refresh()
}

// showNotification displays a message in the notification panel under the URL input.
// When spinning is true, a spinner is shown to indicate background activity.
func (ui *RootUI) showNotification(message string, spinning bool) {
	fyne.Do(func() {
		ui.notificationSeq++
		seq := ui.notificationSeq

		ui.notificationLabel.SetText(message)
		if spinning {
			ui.notificationSpinner.Show()
		} else {
			ui.notificationSpinner.Hide()
			time.AfterFunc(NotificationAutoHide, func() {
				fyne.Do(func() {
					if ui.notificationSeq == seq {
						ui.hideNotification()
					}
				})
			})
		}
		ui.notificationContainer.Show()
		ui.notificationContainer.Refresh()
	})
}

// hideNotification hides the notification panel.
func (ui *RootUI) hideNotification() {
	ui.notificationSpinner.Hide()
	ui.notificationContainer.Hide()
}

// wantsConnect reports whether the connect button should offer connecting
func wantsConnect(state model.ConnectionState) bool {
	return state == model.ConnectionDisconnected || state == model.ConnectionError || state == ""
}

// systemText picks a readable line out of an opaque server payload
func systemText(data any) string {
	if m, ok := data.(map[string]any); ok {
		for _, key := range []string{"error_msg", "message", "detail", "status"} {
			if s, ok := m[key].(string); ok && s != "" {
				return truncate(s, maxSystemText)
			}
		}
	}
	if data == nil {
		return ""
	}
	return truncate(fmt.Sprint(data), maxSystemText)
}

func truncate(s string, n int) string {
	s = cleanText(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
