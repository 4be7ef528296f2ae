package ui

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/dlsync/internal/model"
)

// Progress calculation constants
const (
	MaxProgressPercent = 100
	MinProgressPercent = 1
)

// TaskRow represents a compact task row widget
type TaskRow struct {
	widget.BaseWidget

	task         model.LocalTask
	localization *Localization

	// UI components
	titleLabel    *widget.Label
	statusLabel   *widget.Label
	progressLabel *widget.Label
	speedEtaLabel *widget.Label
	progressBar   *widget.ProgressBar

	// Action buttons
	cancelBtn *widget.Button
	copyBtn   *widget.Button

	// Callbacks
	onCancel  func(taskID string)
	onCopyURL func(url string)
}

// NewTaskRow creates a new task row widget
func NewTaskRow(localization *Localization) *TaskRow {
	tr := &TaskRow{localization: localization}
	tr.ExtendBaseWidget(tr)
	tr.createUI()
	tr.updateFromTask()
	return tr
}

// SetCallbacks sets the action callbacks
func (tr *TaskRow) SetCallbacks(onCancel func(taskID string), onCopyURL func(url string)) {
	tr.onCancel = onCancel
	tr.onCopyURL = onCopyURL
}

// UpdateTask updates the row with new task data
func (tr *TaskRow) UpdateTask(task model.LocalTask) {
	tr.task = task
	tr.updateFromTask()
	tr.Refresh()
}

// createUI creates the UI components
func (tr *TaskRow) createUI() {
	tr.titleLabel = widget.NewLabel("")
	tr.titleLabel.TextStyle = fyne.TextStyle{Bold: true}
	tr.titleLabel.Truncation = fyne.TextTruncateEllipsis
	tr.titleLabel.Alignment = fyne.TextAlignLeading

	tr.statusLabel = widget.NewLabel("")
	tr.statusLabel.Alignment = fyne.TextAlignTrailing
	tr.progressLabel = widget.NewLabel("")
	tr.progressLabel.Alignment = fyne.TextAlignTrailing
	tr.speedEtaLabel = widget.NewLabel("")
	tr.speedEtaLabel.TextStyle = fyne.TextStyle{Monospace: true}
	tr.progressBar = widget.NewProgressBar()
	tr.progressBar.Max = MaxProgressPercent
	tr.progressBar.TextFormatter = func() string { return "" }

	tr.cancelBtn = widget.NewButton(tr.localization.GetText(KeyCancel), func() {
		if tr.onCancel != nil && tr.task.TaskID != "" {
			tr.onCancel(tr.task.TaskID)
		}
	})
	tr.cancelBtn.Importance = widget.MediumImportance

	tr.copyBtn = widget.NewButton(IconLink+" "+tr.localization.GetText(KeyCopyURL), func() {
		if tr.onCopyURL != nil && tr.task.URL != "" {
			tr.onCopyURL(tr.task.URL)
		}
	})
	tr.copyBtn.Importance = widget.LowImportance
}

// updateFromTask updates UI components based on task state
func (tr *TaskRow) updateFromTask() {
	tr.titleLabel.SetText(cleanText(tr.task.GetDisplayTitle()))

	tr.statusLabel.Importance = statusImportance(tr.task.Status)
	tr.statusLabel.SetText(statusText(tr.task))

	percent := effectivePercent(tr.task)
	if tr.task.Status == model.TaskStatusCompleted {
		tr.progressLabel.SetText("")
	} else {
		tr.progressLabel.SetText(fmt.Sprintf(ProgressLabelFormat, percent))
	}
	tr.progressBar.SetValue(float64(percent))

	tr.speedEtaLabel.SetText(speedEtaText(tr.task))

	if tr.task.Status.IsActive() || tr.task.Status == model.TaskStatusError {
		tr.cancelBtn.Show()
		tr.cancelBtn.Enable()
	} else {
		tr.cancelBtn.Hide()
	}
	if tr.task.URL != "" {
		tr.copyBtn.Enable()
	} else {
		tr.copyBtn.Disable()
	}
}

// statusText renders the status label of a task
func statusText(t model.LocalTask) string {
	text := t.Status.String()
	if t.Message != "" && t.Status.IsActive() {
		text = t.Message
	}
	switch t.Status {
	case model.TaskStatusError, model.TaskStatusFailed:
		return IconError + " " + text
	case model.TaskStatusCompleted:
		return IconDone + " " + text
	case model.TaskStatusDownloading, model.TaskStatusProcessing:
		return IconPlay + " " + text
	case model.TaskStatusPending:
		return IconPending + " " + text
	default:
		return text
	}
}

// effectivePercent returns the whole percentage shown for a task. A task
// that has started never shows 0%.
func effectivePercent(t model.LocalTask) int {
	if t.Status == model.TaskStatusCompleted {
		return MaxProgressPercent
	}
	percent := int(math.Floor(t.Progress))
	if percent == 0 && t.Progress > 0 {
		percent = MinProgressPercent
	}
	return max(0, min(percent, MaxProgressPercent))
}

// speedEtaText renders "speed · eta" for downloading tasks and the error
// message for failed ones
func speedEtaText(t model.LocalTask) string {
	switch t.Status {
	case model.TaskStatusDownloading:
		text := ""
		if t.DownloadSpeed > 0 {
			text = t.GetSpeedString()
		}
		if t.ETASeconds > 0 {
			if text != "" {
				text += MiddleDotSeparator
			}
			text += t.GetETAString()
		}
		if text == "" {
			text = DashPlaceholder
		}
		return text
	case model.TaskStatusError, model.TaskStatusFailed:
		return cleanText(t.Error)
	default:
		return ""
	}
}

// cleanText collapses control whitespace that breaks single line labels
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}

// CreateRenderer creates the widget renderer
func (tr *TaskRow) CreateRenderer() fyne.WidgetRenderer {
	return &taskRowRenderer{taskRow: tr}
}

// taskRowRenderer renders the task row widget
type taskRowRenderer struct {
	taskRow *TaskRow
	layout  *fyne.Container
}

// Layout arranges the components
func (r *taskRowRenderer) Layout(size fyne.Size) {
	if r.layout == nil {
		r.createLayout()
	}
	if size.Width < RowMinWidth {
		size.Width = RowMinWidth
	}
	if size.Height < RowMinHeight {
		size.Height = RowMinHeight
	}
	r.layout.Resize(size)
}

// MinSize returns the minimum size
func (r *taskRowRenderer) MinSize() fyne.Size {
	if r.layout != nil {
		return r.layout.MinSize()
	}
	return fyne.NewSize(RowMinWidth, RowMinHeight)
}

// Refresh refreshes the renderer
func (r *taskRowRenderer) Refresh() {
	if r.layout == nil {
		r.createLayout()
	}
	r.layout.Refresh()
}

// Objects returns the container objects
func (r *taskRowRenderer) Objects() []fyne.CanvasObject {
	if r.layout == nil {
		r.createLayout()
	}
	return []fyne.CanvasObject{r.layout}
}

// Destroy cleans up the renderer
func (r *taskRowRenderer) Destroy() {}

// createLayout creates the main layout
func (r *taskRowRenderer) createLayout() {
	tr := r.taskRow

	// Helper to fix width using a transparent rectangle underneath
	fixedWidth := func(w float32, obj fyne.CanvasObject) fyne.CanvasObject {
		spacer := canvas.NewRectangle(color.RGBA{0, 0, 0, 0})
		spacer.SetMinSize(fyne.NewSize(w, obj.MinSize().Height))
		return container.NewStack(spacer, obj)
	}

	rightSide := container.NewVBox(
		fixedWidth(StatusLabelWidth, tr.statusLabel),
		container.NewHBox(
			fixedWidth(SpeedLabelWidth, tr.speedEtaLabel),
			fixedWidth(PercentLabelWidth, tr.progressLabel),
		),
	)
	actionRow := container.NewHBox(tr.copyBtn, tr.cancelBtn)

	// action buttons are pinned to the right edge, the title takes the rest
	rightCluster := container.NewBorder(nil, nil, nil, actionRow, rightSide)
	mainContent := container.NewBorder(nil, nil, nil, rightCluster, tr.titleLabel)

	r.layout = container.NewVBox(
		mainContent,
		tr.progressBar,
		widget.NewSeparator(),
	)
	r.layout.Resize(fyne.NewSize(RowMinWidth, RowDefaultH))
}
