package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/dlsync/internal/model"
)

// StatusTheme tightens the default theme so that a long task list fits the
// window. Fonts and icons come from the embedded default theme.
type StatusTheme struct {
	fyne.Theme
}

// NewStatusTheme creates the theme used by the main window
func NewStatusTheme() fyne.Theme {
	return &StatusTheme{Theme: theme.DefaultTheme()}
}

// Color returns the colors behind task and connection importances
func (t *StatusTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameSuccess:
		return color.RGBA{R: 46, G: 160, B: 67, A: 255} // Green for completed and connected
	case theme.ColorNameError:
		return color.RGBA{R: 183, G: 28, B: 28, A: 255} // Red for failed tasks
	case theme.ColorNameWarning:
		return color.RGBA{R: 255, G: 160, B: 0, A: 255} // Orange while connecting
	case theme.ColorNamePrimary:
		return color.RGBA{R: 25, G: 118, B: 210, A: 255} // Blue for running tasks
	}

	return t.Theme.Color(name, variant)
}

// Size returns compact sizes for rows and captions
func (t *StatusTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 3 // Reduced from default 4
	case theme.SizeNameInnerPadding:
		return 6 // Reduced from default 8
	case theme.SizeNameLineSpacing:
		return 2 // Rows stack title, progress and status
	case theme.SizeNameText:
		return 13
	case theme.SizeNameCaptionText:
		return 10 // Speed and ETA line
	}

	return t.Theme.Size(name)
}

// statusImportance maps a task status to the label importance used to color it
func statusImportance(status model.TaskStatus) widget.Importance {
	switch status {
	case model.TaskStatusCompleted:
		return widget.SuccessImportance
	case model.TaskStatusFailed, model.TaskStatusError:
		return widget.DangerImportance
	case model.TaskStatusCancelled:
		return widget.LowImportance
	case model.TaskStatusDownloading, model.TaskStatusProcessing:
		return widget.HighImportance
	default:
		return widget.MediumImportance
	}
}

// connectionImportance maps a connection state to the indicator importance
func connectionImportance(state model.ConnectionState) widget.Importance {
	switch state {
	case model.ConnectionConnected:
		return widget.SuccessImportance
	case model.ConnectionConnecting:
		return widget.WarningImportance
	case model.ConnectionError:
		return widget.DangerImportance
	default:
		return widget.LowImportance
	}
}
