package ui

import "time"

// Icons (emojis/symbols)
const (
	IconSettings = "⚙"
	IconPlay     = "▶"
	IconPending  = "⏳"
	IconDone     = "✔"
	IconClose    = "×"
	IconError    = "❌"
	IconRefresh  = "⟳"
	IconLink     = "🔗"
)

// Text fragments
const (
	MiddleDotSeparator  = " · "
	DashPlaceholder     = "—"
	ProgressLabelFormat = "%d%%"
)

// Layout sizing (TaskRow / lists)
const (
	StatusLabelWidth  float32 = 110
	SpeedLabelWidth   float32 = 120
	PercentLabelWidth float32 = 48

	RowMinWidth  float32 = 400
	RowMinHeight float32 = 56
	RowDefaultH  float32 = 56
)

// NotificationAutoHide is how long a finished notification stays visible
const NotificationAutoHide = 5 * time.Second

// Timeouts for user initiated requests
const (
	SubmitTimeout  = 90 * time.Second
	CancelTimeout  = 10 * time.Second
	RefreshTimeout = 10 * time.Second
)
