// Package ui contains the Fyne desktop window. It is a consumer of the
// tracker bus: task lists and the connection indicator are redrawn from
// published events, and user actions call back into the tracker service.
// All UI strings are localized via Localization.
package ui
