// Package platform contains glue to external tooling: expanding playlist
// URLs into individual video URLs through the ytdlp library.
package platform
