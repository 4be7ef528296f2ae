// Package transport contains the sources that feed the synchronization
// service: a fixed-interval HTTP poller and an optional websocket push
// stream. Both report every outcome as a Result and never panic upward.
package transport
