// Package download is the HTTP client of the remote download service. It
// submits and cancels tasks and fetches the raw status payloads that the
// synchronization layer normalizes. Every response of the service is wrapped
// in a {success, data, error_code, error_msg} envelope.
package download
