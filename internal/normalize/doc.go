// Package normalize turns the heterogeneous payloads of the status endpoint
// into canonical task updates. It is the single place that absorbs drift in
// the service's field names and response shapes.
package normalize
