// Package rest exposes the shared store over HTTP with gin.
//
// Routes under /v1 are rate limited per client IP. Trigger subscriptions are
// served over WebSocket at /v1/triggers/:device/watch.
package rest
