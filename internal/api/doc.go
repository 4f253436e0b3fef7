// Package api implements the media server's admin HTTP API and WebSocket
// event stream.
//
// This package provides:
//   - Read endpoints for device identity, hosted services and subscribers
//   - Dispatch and advertisement counters from the telemetry recorder
//   - Prometheus exposition at /metrics
//   - A WebSocket hub that relays dispatch and lifecycle events
//   - Optional JWT authentication with a single configured admin account
//
// # Security
//
// With no JWT secret configured every request is treated as admin. With a
// secret, /api/v1/health and /api/v1/auth/login stay open and everything
// else needs a bearer token. Browsers cannot set headers on WebSocket
// upgrades, so /api/v1/ws also accepts the token as ?access_token=.
//
// The admin API is separate from the UPnP listener. Control points never
// talk to it.
package api
