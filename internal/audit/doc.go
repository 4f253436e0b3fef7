// Package audit records who did what to the media server.
//
// Entries cover admin API actions (login, on-demand advertisement) and
// lifecycle transitions of the device. They are stored in the audit_logs
// table and served newest first by the admin API.
package audit
