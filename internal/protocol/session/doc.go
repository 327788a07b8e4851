// Package session owns the reliability primitives of one lpio channel.
//
// Ownership boundary:
// - channel config, defaults and disconnect policy
// - reconnect backoff schedule
// - outbound message buffer (drain ticker)
// - ack tracking with per-message deadlines
// - transport security validation and TLS material
package session
