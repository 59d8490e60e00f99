// Package timeouts defines shared timeout constants used across binaries.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// AuditHandOff caps one audit ledger submission after a case completes.
const AuditHandOff = 5 * time.Second

// WebSocketWrite caps a single frame write to a realtime subscriber.
const WebSocketWrite = 2 * time.Second
