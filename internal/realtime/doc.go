// Package realtime provides the low-latency delivery channel for commands.
//
// The Hub tracks live client subscriptions keyed by identity. Presence
// (IsConnected) and delivery (Broadcast) both derive from the same
// subscription map, so a client is "connected" exactly when a broadcast can
// reach it. Broadcast is a single best-effort attempt; the durable queue is
// the retry strategy, not this package.
package realtime
