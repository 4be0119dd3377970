// ABOUTME: Package documentation for the HTTP gateway
// ABOUTME: Describes the API surface and the SSE presence model

// Package gateway exposes the orchestration core over HTTP.
//
// # Surface
//
// Supervisors dispatch camera commands and read session state; PSO clients
// poll their active command, acknowledge it, and report streaming status.
// Talk sessions are registered and closed here, including the
// unauthenticated unload beacon path used by navigator.sendBeacon.
//
// # Presence
//
// GET /api/events is a Server-Sent Events stream. Holding the stream open is
// what marks an identity connected: the dispatcher's realtime path delivers
// through the same hub the stream subscribes to, so presence and
// deliverability cannot drift apart.
package gateway
