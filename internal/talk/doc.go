// ABOUTME: Package documentation for the push-to-talk controller
// ABOUTME: Explains the state machine and the capability boundaries

// Package talk implements the supervisor-side push-to-talk state machine.
//
// # States
//
// A controller is Idle, CountdownPending, or Talking. Start moves Idle to
// CountdownPending, registers a server session, waits out a cancellable
// countdown, publishes the local microphone, and lands in Talking. Cancel
// aborts the countdown and reports USER_STOP. Stop unpublishes and closes
// the session with the caller's reason; during a countdown it behaves like
// Cancel, and calling it twice is safe.
//
// # Capabilities
//
// The controller owns no I/O of its own. The media transport, the recording
// control, the server-side session registry, and the unload beacon are all
// injected interfaces, so the state machine is testable with fakes and the
// HTTP implementations in this package are one choice among many.
//
// # Teardown
//
// When the hosting stream ends, Teardown runs the shutdown sequence in a
// fixed order: stop recording, stop the talk session, disconnect the
// transport. Each step runs even when an earlier one fails.
package talk
