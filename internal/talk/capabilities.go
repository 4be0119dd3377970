// ABOUTME: Injected capabilities the talk controller coordinates
// ABOUTME: Media transport, recording, server registry, and the unload beacon

package talk

import (
	"context"

	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// Transport is the media transport capability (an injected room/session
// handle). Publishing and unpublishing the local microphone are the only
// operations the talk controller needs.
type Transport interface {
	PublishLocalAudio(ctx context.Context) error
	UnpublishLocalAudio(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Recorder is the external recording capability. The controller only ever
// stops it, and only during teardown, before the talk session closes.
type Recorder interface {
	StopRecording(ctx context.Context) error
}

// Registry is the server-side talk session registry.
type Registry interface {
	RegisterTalkSession(ctx context.Context, targetEmail string) (string, error)
	CloseTalkSession(ctx context.Context, sessionID string, reason store.TalkStopReason) error
}

// Beacon is the best-effort, unconfirmed stop notification used on page
// unload. It is deliberately not a Registry: there is no response, no
// delivery confirmation, and no retry, and callers must not expect any.
type Beacon interface {
	NotifyStop(sessionID string, reason store.TalkStopReason)
}
