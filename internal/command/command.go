// ABOUTME: Command wire types and error taxonomy for the dispatch pipeline
// ABOUTME: Commands are transient; only the consumer persists them as pending rows

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// ErrInvalidCommandType indicates a command type outside the closed START/STOP set.
var ErrInvalidCommandType = errors.New("invalid command type")

// ErrTargetNotEligible indicates the target identity may not receive commands.
var ErrTargetNotEligible = errors.New("target is not an eligible command recipient")

// PersistenceError wraps a durable store or queue failure. Unlike a realtime
// delivery failure it has no fallback and is surfaced to the caller unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Command is the transient administrative instruction flowing from an admin
// action to a target client. It is serialized onto both the realtime channel
// and the durable queue.
type Command struct {
	TargetIdentity string            `json:"targetIdentity"`
	Type           store.CommandType `json:"type"`
	Reason         string            `json:"reason,omitempty"`
	IssuedAt       time.Time         `json:"issuedAt"`
}

// Envelope is the payload pushed over the realtime channel. ID is set only
// when the command was persisted first (the durable path), so the client can
// acknowledge it.
type Envelope struct {
	Kind     string            `json:"kind"`
	ID       string            `json:"id,omitempty"`
	Type     store.CommandType `json:"type"`
	Reason   string            `json:"reason,omitempty"`
	IssuedAt time.Time         `json:"issuedAt"`
}

// EnvelopeKindCommand marks command payloads on the realtime channel.
const EnvelopeKindCommand = "command"

func (c *Command) envelope(pendingID string) ([]byte, error) {
	return json.Marshal(&Envelope{
		Kind:     EnvelopeKindCommand,
		ID:       pendingID,
		Type:     c.Type,
		Reason:   c.Reason,
		IssuedAt: c.IssuedAt,
	})
}
