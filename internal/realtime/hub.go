// ABOUTME: In-memory hub tracking connected clients and pushing payloads to them
// ABOUTME: Presence is derived from live subscriptions; broadcast fails when unreachable

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrNotConnected indicates the target identity has no live subscription.
var ErrNotConnected = errors.New("client not connected")

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Hub provides in-memory pub/sub keyed by client identity. Each connected
// client (PSO desktop app, supervisor dashboard) holds one subscription per
// open event stream; an identity with at least one subscription is considered
// connected.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan []byte // identity -> subID -> ch
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan []byte),
		logger:      logger.With("component", "realtime"),
	}
}

// Subscribe registers a subscriber for payloads addressed to the identity.
// Returns a channel that receives payloads and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (h *Hub) Subscribe(ctx context.Context, identity string) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, subscriberBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[identity]; !ok {
		h.subscribers[identity] = make(map[string]chan []byte)
	}
	h.subscribers[identity][subID] = ch
	h.mu.Unlock()

	h.logger.Info("client connected", "identity", identity, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		h.Unsubscribe(identity, subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(identity, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[identity]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(h.subscribers, identity)
	}

	h.logger.Info("client disconnected", "identity", identity, "sub_id", subID)
}

// IsConnected reports whether the identity has at least one live subscription.
func (h *Hub) IsConnected(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[identity]) > 0
}

// Broadcast sends a payload to every subscription held by the identity.
// Returns ErrNotConnected when the identity is unreachable: either no
// subscription exists, or every subscriber buffer is full. Reaching at least
// one subscriber counts as delivered.
func (h *Hub) Broadcast(identity string, payload []byte) error {
	// The read lock is held across the sends: Unsubscribe and Close close
	// channels under the write lock, so a channel cannot be closed while a
	// send is in flight. The sends never block, so holding the lock is cheap.
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[identity]
	if !ok || len(subs) == 0 {
		return ErrNotConnected
	}

	delivered := 0
	for _, ch := range subs {
		select {
		case ch <- payload:
			delivered++
		default:
			// Subscriber channel full — drop for this subscriber
			h.logger.Debug("dropped payload for slow subscriber", "identity", identity)
		}
	}

	if delivered == 0 {
		return ErrNotConnected
	}
	return nil
}

// ConnectedIdentities returns the identities with at least one live subscription.
func (h *Hub) ConnectedIdentities() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	identities := make([]string, 0, len(h.subscribers))
	for identity := range h.subscribers {
		identities = append(identities, identity)
	}
	return identities
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for identity, subs := range h.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subscribers, identity)
	}

	h.logger.Debug("hub closed")
}
