// Package progress streams per-node execution stage transitions over
// websocket when FlowSettings.ShowDetailedProgress is set, fanning events
// out to every client subscribed to a flow_id.
package progress

import (
	"sync"

	"github.com/rs/zerolog"
)

// Stage is one point in a node's execution lifecycle worth notifying
// subscribers about.
type Stage string

const (
	StageSchemaPredicted Stage = "schema_predicted"
	StageStarted         Stage = "started"
	StageCompleted       Stage = "completed"
	StageSkipped         Stage = "skipped"
	StageErrored         Stage = "errored"
	StageCanceled        Stage = "canceled"
)

// Event is one progress notification.
type Event struct {
	FlowID      uint64 `json:"flow_id"`
	ExecutionID string `json:"execution_id"`
	NodeID      int64  `json:"node_id"`
	Stage       Stage  `json:"stage"`
	Detail      string `json:"detail,omitempty"`
}

// Hub fans Events out to every Client subscribed to a flow_id.
type Hub struct {
	mu      sync.RWMutex
	byFlow  map[uint64]map[*Client]bool
	logger  zerolog.Logger
}

// NewHub builds an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{byFlow: make(map[uint64]map[*Client]bool), logger: logger}
}

// Register subscribes client to flowID's events.
func (h *Hub) Register(flowID uint64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byFlow[flowID] == nil {
		h.byFlow[flowID] = make(map[*Client]bool)
	}
	h.byFlow[flowID][client] = true
}

// Unregister removes client from flowID's subscriber set and closes its
// send channel.
func (h *Hub) Unregister(flowID uint64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.byFlow[flowID]; ok {
		if _, present := clients[client]; present {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.byFlow, flowID)
		}
	}
}

// Publish delivers ev to every client subscribed to ev.FlowID, dropping it
// for any client whose send buffer is full rather than blocking the engine.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byFlow[ev.FlowID] {
		select {
		case client.send <- ev:
		default:
			h.logger.Warn().Uint64("flow_id", ev.FlowID).Msg("progress: client buffer full, dropping event")
		}
	}
}

// SubscriberCount reports how many clients are watching flowID. The engine
// does not call it; Publish to a flow with no subscribers sends nothing.
func (h *Hub) SubscriberCount(flowID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byFlow[flowID])
}
