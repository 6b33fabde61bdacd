package dashboard

import (
	"encoding/json"
	"log"

	"github.com/clipforge/timeline/internal/timeline/events"
)

// Handler forwards event bus notifications to a dashboard server.
type Handler struct {
	server *Server
	logger *log.Logger
	subs   []events.Subscription
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// Attach subscribes the handler to every notification kind on bus.
func (h *Handler) Attach(bus *events.Bus) {
	h.subs = append(h.subs, bus.SubscribeAll(h.OnNotification)...)
}

// Detach removes the handler's subscriptions from bus.
func (h *Handler) Detach(bus *events.Bus) {
	for _, sub := range h.subs {
		bus.Unsubscribe(sub)
	}
	h.subs = nil
}

// OnNotification formats a notification and broadcasts it.
func (h *Handler) OnNotification(n events.Notification) error {
	msg, ok := h.format(n)
	if !ok {
		return nil
	}
	h.server.Broadcast(msg)
	return nil
}

func (h *Handler) format(n events.Notification) (Message, bool) {
	var (
		kind MessageType
		data any
	)

	switch n.Kind {
	case events.KindSave, events.KindLoad, events.KindDelete:
		kind = MessageType(n.Kind)
		scene := SceneData{SceneID: n.SceneID, Origin: string(n.Origin)}
		if n.Save != nil {
			scene.ClipCount = n.Save.ClipCount
			scene.Playhead = n.Save.Playhead
			scene.SaveCount = n.Save.SaveCount
		} else if n.Document != nil {
			scene.ClipCount = len(n.Document.Clips)
			scene.Playhead = n.Document.Playhead
			scene.SaveCount = n.Document.Metadata.SaveCount
		}
		data = scene

	case events.KindConflict:
		kind = MessageTypeConflict
		conflict := ConflictData{
			SceneID:  n.SceneID,
			Resolved: n.Document != nil,
		}
		if n.Conflict != nil {
			conflict.ConflictID = n.Conflict.ID
			conflict.Kind = string(n.Conflict.Kind)
		}
		if n.Err != nil {
			conflict.Error = n.Err.Error()
		}
		data = conflict

	default:
		h.logger.Printf("Ignoring notification of unknown kind %q", n.Kind)
		return Message{}, false
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", kind, err)
		return Message{}, false
	}
	return Message{Type: kind, Timestamp: n.Timestamp, Data: encoded}, true
}
