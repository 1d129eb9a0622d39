package room

import (
	"log"

	"liveclass-backend/internal/protocol"
	"liveclass-backend/internal/registry"
)

// Router fans protocol events out to connections. Delivery is
// best-effort per connection: a slow or broken connection is dropped by
// its own writer, never allowed to block the others or the room's
// serialized mutation path.
type Router struct{}

// ToRoom delivers an event to every connection in the snapshot. The
// caller builds the snapshot under the room lock, so broadcast order
// matches the serialized processing order of the triggering operations.
func (Router) ToRoom(conns []*registry.Conn, eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Router] Failed to encode %s: %v", eventType, err)
		return
	}
	for _, c := range conns {
		c.Send(data)
	}
}

// ToConn unicasts an event to a single connection.
func (Router) ToConn(conn *registry.Conn, eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Router] Failed to encode %s: %v", eventType, err)
		return
	}
	conn.Send(data)
}
