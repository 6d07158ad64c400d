package wsipc

import "context"

// Peer is one remote end of a connection, as seen by handlers
type Peer interface {
	// ID identifies the connection for the lifetime of the transport
	ID() string

	// InRoom reports whether the connection is a member of `room`
	InRoom(room string) bool

	// Rooms returns the rooms the connection is a member of
	Rooms() []string

	// Send writes an envelope to this connection only
	Send(e *Envelope) error
}

// MessageHandler receives every envelope a transport reads, except control messages
// (room membership, keepalive) which the transport consumes itself
type MessageHandler func(p Peer, e *Envelope)

// Transport delivers envelopes between the two processes.
type Transport interface {
	// Serve runs the transport's serving loop and blocks until `ctx` is done, then closes
	// the transport's connections and returns nil. It returns early with an error if the
	// transport cannot serve. A transport may be served again after Serve returned, unless
	// it was closed for good.
	Serve(ctx context.Context) error

	// Send delivers `e` to every connection which is a member of `room`, or to every
	// connection if `room` is empty
	Send(room string, e *Envelope) error

	// OnMessage sets the function called for each inbound envelope. It must be called before
	// Serve.
	OnMessage(fn MessageHandler)
}

// roomSet is the membership bookkeeping shared by transports. Not safe for concurrent use.
type roomSet map[string]struct{}

func (r roomSet) list() []string {
	rooms := make([]string, 0, len(r))
	for room := range r {
		rooms = append(rooms, room)
	}
	return rooms
}

// applyControl updates `rooms` according to a join/leave envelope. Keepalives change nothing.
// Returns false if `e` is not a control message.
func (r roomSet) applyControl(e *Envelope) bool {
	switch e.Event {
	case ChannelJoin:
		if e.Room != "" {
			r[e.Room] = struct{}{}
		}
	case ChannelLeave:
		delete(r, e.Room)
	case ChannelPing:
	default:
		return false
	}
	return true
}
