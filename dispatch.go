package wsipc

import (
	"time"
)

type inbound struct {
	peer Peer
	env  *Envelope
}

// deliver is the transport's MessageHandler. It is called from transport goroutines.
//
// Replies are matched against pending requests right here rather than on the dispatch
// goroutine, so that a handler blocked in Invoke can still receive its reply.
func (ipc *IPC) deliver(p Peer, e *Envelope) {
	r := ipc.current.Load()
	if r == nil {
		ipc.log.Debug().Str("event", e.Event).Msg("not running; message dropped")
		return
	}
	if ipc.resolveReply(r, e) {
		return
	}
	select {
	case r.inbox <- inbound{p, e}:
	case <-r.done:
	}
}

// resolveReply handles `e` if it is a reply. Returns false if `e` should be dispatched to a
// handler.
func (ipc *IPC) resolveReply(r *run, e *Envelope) bool {
	if e.ResponseID == "" {
		return false
	}
	if r.pending.resolve(e.ResponseID, e) {
		dispatched.WithLabelValues(ipc.name, outcomeReply).Inc()
		return true
	}
	if e.Reply || r.pending.isExpired(e.ResponseID) {
		// late or unknown reply; never treated as a fresh event
		ipc.log.Debug().Str("event", e.Event).Str("response_id", e.ResponseID).
			Msg("unmatched reply dropped")
		dispatched.WithLabelValues(ipc.name, outcomeDropped).Inc()
		return true
	}
	return false
}

// dispatchLoop consumes the inbox of run `r` until the run is stopped
func (ipc *IPC) dispatchLoop(r *run) {
	ipc.log.Debug().Msg("dispatcher started")
	defer ipc.log.Debug().Msg("dispatcher stopped")
	for {
		select {
		case <-r.done:
			return
		case in := <-r.inbox:
			r.handling.Store(true)
			select {
			case <-r.done:
				r.handling.Store(false)
				return
			default:
			}
			ipc.dispatch(r, in.peer, in.env)
			r.handling.Store(false)
		}
	}
}

// dispatch routes one inbound envelope. It never panics and never returns an error: a failing
// handler is logged and the next envelope is processed as usual.
func (ipc *IPC) dispatch(r *run, p Peer, e *Envelope) {
	if ipc.resolveReply(r, e) {
		return
	}

	room := e.Room
	if room != "" && p != nil && !p.InRoom(room) {
		ipc.log.Debug().Str("event", e.Event).Str("room", room).Str("peer", p.ID()).
			Msg("sender is not a member of room; ignoring room scope")
		room = ""
	}

	handler := ipc.Handlers.Find(room, e.Event)
	if handler == nil {
		ipc.log.Debug().Err(ErrHandlerNotFound).Str("event", e.Event).Str("room", e.Room).
			Msg("message dropped")
		dispatched.WithLabelValues(ipc.name, outcomeDropped).Inc()
		return
	}

	out, err := ipc.callHandler(handler, p, e, room)
	if err != nil {
		ipc.log.Error().Err(err).Msg("handler failed")
		dispatched.WithLabelValues(ipc.name, outcomeFailed).Inc()
		if e.ResponseID != "" {
			ipc.respond(p, e.reply(nil, err))
		}
		return
	}
	dispatched.WithLabelValues(ipc.name, outcomeHandled).Inc()

	if e.ResponseID != "" && out != nil {
		ipc.respond(p, e.reply(out, nil))
	}
}

// callHandler runs `handler`, converting a panic into a *HandlerError
func (ipc *IPC) callHandler(handler BufferHandler, p Peer, e *Envelope, room string) (out []byte, err error) {
	start := time.Now()
	defer func() {
		handlerDuration.WithLabelValues(ipc.name).Observe(time.Since(start).Seconds())
		if v := recover(); v != nil {
			out, err = nil, &HandlerError{Event: e.Event, Room: room, Err: panicError(v)}
		}
	}()
	out, err = handler(p, e.Event, e.Data)
	if err != nil {
		err = &HandlerError{Event: e.Event, Room: room, Err: err}
	}
	return out, err
}

// respond sends a reply to the peer a request came from, or to everyone when the request
// did not come from a peer
func (ipc *IPC) respond(p Peer, reply *Envelope) {
	var err error
	if p != nil {
		err = p.Send(reply)
	} else {
		err = ipc.transport.Send("", reply)
	}
	if err != nil {
		ipc.log.Warn().Err(err).Str("event", reply.Event).Str("response_id", reply.ResponseID).
			Msg("failed to send reply")
	}
}
