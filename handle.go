package wsipc

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
)

// BufferHandler is the raw form of a channel handler. `p` is the connection the message
// arrived on (nil when dispatched locally). A nil result means the handler produced no value
// and no reply is sent, even for requests.
type BufferHandler func(p Peer, channel string, payload []byte) ([]byte, error)

type handlerMap map[string]BufferHandler

// Handlers is a registry of channel handlers, optionally scoped to rooms.
// At most one handler exists per (room, channel) pair and per global channel; registering
// again replaces the previous handler. Safe for concurrent use.
type Handlers struct {
	mu       sync.RWMutex
	channels handlerMap
	rooms    map[string]handlerMap
	fallback BufferHandler
}

func NewHandlers() *Handlers {
	return &Handlers{channels: make(handlerMap), rooms: make(map[string]handlerMap)}
}

// Handle registers `fn` for `channel`. If `channel` is empty, `fn` becomes the catch-all
// handler, used for channels without a specific handler.
//
// `fn` is either a BufferHandler or a function of the form
//
//	func([Peer,] [channel string,] [payload T]) [R | error | (R, error)]
//
// i.e. it may take the sending peer, the channel name (only together with a payload) and a
// JSON-decoded payload, and may return a value which is JSON-encoded and sent back when the
// message was a request. Handle panics if `fn` has any other shape.
func (h *Handlers) Handle(channel string, fn interface{}) {
	h.HandleBuffer(channel, toBufferHandler(fn))
}

// HandleBuffer registers a raw handler for `channel`. See Handle.
func (h *Handlers) HandleBuffer(channel string, fn BufferHandler) {
	if fn == nil {
		panic("nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(channel) == 0 {
		h.fallback = fn
	} else {
		h.channels[channel] = fn
	}
}

// HandleRoom registers `fn` for `channel` within `room`. Room-scoped handlers take precedence
// over global handlers for messages addressed to that room. See Handle for accepted `fn` shapes.
func (h *Handlers) HandleRoom(room, channel string, fn interface{}) {
	h.HandleRoomBuffer(room, channel, toBufferHandler(fn))
}

// HandleRoomBuffer registers a raw handler for `channel` within `room`
func (h *Handlers) HandleRoomBuffer(room, channel string, fn BufferHandler) {
	if len(room) == 0 {
		h.HandleBuffer(channel, fn)
		return
	}
	if fn == nil {
		panic("nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.rooms[room]
	if m == nil {
		m = make(handlerMap)
		h.rooms[room] = m
	}
	m[channel] = fn
}

// Remove unregisters the handler for `channel`. An empty channel removes the catch-all handler.
// Removing a handler which does not exist is a no-op.
func (h *Handlers) Remove(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(channel) == 0 {
		h.fallback = nil
	} else {
		delete(h.channels, channel)
	}
}

// RemoveRoom unregisters the handler for `channel` within `room`. No-op if absent.
func (h *Handlers) RemoveRoom(room, channel string) {
	if len(room) == 0 {
		h.Remove(channel)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.rooms[room]
	if m == nil {
		return
	}
	delete(m, channel)
	if len(m) == 0 {
		delete(h.rooms, room)
	}
}

// Find looks up the handler for a message on `channel`, addressed to `room` (may be empty).
// Lookup order: room+channel, global channel, catch-all. Returns nil if none applies.
func (h *Handlers) Find(room, channel string) BufferHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(room) != 0 {
		if handler := h.rooms[room][channel]; handler != nil {
			return handler
		}
	}
	if handler := h.channels[channel]; handler != nil {
		return handler
	}
	return h.fallback
}

// -------------------------------------------------------------------------------------

var (
	errMsgBadHandler = "invalid handler func signature (see wsipc.Handlers.Handle)"

	kErrorType = reflect.TypeOf(new(error)).Elem()
	kPeerType  = reflect.TypeOf(new(Peer)).Elem()
)

func toBufferHandler(fn interface{}) BufferHandler {
	switch f := fn.(type) {
	case nil:
		panic("nil handler")
	case BufferHandler:
		return f
	case func(Peer, string, []byte) ([]byte, error):
		return BufferHandler(f)
	}
	return wrapFuncHandler(fn)
}

func valToErr(r reflect.Value) error {
	if r.IsNil() {
		return nil
	}
	if err, ok := r.Interface().(error); ok {
		return err
	}
	return errors.New("error")
}

func decodeParams(paramsType reflect.Type, inbuf []byte) (reflect.Value, error) {
	paramsVal := reflect.New(paramsType)
	if len(inbuf) != 0 {
		if err := json.Unmarshal(inbuf, paramsVal.Interface()); err != nil {
			return paramsVal.Elem(), err
		}
	}
	return paramsVal.Elem(), nil
}

// funcShape describes the parameters and results of a wrapped handler func
type funcShape struct {
	takesPeer    bool
	takesChannel bool
	paramsType   reflect.Type // nil when the func takes no payload
	returnsValue bool
	returnsError bool
}

func inspectFunc(fnt reflect.Type) funcShape {
	var shape funcShape
	if fnt.Kind() != reflect.Func {
		panic("handler must be a function")
	}

	in := 0
	if fnt.NumIn() > in && fnt.In(in) == kPeerType {
		shape.takesPeer = true
		in++
	}
	switch fnt.NumIn() - in {
	case 0:
	case 1:
		shape.paramsType = fnt.In(in)
	case 2:
		if fnt.In(in).Kind() != reflect.String {
			panic(errMsgBadHandler)
		}
		shape.takesChannel = true
		shape.paramsType = fnt.In(in + 1)
	default:
		panic(errMsgBadHandler)
	}

	switch fnt.NumOut() {
	case 0:
	case 1:
		if fnt.Out(0) == kErrorType {
			shape.returnsError = true
		} else {
			shape.returnsValue = true
		}
	case 2:
		if fnt.Out(1) != kErrorType {
			panic(errMsgBadHandler)
		}
		shape.returnsValue = true
		shape.returnsError = true
	default:
		panic(errMsgBadHandler)
	}
	return shape
}

func wrapFuncHandler(fn interface{}) BufferHandler {
	fnv := reflect.ValueOf(fn)
	shape := inspectFunc(fnv.Type())

	return BufferHandler(func(p Peer, channel string, inbuf []byte) ([]byte, error) {
		args := make([]reflect.Value, 0, 3)
		if shape.takesPeer {
			if p == nil {
				args = append(args, reflect.Zero(kPeerType))
			} else {
				args = append(args, reflect.ValueOf(p))
			}
		}
		if shape.takesChannel {
			args = append(args, reflect.ValueOf(channel))
		}
		if shape.paramsType != nil {
			paramsVal, err := decodeParams(shape.paramsType, inbuf)
			if err != nil {
				return nil, err
			}
			args = append(args, paramsVal)
		}

		r := fnv.Call(args)

		if shape.returnsError {
			if err := valToErr(r[len(r)-1]); err != nil {
				return nil, err
			}
		}
		if shape.returnsValue {
			return json.Marshal(r[0].Interface())
		}
		return nil, nil
	})
}
