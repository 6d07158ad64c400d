package wsipc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// IPC connects this process to its peer(s) over a Transport. It routes inbound messages to
// registered channel handlers and correlates replies with Invoke calls.
//
// Handlers run one at a time on the instance's dispatch goroutine. All other methods are safe
// to call concurrently from any goroutine.
type IPC struct {
	// Handlers associated with this instance. Registrations survive Kill and Start.
	Handlers *Handlers

	name      string
	timeout   time.Duration
	limits    Limits
	transport Transport
	log       zerolog.Logger

	mu      sync.Mutex // serializes Start and Kill
	current atomic.Pointer[run]
	pending limit // in-flight Invoke calls across runs
}

// New creates an instance which communicates over `t`. The instance is idle until Start.
func New(t Transport, cfg Config) *IPC {
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = DefaultConfig().InvokeTimeout
	}
	log := Logger().With().Str("ipc", cfg.Name).Logger()
	if lvl, ok := ParseLevel(cfg.LogLevel); ok {
		log = log.Level(lvl)
	}
	registerMetrics()

	ipc := &IPC{
		Handlers:  NewHandlers(),
		name:      cfg.Name,
		timeout:   cfg.InvokeTimeout,
		limits:    cfg.Limits,
		transport: t,
		log:       log,
		pending:   limit{limit: cfg.Limits.MaxPending},
	}
	t.OnMessage(ipc.deliver)
	return ipc
}

// Name returns the instance's name as given by Config.Name
func (ipc *IPC) Name() string { return ipc.name }

// Transport returns the transport the instance was created with
func (ipc *IPC) Transport() Transport { return ipc.transport }

// On registers `fn` for messages on `channel`, replacing any previous handler.
// An empty channel registers the catch-all handler. See Handlers.Handle for accepted shapes.
func (ipc *IPC) On(channel string, fn interface{}) {
	ipc.Handlers.Handle(channel, fn)
}

// OnRoom registers `fn` for messages on `channel` addressed to `room`
func (ipc *IPC) OnRoom(room, channel string, fn interface{}) {
	ipc.Handlers.HandleRoom(room, channel, fn)
}

// OnAny registers the catch-all handler
func (ipc *IPC) OnAny(fn interface{}) {
	ipc.Handlers.Handle("", fn)
}

// Off removes the handler for `channel`. No-op if none is registered.
func (ipc *IPC) Off(channel string) {
	ipc.Handlers.Remove(channel)
}

// OffRoom removes the handler for `channel` within `room`. No-op if none is registered.
func (ipc *IPC) OffRoom(room, channel string) {
	ipc.Handlers.RemoveRoom(room, channel)
}

// Emit sends `data` on `channel` to every connected peer without waiting for a reply
func (ipc *IPC) Emit(channel string, data interface{}) error {
	return ipc.EmitRoom("", channel, data)
}

// EmitRoom sends `data` on `channel` to the peers which are members of `room`
func (ipc *IPC) EmitRoom(room, channel string, data interface{}) error {
	if ipc.current.Load() == nil {
		return ErrNotRunning
	}
	e, err := NewEnvelope(channel, data)
	if err != nil {
		return fmt.Errorf("emit %q: %w", channel, err)
	}
	e.Room = room
	if err := ipc.transport.Send(room, e); err != nil {
		return fmt.Errorf("emit %q: %w", channel, err)
	}
	return nil
}
