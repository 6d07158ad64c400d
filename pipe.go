package wsipc

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errAlreadyServing = errors.New("transport is already serving")

// pipeLink is the state shared by the two ends of a pipe
type pipeLink struct {
	mu    sync.RWMutex
	rooms roomSet
}

func (l *pipeLink) inRoom(room string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.rooms[room]
	return ok
}

// PipeTransport is one end of an in-memory connection created by Pipe. Envelopes are
// JSON-encoded and decoded on the way, like on a real connection.
type PipeTransport struct {
	id   string
	link *pipeLink
	peer *PipeTransport
	recv chan *Envelope

	mu        sync.Mutex
	onMessage MessageHandler
	serving   bool
	closed    chan struct{}
	closeOnce sync.Once
}

// Pipe creates two transports connected to each other. Each end delivers what the other
// sends once it is serving; until then up to `buffer` envelopes are queued.
func Pipe(buffer int) (*PipeTransport, *PipeTransport) {
	link := &pipeLink{rooms: make(roomSet)}
	a := newPipeEnd(link, buffer)
	b := newPipeEnd(link, buffer)
	a.peer, b.peer = b, a
	return a, b
}

func newPipeEnd(link *pipeLink, buffer int) *PipeTransport {
	return &PipeTransport{
		id:     uuid.NewString(),
		link:   link,
		recv:   make(chan *Envelope, buffer),
		closed: make(chan struct{}),
	}
}

func (t *PipeTransport) OnMessage(fn MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

func (t *PipeTransport) Serve(ctx context.Context) error {
	t.mu.Lock()
	if t.serving {
		t.mu.Unlock()
		return errAlreadyServing
	}
	t.serving = true
	handler := t.onMessage
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.serving = false
		t.mu.Unlock()
	}()

	if t.isClosed() {
		return ErrClosed
	}
	remote := &pipePeer{t}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.closed:
			return ErrClosed
		case e := <-t.recv:
			if handler != nil {
				handler(remote, e)
			}
		}
	}
}

// Close shuts this end for good. Serve returns and sends from either end fail with
// ErrClosed.
func (t *PipeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *PipeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Join makes the link a member of `room`, as seen from both ends
func (t *PipeTransport) Join(room string) {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	t.link.rooms.applyControl(&Envelope{Event: ChannelJoin, Room: room})
}

// Leave removes the link from `room`
func (t *PipeTransport) Leave(room string) {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	t.link.rooms.applyControl(&Envelope{Event: ChannelLeave, Room: room})
}

func (t *PipeTransport) Send(room string, e *Envelope) error {
	if room != "" && !t.link.inRoom(room) {
		return nil // no member
	}
	return t.sendToPeer(e)
}

func (t *PipeTransport) sendToPeer(e *Envelope) error {
	buf, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	e2, err := DecodeEnvelope(buf)
	if err != nil {
		return err
	}
	if t.isClosed() || t.peer.isClosed() {
		return ErrClosed
	}
	select {
	case <-t.closed:
		return ErrClosed
	case <-t.peer.closed:
		return ErrClosed
	case t.peer.recv <- e2:
		return nil
	}
}

// pipePeer is the remote end as seen by handlers of the local end
type pipePeer struct {
	local *PipeTransport
}

func (p *pipePeer) ID() string              { return p.local.peer.id }
func (p *pipePeer) InRoom(room string) bool { return p.local.link.inRoom(room) }
func (p *pipePeer) Send(e *Envelope) error  { return p.local.sendToPeer(e) }

func (p *pipePeer) Rooms() []string {
	p.local.link.mu.RLock()
	defer p.local.link.mu.RUnlock()
	return p.local.link.rooms.list()
}
