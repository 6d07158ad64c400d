package wsipc

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// run is the state of one Start..Kill cycle
type run struct {
	inbox   chan inbound
	done    chan struct{}
	pending *pendingTable
	cancel  context.CancelFunc
	group   errgroup.Group // transport

	dispatched chan struct{} // closed when the dispatch loop returned
	handling   atomic.Bool   // a handler is running on the dispatch goroutine
	stopOnce   sync.Once
}

// stop cancels the transport and tells the dispatch loop to return
func (r *run) stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		close(r.done)
	})
}

// listener is implemented by transports which can bind their address before serving
type listener interface {
	Listen() error
}

// Start serves the transport and starts dispatching on background goroutines; it does not
// block. Calling Start on a running instance logs a warning and returns ErrAlreadyRunning
// without starting anything.
//
// If the transport can bind its address up front (like WebSocketServer), a failure to do so
// is returned by Start. A transport which stops serving on its own with an error ends the
// run: the error is logged and the instance is no longer running.
func (ipc *IPC) Start() error {
	ipc.mu.Lock()
	defer ipc.mu.Unlock()
	if ipc.current.Load() != nil {
		ipc.log.Warn().Msg("already running")
		return ErrAlreadyRunning
	}
	if l, ok := ipc.transport.(listener); ok {
		if err := l.Listen(); err != nil {
			ipc.log.Error().Err(err).Msg("listen")
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		inbox:      make(chan inbound, ipc.limits.inboxSize()),
		done:       make(chan struct{}),
		pending:    newPendingTable(),
		cancel:     cancel,
		dispatched: make(chan struct{}),
	}
	go func() {
		defer close(r.dispatched)
		ipc.dispatchLoop(r)
	}()
	r.group.Go(func() error {
		err := ipc.transport.Serve(ctx)
		if err != nil {
			ipc.log.Error().Err(err).Msg("transport stopped serving")
			if ipc.current.CompareAndSwap(r, nil) {
				r.stop()
			}
		}
		return err
	})
	ipc.current.Store(r)
	ipc.log.Info().Msg("started")
	return nil
}

// Kill stops the transport and the dispatcher and waits for both to finish. Calling Kill on
// an instance which is not running logs a warning and returns ErrNotRunning.
//
// Kill may be called from a handler. A handler in progress when Kill is called (the calling
// one, or one running concurrently with a Kill from another goroutine) is not waited for;
// the dispatcher exits when it returns and dispatches nothing after it.
//
// Invoke calls still waiting when Kill is called end with their timeout, as their replies
// can no longer arrive.
func (ipc *IPC) Kill() error {
	ipc.mu.Lock()
	defer ipc.mu.Unlock()
	r := ipc.current.Load()
	if r == nil {
		ipc.log.Warn().Msg("not running")
		return ErrNotRunning
	}
	ipc.current.Store(nil)

	r.stop()
	err := r.group.Wait()
	if !r.handling.Load() {
		<-r.dispatched
	}
	ipc.log.Info().Msg("stopped")
	return err
}

// Running reports whether the instance has been started and not yet killed
func (ipc *IPC) Running() bool {
	return ipc.current.Load() != nil
}
