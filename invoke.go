package wsipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Invoke sends `data` on `event` to every connected peer and waits for the first reply.
// It returns the reply's raw JSON data, or an error wrapping ErrTimeout if no reply arrived
// within `timeout`. A timeout <= 0 means the configured Config.InvokeTimeout.
//
// If the peer's handler failed, the returned error is a *RemoteError.
func (ipc *IPC) Invoke(event string, data interface{}, timeout time.Duration) (json.RawMessage, error) {
	return ipc.invoke("", event, data, timeout)
}

// InvokeRoom is like Invoke but only sends the request to members of `room`
func (ipc *IPC) InvokeRoom(room, event string, data interface{}, timeout time.Duration) (json.RawMessage, error) {
	return ipc.invoke(room, event, data, timeout)
}

// Call is Invoke with JSON decoding of the reply into `out` (which may be nil)
func (ipc *IPC) Call(event string, in interface{}, out interface{}, timeout time.Duration) error {
	res, err := ipc.Invoke(event, in, timeout)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("invoke %q: decode reply: %w", event, err)
	}
	return nil
}

func (ipc *IPC) invoke(room, event string, data interface{}, timeout time.Duration) (json.RawMessage, error) {
	r := ipc.current.Load()
	if r == nil {
		return nil, ErrNotRunning
	}
	if timeout <= 0 {
		timeout = ipc.timeout
	}
	buf, err := encodeData(data)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", event, err)
	}

	if !ipc.pending.inc() {
		invokes.WithLabelValues(ipc.name, resultRejected).Inc()
		return nil, fmt.Errorf("invoke %q: %w", event, ErrTooManyPending)
	}
	defer ipc.pending.dec()
	gauge := pendingGauge.WithLabelValues(ipc.name)
	gauge.Inc()
	defer gauge.Dec()

	pr := r.pending.alloc(time.Now().Add(timeout))
	req := &Envelope{Event: event, Data: buf, ResponseID: pr.id, Room: room}
	if err := ipc.transport.Send(room, req); err != nil {
		r.pending.remove(pr.id)
		invokes.WithLabelValues(ipc.name, resultSendError).Inc()
		return nil, fmt.Errorf("invoke %q: %w", event, err)
	}

	timer := time.NewTimer(time.Until(pr.deadline))
	defer timer.Stop()

	var res *Envelope
	select {
	case res = <-pr.res:
	case <-timer.C:
		if r.pending.expire(pr.id) {
			ipc.log.Debug().Str("event", event).Str("response_id", pr.id).Dur("timeout", timeout).
				Msg("invoke timed out")
			invokes.WithLabelValues(ipc.name, resultTimeout).Inc()
			return nil, fmt.Errorf("invoke %q: %w", event, ErrTimeout)
		}
		// resolved while the timer fired; the reply is already in flight
		res = <-pr.res
	}

	if res.Error != "" {
		invokes.WithLabelValues(ipc.name, resultRemoteError).Inc()
		return nil, &RemoteError{Event: event, Message: res.Error}
	}
	invokes.WithLabelValues(ipc.name, resultOK).Inc()
	return res.Data, nil
}
