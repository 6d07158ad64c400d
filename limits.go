package wsipc

import (
	"sync/atomic"
	"time"
)

// Limits bounds resource use of an IPC instance and its transports
type Limits struct {
	// Maximum number of Invoke calls waiting for a reply at the same time. 0 means unlimited.
	MaxPending uint32

	// Maximum size in bytes of an inbound message. Larger messages close the connection.
	// 0 means unlimited.
	MaxMessageSize int64

	// How long a connection may stay silent before it is closed. 0 disables the timeout.
	// Clients keep an idle connection open by sending keepalives within this interval.
	ReadTimeout time.Duration

	// How long a single write may block on a peer which does not read. The connection is
	// closed when it expires. 0 means 10 seconds.
	WriteTimeout time.Duration

	// Capacity of the dispatcher's inbound queue. Readers block when it is full.
	InboxSize int
}

// DefaultLimits does not limit pending requests and allows messages up to 4MB
var DefaultLimits = Limits{
	MaxMessageSize: 4 << 20,
	InboxSize:      256,
}

func (l Limits) inboxSize() int {
	if l.InboxSize <= 0 {
		return DefaultLimits.InboxSize
	}
	return l.InboxSize
}

const defaultWriteTimeout = 10 * time.Second

func (l Limits) writeTimeout() time.Duration {
	if l.WriteTimeout <= 0 {
		return defaultWriteTimeout
	}
	return l.WriteTimeout
}

// -----------------------------------------------------------------------------------------------

// limit is a counter with an upper bound. A zero bound means unlimited.
type limit struct {
	limit uint32
	count uint32
}

func (l *limit) inc() bool {
	n := atomic.AddUint32(&l.count, 1)
	if l.limit != 0 && n > l.limit {
		l.dec()
		return false
	}
	return true
}

func (l *limit) dec() {
	atomic.AddUint32(&l.count, ^uint32(0)) // see godoc sync/atomic/#AddUint32
}

func (l *limit) current() uint32 {
	return atomic.LoadUint32(&l.count)
}
