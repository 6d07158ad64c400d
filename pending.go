package wsipc

import (
	"crypto/rand"
	"sync"
	"time"
)

const (
	responseIDLen      = 32
	responseIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// newResponseID returns a random 32-character alphanumeric token (about 190 bits)
func newResponseID() string {
	// rejection sampling keeps the distribution uniform over the 62-symbol alphabet
	const maxByte = 256 - (256 % len(responseIDAlphabet))
	id := make([]byte, 0, responseIDLen)
	buf := make([]byte, responseIDLen+responseIDLen/2)
	for len(id) < responseIDLen {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			id = append(id, responseIDAlphabet[int(b)%len(responseIDAlphabet)])
			if len(id) == responseIDLen {
				break
			}
		}
	}
	return string(id)
}

// pendingRequest is the bookkeeping for one in-flight Invoke call
type pendingRequest struct {
	id       string
	deadline time.Time
	res      chan *Envelope // receives exactly one value, from resolve
}

// How long the id of a timed-out request is remembered, so that its late reply is dropped
// even when the peer does not flag it as a reply
const expiredTTL = time.Minute

type expiredID struct {
	id string
	at time.Time
}

// pendingTable maps response ids to in-flight requests. An entry leaves the table exactly
// once: either through resolve (a reply arrived) or through remove/expire (the caller gave up).
type pendingTable struct {
	mu sync.Mutex
	m  map[string]*pendingRequest

	expired      map[string]struct{}
	expiredOrder []expiredID // oldest first
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		m:       make(map[string]*pendingRequest),
		expired: make(map[string]struct{}),
	}
}

func (t *pendingTable) alloc(deadline time.Time) *pendingRequest {
	pr := &pendingRequest{deadline: deadline, res: make(chan *Envelope, 1)}
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		pr.id = newResponseID()
		if _, exists := t.m[pr.id]; !exists {
			break
		}
	}
	t.m[pr.id] = pr
	return pr
}

// resolve hands `e` to the request waiting for `id`. Returns false if there is no such
// request, i.e. it was never issued, already resolved or timed out.
func (t *pendingTable) resolve(id string, e *Envelope) bool {
	t.mu.Lock()
	pr := t.m[id]
	if pr != nil {
		delete(t.m, id)
	}
	t.mu.Unlock()
	if pr == nil {
		return false
	}
	pr.res <- e
	return true
}

// remove drops the request for `id`. Returns false if it was already resolved.
func (t *pendingTable) remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; !ok {
		return false
	}
	delete(t.m, id)
	return true
}

// expire is remove for a request which timed out: its id is remembered for expiredTTL and
// reported by isExpired.
func (t *pendingTable) expire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; !ok {
		return false
	}
	delete(t.m, id)
	now := time.Now()
	t.pruneLocked(now)
	t.expired[id] = struct{}{}
	t.expiredOrder = append(t.expiredOrder, expiredID{id, now})
	return true
}

// isExpired reports whether `id` belongs to a request which timed out recently
func (t *pendingTable) isExpired(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(time.Now())
	_, ok := t.expired[id]
	return ok
}

func (t *pendingTable) pruneLocked(now time.Time) {
	n := 0
	for n < len(t.expiredOrder) && now.Sub(t.expiredOrder[n].at) >= expiredTTL {
		delete(t.expired, t.expiredOrder[n].id)
		n++
	}
	if n > 0 {
		t.expiredOrder = append(t.expiredOrder[:0], t.expiredOrder[n:]...)
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
