package wsipc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimit(t *testing.T) {
	l := limit{limit: 2}
	assert.True(t, l.inc())
	assert.True(t, l.inc())
	assert.False(t, l.inc(), "over the limit")
	assert.Equal(t, uint32(2), l.current())
	l.dec()
	assert.True(t, l.inc())
	l.dec()
	l.dec()
	assert.Equal(t, uint32(0), l.current())
}

func TestLimitUnlimited(t *testing.T) {
	l := limit{}
	for i := 0; i < 1000; i++ {
		assert.True(t, l.inc())
	}
	assert.Equal(t, uint32(1000), l.current())
}

func TestLimitConcurrent(t *testing.T) {
	l := limit{limit: 10}
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.inc() {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, accepted)
	assert.Equal(t, uint32(10), l.current())
}

func TestInboxSize(t *testing.T) {
	assert.Equal(t, DefaultLimits.InboxSize, Limits{}.inboxSize())
	assert.Equal(t, 3, Limits{InboxSize: 3}.inboxSize())
}
