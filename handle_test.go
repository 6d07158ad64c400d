package wsipc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkHandler(t *testing.T, h *Handlers, room, name, input, expectedOutput string) {
	t.Helper()
	handler := h.Find(room, name)
	if handler == nil {
		t.Errorf("handler '%s' not found", name)
		return
	}
	outbuf, err := handler(nil, name, []byte(input))
	if assert.NoError(t, err, "handler '%s'", name) {
		assert.Equal(t, expectedOutput, string(outbuf), "handler '%s'", name)
	}
}

func TestFuncHandlers(t *testing.T) {
	h := NewHandlers()

	// Handlers.Handle panics when the signature is incorrect, so treat panic as test failure
	defer recoverAsFail(t)

	invocationCount := 0

	// All handler func shapes (with `int` value types)
	h.Handle("a", func(p Peer, channel string, v int) (int, error) {
		assert.Equal(t, "a", channel)
		invocationCount++
		return v + 1, nil
	})
	h.Handle("b", func(p Peer, v int) (int, error) {
		invocationCount++
		return v + 1, nil
	})
	h.Handle("c", func(v int) (int, error) {
		invocationCount++
		return v + 1, nil
	})
	h.Handle("d", func(v int) int {
		invocationCount++
		return v + 1
	})
	h.Handle("e", func() (int, error) {
		invocationCount++
		return 1, nil
	})
	h.Handle("f", func(channel string, v int) error {
		assert.Equal(t, "f", channel)
		invocationCount++
		return nil
	})
	h.Handle("g", func(v int) {
		invocationCount++
	})
	h.Handle("h", func(p Peer) {
		assert.Nil(t, p)
		invocationCount++
	})
	h.Handle("i", func() {
		invocationCount++
	})
	h.Handle("j", func(v *struct{ N int }) *struct{ N int } {
		invocationCount++
		return nil
	})
	h.Handle("", func(channel string, v int) {
		assert.Contains(t, []string{"fallback1", "fallback2"}, channel)
		invocationCount++
	})

	checkHandler(t, h, "", "a", "1", "2")
	checkHandler(t, h, "", "b", "1", "2")
	checkHandler(t, h, "", "c", "1", "2")
	checkHandler(t, h, "", "d", "1", "2")
	checkHandler(t, h, "", "e", "", "1")
	checkHandler(t, h, "", "f", "1", "")
	checkHandler(t, h, "", "g", "1", "")
	checkHandler(t, h, "", "h", "", "")
	checkHandler(t, h, "", "i", "", "")
	checkHandler(t, h, "", "j", `{"N":1}`, "null")
	checkHandler(t, h, "", "fallback1", "1", "")
	checkHandler(t, h, "", "fallback2", "1", "")

	assert.Equal(t, 12, invocationCount, "not all handlers were invoked")
}

func TestFuncHandlerProducesValue(t *testing.T) {
	h := NewHandlers()
	h.Handle("value", func(v int) int { return v })
	h.Handle("novalue", func(v int) error { return nil })

	out, err := h.Find("", "value")(nil, "value", []byte("0"))
	require.NoError(t, err)
	assert.NotNil(t, out, "a value-returning handler always produces a value")

	out, err = h.Find("", "novalue")(nil, "novalue", []byte("0"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFuncHandlerErrors(t *testing.T) {
	h := NewHandlers()
	h.Handle("fail", func(v int) (int, error) { return 0, errors.New("nope") })

	_, err := h.Find("", "fail")(nil, "fail", []byte("1"))
	assert.EqualError(t, err, "nope")

	_, err = h.Find("", "fail")(nil, "fail", []byte(`"not an int"`))
	assert.Error(t, err, "payload which does not decode into the parameter type")
}

func TestBufferHandler(t *testing.T) {
	h := NewHandlers()
	h.HandleBuffer("echo", func(p Peer, channel string, b []byte) ([]byte, error) {
		return b, nil
	})
	h.Handle("echo2", func(p Peer, channel string, b []byte) ([]byte, error) {
		return b, nil
	})
	checkHandler(t, h, "", "echo", `"raw"`, `"raw"`)
	checkHandler(t, h, "", "echo2", `{"x":1}`, `{"x":1}`)
}

func TestBadHandlerSignatures(t *testing.T) {
	h := NewHandlers()
	assertPanic(t, "must be a function", func() { h.Handle("x", 123) })
	assertPanic(t, "nil handler", func() { h.Handle("x", nil) })
	assertPanic(t, "invalid handler", func() { h.Handle("x", func(a, b, c int) {}) })
	assertPanic(t, "invalid handler", func() { h.Handle("x", func(a int, b int) {}) })
	assertPanic(t, "invalid handler", func() { h.Handle("x", func() (int, int) { return 0, 0 }) })
	assertPanic(t, "invalid handler", func() { h.Handle("x", func() (int, error, int) { return 0, nil, 0 }) })
}

func TestHandlerLookupOrder(t *testing.T) {
	h := NewHandlers()
	mark := func(name string) BufferHandler {
		return func(Peer, string, []byte) ([]byte, error) { return []byte(name), nil }
	}
	which := func(room, channel string) string {
		handler := h.Find(room, channel)
		if handler == nil {
			return "none"
		}
		out, _ := handler(nil, channel, nil)
		return string(out)
	}

	assert.Equal(t, "none", which("", "c"))
	assert.Equal(t, "none", which("r", "c"))

	h.HandleBuffer("", mark("catch-all"))
	assert.Equal(t, "catch-all", which("", "c"))
	assert.Equal(t, "catch-all", which("r", "c"))

	h.HandleBuffer("c", mark("global"))
	assert.Equal(t, "global", which("", "c"))
	assert.Equal(t, "global", which("r", "c"))

	h.HandleRoomBuffer("r", "c", mark("room"))
	assert.Equal(t, "room", which("r", "c"), "room handler shadows the global one")
	assert.Equal(t, "global", which("", "c"))
	assert.Equal(t, "global", which("other", "c"))
	assert.Equal(t, "catch-all", which("r", "d"))

	h.RemoveRoom("r", "c")
	assert.Equal(t, "global", which("r", "c"))
	h.Remove("c")
	assert.Equal(t, "catch-all", which("r", "c"))
	h.Remove("")
	assert.Equal(t, "none", which("r", "c"))
}

func TestHandlerLastRegistrationWins(t *testing.T) {
	h := NewHandlers()
	h.Handle("c", func() int { return 1 })
	h.Handle("c", func() int { return 2 })
	h.HandleRoom("r", "c", func() int { return 3 })
	h.HandleRoom("r", "c", func() int { return 4 })
	checkHandler(t, h, "", "c", "", "2")
	checkHandler(t, h, "r", "c", "", "4")
}

func TestHandlerRemoveAbsentIsNoop(t *testing.T) {
	h := NewHandlers()
	defer recoverAsFail(t)
	h.Remove("missing")
	h.RemoveRoom("missing", "missing")
	h.Handle("c", func() {})
	h.RemoveRoom("r", "c")
	assert.NotNil(t, h.Find("", "c"))
	assert.Empty(t, h.rooms)
}

func TestHandleRoomWithoutRoomIsGlobal(t *testing.T) {
	h := NewHandlers()
	h.HandleRoom("", "c", func() int { return 7 })
	checkHandler(t, h, "", "c", "", "7")
}
