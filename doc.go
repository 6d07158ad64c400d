/*
Wsipc connects two independent processes, typically a native host process and a UI renderer,
over a persistent websocket connection.

It offers two ways of communicating:

 1. Fire-and-forget publish/subscribe on named channels, optionally scoped to a room
 2. Request/response ("invoke") with a bounded wait

Both sides use the same engine: an IPC value with a registry of channel handlers, a table of
pending requests and a dispatcher which routes each inbound message to exactly one handler,
or hands it to the Invoke call waiting for it.

# Host example

Here is a minimal host which answers "square" requests and greets every renderer:

	package main
	import "github.com/rsms/wsipc"
	func main() {
		cfg := wsipc.DefaultConfig()
		srv := wsipc.NewWebSocketServer(cfg)
		ipc := wsipc.New(srv, cfg)
		ipc.On("square", func(n int) int { return n * n })
		srv.AcceptHandler = func(s *wsipc.Sock) {
			e, _ := wsipc.NewEnvelope("hello", "renderer")
			s.Send(e)
		}
		ipc.Start()
		defer ipc.Kill()
		select {}
	}

A browser renderer loads the client library from the endpoint and talks back:

	<script src="http://localhost:5000/ipc/ipc.js"></script>
	<script>
	const ipc = wsipc.connect("ws://localhost:5000/ipc/")
	ipc.on("hello", name => console.log("hello", name))
	ipc.invoke("square", 5, 1000).then(v => console.log(v)) // 25
	</script>

A Go renderer uses Dial instead of a WebSocketServer:

	c, _ := wsipc.Dial(ctx, "ws://localhost:5000/ipc/", wsipc.DefaultLimits)
	ipc := wsipc.New(c, wsipc.DefaultConfig())
	ipc.Start()
	res, err := ipc.Invoke("square", 5, time.Second)

# Routing

An inbound message is routed, in this order, to: the Invoke call waiting for its response_id,
the handler registered for its room and channel, the global handler for its channel, the
catch-all handler. Messages nothing applies to are dropped and logged at debug level.

Handlers run one at a time on the instance's dispatch goroutine. A handler which returns an
error or panics is logged and does not affect the dispatch of later messages.

# Wire format

Every message is a JSON text frame:

	{"event": "square", "data": 5, "response_id": "Vx3...", "room": "lobby"}

"channel" and "payload" are accepted in place of "event" and "data". Replies carry the
request's response_id and "reply": true, and "error" when the remote handler failed.
*/
package wsipc
