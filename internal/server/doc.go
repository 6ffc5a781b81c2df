// Package server exposes the controller over HTTP and websockets.
//
// It is a second front end next to the terminal UI: a browser or script can
// watch the discovered devices and the pixel grid, and drive them with the
// same operations the terminal offers.
//
// # Endpoints
//
//   - GET /api/state returns the current State as JSON
//   - GET /ws upgrades to a websocket
//
// No page is served, so browser clients are always cross-origin. Config.AllowedOrigins
// restricts which Origin values may connect; empty allows any, and /api/state then
// answers with Access-Control-Allow-Origin: *.
//
// # Websocket Messages
//
// On connect, and after every change to the session or the grid, the server
// sends:
//
//	{"type":"state","state":{"devices":[...],"selected":{...},"rows":32,...}}
//
// Clients send commands:
//
//	{"type":"toggle","row":0,"col":0}
//	{"type":"select","name":"neopixel-4f2a","address":"192.168.1.130"}
//	{"type":"manual","address":"192.168.1.50"}
//	{"type":"rescan"}
//
// A command that cannot be applied is answered with
// {"type":"error","message":"..."} to that client only.
//
// # Usage Example
//
//	srv := server.New(&server.Config{Listen: ":8080"}, session, store)
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	// Start blocks until ctx is done, then shuts down gracefully
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Logging
//
// Each websocket connection is tagged with a random UUID that appears in
// every log line about it:
//   - debug: commands received and rejected
//   - info: connections opened and closed, server lifecycle
//   - warn: slow clients dropped
//
// # Graceful Shutdown
//
// When the context ends the server stops accepting connections, closes the
// open websockets and waits up to ten seconds for their goroutines to exit.
package server
