// Package server is the WebSocket transport of the room relay.
//
// A Hub owns every live Client, keyed by connection id, and implements the
// relay Sender used by the signaling handler. Each Client runs a read pump
// that hands frames to the handler and a write pump that drains its send
// buffer. Configuration, origin checks, HTTP routes and server lifecycle
// helpers live alongside.
package server
