// Package router implements the upstream frame codec and event routing.
//
// The upstream speaks an Engine.IO/Socket.IO style envelope over WebSocket text frames:
//   - "2" is a liveness probe and is answered with "3"
//   - 40{"token":"..."} authenticates the socket, sent once on open
//   - 42["event", payload] carries application events in both directions
//
// Route classifies inbound frames into typed messages; malformed frames are
// reported as KindDropped and never surface as errors.
package router
