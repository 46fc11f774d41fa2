// Package gateway is the websocket front door of the realtime pipeline.
//
// Each connection joins the room of one list ("list:<listId>") after its
// bearer token is verified. Inbound frames are validated and routed as
// commands; results arriving on the backbone are written to every member of
// the matching room, except targeted results which go to a single
// connection.
//
// Frames in both directions have the shape {"event": "...", "data": {...}}.
package gateway
