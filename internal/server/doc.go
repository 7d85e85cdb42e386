// Package server implements the HTTP and websocket front of the chat
// service.
//
// The Hub owns attached clients and fans frames out to them, each Client
// runs a read and a write pump over its websocket, and the Coordinator
// ties connections to the handshake, presence, message pipeline and file
// transfer packages. Server wires the HTTP routes: health, login, logout,
// the websocket endpoint and Prometheus metrics.
package server
