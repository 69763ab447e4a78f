// Package server implements the HTTP and WebSocket transport for the
// mini-chats service.
//
// The implementation is organized into specialized files for configuration,
// connection sessions, routing, and HTTP handlers. The dispatch core lives in
// the dispatch package; this package only terminates connections, validates
// frames, and forwards commands to the dispatcher.
package server
