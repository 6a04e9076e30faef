// Package api provides the HTTP server exposing conversation operations:
// CRUD, graph inspection, checkout, fork, merge, and streaming chat.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}
