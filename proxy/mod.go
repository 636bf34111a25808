// Package proxy defines the HTTP front of a node that clients use to submit
// instructions and read the ledger.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives to implement an http server that handles client
// side requests.
type Proxy interface {
	// Listen starts the proxy server. This call is assumed to be blocking.
	Listen()

	// Stop stops the proxy server.
	Stop()

	// GetAddr returns the address the server listens on, or nil if it is not
	// listening yet.
	GetAddr() net.Addr

	// RegisterHandler registers a new handler for the method and the route
	// pattern. A pattern can name parameters in curly brackets.
	RegisterHandler(method, pattern string, handler http.HandlerFunc)
}
