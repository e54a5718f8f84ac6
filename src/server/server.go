package server

import (
	"net/http"

	"github.com/gorilla/mux"
	stats "github.com/lyft/gostats"
)

type Server interface {
	/**
	 * Starts the gateway and debug HTTP servers. This should be done after
	 * all routes and middleware have been registered through 'Router'.
	 */
	Start()

	/**
	 * Returns the root of the stats tree for the server.
	 */
	Scope() stats.Scope

	/**
	 * Returns the router serving the gateway port. Routes must be
	 * registered before 'Start'.
	 */
	Router() *mux.Router

	/**
	 * Add an HTTP endpoint to the local debug port.
	 */
	AddDebugHttpEndpoint(path string, help string, handler http.HandlerFunc)

	/**
	 * Returns the admission feed backing the debug websocket endpoint.
	 */
	AdmissionFeed() *AdmissionFeed

	/**
	 * Returns the health checker for the server.
	 */
	HealthChecker() *HealthChecker

	/**
	 * Stops serving (for integration testing).
	 */
	Stop()
}
