// Package engine drives the signal loop and exposes its run state to the
// command surfaces (webhook, HTTP API, gRPC health).
package engine

// Service is the only view the API layer has of the engine.
type Service interface {
	// Start arms the scheduler. It reports false when it was already running.
	Start() bool
	// IsRunning reports whether the scheduler loop is active.
	IsRunning() bool
	// Status returns a snapshot for operators.
	Status() SystemStatus
}
