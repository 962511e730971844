// Package destinations implements the provider adapters the dispatcher
// fans out to. Every adapter maps provider failures onto the shared
// error taxonomy so the dispatcher can route retries without knowing
// provider details.
package destinations
