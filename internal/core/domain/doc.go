// Package domain defines the core business entities for docrelay.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested document moving through the pipeline
//   - DestinationConfig: A configured delivery target
//   - DeliveryAttempt: Per-(document, destination) delivery state
//   - Setting: A configuration value with its resolution source
//   - CredentialToken: OAuth tokens for a destination
//   - Task: A queued stage transition
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
