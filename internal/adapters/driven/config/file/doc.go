// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - OverrideStore: TOML-based runtime configuration overrides
package file
