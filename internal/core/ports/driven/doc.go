// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to function:
//
//   - DocumentStore: Document persistence
//   - DestinationStore: Destination configuration persistence
//   - DeliveryStore: Per-(document, destination) attempt persistence
//   - SettingStore: Database-layer settings persistence
//   - CredentialStore: OAuth token persistence
//   - BlobStore: Content-addressed artifact storage
//   - TaskQueue: Durable at-least-once stage transport
//   - Renderer: External PDF renderer
//   - DestinationAdapter: One delivery implementation per provider
//
// # Optional Interfaces
//
// These can be nil - the pipeline degrades gracefully:
//
//   - OCRService: Full-text recovery. Without it, extraction records no text.
//   - MetadataService: AI field extraction. Without it, documents deliver
//     with filename-derived metadata only.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or destination package
package driven
