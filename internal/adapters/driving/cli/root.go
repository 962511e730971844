// Package cli implements the docrelay command tree. Commands talk to
// the core services exclusively through the driving ports; main wires
// concrete implementations in before Execute runs.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// version is stamped by the build; overridden via SetVersion.
var version = "dev"

// Runner is a long-running component owned by the serve command.
type Runner interface {
	Run(ctx context.Context) error
}

// HealthChecker reports readiness of an external dependency.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Wired services. Nil until main injects them; every command guards
// against running unwired.
var (
	ingestService      driving.IngestService
	documentService    driving.DocumentService
	destinationService driving.DestinationService
	credentialService  driving.CredentialService
	settingsService    driving.SettingsService
	pipelineRunner     driving.PipelineRunner
	inboxRunner        Runner
	rendererHealth     HealthChecker
)

// Services bundles everything main wires into the command tree.
type Services struct {
	// Ingest is the single entry point for documents.
	Ingest driving.IngestService

	// Documents exposes inspection, cancel and retry.
	Documents driving.DocumentService

	// Destinations manages destination configurations.
	Destinations driving.DestinationService

	// Credentials manages the OAuth credential lifecycle.
	Credentials driving.CredentialService

	// Settings resolves and writes configuration.
	Settings driving.SettingsService

	// Pipeline drives the queue workers; owned by serve.
	Pipeline driving.PipelineRunner

	// Inbox is the watched-directory ingester. Nil when no inbox
	// directory is configured.
	Inbox Runner

	// Renderer is polled for readiness before serve starts workers.
	Renderer HealthChecker
}

// SetServices injects the wired services into the command tree.
func SetServices(s Services) {
	ingestService = s.Ingest
	documentService = s.Documents
	destinationService = s.Destinations
	credentialService = s.Credentials
	settingsService = s.Settings
	pipelineRunner = s.Pipeline
	inboxRunner = s.Inbox
	rendererHealth = s.Renderer
}

// SetVersion overrides the reported version string.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// verbose enables debug logging for all commands.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docrelay",
	Short: "Document intake and delivery pipeline",
	Long: `docrelay ingests documents, converts them to a canonical PDF,
extracts text and metadata best-effort, and delivers the result to the
configured destinations (cloud drives, object storage, WebDAV, SFTP,
a DMS consume endpoint, or email).

Run 'docrelay serve' to start the pipeline workers, then feed it with
'docrelay upload', 'docrelay fetch' or the watched inbox directory.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
