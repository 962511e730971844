// Command docrelay is the document intake and delivery pipeline CLI.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docrelay/docrelay/internal/adapters/driven/blob"
	"github.com/docrelay/docrelay/internal/adapters/driven/config/file"
	"github.com/docrelay/docrelay/internal/adapters/driven/crypto"
	"github.com/docrelay/docrelay/internal/adapters/driven/destinations"
	extractclient "github.com/docrelay/docrelay/internal/adapters/driven/extract"
	"github.com/docrelay/docrelay/internal/adapters/driven/queue"
	"github.com/docrelay/docrelay/internal/adapters/driven/render/gotenberg"
	"github.com/docrelay/docrelay/internal/adapters/driven/storage/sqlite"
	"github.com/docrelay/docrelay/internal/adapters/driving/cli"
	"github.com/docrelay/docrelay/internal/adapters/driving/inbox"
	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/services"
	"github.com/docrelay/docrelay/internal/logger"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// secretsSalt is the fixed Argon2id salt for deriving the credential
// sealing key from the operator's master passphrase. Changing it
// invalidates every stored token.
const secretsSalt = "docrelay.credentials.v1"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	overrides, err := file.NewOverrideStore("")
	if err != nil {
		return fmt.Errorf("loading config overrides: %w", err)
	}

	dataDir := resolveDataDir(overrides)
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer store.Close()

	settings := services.NewSettingsService(overrides, store.SettingStore())

	passphrase, err := ensureSecretsKey(ctx, settings)
	if err != nil {
		return err
	}
	cipher := crypto.New([]byte(passphrase), []byte(secretsSalt))
	settings.UseCipher(cipher)

	if dataDir == "" {
		// The sqlite store already resolved the default location; blobs
		// and the queue live next to the metadata database.
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docrelay", "data")
	}

	blobs, err := blob.New(dataDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	visibility := settings.Duration(ctx, domain.KeyQueueVisibility, 2*time.Minute)
	tasks, err := queue.New(dataDir, queue.Options{Visibility: visibility})
	if err != nil {
		return fmt.Errorf("opening task queue: %w", err)
	}
	defer tasks.Close()

	rendererURL, _ := settings.Value(ctx, domain.KeyRendererURL)
	renderer := gotenberg.New(rendererURL, settings.Duration(ctx, domain.KeyRendererTimeout, 90*time.Second))

	extractTimeout := settings.Duration(ctx, domain.KeyExtractTimeout, 120*time.Second)
	var ocr driven.OCRService
	if url, _ := settings.Value(ctx, domain.KeyOCRURL); url != "" {
		ocr = extractclient.NewOCRClient(url, extractTimeout)
	}
	var metadata driven.MetadataService
	if url, _ := settings.Value(ctx, domain.KeyMetadataURL); url != "" {
		apiKey, _ := settings.Value(ctx, domain.KeyMetadataAPIKey)
		metadata = extractclient.NewMetadataClient(url, apiKey, extractTimeout)
	}

	docs := store.DocumentStore()
	dests := store.DestinationStore()
	deliveries := store.DeliveryStore()
	creds := store.CredentialStore(cipher)
	registry := destinations.NewRegistry()

	ingestSvc := services.NewIngestService(docs, blobs, tasks, settings)
	convertSvc := services.NewConvertService(docs, blobs, tasks, renderer)
	extractSvc := services.NewExtractService(docs, blobs, tasks, ocr, metadata, extractTimeout)
	credentialSvc := services.NewCredentialService(dests, creds, deliveries, settings)
	dispatchSvc := services.NewDispatchService(docs, dests, deliveries, blobs, tasks, registry, credentialSvc, settings)
	destinationSvc := services.NewDestinationService(dests, creds, registry, credentialSvc, settings)
	documentSvc := services.NewDocumentService(docs, deliveries, tasks)

	orchestrator := services.NewOrchestrator(
		tasks, convertSvc, extractSvc, dispatchSvc, settings,
		settings.Int(ctx, domain.KeyWorkerCount, 4), visibility)

	wired := cli.Services{
		Ingest:       ingestSvc,
		Documents:    documentSvc,
		Destinations: destinationSvc,
		Credentials:  credentialSvc,
		Settings:     settings,
		Pipeline:     orchestrator,
		Renderer:     renderer,
	}
	if dir, _ := settings.Value(ctx, domain.KeyInboxDir); dir != "" {
		wired.Inbox = inbox.NewWatcher(dir, ingestSvc)
	}

	cli.SetServices(wired)
	cli.SetVersion(version)

	return cli.Execute()
}

// resolveDataDir resolves the data directory before the database that
// normally backs settings resolution exists. Only the override file and
// the environment can place it; everything else uses the default.
func resolveDataDir(overrides driven.OverrideStore) string {
	if dir, ok := overrides.Get(domain.KeyDataDir); ok && dir != "" {
		return dir
	}
	return os.Getenv("DOCRELAY_CORE_DATA_DIR")
}

// ensureSecretsKey returns the master passphrase for sealing stored
// credentials, generating and persisting one on first run.
func ensureSecretsKey(ctx context.Context, settings *services.SettingsService) (string, error) {
	passphrase, err := settings.Value(ctx, domain.KeySecretsKey)
	if err != nil {
		return "", fmt.Errorf("resolving secrets key: %w", err)
	}
	if passphrase != "" {
		return passphrase, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating secrets key: %w", err)
	}
	passphrase = hex.EncodeToString(raw)

	if err := settings.Set(ctx, domain.KeySecretsKey, passphrase); err != nil {
		return "", fmt.Errorf("persisting secrets key: %w", err)
	}
	logger.Info("Generated a new secrets master key")
	return passphrase, nil
}
