package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
	"github.com/docrelay/docrelay/internal/logger"
)

// DispatchService owns the delivery fan-out: one deliver task per
// enabled destination, each retried independently. A failure at one
// destination never affects another.
type DispatchService struct {
	docs        driven.DocumentStore
	dests       driven.DestinationStore
	deliveries  driven.DeliveryStore
	blobs       driven.BlobStore
	queue       driven.TaskQueue
	registry    driven.AdapterRegistry
	credentials driving.CredentialService
	settings    *SettingsService

	// inFlight guards each (document, destination) pair so at most one
	// upload runs for it at a time.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDispatchService creates a new dispatch service.
func NewDispatchService(
	docs driven.DocumentStore,
	dests driven.DestinationStore,
	deliveries driven.DeliveryStore,
	blobs driven.BlobStore,
	queue driven.TaskQueue,
	registry driven.AdapterRegistry,
	credentials driving.CredentialService,
	settings *SettingsService,
) *DispatchService {
	return &DispatchService{
		docs:        docs,
		dests:       dests,
		deliveries:  deliveries,
		blobs:       blobs,
		queue:       queue,
		registry:    registry,
		credentials: credentials,
		settings:    settings,
		inFlight:    make(map[string]struct{}),
	}
}

// Run executes one dispatch task: it snapshots the enabled destinations
// and enqueues a deliver task for each. A document with no enabled
// destinations completes immediately.
func (s *DispatchService) Run(ctx context.Context, task domain.Task) error {
	doc, err := s.docs.Get(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Classified(domain.ErrClassPermanent,
				fmt.Errorf("dispatch: document %s vanished", task.DocumentID))
		}
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading document: %w", err))
	}

	if doc.Status == domain.StatusCancelled {
		return domain.ErrDocumentCancelled
	}

	dests, err := s.dests.ListEnabled(ctx)
	if err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("listing destinations: %w", err))
	}

	if len(dests) == 0 {
		logger.Info("dispatch: %s has no enabled destinations", doc.ID)
		if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusDelivered, ""); err != nil {
			return domain.Classified(domain.ErrClassTransient, fmt.Errorf("marking delivered: %w", err))
		}
		return nil
	}

	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusDelivering, ""); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("marking delivering: %w", err))
	}

	now := time.Now().UTC()
	for _, dest := range dests {
		existing, err := s.deliveries.Get(ctx, doc.ID, dest.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Classified(domain.ErrClassTransient, fmt.Errorf("checking delivery state: %w", err))
		}
		// Redelivered dispatch tasks must not reset pairs that already
		// finished.
		if existing != nil && existing.State.IsFinal() {
			continue
		}

		if existing == nil {
			attempt := domain.DeliveryAttempt{
				DocumentID:    doc.ID,
				DestinationID: dest.ID,
				State:         domain.DeliveryPending,
				UpdatedAt:     now,
			}
			if err := s.deliveries.Save(ctx, attempt); err != nil {
				return domain.Classified(domain.ErrClassTransient, fmt.Errorf("recording pending delivery: %w", err))
			}
		}

		// Publishing is keyed on the task's stable queue identity, so a
		// pair whose attempt row survived a crash before its task was
		// published gets the task here, and a pair whose task already
		// sits in the queue is untouched.
		task := domain.Task{
			DocumentID:    doc.ID,
			Stage:         domain.StageDeliver,
			DestinationID: dest.ID,
			Attempt:       1,
		}
		if err := s.queue.Publish(ctx, task, 0); err != nil {
			return domain.Classified(domain.ErrClassTransient, fmt.Errorf("enqueueing deliver task: %w", err))
		}
	}

	logger.Debug("dispatch: %s fanned out to %d destinations", doc.ID, len(dests))
	return nil
}

// Deliver executes one deliver task for a single (document, destination)
// pair. Transient failures are returned classified so the orchestrator
// can redeliver with backoff; every other outcome is recorded on the
// delivery attempt and acked.
func (s *DispatchService) Deliver(ctx context.Context, task domain.Task) error {
	pair := task.DocumentID + ":" + task.DestinationID
	if !s.tryLock(pair) {
		return domain.Classified(domain.ErrClassTransient,
			fmt.Errorf("delivery %s already in progress", pair))
	}
	defer s.unlock(pair)

	doc, err := s.docs.Get(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Classified(domain.ErrClassPermanent,
				fmt.Errorf("deliver: document %s vanished", task.DocumentID))
		}
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading document: %w", err))
	}
	if doc.Status == domain.StatusCancelled {
		return domain.ErrDocumentCancelled
	}

	attempt, err := s.deliveries.Get(ctx, task.DocumentID, task.DestinationID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading delivery state: %w", err))
	}
	if attempt == nil {
		attempt = &domain.DeliveryAttempt{
			DocumentID:    task.DocumentID,
			DestinationID: task.DestinationID,
			State:         domain.DeliveryPending,
		}
	}
	if attempt.State == domain.DeliverySucceeded {
		// Idempotent redelivery: the upload already happened.
		return s.rollup(ctx, doc.ID)
	}

	dest, err := s.dests.Get(ctx, task.DestinationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Destination deleted after fan-out. Terminal for this pair.
			return s.recordFailure(ctx, doc.ID, attempt,
				domain.Classified(domain.ErrClassPermanent, fmt.Errorf("destination %s no longer exists", task.DestinationID)))
		}
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("loading destination: %w", err))
	}
	if !dest.Enabled {
		// Disabled after fan-out. Close the pair out so the document's
		// roll-up is not stuck waiting on it.
		logger.Info("deliver: %s skipped, destination %s disabled", doc.ID, dest.ID)
		return s.recordFailure(ctx, doc.ID, attempt,
			domain.Classified(domain.ErrClassPermanent, fmt.Errorf("destination %s was disabled", dest.Name)))
	}

	attempt.State = domain.DeliveryInProgress
	attempt.Attempts = task.Attempt
	attempt.UpdatedAt = time.Now().UTC()
	if err := s.deliveries.Save(ctx, *attempt); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("marking in progress: %w", err))
	}

	result, err := s.upload(ctx, doc, dest)
	if err != nil {
		return s.routeFailure(ctx, doc.ID, dest, attempt, task.Attempt, err)
	}

	attempt.State = domain.DeliverySucceeded
	attempt.RemoteRef = result.RemoteRef
	attempt.LastError = ""
	attempt.LastErrorClass = ""
	attempt.UpdatedAt = time.Now().UTC()
	if err := s.deliveries.Save(ctx, *attempt); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("recording success: %w", err))
	}

	logger.Info("deliver: %s delivered to %s (%s)", doc.ID, dest.Name, result.RemoteRef)
	return s.rollup(ctx, doc.ID)
}

// upload resolves credentials, renders the target path and hands the
// canonical PDF to the provider adapter.
func (s *DispatchService) upload(ctx context.Context, doc *domain.Document, dest *domain.DestinationConfig) (*driven.DeliveryResult, error) {
	adapter, err := s.registry.Adapter(dest.Provider)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassPermanent, fmt.Errorf("resolving adapter: %w", err))
	}

	target, err := s.resolveTarget(ctx, dest)
	if err != nil {
		return nil, err
	}

	content, err := s.blobs.Open(ctx, doc.CanonicalKey)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("opening canonical pdf: %w", err))
	}
	defer content.Close()

	size, err := s.blobs.Size(ctx, doc.CanonicalKey)
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("sizing canonical pdf: %w", err))
	}

	req := driven.DeliveryRequest{
		Target:   target,
		Document: *doc,
		Path:     dest.RenderPath(doc, time.Now().UTC()),
		Filename: doc.DeliveredName(),
		Content:  content,
		Size:     size,
	}
	return adapter.Deliver(ctx, req)
}

func (s *DispatchService) resolveTarget(ctx context.Context, dest *domain.DestinationConfig) (driven.Target, error) {
	return resolveTarget(ctx, dest, s.credentials, s.settings)
}

// resolveTarget assembles the credential material for a destination:
// an OAuth token for cloud-drive providers, resolved secret settings
// for the rest.
func resolveTarget(ctx context.Context, dest *domain.DestinationConfig, credentials driving.CredentialService, settings *SettingsService) (driven.Target, error) {
	target := driven.Target{Destination: *dest}

	if dest.Provider.RequiresOAuth() {
		token, err := credentials.Token(ctx, dest.ID)
		if err != nil {
			return driven.Target{}, domain.Classified(domain.ErrClassAuthExpired,
				fmt.Errorf("resolving token for %s: %w", dest.Name, err))
		}
		target.Token = token
		return target, nil
	}

	keys := secretKeysFor(dest.Provider)
	if len(keys) == 0 {
		return target, nil
	}
	target.Secrets = make(map[string]string, len(keys))
	for _, key := range keys {
		val, err := settings.Value(ctx, key)
		if err != nil {
			return driven.Target{}, domain.Classified(domain.ErrClassTransient,
				fmt.Errorf("resolving %s: %w", key, err))
		}
		if val != "" {
			target.Secrets[key] = val
		}
	}
	return target, nil
}

// routeFailure records a delivery failure according to its class.
// Transient failures below the attempt bound are returned to the
// orchestrator for redelivery; everything else is final for this pair.
func (s *DispatchService) routeFailure(ctx context.Context, docID string, dest *domain.DestinationConfig, attempt *domain.DeliveryAttempt, attemptNo int, cause error) error {
	class := domain.Classify(cause)
	maxAttempts := s.settings.Int(ctx, domain.KeyDeliverAttempts, 5)

	attempt.LastErrorClass = class
	attempt.LastError = cause.Error()
	attempt.UpdatedAt = time.Now().UTC()

	switch {
	case class == domain.ErrClassAuthExpired:
		attempt.State = domain.DeliveryNeedsReauth
		if err := s.deliveries.Save(ctx, *attempt); err != nil {
			return domain.Classified(domain.ErrClassTransient, fmt.Errorf("recording reauth state: %w", err))
		}
		// Every other pending delivery to this destination hits the same
		// credential, so surface the reauth everywhere at once.
		if err := s.deliveries.MarkNeedsReauth(ctx, dest.ID); err != nil {
			logger.Error("deliver: marking %s needs_reauth: %v", dest.ID, err)
		}
		logger.Warn("deliver: %s to %s needs re-authorisation: %v", docID, dest.Name, cause)
		return s.rollup(ctx, docID)

	case class.Retryable() && attemptNo < maxAttempts:
		attempt.State = domain.DeliveryFailedRetryable
		attempt.NextRetryAt = time.Now().UTC().Add(s.RetryDelay(ctx, attemptNo))
		if err := s.deliveries.Save(ctx, *attempt); err != nil {
			return domain.Classified(domain.ErrClassTransient, fmt.Errorf("recording retryable failure: %w", err))
		}
		logger.Warn("deliver: %s to %s failed (attempt %d/%d), will retry: %v",
			docID, dest.Name, attemptNo, maxAttempts, cause)
		return domain.Classified(domain.ErrClassTransient, cause)

	default:
		return s.recordFailure(ctx, docID, attempt, cause)
	}
}

// recordFailure marks a pair terminally failed and acks the task.
func (s *DispatchService) recordFailure(ctx context.Context, docID string, attempt *domain.DeliveryAttempt, cause error) error {
	attempt.State = domain.DeliveryFailedTerminal
	attempt.LastErrorClass = domain.Classify(cause)
	attempt.LastError = cause.Error()
	attempt.UpdatedAt = time.Now().UTC()
	if err := s.deliveries.Save(ctx, *attempt); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("recording terminal failure: %w", err))
	}
	logger.Error("deliver: %s to destination %s failed terminally: %v", docID, attempt.DestinationID, cause)
	return s.rollup(ctx, docID)
}

// rollup recomputes the document status from its delivery attempts:
// delivered when every pair succeeded, partially delivered when at
// least one pair is final and not succeeded, delivering otherwise.
func (s *DispatchService) rollup(ctx context.Context, docID string) error {
	attempts, err := s.deliveries.ListByDocument(ctx, docID)
	if err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("listing deliveries: %w", err))
	}

	allDone := true
	allSucceeded := true
	for _, a := range attempts {
		if !a.State.IsFinal() {
			allDone = false
		}
		if a.State != domain.DeliverySucceeded {
			allSucceeded = false
		}
	}

	status := domain.StatusDelivering
	switch {
	case allDone && allSucceeded:
		status = domain.StatusDelivered
	case allDone:
		status = domain.StatusPartiallyDelivered
	}

	if err := s.docs.UpdateStatus(ctx, docID, status, ""); err != nil {
		return domain.Classified(domain.ErrClassTransient, fmt.Errorf("updating document status: %w", err))
	}
	return nil
}

// RetryDelay returns the backoff before redelivering a transient
// failure: exponential from the configured base, capped at the
// configured maximum.
func (s *DispatchService) RetryDelay(ctx context.Context, attemptNo int) time.Duration {
	base := s.settings.Duration(ctx, domain.KeyRetryBaseDelay, 10*time.Second)
	max := s.settings.Duration(ctx, domain.KeyRetryMaxDelay, 10*time.Minute)

	delay := base
	for i := 1; i < attemptNo; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// secretKeysFor maps a provider to the sensitive setting keys its
// adapter may need. OAuth providers carry no secret keys here; their
// credential material comes from the token store.
func secretKeysFor(provider domain.ProviderType) []string {
	switch provider {
	case domain.ProviderS3:
		return []string{domain.KeyS3SecretKey}
	case domain.ProviderWebDAV:
		return []string{domain.KeyWebDAVPassword}
	case domain.ProviderSFTP:
		return []string{domain.KeySFTPPassword}
	case domain.ProviderPaperless:
		return []string{domain.KeyPaperlessToken}
	case domain.ProviderMail:
		return []string{domain.KeySMTPPassword}
	default:
		return nil
	}
}

func (s *DispatchService) tryLock(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inFlight[pair]; held {
		return false
	}
	s.inFlight[pair] = struct{}{}
	return true
}

func (s *DispatchService) unlock(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, pair)
}
