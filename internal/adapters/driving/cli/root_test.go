package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driving"
)

// Fakes for the driving ports. Each returns canned data so command
// output can be asserted without any real stores.

type fakeIngestSvc struct {
	err error
}

func (f *fakeIngestSvc) Ingest(_ context.Context, req driving.IngestRequest) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, _ = io.Copy(io.Discard, req.Content)
	return &domain.Document{
		ID:           "doc-1",
		OriginalName: req.Filename,
		MimeType:     "application/pdf",
		Size:         16,
		Status:       domain.StatusReceived,
	}, nil
}

func (f *fakeIngestSvc) IngestURL(_ context.Context, rawURL string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{
		ID:           "doc-2",
		OriginalName: "remote.pdf",
		MimeType:     "application/pdf",
		Size:         32,
		Status:       domain.StatusReceived,
	}, nil
}

type fakeDocSvc struct {
	cancelErr error
	retryErr  error
}

func (f *fakeDocSvc) Get(_ context.Context, id string) (*domain.Document, error) {
	return &domain.Document{ID: id, OriginalName: "scan.pdf"}, nil
}

func (f *fakeDocSvc) List(context.Context) ([]domain.Document, error) {
	return []domain.Document{
		{ID: "doc-1", OriginalName: "Invoice Jan.docx", Status: domain.StatusDelivered},
		{ID: "doc-2", OriginalName: "contract.pdf", Status: domain.StatusFailed, FailureReason: domain.FailureConversion},
	}, nil
}

func (f *fakeDocSvc) Status(_ context.Context, id string) (*driving.DocumentStatusView, error) {
	return &driving.DocumentStatusView{
		Document: domain.Document{
			ID:           id,
			OriginalName: "Invoice Jan.docx",
			MimeType:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Size:         2048,
			Status:       domain.StatusPartiallyDelivered,
			PageCount:    2,
			Metadata:     &domain.ExtractedMetadata{Title: "January Invoice"},
		},
		Deliveries: []domain.DeliveryAttempt{
			{DocumentID: id, DestinationID: "dest-ok", State: domain.DeliverySucceeded, Attempts: 1, RemoteRef: "file-123"},
			{DocumentID: id, DestinationID: "dest-bad", State: domain.DeliveryFailedTerminal, Attempts: 5, LastError: "bucket gone"},
		},
	}, nil
}

func (f *fakeDocSvc) Cancel(context.Context, string) error { return f.cancelErr }

func (f *fakeDocSvc) RetryDelivery(context.Context, string, string) error { return f.retryErr }

type fakeDestSvc struct {
	saved   *domain.DestinationConfig
	saveErr error
	testErr error
}

func (f *fakeDestSvc) Save(_ context.Context, dest domain.DestinationConfig) (*domain.DestinationConfig, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	dest.ID = "dest-new"
	f.saved = &dest
	return &dest, nil
}

func (f *fakeDestSvc) Get(_ context.Context, id string) (*domain.DestinationConfig, error) {
	return &domain.DestinationConfig{
		ID:           id,
		Name:         "Archive",
		Provider:     domain.ProviderWebDAV,
		Enabled:      true,
		PathTemplate: "{yyyy}/{mm}",
		Settings:     map[string]string{"url": "https://dav.example.org"},
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeDestSvc) List(context.Context) ([]domain.DestinationConfig, error) {
	return []domain.DestinationConfig{
		{ID: "dest-1", Name: "Archive", Provider: domain.ProviderWebDAV, Enabled: true},
		{ID: "dest-2", Name: "Tax", Provider: domain.ProviderGoogleDrive, Enabled: false},
	}, nil
}

func (f *fakeDestSvc) SetEnabled(context.Context, string, bool) error { return nil }

func (f *fakeDestSvc) Delete(context.Context, string) error { return nil }

func (f *fakeDestSvc) TestConnection(context.Context, string) error { return f.testErr }

type fakeCredSvc struct {
	state    domain.CredentialState
	beginErr error
}

func (f *fakeCredSvc) BeginAuthorization(_ context.Context, _ string, port int) (*driving.OAuthFlowState, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &driving.OAuthFlowState{
		AuthURL:      "https://accounts.example.org/consent",
		State:        "state-1",
		RedirectURI:  "http://127.0.0.1:1/callback",
		RedirectPort: port,
	}, nil
}

func (f *fakeCredSvc) CompleteAuthorization(context.Context, string, string) error { return nil }

func (f *fakeCredSvc) Token(context.Context, string) (*domain.CredentialToken, error) {
	return nil, errors.New("not used")
}

func (f *fakeCredSvc) Status(context.Context, string) (domain.CredentialState, error) {
	if f.state == "" {
		return domain.CredentialUnconfigured, nil
	}
	return f.state, nil
}

func (f *fakeCredSvc) Revoke(context.Context, string) error { return nil }

type fakeSettingsSvc struct {
	set   map[string]string
	unset []string
}

func (f *fakeSettingsSvc) Resolve(_ context.Context, key string) (domain.Setting, error) {
	if key == domain.KeySecretsKey {
		return domain.Setting{Key: key, Value: "super-secret-master-key", Source: domain.SourceDatabase, Sensitive: true}, nil
	}
	return domain.Setting{Key: key, Value: "104857600", Source: domain.SourceDefault}, nil
}

func (f *fakeSettingsSvc) ResolveAll(context.Context) ([]domain.Setting, error) {
	return []domain.Setting{
		{Key: domain.KeyMaxUploadSize, Value: "104857600", Source: domain.SourceDefault},
		{Key: domain.KeySecretsKey, Value: "super-secret-master-key", Source: domain.SourceDatabase, Sensitive: true},
		{Key: domain.KeyInboxDir, Source: domain.SourceUnset},
	}, nil
}

func (f *fakeSettingsSvc) Set(_ context.Context, key, value string) error {
	if f.set == nil {
		f.set = make(map[string]string)
	}
	f.set[key] = value
	return nil
}

func (f *fakeSettingsSvc) Unset(_ context.Context, key string) error {
	f.unset = append(f.unset, key)
	return nil
}

// setupTestServices wires fakes into the command tree and returns a
// cleanup restoring the previous wiring.
func setupTestServices() func() {
	oldIngest := ingestService
	oldDocs := documentService
	oldDests := destinationService
	oldCreds := credentialService
	oldSettings := settingsService

	ingestService = &fakeIngestSvc{}
	documentService = &fakeDocSvc{}
	destinationService = &fakeDestSvc{}
	credentialService = &fakeCredSvc{}
	settingsService = &fakeSettingsSvc{}

	return func() {
		ingestService = oldIngest
		documentService = oldDocs
		destinationService = oldDests
		credentialService = oldCreds
		settingsService = oldSettings
	}
}

// execute runs the root command with the given args and captures output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
