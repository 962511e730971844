package destinations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the Google Drive adapter.
const (
	// SettingDriveFolderID roots deliveries in a specific folder.
	// Empty means the Drive root.
	SettingDriveFolderID = "folder_id"
)

const driveFolderMime = "application/vnd.google-apps.folder"

// GoogleDriveAdapter delivers documents into a Google Drive folder.
type GoogleDriveAdapter struct{}

// NewGoogleDriveAdapter creates a new Google Drive adapter.
func NewGoogleDriveAdapter() *GoogleDriveAdapter {
	return &GoogleDriveAdapter{}
}

// Provider returns the provider type this adapter serves.
func (a *GoogleDriveAdapter) Provider() domain.ProviderType {
	return domain.ProviderGoogleDrive
}

// Deliver uploads the document, creating the folder chain for the
// rendered path as needed.
func (a *GoogleDriveAdapter) Deliver(ctx context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	srv, err := a.service(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	parent := req.Target.Destination.Setting(SettingDriveFolderID)
	if parent == "" {
		parent = "root"
	}
	for _, segment := range splitPath(req.Path) {
		parent, err = a.ensureFolder(ctx, srv, parent, segment)
		if err != nil {
			return nil, err
		}
	}

	file := &drive.File{
		Name:     req.Filename,
		Parents:  []string{parent},
		MimeType: domain.MimeTypePDF,
	}
	created, err := srv.Files.Create(file).
		Media(req.Content, googleapi.ContentType(domain.MimeTypePDF)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyDriveErr(fmt.Errorf("creating file: %w", err))
	}
	return &driven.DeliveryResult{RemoteRef: created.Id}, nil
}

// TestConnection verifies the token by reading account information.
func (a *GoogleDriveAdapter) TestConnection(ctx context.Context, target driven.Target) error {
	srv, err := a.service(ctx, target)
	if err != nil {
		return err
	}
	if _, err := srv.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return classifyDriveErr(fmt.Errorf("reading account: %w", err))
	}
	return nil
}

// ensureFolder finds or creates one folder segment under parent and
// returns its id.
func (a *GoogleDriveAdapter) ensureFolder(ctx context.Context, srv *drive.Service, parent, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), parent, driveFolderMime)
	list, err := srv.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", classifyDriveErr(fmt.Errorf("looking up folder %s: %w", name, err))
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := srv.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{parent},
		MimeType: driveFolderMime,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classifyDriveErr(fmt.Errorf("creating folder %s: %w", name, err))
	}
	return created.Id, nil
}

func (a *GoogleDriveAdapter) service(ctx context.Context, target driven.Target) (*drive.Service, error) {
	if target.Token == nil {
		return nil, domain.Classified(domain.ErrClassAuthExpired,
			fmt.Errorf("google drive: %w", domain.ErrAuthRequired))
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: target.Token.AccessToken})
	srv, err := drive.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, domain.Classified(domain.ErrClassInternal, fmt.Errorf("creating drive client: %w", err))
	}
	return srv, nil
}

// classifyDriveErr maps Drive API failures onto the error taxonomy.
func classifyDriveErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 403 && strings.Contains(apiErr.Message, "quota") {
			return domain.Classified(domain.ErrClassPermanent, err)
		}
		return domain.Classified(classifyStatus(apiErr.Code), err)
	}
	return domain.Classified(classifyNetErr(err), err)
}

// escapeDriveQuery escapes quotes in a folder name used inside a Drive
// search query.
func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// splitPath breaks a rendered delivery path into folder segments.
func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
