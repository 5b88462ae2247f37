package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveBackend stores artifacts in a named Google Drive folder owned by the
// authorizing account. The configuration section is held by pointer so a
// rotated token can be recorded back into it on Close.
type DriveBackend struct {
	cfg         *config.DriveConfig
	interactive bool
	service     *drive.Service
	source      oauth2.TokenSource
}

func NewDrive(cfg *config.DriveConfig, interactive bool) *DriveBackend {
	return &DriveBackend{cfg: cfg, interactive: interactive}
}

func (d *DriveBackend) Name() string { return "drive" }

// Connect builds the Drive service from the stored token, refreshing it as
// needed. Without a usable token an interactive run walks the authorization
// flow on the terminal; an unattended run fails the prerequisite instead of
// hanging on input that will never come.
func (d *DriveBackend) Connect(ctx context.Context) error {
	if d.cfg.ClientID == "" || d.cfg.ClientSecret == "" {
		return fmt.Errorf("%w: drive client credentials are required", domain.ErrBackendPrereq)
	}

	oc := oauthConfig(d.cfg)

	tok := tokenFromRecord(d.cfg.Token)
	if tok.RefreshToken == "" && !tok.Valid() {
		if !d.interactive {
			if d.cfg.Token.Empty() {
				return fmt.Errorf("%w: no stored drive token, run interactively once to authorize", domain.ErrBackendPrereq)
			}
			return fmt.Errorf("%w: stored drive token is expired and has no refresh token, authorize again", domain.ErrBackendPrereq)
		}
		fresh, err := authorize(ctx, oc)
		if err != nil {
			return fmt.Errorf("failed to authorize drive access: %w", err)
		}
		tok = fresh
	}

	d.source = oc.TokenSource(ctx, tok)

	service, err := drive.NewService(ctx, option.WithTokenSource(d.source))
	if err != nil {
		return fmt.Errorf("failed to create drive service: %w", err)
	}
	d.service = service

	return nil
}

// Close snapshots the possibly-refreshed token back into the configuration
// section. Whether that snapshot reaches disk is the caller's decision.
func (d *DriveBackend) Close() error {
	if d.source != nil {
		if tok, err := d.source.Token(); err == nil {
			d.cfg.Token = recordFromToken(tok)
		}
	}
	d.service = nil
	d.source = nil
	return nil
}

// EnsureTarget resolves the named folder, creating it when absent. The
// first match wins; Drive allows duplicate folder names, but this backend
// never creates a second one itself.
func (d *DriveBackend) EnsureTarget(ctx context.Context, name string) (domain.Target, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", name, folderMimeType)

	list, err := d.service.Files.List().
		Q(query).
		PageSize(1).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return domain.Target{}, fmt.Errorf("failed to find backup folder: %w", err)
	}

	if len(list.Files) > 0 {
		return domain.Target{Locator: list.Files[0].Id}, nil
	}

	folder, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return domain.Target{}, fmt.Errorf("failed to create backup folder: %w", err)
	}

	return domain.Target{Locator: folder.Id}, nil
}

func (d *DriveBackend) Upload(ctx context.Context, target domain.Target, art domain.Artifact) (domain.UploadResult, error) {
	source, err := os.Open(art.Path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	meta := &drive.File{
		Name:    art.Name,
		Parents: []string{target.Locator},
	}

	created, err := d.service.Files.Create(meta).
		Media(source, googleapi.ContentType(art.ContentType)).
		Fields("id, name").
		Context(ctx).
		Do()
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to upload to drive: %w", err)
	}

	return domain.UploadResult{ID: created.Id, Name: created.Name}, nil
}
