// Package drive checks uploaded files through the Drive v3 metadata API.
package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/services"
)

// File is the remote metadata the pipeline cares about.
type File struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
	Parents  []string
}

// Verifier reads file metadata after an upload.
type Verifier struct {
	service *drivev3.Service
	logger  *slog.Logger
}

// Option customises the underlying API client.
type Option func(*settings)

type settings struct {
	endpoint   string
	httpClient *http.Client
}

// WithEndpoint points the client at a non-default API root.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) { s.endpoint = strings.TrimSpace(endpoint) }
}

// WithHTTPClient supplies a pre-authorised client; the token source is then
// ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// NewVerifier builds a Drive client authorised by src.
func NewVerifier(ctx context.Context, src oauth2.TokenSource, logger *slog.Logger, opts ...Option) (*Verifier, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	var clientOpts []option.ClientOption
	if s.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(s.httpClient))
	} else {
		if src == nil {
			return nil, services.Wrap(services.ErrConfiguration, "verify", "client", "no credential source", nil)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(src))
	}
	if s.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.endpoint))
	}
	service, err := drivev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "verify", "client", "create drive service", err)
	}
	return &Verifier{service: service, logger: logging.NewComponentLogger(logger, "drive")}, nil
}

// Stat fetches metadata for id.
func (v *Verifier) Stat(ctx context.Context, id string) (File, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return File{}, services.Wrap(services.ErrValidation, "verify", "stat", "file id is required", nil)
	}
	f, err := v.service.Files.Get(id).
		SupportsAllDrives(true).
		Fields("id", "name", "mimeType", "size", "parents").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return File{}, services.Wrap(services.ErrNotFound, "verify", "stat", "file "+id+" not found", err)
		}
		return File{}, services.Wrap(services.ErrTransient, "verify", "stat", "drive metadata request failed", err)
	}
	return File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size, Parents: f.Parents}, nil
}

// Verify confirms the file exists and, when wantSize is positive, that the
// provider stored exactly that many bytes.
func (v *Verifier) Verify(ctx context.Context, id string, wantSize int64) (File, error) {
	file, err := v.Stat(ctx, id)
	if err != nil {
		return File{}, err
	}
	if wantSize > 0 && file.Size != wantSize {
		logging.WarnWithContext(v.logger, "remote size mismatch", "drive_size_mismatch",
			logging.String("file_id", id),
			logging.Int64("want_bytes", wantSize),
			logging.Int64("remote_bytes", file.Size),
			logging.Alert("verification_failed"),
		)
		return file, services.Wrap(services.ErrValidation, "verify", "size", fmt.Sprintf("remote holds %d bytes, uploaded %d", file.Size, wantSize), nil)
	}
	v.logger.Info("remote file verified",
		logging.String(logging.FieldEventType, "drive_verified"),
		logging.String("file_id", file.ID),
		logging.Int64("bytes", file.Size),
	)
	return file, nil
}
