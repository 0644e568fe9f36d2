package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/R3E-Network/storefront/internal/app/domain/admin"
)

const recentMediaLimit = 10

const defaultContentType = "application/octet-stream"

var (
	// ErrNoUploadURL is returned when the upload function answers without a signed URL.
	ErrNoUploadURL = errors.New("Upload URL was not returned from the server")
	// ErrUploadFailed is returned when the signed PUT is rejected.
	ErrUploadFailed = errors.New("File upload failed. Check Supabase storage configuration.")
)

// ContentView is the content page: settings by key and the latest media.
type ContentView struct {
	Settings []domain.Setting `json:"settings"`
	Media    []domain.Media   `json:"media"`
}

// Content loads settings and the most recent media assets.
func (s *Service) Content(ctx context.Context) (ContentView, error) {
	if s.backends.Content == nil {
		return ContentView{}, ErrNotConfigured
	}
	settings, err := s.backends.Content.ListSettings(ctx)
	if err != nil {
		return ContentView{}, err
	}
	media, err := s.backends.Content.ListMedia(ctx, recentMediaLimit)
	if err != nil {
		return ContentView{}, err
	}
	return ContentView{Settings: settings, Media: media}, nil
}

// SaveSetting stores raw, which must be a JSON document, under key.
func (s *Service) SaveSetting(ctx context.Context, key string, raw []byte) error {
	if s.backends.Content == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return invalid("setting key is required")
	}
	if !json.Valid(raw) {
		return invalid("Setting JSON is invalid")
	}
	if err := s.confirmed(ctx, fmt.Sprintf("Update setting %s? This action impacts the storefront content.", key)); err != nil {
		return err
	}

	if err := s.backends.Content.SaveSetting(ctx, key, json.RawMessage(raw)); err != nil {
		return err
	}
	s.log.WithField("key", key).Info("setting saved")
	return nil
}

// UploadMedia registers a media asset for a product and uploads its bytes to
// the signed URL the upload function hands back.
func (s *Service) UploadMedia(ctx context.Context, u domain.Upload) (domain.UploadTicket, error) {
	if s.backends.Uploads == nil {
		return domain.UploadTicket{}, ErrNotConfigured
	}
	if len(u.Data) == 0 || u.FileName == "" {
		return domain.UploadTicket{}, invalid("Select a file to upload")
	}
	u.ProductID = strings.TrimSpace(u.ProductID)
	if u.ProductID == "" {
		return domain.UploadTicket{}, invalid("Provide a product ID to associate the media with")
	}
	if u.ContentType == "" {
		u.ContentType = defaultContentType
	}
	u.AltText = strings.TrimSpace(u.AltText)
	if err := s.confirmed(ctx, "Generate an upload URL and attach this asset to the catalog?"); err != nil {
		return domain.UploadTicket{}, err
	}

	ticket, err := s.backends.Uploads.RequestUpload(ctx, u)
	if err != nil {
		return domain.UploadTicket{}, err
	}
	if ticket.UploadURL == "" {
		return domain.UploadTicket{}, ErrNoUploadURL
	}
	if err := s.backends.Uploads.PutObject(ctx, ticket, u.Data, u.ContentType); err != nil {
		s.log.WithError(err).WithField("path", ticket.Path).Warn("media upload failed")
		return domain.UploadTicket{}, ErrUploadFailed
	}
	s.log.WithField("product_id", u.ProductID).WithField("path", ticket.Path).Info("media uploaded")
	return ticket, nil
}
