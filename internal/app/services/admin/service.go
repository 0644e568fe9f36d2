// Package admin implements the admin console operations: catalog upkeep,
// order fulfillment, site content and the analytics dashboard. Every mutating
// call validates its input, then asks a Confirmer before touching the backend.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var (
	// ErrNotConfirmed is returned when the operator declines an action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrNotConfigured is returned when the backend for an operation is missing.
	ErrNotConfigured = errors.New("Supabase client is not configured")
)

// ValidationError reports input rejected before any backend call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Confirmer approves destructive actions. prompt describes the action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AlwaysConfirm approves everything. Use it where the caller already asked.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })

// Backends are the admin storage ports. A nil port makes its operations
// return ErrNotConfigured.
type Backends struct {
	Catalog   storage.AdminCatalogStore
	Orders    storage.AdminOrderStore
	Content   storage.ContentStore
	Uploads   storage.MediaUploader
	Analytics storage.AnalyticsStore
}

// Service runs admin console operations.
type Service struct {
	backends Backends
	confirm  Confirmer
	log      *logger.Logger
	now      func() time.Time
}

// New constructs an admin service. A nil confirmer declines every action.
func New(backends Backends, confirm Confirmer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("admin")
	}
	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, string) bool { return false })
	}
	return &Service{
		backends: backends,
		confirm:  confirm,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source used for analytics windows.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) confirmed(ctx context.Context, prompt string) error {
	if !s.confirm.Confirm(ctx, prompt) {
		s.log.WithField("prompt", prompt).Debug("admin action declined")
		return ErrNotConfirmed
	}
	return nil
}
