package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store captures persistence operations for intervals. Mutating methods must
// record a matching notification signal atomically with the write so the live
// pipeline observes every change.
type Store interface {
	ListIntervals(ctx context.Context, ownerID string) ([]TimeInterval, error)
	ListIntervalsPage(ctx context.Context, ownerID string, cursor *Cursor, limit int) ([]TimeInterval, *Cursor, error)
	GetInterval(ctx context.Context, ownerID, id string) (*TimeInterval, error)
	FindOpenInterval(ctx context.Context, ownerID string) (*TimeInterval, error)
	CreateInterval(ctx context.Context, iv TimeInterval) error
	UpdateInterval(ctx context.Context, iv TimeInterval) error
	DeleteInterval(ctx context.Context, ownerID, id string) error
}

// Service orchestrates interval mutations. It owns the at-most-one-open
// invariant the projection core assumes.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service. The now function defaults to time.Now and
// exists so tests can pin the clock.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithNow overrides the clock used for defaulted timestamps.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// StartInput carries the payload for starting a new interval.
type StartInput struct {
	OwnerID string
	Title   string
	Tags    []string
	StartAt time.Time
}

// Start opens a new interval. It fails when the owner already has one running;
// the caller is expected to stop the running interval first (or retry after
// the race loser observes the conflict).
func (s *Service) Start(ctx context.Context, input StartInput) (*TimeInterval, error) {
	if err := ValidateTitle(input.Title); err != nil {
		return nil, err
	}

	open, err := s.store.FindOpenInterval(ctx, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, ErrOpenIntervalExists
	}

	now := s.now().UTC()
	startAt := input.StartAt
	if startAt.IsZero() {
		startAt = now
	}

	iv := TimeInterval{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Title:     trimTitle(input.Title),
		Tags:      NormalizeTags(input.Tags),
		StartAt:   startAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateInterval(ctx, iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

// Stop closes the owner's running interval at the given instant (or now when
// zero).
func (s *Service) Stop(ctx context.Context, ownerID string, at time.Time) (*TimeInterval, error) {
	open, err := s.store.FindOpenInterval(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, ErrNoOpenInterval
	}

	now := s.now().UTC()
	endAt := at
	if endAt.IsZero() {
		endAt = now
	}
	endAt = endAt.UTC()
	if endAt.Before(open.StartAt) {
		return nil, ErrInvalidInterval
	}

	open.EndAt = &endAt
	open.UpdatedAt = now
	if err := s.store.UpdateInterval(ctx, *open); err != nil {
		return nil, err
	}
	return open, nil
}

// UpdateInput carries editable interval fields. Nil pointers leave the field
// untouched.
type UpdateInput struct {
	OwnerID string
	ID      string
	Title   *string
	Tags    []string
	StartAt *time.Time
	EndAt   *time.Time
}

// Update edits a stored interval.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*TimeInterval, error) {
	iv, err := s.store.GetInterval(ctx, input.OwnerID, input.ID)
	if err != nil {
		return nil, err
	}
	if iv == nil {
		return nil, ErrIntervalNotFound
	}

	if input.Title != nil {
		if err := ValidateTitle(*input.Title); err != nil {
			return nil, err
		}
		iv.Title = trimTitle(*input.Title)
	}
	if input.Tags != nil {
		iv.Tags = NormalizeTags(input.Tags)
	}
	if input.StartAt != nil {
		iv.StartAt = input.StartAt.UTC()
	}
	if input.EndAt != nil {
		endAt := input.EndAt.UTC()
		iv.EndAt = &endAt
	}
	if iv.EndAt != nil && iv.EndAt.Before(iv.StartAt) {
		return nil, ErrInvalidInterval
	}

	iv.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateInterval(ctx, *iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Delete removes an interval.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	iv, err := s.store.GetInterval(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if iv == nil {
		return ErrIntervalNotFound
	}
	return s.store.DeleteInterval(ctx, ownerID, id)
}

// List returns every interval for the owner, newest start first.
func (s *Service) List(ctx context.Context, ownerID string) ([]TimeInterval, error) {
	return s.store.ListIntervals(ctx, ownerID)
}

// ListPage returns a page of intervals with cursor pagination.
func (s *Service) ListPage(ctx context.Context, ownerID string, cursor *Cursor, limit int) ([]TimeInterval, *Cursor, error) {
	return s.store.ListIntervalsPage(ctx, ownerID, cursor, limit)
}

func trimTitle(title string) string {
	return strings.TrimSpace(title)
}
