// Package domain defines the business logic for the timelog service.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxTitleLength caps interval titles after trimming.
const MaxTitleLength = 1000

var (
	// ErrIntervalNotFound is returned when an interval cannot be located.
	ErrIntervalNotFound = errors.New("interval not found")
	// ErrOpenIntervalExists indicates the owner already has a running interval.
	ErrOpenIntervalExists = errors.New("an open interval already exists for owner")
	// ErrNoOpenInterval indicates a stop was requested with nothing running.
	ErrNoOpenInterval = errors.New("no open interval for owner")
	// ErrInvalidInterval flags an interval whose end precedes its start.
	ErrInvalidInterval = errors.New("interval end precedes start")
	// ErrInvalidTitle flags an empty or over-length title.
	ErrInvalidTitle = errors.New("invalid interval title")
)

// TimeInterval is the canonical tracked-time record. EndAt is nil while the
// interval is still running.
type TimeInterval struct {
	ID        string
	OwnerID   string
	Title     string
	Tags      []string
	StartAt   time.Time
	EndAt     *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the interval is still running.
func (iv TimeInterval) Open() bool {
	return iv.EndAt == nil
}

// Validate checks the invariants the projection core relies on.
func (iv TimeInterval) Validate() error {
	if err := ValidateTitle(iv.Title); err != nil {
		return err
	}
	if iv.StartAt.IsZero() {
		return fmt.Errorf("interval %s: start is required", iv.ID)
	}
	if iv.EndAt != nil && iv.EndAt.Before(iv.StartAt) {
		return fmt.Errorf("interval %s: %w", iv.ID, ErrInvalidInterval)
	}
	return nil
}

// ValidateTitle enforces the non-empty, bounded-length title rule.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fmt.Errorf("%w: empty after trim", ErrInvalidTitle)
	}
	if len(trimmed) > MaxTitleLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTitle, MaxTitleLength)
	}
	return nil
}

// NormalizeTags dedupes and drops empty tags, preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// SortedTags returns a sorted copy of the interval's tag set.
func (iv TimeInterval) SortedTags() []string {
	out := append([]string(nil), iv.Tags...)
	sort.Strings(out)
	return out
}

// Cursor models the pagination token for raw interval listings.
type Cursor struct {
	StartAt time.Time
	ID      string
}
