// Package service holds the business logic: link management and the
// redirect pipeline that records visits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// shortKeyAlphabet is the alphanumeric alphabet generated keys draw from.
const shortKeyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// reservedKeys are path segments owned by the service itself. They are
// rejected case-insensitively so that /Admin cannot shadow /admin.
var reservedKeys = []string{"admin", "api", "track"}

func isReservedKey(shortKey string) bool {
	for _, reserved := range reservedKeys {
		if strings.EqualFold(shortKey, reserved) {
			return true
		}
	}

	return false
}

// LinkRepository defines the interface for working with links at the
// business logic layer.
type LinkRepository interface {
	// Create inserts a new link and fails when the short key is taken.
	Create(ctx context.Context, shortKey, targetURL string) (*models.Link, error)

	// Upsert creates the link or overwrites the target of an existing key,
	// preserving its visit counter.
	Upsert(ctx context.Context, shortKey, targetURL string) (*models.Link, error)

	// GetByShortKey retrieves a link without touching its counter.
	GetByShortKey(ctx context.Context, shortKey string) (*models.Link, error)

	// List returns all links in the requested order.
	List(ctx context.Context, sort models.LinkSort) ([]models.Link, error)

	// Delete removes a link by its short key.
	Delete(ctx context.Context, shortKey string) error

	// IncrementVisitCount atomically bumps the visit counter and returns
	// the new value.
	IncrementVisitCount(ctx context.Context, shortKey string) (int64, error)
}

// TrackingRepository defines the interface for the visit history store.
type TrackingRepository interface {
	// AppendVisit records one visit under the short key.
	AppendVisit(ctx context.Context, shortKey, targetURL string, entry models.VisitEntry) error

	// GetByShortKey retrieves the tracking record with all its visits.
	GetByShortKey(ctx context.Context, shortKey string) (*models.TrackingRecord, error)
}

// TargetCache caches short key to target URL mappings. Lookups signal a
// missing entry with cache.ErrCacheMiss.
type TargetCache interface {
	GetTarget(ctx context.Context, shortKey string) (string, error)
	SetTarget(ctx context.Context, shortKey, targetURL string) error
	Invalidate(ctx context.Context, shortKey string) error
}

// LinkService manages the link collection. The target cache is optional;
// pass nil to run without one.
type LinkService struct {
	linkRepo       LinkRepository
	trackingRepo   TrackingRepository
	cache          TargetCache
	logger         *slog.Logger
	shortKeyLength int
}

func NewLinkService(linkRepo LinkRepository, trackingRepo TrackingRepository, cache TargetCache, logger *slog.Logger, shortKeyLength int) *LinkService {
	return &LinkService{
		linkRepo:       linkRepo,
		trackingRepo:   trackingRepo,
		cache:          cache,
		logger:         logger,
		shortKeyLength: shortKeyLength,
	}
}

// UpsertLink stores the mapping for a short key. With an explicit key the
// call creates or overwrites the link, keeping an existing visit counter.
// With an empty key it generates one, retrying on collisions up to a
// maximum number of attempts.
func (s *LinkService) UpsertLink(ctx context.Context, shortKey, targetURL string) (*models.Link, error) {
	const op = "service.LinkService.UpsertLink"
	const maxRetries = 5

	if shortKey != "" {
		if isReservedKey(shortKey) {
			return nil, fmt.Errorf("%s: %w", op, ErrReservedKey)
		}

		link, err := s.linkRepo.Upsert(ctx, shortKey, targetURL)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to upsert link: %w", op, err)
		}

		s.invalidateTarget(ctx, shortKey)

		return link, nil
	}

	for i := 0; i < maxRetries; i++ {
		generated, err := gonanoid.Generate(shortKeyAlphabet, s.shortKeyLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short key: %w", op, err)
		}

		link, err := s.linkRepo.Create(ctx, generated, targetURL)
		if err != nil {
			if errors.Is(err, database.ErrShortKeyExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// GetLink retrieves the link for a short key without counting a visit.
func (s *LinkService) GetLink(ctx context.Context, shortKey string) (*models.Link, error) {
	const op = "service.LinkService.GetLink"

	link, err := s.linkRepo.GetByShortKey(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link: %w", op, err)
	}

	return link, nil
}

// ListLinks returns all links in the requested order.
func (s *LinkService) ListLinks(ctx context.Context, sort models.LinkSort) ([]models.Link, error) {
	const op = "service.LinkService.ListLinks"

	links, err := s.linkRepo.List(ctx, sort)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	return links, nil
}

// DeleteLink removes the link for a short key. Its tracking history, if
// any, stays behind.
func (s *LinkService) DeleteLink(ctx context.Context, shortKey string) error {
	const op = "service.LinkService.DeleteLink"

	if err := s.linkRepo.Delete(ctx, shortKey); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	s.invalidateTarget(ctx, shortKey)

	return nil
}

// GetTracking retrieves the visit history recorded for a short key.
func (s *LinkService) GetTracking(ctx context.Context, shortKey string) (*models.TrackingRecord, error) {
	const op = "service.LinkService.GetTracking"

	record, err := s.trackingRepo.GetByShortKey(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get tracking record: %w", op, err)
	}

	return record, nil
}

// invalidateTarget drops the cached target after the stored mapping
// changed. Failures are logged and swallowed: the store already holds the
// new state and cached entries expire on their own.
func (s *LinkService) invalidateTarget(ctx context.Context, shortKey string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, shortKey); err != nil {
		s.logger.Warn("failed to invalidate cached target",
			slog.String("short_key", shortKey),
			slog.Any("err", err),
		)
	}
}
