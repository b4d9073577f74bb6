package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vadimbarashkov/linktrack/internal/cache"
	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/metrics"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

// Enricher builds a visit entry from request metadata. It cannot fail;
// fields that cannot be derived stay unset.
type Enricher interface {
	Enrich(meta models.RequestMeta, visitNumber int64, ts time.Time) models.VisitEntry
}

// RedirectOptions tune the pipeline's timeouts and the circuit breaker in
// front of the tracking store. Zero values fall back to defaults.
type RedirectOptions struct {
	// StorageTimeout bounds the link store calls, which are on the
	// critical path of every redirect.
	StorageTimeout time.Duration

	// TrackingTimeout bounds each visit append attempt.
	TrackingTimeout time.Duration

	// BreakerFailureThreshold is the number of consecutive append
	// failures that opens the breaker.
	BreakerFailureThreshold uint32

	// BreakerOpenTimeout is how long the breaker stays open before
	// probing the tracking store again.
	BreakerOpenTimeout time.Duration
}

const (
	defaultStorageTimeout          = 3 * time.Second
	defaultTrackingTimeout         = 2 * time.Second
	defaultBreakerFailureThreshold = 5
	defaultBreakerOpenTimeout      = 30 * time.Second
)

func (o RedirectOptions) withDefaults() RedirectOptions {
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = defaultStorageTimeout
	}
	if o.TrackingTimeout <= 0 {
		o.TrackingTimeout = defaultTrackingTimeout
	}
	if o.BreakerFailureThreshold == 0 {
		o.BreakerFailureThreshold = defaultBreakerFailureThreshold
	}
	if o.BreakerOpenTimeout <= 0 {
		o.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}

	return o
}

// RedirectService runs the per-click pipeline: resolve the target, count
// the visit, enrich request metadata into a visit entry and append it to
// the tracking store. Only resolution and counting can fail a redirect;
// tracking is best-effort behind a circuit breaker.
type RedirectService struct {
	linkRepo     LinkRepository
	trackingRepo TrackingRepository
	cache        TargetCache
	enricher     Enricher
	logger       *slog.Logger
	breaker      *gobreaker.CircuitBreaker[struct{}]

	storageTimeout  time.Duration
	trackingTimeout time.Duration
}

func NewRedirectService(linkRepo LinkRepository, trackingRepo TrackingRepository, cache TargetCache, enricher Enricher, logger *slog.Logger, opts RedirectOptions) *RedirectService {
	opts = opts.withDefaults()

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "tracking-append",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("tracking circuit breaker changed state",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &RedirectService{
		linkRepo:        linkRepo,
		trackingRepo:    trackingRepo,
		cache:           cache,
		enricher:        enricher,
		logger:          logger,
		breaker:         breaker,
		storageTimeout:  opts.StorageTimeout,
		trackingTimeout: opts.TrackingTimeout,
	}
}

// Redirect resolves the short key and returns the target URL to send the
// visitor to, recording the visit along the way. An unknown key fails with
// database.ErrLinkNotFound before any tracking side effects. Once the
// visit is counted the redirect succeeds even when recording the visit
// entry does not.
func (s *RedirectService) Redirect(ctx context.Context, shortKey string, meta models.RequestMeta) (string, error) {
	const op = "service.RedirectService.Redirect"

	targetURL, err := s.resolveTarget(ctx, shortKey)
	if err != nil {
		s.countOutcome(err)
		return "", fmt.Errorf("%s: failed to resolve short key: %w", op, err)
	}

	visitNumber, err := s.countVisit(ctx, shortKey)
	if err != nil {
		s.countOutcome(err)
		return "", fmt.Errorf("%s: failed to count visit: %w", op, err)
	}

	entry := s.enrich(meta, visitNumber)
	s.appendVisit(ctx, shortKey, targetURL, entry)

	metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeRedirected).Inc()

	return targetURL, nil
}

func (s *RedirectService) countOutcome(err error) {
	if errors.Is(err, database.ErrLinkNotFound) {
		metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return
	}

	metrics.RedirectsTotal.WithLabelValues(metrics.OutcomeError).Inc()
}

// resolveTarget returns the target URL for the key, consulting the cache
// first when one is configured. Cache errors never fail the redirect.
func (s *RedirectService) resolveTarget(ctx context.Context, shortKey string) (string, error) {
	if s.cache != nil {
		target, err := s.cache.GetTarget(ctx, shortKey)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("target cache lookup failed",
				slog.String("short_key", shortKey),
				slog.Any("err", err),
			)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	link, err := s.linkRepo.GetByShortKey(ctx, shortKey)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.SetTarget(ctx, shortKey, link.TargetURL); err != nil {
			s.logger.Warn("failed to cache target",
				slog.String("short_key", shortKey),
				slog.Any("err", err),
			)
		}
	}

	return link.TargetURL, nil
}

// countVisit admits the visit through the atomic counter increment. The
// returned count is the visit number recorded in the tracking entry. A
// key deleted after resolution surfaces here as ErrLinkNotFound.
func (s *RedirectService) countVisit(ctx context.Context, shortKey string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	return s.linkRepo.IncrementVisitCount(ctx, shortKey)
}

func (s *RedirectService) enrich(meta models.RequestMeta, visitNumber int64) models.VisitEntry {
	timer := prometheus.NewTimer(metrics.EnrichDuration)
	defer timer.ObserveDuration()

	return s.enricher.Enrich(meta, visitNumber, time.Now().UTC())
}

// appendVisit persists the entry best-effort. A failed append is retried
// once with the degraded form of the entry; if that fails too, or the
// breaker is open, the visit entry is dropped with a warning. The redirect
// itself is already committed at this point.
func (s *RedirectService) appendVisit(ctx context.Context, shortKey, targetURL string, entry models.VisitEntry) {
	err := s.tryAppend(ctx, shortKey, targetURL, entry)
	if err == nil {
		metrics.TrackingAppendsTotal.WithLabelValues(metrics.AppendOK).Inc()
		return
	}

	if !breakerRejected(err) {
		if retryErr := s.tryAppend(ctx, shortKey, targetURL, entry.Degraded()); retryErr == nil {
			metrics.TrackingAppendsTotal.WithLabelValues(metrics.AppendDegraded).Inc()
			s.logger.Warn("stored degraded visit entry",
				slog.String("short_key", shortKey),
				slog.Int64("visit_number", entry.VisitNumber),
				slog.Any("err", err),
			)
			return
		}
	}

	metrics.TrackingAppendsTotal.WithLabelValues(metrics.AppendDropped).Inc()
	s.logger.Warn("dropped visit entry",
		slog.String("short_key", shortKey),
		slog.Int64("visit_number", entry.VisitNumber),
		slog.Any("err", err),
	)
}

func (s *RedirectService) tryAppend(ctx context.Context, shortKey, targetURL string, entry models.VisitEntry) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.trackingTimeout)
		defer cancel()

		return struct{}{}, s.trackingRepo.AppendVisit(ctx, shortKey, targetURL, entry)
	})

	return err
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
