package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

type MockLinkRepository struct {
	mock.Mock
}

func (r *MockLinkRepository) Create(ctx context.Context, shortKey, targetURL string) (*models.Link, error) {
	args := r.Called(ctx, shortKey, targetURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) Upsert(ctx context.Context, shortKey, targetURL string) (*models.Link, error) {
	args := r.Called(ctx, shortKey, targetURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) GetByShortKey(ctx context.Context, shortKey string) (*models.Link, error) {
	args := r.Called(ctx, shortKey)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) List(ctx context.Context, sort models.LinkSort) ([]models.Link, error) {
	args := r.Called(ctx, sort)
	links, _ := args.Get(0).([]models.Link)
	return links, args.Error(1)
}

func (r *MockLinkRepository) Delete(ctx context.Context, shortKey string) error {
	args := r.Called(ctx, shortKey)
	return args.Error(0)
}

func (r *MockLinkRepository) IncrementVisitCount(ctx context.Context, shortKey string) (int64, error) {
	args := r.Called(ctx, shortKey)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}

type MockTrackingRepository struct {
	mock.Mock
}

func (r *MockTrackingRepository) AppendVisit(ctx context.Context, shortKey, targetURL string, entry models.VisitEntry) error {
	args := r.Called(ctx, shortKey, targetURL, entry)
	return args.Error(0)
}

func (r *MockTrackingRepository) GetByShortKey(ctx context.Context, shortKey string) (*models.TrackingRecord, error) {
	args := r.Called(ctx, shortKey)
	record, _ := args.Get(0).(*models.TrackingRecord)
	return record, args.Error(1)
}

type MockTargetCache struct {
	mock.Mock
}

func (c *MockTargetCache) GetTarget(ctx context.Context, shortKey string) (string, error) {
	args := c.Called(ctx, shortKey)
	return args.String(0), args.Error(1)
}

func (c *MockTargetCache) SetTarget(ctx context.Context, shortKey, targetURL string) error {
	args := c.Called(ctx, shortKey, targetURL)
	return args.Error(0)
}

func (c *MockTargetCache) Invalidate(ctx context.Context, shortKey string) error {
	args := c.Called(ctx, shortKey)
	return args.Error(0)
}

// stubEnricher returns its fixed entry with the visit number and timestamp
// filled in, recording what it was asked for.
type stubEnricher struct {
	entry           models.VisitEntry
	calls           int
	lastMeta        models.RequestMeta
	lastVisitNumber int64
}

func (e *stubEnricher) Enrich(meta models.RequestMeta, visitNumber int64, ts time.Time) models.VisitEntry {
	e.calls++
	e.lastMeta = meta
	e.lastVisitNumber = visitNumber

	entry := e.entry
	entry.VisitNumber = visitNumber
	entry.Timestamp = ts

	return entry
}
