package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/linktrack/internal/cache"
	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

type RedirectServiceTestSuite struct {
	suite.Suite
	errUnknown       error
	meta             models.RequestMeta
	linkRepoMock     *MockLinkRepository
	trackingRepoMock *MockTrackingRepository
	cacheMock        *MockTargetCache
	enricher         *stubEnricher
	svc              *RedirectService
}

func (suite *RedirectServiceTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
	suite.meta = models.RequestMeta{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 Chrome/126.0",
		Referrer:  "https://news.ycombinator.com/",
	}
}

func (suite *RedirectServiceTestSuite) SetupSubTest() {
	suite.linkRepoMock = &MockLinkRepository{}
	suite.trackingRepoMock = &MockTrackingRepository{}
	suite.cacheMock = &MockTargetCache{}

	browser := "Chrome"
	suite.enricher = &stubEnricher{entry: models.VisitEntry{
		IPAddress: "203.0.113.7",
		UserAgent: models.UserAgentInfo{Raw: "Mozilla/5.0 Chrome/126.0", BrowserName: &browser},
		Referrer:  "https://news.ycombinator.com/",
	}}

	suite.svc = suite.newService(nil, RedirectOptions{})
}

func (suite *RedirectServiceTestSuite) newService(targetCache TargetCache, opts RedirectOptions) *RedirectService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedirectService(suite.linkRepoMock, suite.trackingRepoMock, targetCache, suite.enricher, logger, opts)
}

func (suite *RedirectServiceTestSuite) TearDownSubTest() {
	suite.linkRepoMock.AssertExpectations(suite.T())
	suite.trackingRepoMock.AssertExpectations(suite.T())
	suite.cacheMock.AssertExpectations(suite.T())
}

func fullEntry(entry models.VisitEntry) bool {
	return entry.UserAgent.BrowserName != nil
}

func degradedEntry(entry models.VisitEntry) bool {
	return entry.UserAgent.BrowserName == nil && entry.UserAgent.Raw != ""
}

func (suite *RedirectServiceTestSuite) TestRedirect() {
	suite.Run("unknown key has no tracking side effects", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "missing").
			Once().
			Return(nil, database.ErrLinkNotFound)

		target, err := suite.svc.Redirect(context.Background(), "missing", suite.meta)

		suite.Error(err)
		suite.ErrorIs(err, database.ErrLinkNotFound)
		suite.Empty(target)
		suite.Zero(suite.enricher.calls)
		suite.linkRepoMock.AssertNotCalled(suite.T(), "IncrementVisitCount", mock.Anything, mock.Anything)
		suite.trackingRepoMock.AssertNotCalled(suite.T(), "AppendVisit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	suite.Run("lookup storage error fails the redirect", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(nil, suite.errUnknown)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Empty(target)
	})

	suite.Run("increment error fails the redirect", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(0), suite.errUnknown)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Empty(target)
		suite.trackingRepoMock.AssertNotCalled(suite.T(), "AppendVisit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	suite.Run("key deleted between lookup and increment", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(0), database.ErrLinkNotFound)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.Error(err)
		suite.ErrorIs(err, database.ErrLinkNotFound)
		suite.Empty(target)
	})

	suite.Run("success records the enriched visit", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(7), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(nil)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
		suite.Equal(1, suite.enricher.calls)
		suite.Equal(int64(7), suite.enricher.lastVisitNumber)
		suite.Equal(suite.meta, suite.enricher.lastMeta)
	})

	suite.Run("append failure retries with the degraded entry", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(7), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(suite.errUnknown)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(degradedEntry)).
			Once().
			Return(nil)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
	})

	suite.Run("tracking failure never fails the redirect", func() {
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(7), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(suite.errUnknown)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(degradedEntry)).
			Once().
			Return(suite.errUnknown)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
	})

	suite.Run("open breaker skips tracking entirely", func() {
		suite.svc = suite.newService(nil, RedirectOptions{BreakerFailureThreshold: 1})

		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Twice().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Twice().
			Return(int64(7), nil)

		// The first append failure trips the breaker, so the degraded retry
		// and the whole second redirect's tracking are short-circuited.
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(suite.errUnknown)

		for i := 0; i < 2; i++ {
			target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

			suite.NoError(err)
			suite.Equal("https://example.com", target)
		}

		suite.trackingRepoMock.AssertNumberOfCalls(suite.T(), "AppendVisit", 1)
	})

	suite.Run("cache hit skips the link store lookup", func() {
		suite.svc = suite.newService(suite.cacheMock, RedirectOptions{})

		suite.cacheMock.
			On("GetTarget", context.Background(), "abc1234").
			Once().
			Return("https://example.com", nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(8), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(nil)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
		suite.linkRepoMock.AssertNotCalled(suite.T(), "GetByShortKey", mock.Anything, mock.Anything)
	})

	suite.Run("cache miss primes the cache from the store", func() {
		suite.svc = suite.newService(suite.cacheMock, RedirectOptions{})

		suite.cacheMock.
			On("GetTarget", context.Background(), "abc1234").
			Once().
			Return("", cache.ErrCacheMiss)
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.cacheMock.
			On("SetTarget", mock.Anything, "abc1234", "https://example.com").
			Once().
			Return(nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(9), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(nil)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
	})

	suite.Run("cache failure falls back to the store", func() {
		suite.svc = suite.newService(suite.cacheMock, RedirectOptions{})

		suite.cacheMock.
			On("GetTarget", context.Background(), "abc1234").
			Once().
			Return("", suite.errUnknown)
		suite.linkRepoMock.
			On("GetByShortKey", mock.Anything, "abc1234").
			Once().
			Return(&models.Link{ShortKey: "abc1234", TargetURL: "https://example.com"}, nil)
		suite.cacheMock.
			On("SetTarget", mock.Anything, "abc1234", "https://example.com").
			Once().
			Return(nil)
		suite.linkRepoMock.
			On("IncrementVisitCount", mock.Anything, "abc1234").
			Once().
			Return(int64(10), nil)
		suite.trackingRepoMock.
			On("AppendVisit", mock.Anything, "abc1234", "https://example.com", mock.MatchedBy(fullEntry)).
			Once().
			Return(nil)

		target, err := suite.svc.Redirect(context.Background(), "abc1234", suite.meta)

		suite.NoError(err)
		suite.Equal("https://example.com", target)
	})
}

func TestRedirectService(t *testing.T) {
	suite.Run(t, new(RedirectServiceTestSuite))
}
