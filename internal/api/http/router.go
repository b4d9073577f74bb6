// Package http exposes the service over HTTP: the public redirect route and
// the JSON management API under /api/v1.
package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimbarashkov/linktrack/internal/models"
	"github.com/vadimbarashkov/linktrack/pkg/response"
)

// LinkService defines the link management surface exposed under /api/v1.
type LinkService interface {
	// UpsertLink saves a link under the given short key, overwriting the
	// target of an existing key. An empty shortKey asks the service to
	// generate one.
	UpsertLink(ctx context.Context, shortKey, targetURL string) (*models.Link, error)

	// GetLink retrieves a single link by its short key.
	GetLink(ctx context.Context, shortKey string) (*models.Link, error)

	// ListLinks retrieves all links in the requested order.
	ListLinks(ctx context.Context, sort models.LinkSort) ([]models.Link, error)

	// DeleteLink removes a link. The recorded visit history is kept.
	DeleteLink(ctx context.Context, shortKey string) error

	// GetTracking retrieves the visit history recorded for a short key.
	GetTracking(ctx context.Context, shortKey string) (*models.TrackingRecord, error)
}

// RedirectService serves the public redirect path.
type RedirectService interface {
	// Redirect resolves shortKey to its target URL and records the visit.
	Redirect(ctx context.Context, shortKey string, meta models.RequestMeta) (string, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterOptions carries the optional pieces of the HTTP surface.
type RouterOptions struct {
	// DB is used by the health endpoint to verify database connectivity.
	DB Pinger

	// AdminAPIKey protects the link management endpoints. An empty key
	// disables the check.
	AdminAPIKey string

	// RateLimit caps redirect requests per client IP per RateWindow. Zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration

	// SwaggerFilePath points at the OpenAPI document served under /docs.
	// An empty path disables the documentation routes.
	SwaggerFilePath string

	// CacheEnabled and GeoIPEnabled are reported by the health endpoint.
	CacheEnabled bool
	GeoIPEnabled bool
}

// adminKeyHeader carries the API key for the link management endpoints.
const adminKeyHeader = "X-Admin-Key"

var shortKeyRegexp = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

// getValidate initializes a validator for incoming request payloads. Field
// names in validation errors follow the JSON tags, and the shortkey tag
// restricts custom keys to path-safe characters.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("shortkey", func(fl validator.FieldLevel) bool {
		return shortKeyRegexp.MatchString(fl.Field().String())
	})

	return validate
}

// requireAPIKey rejects requests whose X-Admin-Key header doesn't match key.
// The comparison is constant-time.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(adminKeyHeader)

			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter initializes and returns a new HTTP router with all routes and
// middleware configured. The redirect route is registered last so that
// /api/v1, /metrics and the documentation routes take precedence over short
// keys.
func NewRouter(logger *httplog.Logger, linkSvc LinkService, redirectSvc RedirectService, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"https://*"},
			AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Accept", adminKeyHeader},
			AllowCredentials: false,
			MaxAge:           84600,
		}))
		r.Use(middleware.AllowContentType("application/json"))

		validate := getValidate()

		r.Get("/ping", handlePing)
		r.Get("/health", handleHealth(opts))

		r.Route("/links", func(r chi.Router) {
			if opts.AdminAPIKey != "" {
				r.Use(requireAPIKey(opts.AdminAPIKey))
			}

			r.Post("/", handleUpsertLink(linkSvc, validate))
			r.Get("/", handleListLinks(linkSvc))

			r.Route("/{shortKey}", func(r chi.Router) {
				r.Get("/", handleGetLink(linkSvc))
				r.Delete("/", handleDeleteLink(linkSvc))
				r.Get("/visits", handleGetTracking(linkSvc))
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	if opts.SwaggerFilePath != "" {
		r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, opts.SwaggerFilePath)
		})
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/docs/swagger.yml"),
		))
	}

	redirect := handleRedirect(redirectSvc)
	if opts.RateLimit > 0 {
		r.With(httprate.LimitByIP(opts.RateLimit, opts.RateWindow)).Get("/{shortKey}", redirect)
	} else {
		r.Get("/{shortKey}", redirect)
	}

	return r
}
