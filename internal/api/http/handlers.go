package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/models"
	"github.com/vadimbarashkov/linktrack/internal/service"
	"github.com/vadimbarashkov/linktrack/pkg/response"
)

// reservedKeyResponse is returned when a custom short key collides with a
// route prefix.
var reservedKeyResponse = response.Response{
	Status:  response.StatusError,
	Error:   "Reserved Short Key",
	Message: "The requested short key is reserved and cannot be used.",
}

// handlePing handles liveness requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// healthStatus reports the state of the service dependencies.
type healthStatus struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
	GeoIP    string `json:"geoip"`
}

func featureStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// handleHealth handles readiness requests. It pings the database and reports
// which optional dependencies are configured.
func handleHealth(opts RouterOptions) http.HandlerFunc {
	const op = "api.http.handleHealth"
	const successMsg = "The service is healthy."

	return func(w http.ResponseWriter, r *http.Request) {
		if err := pingDatabase(r.Context(), opts.DB); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.ServiceUnavailableResponse)
			return
		}

		status := healthStatus{
			Database: "up",
			Cache:    featureStatus(opts.CacheEnabled),
			GeoIP:    featureStatus(opts.GeoIPEnabled),
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, status))
	}
}

func pingDatabase(ctx context.Context, db Pinger) error {
	if db == nil {
		return errors.New("no database configured")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	return db.PingContext(ctx)
}

// handleUpsertLink handles POST requests to save a link.
//
// The request must contain a valid target URL and may carry a custom short
// key. Without one the service generates a random key. Saving an existing key
// overwrites its target while the visit count survives.
func handleUpsertLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleUpsertLink"
	const successMsg = "The link has been saved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req linkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, err := svc.UpsertLink(r.Context(), req.ShortKey, req.TargetURL)
		if err != nil {
			if errors.Is(err, service.ErrReservedKey) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, reservedKeyResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleGetLink handles GET requests to retrieve a link with its visit count.
func handleGetLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLink"
	const successMsg = "The link was successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortKey := chi.URLParam(r, "shortKey")

		link, err := svc.GetLink(r.Context(), shortKey)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleListLinks handles GET requests to list all links. The sort query
// parameter switches from insertion order to descending visit counts.
func handleListLinks(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleListLinks"
	const successMsg = "The links were successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		var sort models.LinkSort

		switch r.URL.Query().Get("sort") {
		case "":
			sort = models.SortByCreation
		case "visits":
			sort = models.SortByVisits
		default:
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		links, err := svc.ListLinks(r.Context(), sort)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponses(links)))
	}
}

// handleDeleteLink handles DELETE requests to remove a link. The visit
// history recorded for the key survives the deletion.
func handleDeleteLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "The link was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		shortKey := chi.URLParam(r, "shortKey")

		err := svc.DeleteLink(r.Context(), shortKey)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleGetTracking handles GET requests to retrieve the visit history of a
// short key, including visits recorded before the link was last overwritten
// or deleted.
func handleGetTracking(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetTracking"
	const successMsg = "The visit history was successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortKey := chi.URLParam(r, "shortKey")

		record, err := svc.GetTracking(r.Context(), shortKey)
		if err != nil {
			if errors.Is(err, database.ErrTrackingNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toTrackingResponse(record)))
	}
}

// handleRedirect handles GET requests to a short key. On success it redirects
// to the target URL after the visit was counted and recorded.
func handleRedirect(svc RedirectService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortKey := chi.URLParam(r, "shortKey")

		target, err := svc.Redirect(r.Context(), shortKey, requestMeta(r))
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, target, http.StatusFound)
	}
}

// requestMeta captures the request attributes the tracking pipeline records.
func requestMeta(r *http.Request) models.RequestMeta {
	return models.RequestMeta{
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

// clientIP extracts the client address from RemoteAddr. The RealIP middleware
// has already folded the forwarding headers in, leaving either host:port or a
// bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
