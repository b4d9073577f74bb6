// Package enrichment turns raw request metadata into structured visit
// entries: user agent breakdown, geography and bot classification.
package enrichment

import (
	"time"

	"github.com/mileusna/useragent"
	"github.com/vadimbarashkov/linktrack/internal/geo"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

// Enricher derives visit entries from request metadata. The geo resolver
// is optional; without one, entries simply carry no geography.
type Enricher struct {
	resolver geo.Resolver
}

func New(resolver geo.Resolver) *Enricher {
	return &Enricher{resolver: resolver}
}

// Enrich builds the visit entry for one served redirect. Each derivation
// step tolerates failure on its own: fields that cannot be determined stay
// nil and resolver errors leave Geographic unset. Enrich never fails.
func (e *Enricher) Enrich(meta models.RequestMeta, visitNumber int64, ts time.Time) models.VisitEntry {
	ua := useragent.Parse(meta.UserAgent)

	entry := models.VisitEntry{
		VisitNumber:    visitNumber,
		Timestamp:      ts,
		IPAddress:      meta.IPAddress,
		UserAgent:      buildUserAgentInfo(meta.UserAgent, ua),
		IsBot:          ua.Bot || matchesBotSignature(meta.UserAgent),
		Referrer:       meta.Referrer,
		AcceptLanguage: optional(meta.AcceptLanguage),
		AcceptEncoding: optional(meta.AcceptEncoding),
	}

	if entry.IPAddress == "" {
		entry.IPAddress = models.UnknownIP
	}
	if entry.Referrer == "" {
		entry.Referrer = models.DirectReferrer
	}

	if e.resolver != nil {
		if geographic, err := e.resolver.Resolve(entry.IPAddress); err == nil {
			entry.Geographic = geographic
		}
	}

	return entry
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
