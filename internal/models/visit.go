package models

import "time"

// Visit field fallbacks used when request metadata is absent.
const (
	UnknownIP      = "Unknown"
	DirectReferrer = "Direct"
)

// RequestMeta is the request metadata captured for one redirect before
// enrichment. Zero values mean the corresponding header was absent.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	AcceptEncoding string
}

// TrackingRecord collects the visit history of a single short key. It is
// keyed by the short key but lives independently of the Link: deleting a
// link keeps its tracking history.
type TrackingRecord struct {
	ID int64
	// ShortKey mirrors the Link's key.
	ShortKey string
	// TargetURL is the last target the key redirected to, refreshed on
	// every tracked visit.
	TargetURL string
	// Visits holds the recorded visit entries in append order.
	Visits    []VisitEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VisitEntry is one recorded redirect. All enrichment-derived fields are
// optional: a degraded entry carries only the minimal subset.
type VisitEntry struct {
	ID int64
	// VisitNumber is the link's visit counter value returned by the atomic
	// increment that admitted this visit. Entries are stored in append
	// order, which under concurrency need not match VisitNumber order.
	VisitNumber int64
	// Timestamp is the time the redirect was served.
	Timestamp time.Time
	// IPAddress is the client address, or "Unknown" when undeterminable.
	IPAddress string
	// UserAgent carries the raw header and whatever could be parsed out
	// of it.
	UserAgent UserAgentInfo
	// Geographic is nil when the IP could not be resolved (private ranges,
	// missing database, lookup failure).
	Geographic *Geographic
	// IsBot reports whether the user agent matched a crawler signature.
	IsBot bool
	// Referrer is the Referer header, or "Direct" when absent.
	Referrer string
	// AcceptLanguage and AcceptEncoding are the raw header values, when
	// present.
	AcceptLanguage *string
	AcceptEncoding *string
}

// Degraded returns the minimal form of the entry: visit number, timestamp,
// IP, bot flag, referrer and the raw user agent string. Used as the retry
// payload when persisting the full entry fails.
func (e VisitEntry) Degraded() VisitEntry {
	return VisitEntry{
		VisitNumber: e.VisitNumber,
		Timestamp:   e.Timestamp,
		IPAddress:   e.IPAddress,
		UserAgent:   UserAgentInfo{Raw: e.UserAgent.Raw},
		IsBot:       e.IsBot,
		Referrer:    e.Referrer,
	}
}

// UserAgentInfo is the parsed breakdown of a User-Agent header. Fields the
// parser could not determine are nil.
type UserAgentInfo struct {
	// Raw is the unparsed header value.
	Raw            string
	BrowserName    *string
	BrowserVersion *string
	OSName         *string
	OSVersion      *string
	// DeviceType is one of "mobile", "tablet", "desktop" or "bot".
	DeviceType  *string
	DeviceModel *string
	// EngineName and EngineVersion describe the rendering engine
	// (WebKit, Gecko, Blink, ...).
	EngineName    *string
	EngineVersion *string
	// CPUArchitecture is the hardware token found in the header
	// (amd64, arm64, ...).
	CPUArchitecture *string
}

// Geographic is the result of a geo-IP lookup.
type Geographic struct {
	// Country is the ISO 3166-1 country code.
	Country string
	// Region is the first subdivision code (state, oblast, ...).
	Region string
	// City is the English city name.
	City string
	// Timezone is the IANA timezone name.
	Timezone string
	// Coordinates holds latitude and longitude, in that order.
	Coordinates [2]float64
}
