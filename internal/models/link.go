package models

import "time"

// Link represents a short key mapped to a target URL, together with its
// visit counter.
type Link struct {
	// ID is the unique identifier for the link record. It also fixes the
	// insertion order used when listing links.
	ID int64
	// ShortKey is the unique, case-sensitive key under which the link is
	// reachable.
	ShortKey string
	// TargetURL is the full URL the short key redirects to.
	TargetURL string
	// VisitCount tracks the number of successful redirects served for the
	// short key. It is incremented atomically by the store and survives
	// target updates.
	VisitCount int64
	// CreatedAt is the timestamp of creation. Upserting an existing key
	// refreshes it.
	CreatedAt time.Time
}

// LinkSort selects the ordering of a link listing.
type LinkSort int

const (
	// SortByCreation lists links in insertion order.
	SortByCreation LinkSort = iota
	// SortByVisits lists links by descending visit count, for dashboards.
	SortByVisits
)
