package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

type trackingRecordRow struct {
	ID        int64     `db:"id"`
	ShortKey  string    `db:"short_key"`
	TargetURL string    `db:"target_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type visitRow struct {
	ID              int64     `db:"id"`
	RecordID        int64     `db:"record_id"`
	VisitNumber     int64     `db:"visit_number"`
	VisitedAt       time.Time `db:"visited_at"`
	IPAddress       string    `db:"ip_address"`
	UARaw           string    `db:"ua_raw"`
	BrowserName     *string   `db:"browser_name"`
	BrowserVersion  *string   `db:"browser_version"`
	OSName          *string   `db:"os_name"`
	OSVersion       *string   `db:"os_version"`
	DeviceType      *string   `db:"device_type"`
	DeviceModel     *string   `db:"device_model"`
	EngineName      *string   `db:"engine_name"`
	EngineVersion   *string   `db:"engine_version"`
	CPUArchitecture *string   `db:"cpu_architecture"`
	GeoCountry      *string   `db:"geo_country"`
	GeoRegion       *string   `db:"geo_region"`
	GeoCity         *string   `db:"geo_city"`
	GeoTimezone     *string   `db:"geo_timezone"`
	GeoLatitude     *float64  `db:"geo_latitude"`
	GeoLongitude    *float64  `db:"geo_longitude"`
	IsBot           bool      `db:"is_bot"`
	Referrer        string    `db:"referrer"`
	AcceptLanguage  *string   `db:"accept_language"`
	AcceptEncoding  *string   `db:"accept_encoding"`
}

func visitRowFromEntry(recordID int64, entry models.VisitEntry) visitRow {
	row := visitRow{
		RecordID:        recordID,
		VisitNumber:     entry.VisitNumber,
		VisitedAt:       entry.Timestamp,
		IPAddress:       entry.IPAddress,
		UARaw:           entry.UserAgent.Raw,
		BrowserName:     entry.UserAgent.BrowserName,
		BrowserVersion:  entry.UserAgent.BrowserVersion,
		OSName:          entry.UserAgent.OSName,
		OSVersion:       entry.UserAgent.OSVersion,
		DeviceType:      entry.UserAgent.DeviceType,
		DeviceModel:     entry.UserAgent.DeviceModel,
		EngineName:      entry.UserAgent.EngineName,
		EngineVersion:   entry.UserAgent.EngineVersion,
		CPUArchitecture: entry.UserAgent.CPUArchitecture,
		IsBot:           entry.IsBot,
		Referrer:        entry.Referrer,
		AcceptLanguage:  entry.AcceptLanguage,
		AcceptEncoding:  entry.AcceptEncoding,
	}

	if geo := entry.Geographic; geo != nil {
		row.GeoCountry = &geo.Country
		row.GeoRegion = &geo.Region
		row.GeoCity = &geo.City
		row.GeoTimezone = &geo.Timezone
		row.GeoLatitude = &geo.Coordinates[0]
		row.GeoLongitude = &geo.Coordinates[1]
	}

	return row
}

func (r *visitRow) toEntry() models.VisitEntry {
	entry := models.VisitEntry{
		ID:          r.ID,
		VisitNumber: r.VisitNumber,
		Timestamp:   r.VisitedAt,
		IPAddress:   r.IPAddress,
		UserAgent: models.UserAgentInfo{
			Raw:             r.UARaw,
			BrowserName:     r.BrowserName,
			BrowserVersion:  r.BrowserVersion,
			OSName:          r.OSName,
			OSVersion:       r.OSVersion,
			DeviceType:      r.DeviceType,
			DeviceModel:     r.DeviceModel,
			EngineName:      r.EngineName,
			EngineVersion:   r.EngineVersion,
			CPUArchitecture: r.CPUArchitecture,
		},
		IsBot:          r.IsBot,
		Referrer:       r.Referrer,
		AcceptLanguage: r.AcceptLanguage,
		AcceptEncoding: r.AcceptEncoding,
	}

	if r.GeoCountry != nil {
		geo := &models.Geographic{Country: *r.GeoCountry}
		if r.GeoRegion != nil {
			geo.Region = *r.GeoRegion
		}
		if r.GeoCity != nil {
			geo.City = *r.GeoCity
		}
		if r.GeoTimezone != nil {
			geo.Timezone = *r.GeoTimezone
		}
		if r.GeoLatitude != nil {
			geo.Coordinates[0] = *r.GeoLatitude
		}
		if r.GeoLongitude != nil {
			geo.Coordinates[1] = *r.GeoLongitude
		}
		entry.Geographic = geo
	}

	return entry
}

// TrackingRepository persists visit history in the tracking_records and
// tracking_visits tables. Records are keyed by short key and carry no
// foreign key into links, so history survives link deletion.
type TrackingRepository struct {
	db *sqlx.DB
}

func NewTrackingRepository(db *sqlx.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

const upsertTrackingRecordQuery = `INSERT INTO tracking_records(short_key, target_url) VALUES ($1, $2)
	ON CONFLICT (short_key) DO UPDATE
	SET target_url = EXCLUDED.target_url, updated_at = now()
	RETURNING id`

const insertVisitQuery = `INSERT INTO tracking_visits(
		record_id, visit_number, visited_at, ip_address, ua_raw,
		browser_name, browser_version, os_name, os_version,
		device_type, device_model, engine_name, engine_version, cpu_architecture,
		geo_country, geo_region, geo_city, geo_timezone, geo_latitude, geo_longitude,
		is_bot, referrer, accept_language, accept_encoding
	) VALUES (
		:record_id, :visit_number, :visited_at, :ip_address, :ua_raw,
		:browser_name, :browser_version, :os_name, :os_version,
		:device_type, :device_model, :engine_name, :engine_version, :cpu_architecture,
		:geo_country, :geo_region, :geo_city, :geo_timezone, :geo_latitude, :geo_longitude,
		:is_bot, :referrer, :accept_language, :accept_encoding
	)`

// AppendVisit records one visit in a single transaction: the parent record
// is created or refreshed with the latest target, then the visit row is
// inserted. Visit rows are append-only and ordered by their serial id, so
// concurrent appends for the same key all survive.
func (r *TrackingRepository) AppendVisit(ctx context.Context, shortKey, targetURL string, entry models.VisitEntry) error {
	const op = "database.postgres.TrackingRepository.AppendVisit"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var recordID int64

	if err := tx.GetContext(ctx, &recordID, upsertTrackingRecordQuery, shortKey, targetURL); err != nil {
		return fmt.Errorf("%s: failed to upsert tracking_records table row: %w", op, err)
	}

	if _, err := tx.NamedExecContext(ctx, insertVisitQuery, visitRowFromEntry(recordID, entry)); err != nil {
		return fmt.Errorf("%s: failed to insert into tracking_visits table: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

// GetByShortKey retrieves the tracking record for a key along with all its
// visits in append order.
func (r *TrackingRepository) GetByShortKey(ctx context.Context, shortKey string) (*models.TrackingRecord, error) {
	const op = "database.postgres.TrackingRepository.GetByShortKey"
	const recordQuery = `SELECT * FROM tracking_records WHERE short_key = $1`
	const visitsQuery = `SELECT * FROM tracking_visits WHERE record_id = $1 ORDER BY id`

	var rec trackingRecordRow

	if err := r.db.GetContext(ctx, &rec, recordQuery, shortKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrTrackingNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from tracking_records table: %w", op, err)
	}

	var rows []visitRow

	if err := r.db.SelectContext(ctx, &rows, visitsQuery, rec.ID); err != nil {
		return nil, fmt.Errorf("%s: failed to select from tracking_visits table: %w", op, err)
	}

	visits := make([]models.VisitEntry, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, row.toEntry())
	}

	return &models.TrackingRecord{
		ID:        rec.ID,
		ShortKey:  rec.ShortKey,
		TargetURL: rec.TargetURL,
		Visits:    visits,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
