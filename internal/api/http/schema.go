package http

import (
	"time"

	"github.com/vadimbarashkov/linktrack/internal/models"
)

// linkRequest represents the request payload for saving a link.
type linkRequest struct {
	TargetURL string `json:"target_url" validate:"required,url"`
	ShortKey  string `json:"short_key,omitempty" validate:"omitempty,shortkey,max=64"`
}

// linkResponse represents the response payload for a link operation.
type linkResponse struct {
	ID         int64     `json:"id"`
	ShortKey   string    `json:"short_key"`
	TargetURL  string    `json:"target_url"`
	VisitCount int64     `json:"visit_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toLinkResponse(link *models.Link) linkResponse {
	return linkResponse{
		ID:         link.ID,
		ShortKey:   link.ShortKey,
		TargetURL:  link.TargetURL,
		VisitCount: link.VisitCount,
		CreatedAt:  link.CreatedAt,
	}
}

func toLinkResponses(links []models.Link) []linkResponse {
	resp := make([]linkResponse, 0, len(links))
	for i := range links {
		resp = append(resp, toLinkResponse(&links[i]))
	}
	return resp
}

// userAgentResponse carries the parsed user agent of a visit. Fields the
// parser couldn't determine are omitted.
type userAgentResponse struct {
	Raw             string  `json:"raw"`
	BrowserName     *string `json:"browser_name,omitempty"`
	BrowserVersion  *string `json:"browser_version,omitempty"`
	OSName          *string `json:"os_name,omitempty"`
	OSVersion       *string `json:"os_version,omitempty"`
	DeviceType      *string `json:"device_type,omitempty"`
	DeviceModel     *string `json:"device_model,omitempty"`
	EngineName      *string `json:"engine_name,omitempty"`
	EngineVersion   *string `json:"engine_version,omitempty"`
	CPUArchitecture *string `json:"cpu_architecture,omitempty"`
}

// geographicResponse carries the geo lookup result of a visit.
type geographicResponse struct {
	Country     string     `json:"country"`
	Region      string     `json:"region,omitempty"`
	City        string     `json:"city,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Coordinates [2]float64 `json:"coordinates"`
}

// visitResponse represents a single recorded visit.
type visitResponse struct {
	VisitNumber    int64               `json:"visit_number"`
	Timestamp      time.Time           `json:"timestamp"`
	IPAddress      string              `json:"ip_address"`
	UserAgent      userAgentResponse   `json:"user_agent"`
	Geographic     *geographicResponse `json:"geographic,omitempty"`
	IsBot          bool                `json:"is_bot"`
	Referrer       string              `json:"referrer"`
	AcceptLanguage *string             `json:"accept_language,omitempty"`
	AcceptEncoding *string             `json:"accept_encoding,omitempty"`
}

// trackingResponse represents the visit history of a short key.
type trackingResponse struct {
	ShortKey  string          `json:"short_key"`
	TargetURL string          `json:"target_url"`
	Visits    []visitResponse `json:"visits"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toVisitResponse(entry *models.VisitEntry) visitResponse {
	resp := visitResponse{
		VisitNumber: entry.VisitNumber,
		Timestamp:   entry.Timestamp,
		IPAddress:   entry.IPAddress,
		UserAgent: userAgentResponse{
			Raw:             entry.UserAgent.Raw,
			BrowserName:     entry.UserAgent.BrowserName,
			BrowserVersion:  entry.UserAgent.BrowserVersion,
			OSName:          entry.UserAgent.OSName,
			OSVersion:       entry.UserAgent.OSVersion,
			DeviceType:      entry.UserAgent.DeviceType,
			DeviceModel:     entry.UserAgent.DeviceModel,
			EngineName:      entry.UserAgent.EngineName,
			EngineVersion:   entry.UserAgent.EngineVersion,
			CPUArchitecture: entry.UserAgent.CPUArchitecture,
		},
		IsBot:          entry.IsBot,
		Referrer:       entry.Referrer,
		AcceptLanguage: entry.AcceptLanguage,
		AcceptEncoding: entry.AcceptEncoding,
	}

	if entry.Geographic != nil {
		resp.Geographic = &geographicResponse{
			Country:     entry.Geographic.Country,
			Region:      entry.Geographic.Region,
			City:        entry.Geographic.City,
			Timezone:    entry.Geographic.Timezone,
			Coordinates: entry.Geographic.Coordinates,
		}
	}

	return resp
}

func toTrackingResponse(record *models.TrackingRecord) trackingResponse {
	visits := make([]visitResponse, 0, len(record.Visits))
	for i := range record.Visits {
		visits = append(visits, toVisitResponse(&record.Visits[i]))
	}

	return trackingResponse{
		ShortKey:  record.ShortKey,
		TargetURL: record.TargetURL,
		Visits:    visits,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
