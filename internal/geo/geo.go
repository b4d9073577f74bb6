// Package geo resolves visitor IP addresses to coarse geography using a
// MaxMind GeoLite2 City database.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

// Resolver maps an IP address to geographic data. Implementations return
// (nil, nil) for addresses that cannot meaningfully be looked up, such as
// private or loopback ranges.
type Resolver interface {
	Resolve(ip string) (*models.Geographic, error)
}

// MaxMindResolver implements Resolver on top of a GeoLite2 City .mmdb file.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	const op = "geo.NewMaxMindResolver"

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	return &MaxMindResolver{reader: reader}, nil
}

func isPrivateOrLocal(ip net.IP) bool {
	return ip.IsUnspecified() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast()
}

// Resolve looks up the address in the City database. Unparsable, private
// and loopback addresses resolve to nil without an error, as do addresses
// the database has no country for.
func (r *MaxMindResolver) Resolve(ip string) (*models.Geographic, error) {
	const op = "geo.MaxMindResolver.Resolve"

	parsed := net.ParseIP(ip)
	if parsed == nil || isPrivateOrLocal(parsed) {
		return nil, nil
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query database: %w", op, err)
	}

	if record.Country.IsoCode == "" {
		return nil, nil
	}

	geo := &models.Geographic{
		Country:     record.Country.IsoCode,
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
		Coordinates: [2]float64{record.Location.Latitude, record.Location.Longitude},
	}
	if len(record.Subdivisions) > 0 {
		geo.Region = record.Subdivisions[0].IsoCode
	}

	return geo, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
