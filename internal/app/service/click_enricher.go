package service

import (
	"github.com/linktoolkit/linktoolkit/internal/infra/geoip"
	"github.com/mileusna/useragent"
)

// ClickEnricher derives the optional country and device fields of a click.
// Every failure path yields the empty string: enrichment is best-effort and
// must never stop the base click record from being written.
type ClickEnricher struct {
	geo *geoip.Reader
}

// NewClickEnricher returns an enricher over the given GeoIP reader, which
// may be nil when no database is configured.
func NewClickEnricher(geo *geoip.Reader) *ClickEnricher {
	return &ClickEnricher{geo: geo}
}

// Country resolves an IP to an ISO country code, or "" on any failure.
func (e *ClickEnricher) Country(ip string) string {
	if ip == "" {
		return ""
	}
	return e.geo.Country(ip)
}

// Device classifies a user-agent into a coarse device family, or "".
func (e *ClickEnricher) Device(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	ua := useragent.Parse(userAgent)
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return ""
	}
}
