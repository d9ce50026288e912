package geoip

import (
	"fmt"
	"net"
	"os"

	"github.com/linktoolkit/linktoolkit/config"
	"github.com/oschwald/geoip2-golang"
)

// Reader answers country lookups for click enrichment. A nil *Reader is
// valid and reports every IP as unknown, so the service boots without a
// GeoIP database on disk.
type Reader struct {
	db *geoip2.Reader
}

// Open memory-maps the MaxMind database at the configured path. A missing or
// empty path yields a nil reader, not an error.
func Open(cfg config.GeoIPConfig) (*Reader, error) {
	if cfg.DatabasePath == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("geoip: database file: %w", err)
	}

	db, err := geoip2.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Reader{db: db}, nil
}

// Country returns the ISO country code for the given IP, or "" when the IP
// is malformed, the database is absent, or the lookup misses.
func (r *Reader) Country(ip string) string {
	if r == nil || r.db == nil {
		return ""
	}

	addr := net.ParseIP(ip)
	if addr == nil {
		return ""
	}

	record, err := r.db.Country(addr)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
