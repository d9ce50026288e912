package model

import (
	"time"

	"github.com/google/uuid"
)

// Link is the core short-link entity stored in Postgres.
//
// At most one of UserID and AnonymousSessionID is set. Both may be nil for a
// link whose anonymous session was claimed elsewhere or abandoned; such
// orphaned links still resolve until they expire.
type Link struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ShortAlias         string     `gorm:"size:50;not null;uniqueIndex:idx_links_short_alias"`
	LongURL            string     `gorm:"type:text;not null"`
	UserID             *uuid.UUID `gorm:"type:uuid;index:idx_links_user_id"`
	AnonymousSessionID *uuid.UUID `gorm:"type:uuid;index:idx_links_anonymous_session_id"`
	ExpiresAt          time.Time  `gorm:"not null;index"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
}

// Expired reports whether the link is semantically deleted at the given
// instant, regardless of whether the sweeper has purged it yet.
func (l *Link) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// LinkSummary is a link plus its lifetime click count, as returned by the
// owner listing endpoint.
type LinkSummary struct {
	Link        Link
	TotalClicks int64
}
