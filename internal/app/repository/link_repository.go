package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrAliasTaken signals that the short alias is already in use. The unique
	// index on short_alias is the source of truth; a concurrent creator loses
	// here at commit time, never by silent overwrite.
	ErrAliasTaken = errors.New("short alias already taken")
)

// SweepResult reports one run of the expired-link purge.
type SweepResult struct {
	LinksDeleted  int64
	ClicksDeleted int64
	Aliases       []string
}

// ClaimResult reports one bulk claim of anonymous-session links. Aliases
// lets callers evict the reassigned links from any cache holding the
// pre-claim ownership.
type ClaimResult struct {
	LinksClaimed int64
	Aliases      []string
}

// LinkRepository defines the data access contract for short links. It is the
// sole owner of the link lifecycle: create, claim, expire-delete.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByAlias(ctx context.Context, alias string) (*model.Link, error)
	ExistsByAlias(ctx context.Context, alias string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Link, error)
	ListAliases(ctx context.Context) ([]string, error)
	ClaimAnonymous(ctx context.Context, userID, sessionID uuid.UUID) (ClaimResult, error)
	DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrAliasTaken
		}
		return err
	}
	return nil
}

// GetByAlias performs an exact, case-sensitive lookup.
func (r *linkRepository) GetByAlias(ctx context.Context, alias string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("short_alias = ?", alias).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ExistsByAlias(ctx context.Context, alias string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("short_alias = ?", alias).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *linkRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Link, error) {
	var result []model.Link
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ListAliases returns every live alias, used to seed the in-process
// existence filter at startup.
func (r *linkRepository) ListAliases(ctx context.Context) ([]string, error) {
	var aliases []string
	if err := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Pluck("short_alias", &aliases).Error; err != nil {
		return nil, err
	}
	return aliases, nil
}

// ClaimAnonymous reassigns every link tagged with sessionID to userID and
// clears the session tag. The alias pluck and the update share a transaction
// so the reported aliases are exactly the reassigned rows. Idempotent: zero
// matches is a no-op.
func (r *linkRepository) ClaimAnonymous(ctx context.Context, userID, sessionID uuid.UUID) (ClaimResult, error) {
	var res ClaimResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Link{}).
			Where("anonymous_session_id = ?", sessionID).
			Pluck("short_alias", &res.Aliases).Error; err != nil {
			return err
		}
		if len(res.Aliases) == 0 {
			return nil
		}

		result := tx.Model(&model.Link{}).
			Where("anonymous_session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"user_id":              userID,
				"anonymous_session_id": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		res.LinksClaimed = result.RowsAffected
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return res, nil
}

// DeleteExpired purges every link with expires_at < now and its click rows in
// one transaction. Click rows go first so the foreign key never blocks the
// link delete. Running twice with no new expirations is a no-op.
func (r *linkRepository) DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Link{}).
			Where("expires_at < ?", now).
			Pluck("short_alias", &res.Aliases).Error; err != nil {
			return err
		}
		if len(res.Aliases) == 0 {
			return nil
		}

		clicks := tx.Exec(
			"DELETE FROM clicks WHERE link_id IN (SELECT id FROM links WHERE expires_at < ?)",
			now,
		)
		if clicks.Error != nil {
			return clicks.Error
		}
		res.ClicksDeleted = clicks.RowsAffected

		links := tx.Where("expires_at < ?", now).Delete(&model.Link{})
		if links.Error != nil {
			return links.Error
		}
		res.LinksDeleted = links.RowsAffected
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

// isUniqueViolation reports whether err is a Postgres 23505 on the alias index.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
