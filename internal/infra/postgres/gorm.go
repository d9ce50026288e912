package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/linktoolkit/linktoolkit/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewGorm returns a gorm.DB configured for the application's Postgres instance.
func NewGorm(cfg config.PostgresConfig) (*gorm.DB, error) {
	dsn := ConnString(cfg)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// AutoMigrate uses GORM to perform schema migrations for the provided models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}

// EnsureClickLinkFK adds the clicks → links foreign key if it does not exist
// yet. The constraint is what turns a click insert racing the expiry sweep
// into a plain insert error the ingestion path can swallow. Deletion is NOT
// cascaded here; the sweeper removes click rows explicitly in its own
// transaction.
func EnsureClickLinkFK(ctx context.Context, db *gorm.DB) error {
	const stmt = `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint WHERE conname = 'fk_clicks_link'
	) THEN
		ALTER TABLE clicks
			ADD CONSTRAINT fk_clicks_link
			FOREIGN KEY (link_id) REFERENCES links (id);
	END IF;
END
$$;`

	if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("postgres: ensure clicks foreign key: %w", err)
	}
	return nil
}
