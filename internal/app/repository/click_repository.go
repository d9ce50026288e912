package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linktoolkit/linktoolkit/internal/app/model"
)

// ClickRepository defines the data access contract for click records. Rows
// are append-only; the aggregate reads are point-in-time snapshots that may
// trail in-flight ingests.
type ClickRepository interface {
	Create(ctx context.Context, click *model.Click) error
	CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error)
	ClicksPerDay(ctx context.Context, linkID uuid.UUID, since time.Time) ([]model.DayCount, error)
	TopReferrers(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
	TopDevices(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
	TopCountries(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error)
}

type clickRepository struct {
	pool *pgxpool.Pool
}

// NewClickRepository returns a pgx-backed ClickRepository. The aggregation
// queries use raw SQL (date_trunc, grouped top-N) that has no good ORM shape.
func NewClickRepository(pool *pgxpool.Pool) ClickRepository {
	return &clickRepository{pool: pool}
}

func (r *clickRepository) Create(ctx context.Context, click *model.Click) error {
	if click.ID == uuid.Nil {
		click.ID = uuid.New()
	}
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO clicks (id, link_id, clicked_at, ip_address, user_agent, referer, country_code, device_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		click.ID,
		click.LinkID,
		click.ClickedAt,
		click.IPAddress,
		click.UserAgent,
		click.Referer,
		click.CountryCode,
		click.DeviceType,
	)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

func (r *clickRepository) CountByLink(ctx context.Context, linkID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clicks WHERE link_id = $1`, linkID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return count, nil
}

// ClicksPerDay groups clicks by UTC calendar day from `since` onward. Days
// with no clicks produce no row.
func (r *clickRepository) ClicksPerDay(ctx context.Context, linkID uuid.UUID, since time.Time) ([]model.DayCount, error) {
	const query = `
		SELECT date_trunc('day', clicked_at AT TIME ZONE 'UTC') AS day, COUNT(*) AS clicks
		FROM clicks
		WHERE link_id = $1 AND clicked_at >= $2
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.pool.Query(ctx, query, linkID, since)
	if err != nil {
		return nil, fmt.Errorf("clicks per day: %w", err)
	}
	defer rows.Close()

	var series []model.DayCount
	for rows.Next() {
		var point model.DayCount
		if err := rows.Scan(&point.Date, &point.Clicks); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		series = append(series, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day counts: %w", err)
	}
	return series, nil
}

func (r *clickRepository) TopReferrers(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	return r.topByField(ctx, "referer", linkID, limit)
}

func (r *clickRepository) TopDevices(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	return r.topByField(ctx, "device_type", linkID, limit)
}

func (r *clickRepository) TopCountries(ctx context.Context, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	return r.topByField(ctx, "country_code", linkID, limit)
}

// topByField counts clicks grouped by one enrichment column, skipping rows
// where the value is absent. Ties break on the value itself so repeated calls
// over the same data return the same order. The column name is always one of
// the three constants above, never caller input.
func (r *clickRepository) topByField(ctx context.Context, column string, linkID uuid.UUID, limit int) ([]model.FieldCount, error) {
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
		SELECT %s AS name, COUNT(*) AS count
		FROM clicks
		WHERE link_id = $1 AND %s <> ''
		GROUP BY name
		ORDER BY count DESC, name ASC
		LIMIT $2
	`, column, column)

	rows, err := r.pool.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	var result []model.FieldCount
	for rows.Next() {
		var entry model.FieldCount
		if err := rows.Scan(&entry.Name, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top %s: %w", column, err)
	}
	return result, nil
}
