package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/tracking"
)

// PostgresStore is a PostgreSQL implementation of links.Repository, tracking.ClickLog and
// analytics.Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}

	return nil
}

func (p *PostgresStore) DropClickLog(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DROP TABLE IF EXISTS link_clicks`)

	return err
}

func (p *PostgresStore) Uninstall(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DROP TABLE IF EXISTS link_clicks, tracked_links`)

	return err
}

const postgresLinkColumns = `id, title, destination_url, short_code, campaign, status,
	total_clicks, unique_visitors, last_clicked_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, link *links.Link) error {
	query := `
		INSERT INTO tracked_links (title, destination_url, short_code, campaign, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := p.pool.QueryRow(ctx, query,
		link.Title,
		link.DestinationURL,
		string(link.ShortCode),
		link.Campaign,
		string(link.Status),
		link.CreatedAt,
		link.UpdatedAt,
	).Scan(&link.ID)

	return postgresLinkError(err)
}

func (p *PostgresStore) Update(ctx context.Context, link *links.Link) error {
	query := `
		UPDATE tracked_links
		SET title = $1, destination_url = $2, short_code = $3, campaign = $4, status = $5, updated_at = $6
		WHERE id = $7
	`

	tag, err := p.pool.Exec(ctx, query,
		link.Title,
		link.DestinationURL,
		string(link.ShortCode),
		link.Campaign,
		string(link.Status),
		link.UpdatedAt,
		link.ID,
	)

	return rowsOrNotFound(tag, postgresLinkError(err))
}

const (
	uniqueViolation     = "23505"
	shortCodeConstraint = "uq_tracked_links_short_code"
)

func postgresLinkError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == shortCodeConstraint {
		return fmt.Errorf("%w: %w", links.ErrCodeTaken, err)
	}

	return err
}

func (p *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM tracked_links WHERE id = $1`, id)

	return rowsOrNotFound(tag, err)
}

func (p *PostgresStore) GetByID(ctx context.Context, id int64) (*links.Link, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+postgresLinkColumns+` FROM tracked_links WHERE id = $1`, id)

	return scanPostgresLink(row)
}

func (p *PostgresStore) FindPublishedByCode(ctx context.Context, code links.Code) (*links.Link, error) {
	query := `
		SELECT ` + postgresLinkColumns + `
		FROM tracked_links
		WHERE short_code = $1 AND status = $2
		ORDER BY id
		LIMIT 1
	`

	return scanPostgresLink(p.pool.QueryRow(ctx, query, string(code), string(links.StatusPublish)))
}

func (p *PostgresStore) CodeExists(ctx context.Context, code links.Code, excludeID int64) (bool, error) {
	var exists bool

	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_links WHERE short_code = $1 AND id <> $2)`,
		string(code), excludeID,
	).Scan(&exists)

	return exists, err
}

func (p *PostgresStore) List(ctx context.Context, filter links.Filter) ([]links.Link, error) {
	query := `
		SELECT ` + postgresLinkColumns + `
		FROM tracked_links
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR campaign = $2)
		ORDER BY id
	`

	rows, err := p.pool.Query(ctx, query, string(filter.Status), filter.Campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]links.Link, 0)

	for rows.Next() {
		link, err := scanPostgresLink(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, *link)
	}

	return result, rows.Err()
}

func (p *PostgresStore) CountPublished(ctx context.Context) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tracked_links WHERE status = $1`, string(links.StatusPublish),
	).Scan(&n)

	return n, err
}

func (p *PostgresStore) Campaigns(ctx context.Context) ([]links.CampaignCount, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT campaign, COUNT(*)
		FROM tracked_links
		WHERE campaign <> ''
		GROUP BY campaign
		ORDER BY campaign
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]links.CampaignCount, 0)

	for rows.Next() {
		var c links.CampaignCount
		if err := rows.Scan(&c.Campaign, &c.Links); err != nil {
			return nil, err
		}

		result = append(result, c)
	}

	return result, rows.Err()
}

func (p *PostgresStore) IncrementClicks(ctx context.Context, id int64, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE tracked_links SET total_clicks = total_clicks + 1, last_clicked_at = $1 WHERE id = $2`,
		at.UTC(), id,
	)

	return rowsOrNotFound(tag, err)
}

func (p *PostgresStore) SetUniqueVisitors(ctx context.Context, id int64, visitors int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE tracked_links SET unique_visitors = $1 WHERE id = $2`, visitors, id)

	return rowsOrNotFound(tag, err)
}

func (p *PostgresStore) ResetCounters(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE tracked_links SET total_clicks = 0, unique_visitors = 0, last_clicked_at = NULL`,
	)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresStore) Insert(ctx context.Context, click *tracking.Click) error {
	query := `
		INSERT INTO link_clicks (
			link_id, visitor_id, ip_address, user_agent, referrer, device_type, browser, os,
			click_time, utm_source, utm_medium, utm_campaign, utm_term, utm_content
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	return p.pool.QueryRow(ctx, query,
		click.LinkID,
		click.VisitorID,
		truncate(click.IPAddress, 45),
		click.UserAgent,
		click.Referrer,
		truncate(click.DeviceType, 20),
		truncate(click.Browser, 50),
		truncate(click.OS, 50),
		click.ClickedAt.UTC(),
		truncate(click.UTMSource, 255),
		truncate(click.UTMMedium, 255),
		truncate(click.UTMCampaign, 255),
		truncate(click.UTMTerm, 255),
		truncate(click.UTMContent, 255),
	).Scan(&click.ID)
}

func (p *PostgresStore) CountDistinctVisitors(ctx context.Context, linkID int64) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM link_clicks WHERE link_id = $1`, linkID,
	).Scan(&n)

	return n, err
}

func (p *PostgresStore) ClickLogExists(ctx context.Context) (bool, error) {
	var exists bool

	err := p.pool.QueryRow(ctx, `SELECT to_regclass('link_clicks') IS NOT NULL`).Scan(&exists)

	return exists, err
}

func (p *PostgresStore) CountClicks(ctx context.Context, r analytics.Range) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM link_clicks WHERE `+postgresRange, rangeArgs(r)...,
	).Scan(&n)

	return n, err
}

func (p *PostgresStore) CountVisitors(ctx context.Context, r analytics.Range) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM link_clicks WHERE `+postgresRange, rangeArgs(r)...,
	).Scan(&n)

	return n, err
}

func (p *PostgresStore) GroupClicks(
	ctx context.Context, dim analytics.Dimension, r analytics.Range, limit int,
) ([]analytics.Bucket, error) {
	column, err := dimensionColumn(dim)
	if err != nil {
		return nil, err
	}

	return p.group(ctx, column, r, limit)
}

func (p *PostgresStore) GroupReferrers(ctx context.Context, r analytics.Range, limit int) ([]analytics.Bucket, error) {
	return p.group(ctx, "referrer", r, limit)
}

func (p *PostgresStore) group(ctx context.Context, column string, r analytics.Range, limit int) ([]analytics.Bucket, error) {
	// LIMIT NULL means no limit in PostgreSQL.
	var maxRows *int
	if limit > 0 {
		maxRows = &limit
	}

	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS clicks
		FROM link_clicks
		WHERE %[2]s AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY clicks DESC, %[1]s
		LIMIT $3
	`, column, postgresRange)

	rows, err := p.pool.Query(ctx, query, append(rangeArgs(r), maxRows)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]analytics.Bucket, 0)

	for rows.Next() {
		var b analytics.Bucket
		if err := rows.Scan(&b.Label, &b.Clicks); err != nil {
			return nil, err
		}

		result = append(result, b)
	}

	return result, rows.Err()
}

func (p *PostgresStore) DailyClicks(ctx context.Context, r analytics.Range) ([]analytics.DailyCount, error) {
	query := `
		SELECT to_char((click_time AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM link_clicks
		WHERE ` + postgresRange + `
		GROUP BY day
		ORDER BY day
	`

	rows, err := p.pool.Query(ctx, query, rangeArgs(r)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]analytics.DailyCount, 0)

	for rows.Next() {
		var d analytics.DailyCount
		if err := rows.Scan(&d.Day, &d.Clicks); err != nil {
			return nil, err
		}

		result = append(result, d)
	}

	return result, rows.Err()
}

func (p *PostgresStore) CountAllClicks(ctx context.Context) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM link_clicks`).Scan(&n)

	return n, err
}

func (p *PostgresStore) RecentClicks(ctx context.Context, limit int) ([]tracking.Click, error) {
	query := `
		SELECT id, link_id, visitor_id, ip_address, user_agent, referrer, device_type, browser, os,
			click_time, utm_source, utm_medium, utm_campaign, utm_term, utm_content
		FROM link_clicks
		ORDER BY click_time DESC, id DESC
		LIMIT $1
	`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]tracking.Click, 0, limit)

	for rows.Next() {
		var c tracking.Click

		if err := rows.Scan(
			&c.ID, &c.LinkID, &c.VisitorID, &c.IPAddress, &c.UserAgent, &c.Referrer,
			&c.DeviceType, &c.Browser, &c.OS, &c.ClickedAt,
			&c.UTMSource, &c.UTMMedium, &c.UTMCampaign, &c.UTMTerm, &c.UTMContent,
		); err != nil {
			return nil, err
		}

		c.ClickedAt = c.ClickedAt.UTC()
		result = append(result, c)
	}

	return result, rows.Err()
}

func (p *PostgresStore) TruncateClickLog(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `TRUNCATE TABLE link_clicks`)

	return err
}

// postgresRange filters on $1 (since) and $2 (until, NULL when open-ended).
const postgresRange = `click_time >= $1 AND ($2::timestamptz IS NULL OR click_time < $2)`

func rangeArgs(r analytics.Range) []any {
	var until *time.Time
	if !r.Until.IsZero() {
		u := r.Until.UTC()
		until = &u
	}

	return []any{r.Since.UTC(), until}
}

func scanPostgresLink(row pgx.Row) (*links.Link, error) {
	var (
		link         links.Link
		code, status string
	)

	err := row.Scan(
		&link.ID, &link.Title, &link.DestinationURL, &code, &link.Campaign, &status,
		&link.TotalClicks, &link.UniqueVisitors, &link.LastClickedAt, &link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, links.ErrNotFound
		}

		return nil, err
	}

	link.ShortCode = links.Code(code)
	link.Status = links.Status(status)

	return &link, nil
}

func rowsOrNotFound(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return links.ErrNotFound
	}

	return nil
}

var (
	_ links.Repository  = (*PostgresStore)(nil)
	_ tracking.ClickLog = (*PostgresStore)(nil)
	_ analytics.Store   = (*PostgresStore)(nil)
	_ Migrator          = (*PostgresStore)(nil)
)
