package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serroba/link-tracker/internal/analytics"
	"github.com/serroba/link-tracker/internal/links"
	"github.com/serroba/link-tracker/internal/tracking"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // remote libSQL/Turso driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTime is how timestamps are stored in SQLite text columns, always in UTC.
const sqliteTime = "2006-01-02 15:04:05"

// SQLiteStore is a SQLite implementation of links.Repository, tracking.ClickLog and
// analytics.Store. It works on any *sql.DB speaking the SQLite dialect.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database. libsql:// and wss:// URLs use the libSQL driver,
// everything else the embedded one.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") {
		driver = "libsql"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return nil
}

func (s *SQLiteStore) DropClickLog(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS link_clicks`)

	return err
}

func (s *SQLiteStore) Uninstall(ctx context.Context) error {
	if err := s.DropClickLog(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS tracked_links`)

	return err
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Shutdown closes the database.
func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}

const sqliteLinkColumns = `id, title, destination_url, short_code, campaign, status,
	total_clicks, unique_visitors, last_clicked_at, created_at, updated_at`

func (s *SQLiteStore) Create(ctx context.Context, link *links.Link) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_links (title, destination_url, short_code, campaign, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.Title,
		link.DestinationURL,
		string(link.ShortCode),
		link.Campaign,
		string(link.Status),
		formatSQLiteTime(link.CreatedAt),
		formatSQLiteTime(link.UpdatedAt),
	)
	if err != nil {
		return sqliteLinkError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	link.ID = id

	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, link *links.Link) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracked_links
		SET title = ?, destination_url = ?, short_code = ?, campaign = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		link.Title,
		link.DestinationURL,
		string(link.ShortCode),
		link.Campaign,
		string(link.Status),
		formatSQLiteTime(link.UpdatedAt),
		link.ID,
	)

	return affectedOrNotFound(res, sqliteLinkError(err))
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_links WHERE id = ?`, id)

	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*links.Link, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLinkColumns+` FROM tracked_links WHERE id = ?`, id)

	return scanSQLiteLink(row)
}

func (s *SQLiteStore) FindPublishedByCode(ctx context.Context, code links.Code) (*links.Link, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteLinkColumns+`
		FROM tracked_links
		WHERE short_code = ? AND status = ?
		ORDER BY id
		LIMIT 1`,
		string(code), string(links.StatusPublish),
	)

	return scanSQLiteLink(row)
}

func (s *SQLiteStore) CodeExists(ctx context.Context, code links.Code, excludeID int64) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_links WHERE short_code = ? AND id != ?)`,
		string(code), excludeID,
	).Scan(&exists)

	return exists, err
}

func (s *SQLiteStore) List(ctx context.Context, filter links.Filter) ([]links.Link, error) {
	query := `SELECT ` + sqliteLinkColumns + ` FROM tracked_links WHERE 1 = 1`
	args := make([]any, 0, 2)

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	if filter.Campaign != "" {
		query += ` AND campaign = ?`
		args = append(args, filter.Campaign)
	}

	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]links.Link, 0)

	for rows.Next() {
		link, err := scanSQLiteLink(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, *link)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) CountPublished(ctx context.Context) (int64, error) {
	var n int64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracked_links WHERE status = ?`, string(links.StatusPublish),
	).Scan(&n)

	return n, err
}

func (s *SQLiteStore) Campaigns(ctx context.Context) ([]links.CampaignCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign, COUNT(*)
		FROM tracked_links
		WHERE campaign != ''
		GROUP BY campaign
		ORDER BY campaign`)
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

func (s *SQLiteStore) IncrementClicks(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_links SET total_clicks = total_clicks + 1, last_clicked_at = ? WHERE id = ?`,
		formatSQLiteTime(at), id,
	)

	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) SetUniqueVisitors(ctx context.Context, id int64, visitors int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_links SET unique_visitors = ? WHERE id = ?`, visitors, id,
	)

	return affectedOrNotFound(res, err)
}

func (s *SQLiteStore) ResetCounters(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracked_links SET total_clicks = 0, unique_visitors = 0, last_clicked_at = NULL`,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (s *SQLiteStore) Insert(ctx context.Context, click *tracking.Click) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO link_clicks (
			link_id, visitor_id, ip_address, user_agent, referrer, device_type, browser, os,
			click_time, utm_source, utm_medium, utm_campaign, utm_term, utm_content
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		click.LinkID,
		click.VisitorID,
		truncate(click.IPAddress, 45),
		click.UserAgent,
		click.Referrer,
		truncate(click.DeviceType, 20),
		truncate(click.Browser, 50),
		truncate(click.OS, 50),
		formatSQLiteTime(click.ClickedAt),
		truncate(click.UTMSource, 255),
		truncate(click.UTMMedium, 255),
		truncate(click.UTMCampaign, 255),
		truncate(click.UTMTerm, 255),
		truncate(click.UTMContent, 255),
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	click.ID = id

	return nil
}

func (s *SQLiteStore) CountDistinctVisitors(ctx context.Context, linkID int64) (int64, error) {
	var n int64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM link_clicks WHERE link_id = ?`, linkID,
	).Scan(&n)

	return n, err
}

func (s *SQLiteStore) ClickLogExists(ctx context.Context) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'link_clicks')`,
	).Scan(&exists)

	return exists, err
}

func (s *SQLiteStore) CountClicks(ctx context.Context, r analytics.Range) (int64, error) {
	where, args := sqliteRange(r)

	var n int64

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM link_clicks WHERE `+where, args...).Scan(&n)

	return n, err
}

func (s *SQLiteStore) CountVisitors(ctx context.Context, r analytics.Range) (int64, error) {
	where, args := sqliteRange(r)

	var n int64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT visitor_id) FROM link_clicks WHERE `+where, args...,
	).Scan(&n)

	return n, err
}

func (s *SQLiteStore) GroupClicks(
	ctx context.Context, dim analytics.Dimension, r analytics.Range, limit int,
) ([]analytics.Bucket, error) {
	column, err := dimensionColumn(dim)
	if err != nil {
		return nil, err
	}

	return s.group(ctx, column, r, limit)
}

func (s *SQLiteStore) GroupReferrers(ctx context.Context, r analytics.Range, limit int) ([]analytics.Bucket, error) {
	return s.group(ctx, "referrer", r, limit)
}

func (s *SQLiteStore) group(ctx context.Context, column string, r analytics.Range, limit int) ([]analytics.Bucket, error) {
	where, args := sqliteRange(r)

	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS clicks
		FROM link_clicks
		WHERE %[2]s AND %[1]s != '' AND %[1]s IS NOT NULL
		GROUP BY %[1]s
		ORDER BY clicks DESC, %[1]s`, column, where)

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBuckets(rows)
}

func (s *SQLiteStore) DailyClicks(ctx context.Context, r analytics.Range) ([]analytics.DailyCount, error) {
	where, args := sqliteRange(r)

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(click_time, 1, 10) AS day, COUNT(*)
		FROM link_clicks
		WHERE `+where+`
		GROUP BY day
		ORDER BY day`, args...)
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

func (s *SQLiteStore) CountAllClicks(ctx context.Context) (int64, error) {
	var n int64

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM link_clicks`).Scan(&n)

	return n, err
}

func (s *SQLiteStore) RecentClicks(ctx context.Context, limit int) ([]tracking.Click, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, link_id, visitor_id, ip_address, user_agent, referrer, device_type, browser, os,
			click_time, utm_source, utm_medium, utm_campaign, utm_term, utm_content
		FROM link_clicks
		ORDER BY click_time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]tracking.Click, 0, limit)

	for rows.Next() {
		var (
			c         tracking.Click
			clickTime string
		)

		if err := rows.Scan(
			&c.ID, &c.LinkID, &c.VisitorID, &c.IPAddress, &c.UserAgent, &c.Referrer,
			&c.DeviceType, &c.Browser, &c.OS, &clickTime,
			&c.UTMSource, &c.UTMMedium, &c.UTMCampaign, &c.UTMTerm, &c.UTMContent,
		); err != nil {
			return nil, err
		}

		if c.ClickedAt, err = parseSQLiteTime(clickTime); err != nil {
			return nil, err
		}

		result = append(result, c)
	}

	return result, rows.Err()
}

func (s *SQLiteStore) TruncateClickLog(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM link_clicks`)

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLink(row rowScanner) (*links.Link, error) {
	var (
		link                 links.Link
		code, status         string
		lastClicked          sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&link.ID, &link.Title, &link.DestinationURL, &code, &link.Campaign, &status,
		&link.TotalClicks, &link.UniqueVisitors, &lastClicked, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, links.ErrNotFound
		}

		return nil, err
	}

	link.ShortCode = links.Code(code)
	link.Status = links.Status(status)

	if link.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}

	if link.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}

	if lastClicked.Valid {
		t, err := parseSQLiteTime(lastClicked.String)
		if err != nil {
			return nil, err
		}

		link.LastClickedAt = &t
	}

	return &link, nil
}

func scanBuckets(rows *sql.Rows) ([]analytics.Bucket, error) {
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

func sqliteRange(r analytics.Range) (string, []any) {
	if r.Until.IsZero() {
		return `click_time >= ?`, []any{formatSQLiteTime(r.Since)}
	}

	return `click_time >= ? AND click_time < ?`, []any{formatSQLiteTime(r.Since), formatSQLiteTime(r.Until)}
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return links.ErrNotFound
	}

	return nil
}

// sqliteLinkError maps a short code unique violation to links.ErrCodeTaken. Local
// databases report it as a typed error; remote libSQL only through the message.
func sqliteLinkError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %w", links.ErrCodeTaken, err)
	}

	if strings.Contains(err.Error(), "UNIQUE constraint failed: tracked_links.short_code") {
		return fmt.Errorf("%w: %w", links.ErrCodeTaken, err)
	}

	return err
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTime, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}

	return t, nil
}

var (
	_ links.Repository  = (*SQLiteStore)(nil)
	_ tracking.ClickLog = (*SQLiteStore)(nil)
	_ analytics.Store   = (*SQLiteStore)(nil)
	_ Migrator          = (*SQLiteStore)(nil)
)
