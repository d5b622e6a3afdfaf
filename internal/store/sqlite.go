package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailarchive/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations. WAL keeps
// per-message commits cheap, which matters because the archiver
// commits after every insert.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ExistingMessageIDs performs a full scan of archived message IDs.
// The archiver calls it once before any fetch so the pending
// computation is accurate as of run start.
func (s *SQLiteStore) ExistingMessageIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT message_id FROM emails WHERE message_id IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("scanning existing message ids: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// InsertIfAbsent inserts the record unless its message_id already
// exists. The UNIQUE constraint makes the check-and-insert atomic;
// INSERT OR IGNORE absorbs the duplicate silently. Each call commits
// before returning, so an interrupted run loses at most the message
// in flight.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, email model.Email) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO emails
			(message_id, sender, recipient, subject, date, body, domains_found)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		email.MessageID, email.Sender, email.Recipient,
		email.Subject, email.Date, email.Body, email.DomainsFound,
	)
	if err != nil {
		return false, fmt.Errorf("inserting email %s: %w", email.MessageID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting email %s: %w", email.MessageID, err)
	}
	return n > 0, nil
}

// Query retrieves archived emails matching the filter, ordered by
// date descending. Date ordering is lexical over the literal header
// values.
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]model.Email, error) {
	var conditions []string
	var args []interface{}

	like := func(column, value string) {
		conditions = append(conditions, column+" LIKE ?")
		args = append(args, "%"+value+"%")
	}

	if filter.Sender != "" {
		like("sender", filter.Sender)
	}
	if filter.Recipient != "" {
		like("recipient", filter.Recipient)
	}
	if filter.Subject != "" {
		like("subject", filter.Subject)
	}
	if filter.Domain != "" {
		like("domains_found", filter.Domain)
	}
	if filter.BodySearch != "" {
		like("body", filter.BodySearch)
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, "date <= ?")
		args = append(args, filter.DateTo)
	}

	query := "SELECT id, message_id, sender, recipient, subject, date, body, domains_found FROM emails"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var emails []model.Email
	if err := s.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	return emails, nil
}

// Stats reports total record count, the lexical min/max date, the top
// ten senders by count, and how many records carry extracted domains.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.GetContext(ctx, &stats.TotalEmails,
		"SELECT COUNT(*) FROM emails",
	); err != nil {
		return nil, fmt.Errorf("counting emails: %w", err)
	}

	row := s.db.QueryRowxContext(ctx,
		"SELECT COALESCE(MIN(date), ''), COALESCE(MAX(date), '') FROM emails WHERE date IS NOT NULL",
	)
	if err := row.Scan(&stats.OldestEmail, &stats.NewestEmail); err != nil {
		return nil, fmt.Errorf("reading date range: %w", err)
	}

	if err := s.db.SelectContext(ctx, &stats.TopSenders, `
		SELECT sender, COUNT(*) AS count
		FROM emails
		WHERE sender IS NOT NULL
		GROUP BY sender
		ORDER BY count DESC
		LIMIT 10`,
	); err != nil {
		return nil, fmt.Errorf("reading top senders: %w", err)
	}

	if err := s.db.GetContext(ctx, &stats.EmailsWithDomains,
		"SELECT COUNT(*) FROM emails WHERE domains_found IS NOT NULL",
	); err != nil {
		return nil, fmt.Errorf("counting emails with domains: %w", err)
	}

	return stats, nil
}
