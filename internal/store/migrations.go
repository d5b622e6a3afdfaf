package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id    TEXT UNIQUE,
	sender        TEXT,
	recipient     TEXT,
	subject       TEXT,
	date          TEXT,
	body          TEXT,
	domains_found TEXT
);

CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
