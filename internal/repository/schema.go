package repository

const analysesTable = "analyses"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
	id             UUID PRIMARY KEY,
	source_path    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	content_hash   TEXT NOT NULL DEFAULT '',
	format         TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	severity       TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT '',
	pages          INTEGER NOT NULL DEFAULT 0,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	fields         TEXT NOT NULL DEFAULT '[]',
	missing        TEXT NOT NULL DEFAULT '[]',
	error_category TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS analyses_content_hash_idx ON analyses (content_hash)`,
	`CREATE INDEX IF NOT EXISTS analyses_status_created_idx ON analyses (status, created_at DESC)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
	id             TEXT PRIMARY KEY,
	source_path    TEXT NOT NULL,
	filename       TEXT NOT NULL,
	content_hash   TEXT NOT NULL DEFAULT '',
	format         TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	severity       TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT '',
	pages          INTEGER NOT NULL DEFAULT 0,
	confidence     REAL NOT NULL DEFAULT 0,
	fields         TEXT NOT NULL DEFAULT '[]',
	missing        TEXT NOT NULL DEFAULT '[]',
	error_category TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS analyses_content_hash_idx ON analyses (content_hash)`,
	`CREATE INDEX IF NOT EXISTS analyses_status_created_idx ON analyses (status, created_at DESC)`,
}

var analysisColumns = []string{
	"id",
	"source_path",
	"filename",
	"content_hash",
	"format",
	"status",
	"severity",
	"method",
	"pages",
	"confidence",
	"fields",
	"missing",
	"error_category",
	"error_message",
	"duration_ms",
	"created_at",
}
