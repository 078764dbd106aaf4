package db

// migrations run in order on every open.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS objects (
    path          TEXT PRIMARY KEY,
    content_type  TEXT NOT NULL,
    cache_control TEXT NOT NULL DEFAULT '',
    size          INTEGER NOT NULL,
    generation    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS feed_snapshots (
    feed       TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    fetched_at TEXT NOT NULL
)`,
}
