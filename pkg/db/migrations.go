package db

// migrationsSQL is applied statement by statement (split on ';') by InitDB.
// Every statement is idempotent.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS builds (
	id TEXT PRIMARY KEY,
	sources TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL DEFAULT 0,
	entry_count INTEGER NOT NULL DEFAULT 0,
	tree BLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS openings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	eco TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	family TEXT NOT NULL DEFAULT '',
	subfamily TEXT NOT NULL DEFAULT '',
	pgn TEXT NOT NULL DEFAULT '',
	half_moves INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	UNIQUE(build_id, idx)
);

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	eco TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	family TEXT NOT NULL DEFAULT '',
	subfamily TEXT NOT NULL DEFAULT '',
	moves TEXT NOT NULL DEFAULT '',
	main_line TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL DEFAULT 1,
	half_moves INTEGER NOT NULL DEFAULT 0,
	fen TEXT,
	evaluation REAL,
	advantage TEXT,
	UNIQUE(build_id, position)
);

CREATE INDEX IF NOT EXISTS idx_entries_family ON entries(build_id, family, subfamily);

CREATE TABLE IF NOT EXISTS diagnostics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT ''
);
`
