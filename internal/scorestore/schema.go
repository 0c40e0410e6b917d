package scorestore

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL UNIQUE,
	concern_id       TEXT,
	total_processed  INTEGER NOT NULL,
	valid_cases      INTEGER NOT NULL,
	violations       INTEGER NOT NULL,
	dropped          INTEGER NOT NULL,
	coverage_ratio   REAL NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scorecards (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	test_id        TEXT,
	task_id        TEXT NOT NULL,
	metric_id      TEXT,
	archetype      TEXT,
	overall_label  TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scorecards_run ON scorecards(run_id);

CREATE TABLE IF NOT EXISTS scores (
	scorecard_id  INTEGER NOT NULL REFERENCES scorecards(id) ON DELETE CASCADE,
	criterion     TEXT NOT NULL,
	score         REAL NOT NULL,
	flagged       INTEGER NOT NULL,
	reasoning     TEXT,
	result_json   TEXT NOT NULL,
	PRIMARY KEY (scorecard_id, criterion)
);
`
