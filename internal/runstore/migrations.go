package runstore

const schema = `
CREATE TABLE IF NOT EXISTS export_runs (
    id TEXT PRIMARY KEY,
    department TEXT,
    name_filter TEXT,
    status_filter TEXT,
    preset TEXT,
    activity_from TEXT,
    activity_to TEXT,
    state TEXT NOT NULL DEFAULT 'queued',
    scope_size INTEGER DEFAULT 0,
    discovered INTEGER DEFAULT 0,
    enriched INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    entries INTEGER DEFAULT 0,
    row_count INTEGER DEFAULT 0,
    error TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_export_runs_state ON export_runs(state);
CREATE INDEX IF NOT EXISTS idx_export_runs_started_at ON export_runs(started_at);
`
