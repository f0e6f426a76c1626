package store

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    generated_at TEXT NOT NULL,
    total_entities INTEGER NOT NULL,
    critical INTEGER NOT NULL,
    high INTEGER NOT NULL,
    medium INTEGER NOT NULL,
    low INTEGER NOT NULL,
    clusters INTEGER NOT NULL,
    methods_run TEXT NOT NULL,
    methods_skipped TEXT NOT NULL,
    report TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
`

const riskRecordsSchema = `
CREATE TABLE IF NOT EXISTS risk_records (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    entity_id TEXT NOT NULL,
    category TEXT NOT NULL,
    score INTEGER NOT NULL,
    level TEXT NOT NULL,
    flagged_by TEXT NOT NULL,
    PRIMARY KEY (run_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_risk_records_entity ON risk_records(entity_id);
`

// allSchemas returns every migration in dependency order.
func allSchemas() []string {
	return []string{runsSchema, riskRecordsSchema}
}
