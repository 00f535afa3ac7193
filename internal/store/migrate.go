package store

import "database/sql"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS loop_runs (
    id TEXT PRIMARY KEY,
    loop_name TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    findings_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_loop_runs_loop_name ON loop_runs(loop_name, started_at);
CREATE INDEX IF NOT EXISTS idx_loop_runs_started_at ON loop_runs(started_at);

CREATE TABLE IF NOT EXISTS loop_findings (
    id TEXT PRIMARY KEY,
    loop_run_id TEXT NOT NULL REFERENCES loop_runs(id),
    severity TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    message TEXT NOT NULL,
    recommended_action TEXT,
    signature TEXT NOT NULL,
    dedup_bucket TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_loop_findings_signature_bucket ON loop_findings(signature, dedup_bucket);
CREATE INDEX IF NOT EXISTS idx_loop_findings_signature_created ON loop_findings(signature, created_at);
CREATE INDEX IF NOT EXISTS idx_loop_findings_run ON loop_findings(loop_run_id);
CREATE INDEX IF NOT EXISTS idx_loop_findings_created_at ON loop_findings(created_at);

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    doc_type TEXT NOT NULL DEFAULT '',
    owner_id TEXT NOT NULL DEFAULT '',
    expires_on TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_expires_on ON documents(status, expires_on);

CREATE TABLE IF NOT EXISTS bonuses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recipient TEXT NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'unpaid',
    due_on TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bonuses_due_on ON bonuses(status, due_on);

CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium',
    is_critical INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'open',
    archived INTEGER NOT NULL DEFAULT 0,
    due_at TEXT,
    target_type TEXT NOT NULL DEFAULT '',
    target_id TEXT NOT NULL DEFAULT '',
    assignee_id TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_target_title ON tasks(target_type, target_id, title) WHERE target_type <> '';
CREATE INDEX IF NOT EXISTS idx_tasks_due_at ON tasks(status, due_at);

CREATE TABLE IF NOT EXISTS reminders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    remind_at TEXT NOT NULL,
    channel TEXT NOT NULL,
    message TEXT NOT NULL,
    recipient TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    sent_at TEXT,
    error TEXT,
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_target_slot ON reminders(target_type, target_id, channel, remind_at);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, remind_at);

CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    actor TEXT NOT NULL,
    object_type TEXT NOT NULL,
    object_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    summary TEXT NOT NULL,
    details TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_object ON audit_log(object_type, object_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
`

// RunMigrations applies the database schema migrations.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec(migrationSQL)
	return err
}
