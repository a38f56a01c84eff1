package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    operation    TEXT NOT NULL,
    entity_type  TEXT NOT NULL,
    entity_id    TEXT NOT NULL,
    payload      TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    retry_count  INTEGER NOT NULL DEFAULT 0,
    next_attempt DATETIME,
    last_error   TEXT,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_items(status, next_attempt);
CREATE INDEX IF NOT EXISTS idx_queue_entity ON queue_items(entity_type, entity_id, seq);

CREATE TABLE IF NOT EXISTS leader_lease (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    holder_id  TEXT NOT NULL,
    heartbeat  DATETIME NOT NULL
);
`
