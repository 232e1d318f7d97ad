package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ledger_mirror (
    challenge_id         TEXT PRIMARY KEY,
    total_budget         INTEGER NOT NULL,
    remaining            INTEGER NOT NULL,
    pending_debit        INTEGER NOT NULL DEFAULT 0,
    last_synced_at       TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verifications (
    session_id           TEXT PRIMARY KEY,
    challenge_id         TEXT NOT NULL,
    day                  TEXT NOT NULL,
    kind                 TEXT NOT NULL,
    item_count           INTEGER NOT NULL,
    total                INTEGER NOT NULL,
    committed_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_items (
    session_id           TEXT NOT NULL REFERENCES verifications(session_id) ON DELETE CASCADE,
    position             INTEGER NOT NULL,
    store                TEXT NOT NULL,
    amount               INTEGER NOT NULL,
    payment_date         TEXT NOT NULL,
    PRIMARY KEY (session_id, position)
);

CREATE INDEX IF NOT EXISTS idx_verifications_challenge_day ON verifications(challenge_id, day);
CREATE INDEX IF NOT EXISTS idx_verifications_committed ON verifications(committed_at);
`
