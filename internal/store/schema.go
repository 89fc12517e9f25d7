package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    email TEXT NOT NULL COLLATE NOCASE,
    created_at INTEGER NOT NULL,
    deleted_at INTEGER  -- soft delete; routing still sees the row
);

CREATE TABLE IF NOT EXISTS role_policies (
    user_id INTEGER PRIMARY KEY,
    ban_email TEXT NOT NULL DEFAULT '[]',      -- JSON array of address|domain
    ban_email_type TEXT NOT NULL DEFAULT 'ALL',
    avail_domain TEXT NOT NULL DEFAULT '[]'    -- JSON array of domain rules
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    account_id INTEGER NOT NULL DEFAULT 0,
    user_id INTEGER NOT NULL DEFAULT 0,
    to_email TEXT NOT NULL,
    to_name TEXT NOT NULL DEFAULT '',
    send_email TEXT NOT NULL DEFAULT '',
    send_name TEXT NOT NULL DEFAULT '',
    envelope_from TEXT NOT NULL DEFAULT '',
    envelope_to TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    html TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    recipients TEXT NOT NULL DEFAULT '[]', -- JSON
    cc TEXT NOT NULL DEFAULT '[]',
    bcc TEXT NOT NULL DEFAULT '[]',
    message_id TEXT NOT NULL DEFAULT '',
    in_reply_to TEXT NOT NULL DEFAULT '',
    refs TEXT NOT NULL DEFAULT '[]',
    redacted BOOLEAN NOT NULL DEFAULT 0,
    dkim TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- Content is deduplicated by hash; attachments reference it by key.
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL,
    key TEXT NOT NULL,
    filename TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_email);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
`
