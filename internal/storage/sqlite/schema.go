// ABOUTME: SQLite database schema for the typed table store
// ABOUTME: Creates catalog, row, embedding index and vector tables
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Tables and views
CREATE TABLE IF NOT EXISTS catalog_tables (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL DEFAULT 'table',
    base TEXT REFERENCES catalog_tables(name),
    iterator TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Column definitions, stored and computed
CREATE TABLE IF NOT EXISTS catalog_columns (
    table_name TEXT NOT NULL REFERENCES catalog_tables(name) ON DELETE CASCADE,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    required INTEGER NOT NULL DEFAULT 0,
    computed TEXT,
    position INTEGER NOT NULL,
    from_base INTEGER NOT NULL DEFAULT 0,
    from_source INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (table_name, name)
);

-- Rows as JSON payloads; seq preserves insertion order
CREATE TABLE IF NOT EXISTS table_rows (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    table_name TEXT NOT NULL REFERENCES catalog_tables(name) ON DELETE CASCADE,
    parent_id TEXT REFERENCES table_rows(id) ON DELETE CASCADE,
    data TEXT NOT NULL,
    errors TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Embedding indexes on table columns
CREATE TABLE IF NOT EXISTS embedding_indexes (
    id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL REFERENCES catalog_tables(name) ON DELETE CASCADE,
    column_name TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (table_name, column_name)
);

-- Embeddings table (vector storage)
CREATE TABLE IF NOT EXISTS embeddings (
    index_id TEXT NOT NULL REFERENCES embedding_indexes(id) ON DELETE CASCADE,
    row_id TEXT NOT NULL REFERENCES table_rows(id) ON DELETE CASCADE,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (index_id, row_id)
);

-- Indexes for efficient querying
CREATE INDEX IF NOT EXISTS idx_tables_base ON catalog_tables(base);
CREATE INDEX IF NOT EXISTS idx_rows_table ON table_rows(table_name, seq);
CREATE INDEX IF NOT EXISTS idx_rows_parent ON table_rows(parent_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_row ON embeddings(row_id);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1
