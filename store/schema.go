package store

// schemaSQL is the DDL for all tables, ported in idiom from the teacher's
// schema.go (DDL-in-a-Go-string) and rewritten to pidscan's tables, in turn
// grounded in db_service.py's SCHEMA_SQL (sessions/valves/pipe_bom/
// dimensions/symbols/vlm_bom).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    kind TEXT NOT NULL,
    original_filename TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'processing',
    error_detail TEXT
);

CREATE TABLE IF NOT EXISTS symbols (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    ordinal INTEGER NOT NULL,
    category TEXT NOT NULL,
    code TEXT,
    description TEXT NOT NULL,
    image_path TEXT,
    bbox_x0 REAL,
    bbox_y0 REAL,
    bbox_x1 REAL,
    bbox_y1 REAL
);

-- Per-page pipe pieces, held both in page_bom's JSON blob and here in
-- typed form so the chat surface's NL-to-SQL queries can filter on
-- piece_id/provenance without parsing JSON in SQL.
CREATE TABLE IF NOT EXISTS pipe_bom (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    piece_id TEXT NOT NULL,
    size TEXT,
    schedule TEXT,
    material TEXT,
    provenance TEXT
);

CREATE TABLE IF NOT EXISTS page_bom (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    is_cover BOOLEAN NOT NULL DEFAULT 0,
    drawing_number TEXT,
    line_number TEXT,
    pipe_number TEXT,
    line_description TEXT,
    weld_count_text INTEGER DEFAULT 0,
    weld_count_vlm INTEGER DEFAULT 0,
    drawing_analysis_ok BOOLEAN DEFAULT 0,
    table_analysis_ok BOOLEAN DEFAULT 0,
    error_detail TEXT,
    data_json TEXT NOT NULL,
    UNIQUE(session_id, page_number)
);

CREATE TABLE IF NOT EXISTS valves (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    valve_type TEXT,
    valve_subtype TEXT,
    nominal_size TEXT,
    source_sheet INTEGER,
    provenance TEXT
);

CREATE TABLE IF NOT EXISTS dimensions (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    from_id TEXT,
    to_id TEXT,
    length_mm REAL,
    orientation TEXT,
    source TEXT
);

CREATE TABLE IF NOT EXISTS comparison_items (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    bom_letter TEXT,
    bom_description TEXT,
    bom_quantity TEXT,
    bom_size TEXT,
    drawing_component TEXT,
    drawing_quantity INTEGER,
    has_drawing_qty BOOLEAN,
    verdict TEXT NOT NULL,
    quantity_diff INTEGER,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_symbols_session ON symbols(session_id);
CREATE INDEX IF NOT EXISTS idx_symbols_category ON symbols(session_id, category);
CREATE INDEX IF NOT EXISTS idx_pipe_bom_session ON pipe_bom(session_id, page_number);
CREATE INDEX IF NOT EXISTS idx_page_bom_session ON page_bom(session_id);
CREATE INDEX IF NOT EXISTS idx_valves_session ON valves(session_id);
CREATE INDEX IF NOT EXISTS idx_valves_tag ON valves(tag);
CREATE INDEX IF NOT EXISTS idx_valves_type ON valves(valve_type);
CREATE INDEX IF NOT EXISTS idx_dimensions_session ON dimensions(session_id, page_number);
CREATE INDEX IF NOT EXISTS idx_comparison_items_session ON comparison_items(session_id, page_number);
CREATE INDEX IF NOT EXISTS idx_comparison_items_verdict ON comparison_items(verdict);
`
