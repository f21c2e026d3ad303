// Package store persists sessions, legend symbols, per-page BOM records,
// valve extracts, dimensions, and reconciliation comparison items to a
// SQLite database, and exposes a read-only SQL channel for the chat
// surface (spec §4.6/C8).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/pidscan/model"
)

// ErrNonSelectQuery is returned by Exec when the translated statement is
// not a read-only SELECT. Engine.Chat maps it to the root package's own
// ErrNonSelectQuery sentinel.
var ErrNonSelectQuery = errors.New("store: only SELECT statements are permitted")

// Store wraps the SQLite database for all pidscan persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path, creates the
// schema, and runs pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}

	// Writes are already serialized per session (spec §5's sequential
	// pipeline), so a single connection avoids SQLITE_BUSY without needing
	// an application-level write mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Session operations ---

// CreateSession inserts a new session row in the "processing" state.
func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, kind, original_filename, status, error_detail)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.Kind, sess.OriginalFilename, sess.Status, sess.ErrorDetail)
	return err
}

// UpdateSessionStatus updates a session's status and, for the error path,
// its truncated error detail.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus, errDetail string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = ?, error_detail = ? WHERE id = ?",
		status, errDetail, id)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sess := &model.Session{}
	var errDetail sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, kind, original_filename, status, error_detail
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.CreatedAt, &sess.Kind, &sess.OriginalFilename, &sess.Status, &errDetail)
	if err != nil {
		return nil, err
	}
	sess.ErrorDetail = errDetail.String
	return sess, nil
}

// ListSessions returns all sessions ordered by creation time, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, kind, original_filename, status, error_detail
		FROM sessions ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var errDetail sql.NullString
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.Kind, &sess.OriginalFilename, &sess.Status, &errDetail); err != nil {
			return nil, err
		}
		sess.ErrorDetail = errDetail.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MostRecentSessionID returns the newest completed session of the given
// kind, if any. This is how the BOM pipeline resolves "the reference
// legend" for a pipe isometric upload: a resolvable lookup rather than a
// process-wide cache, so a second server instance or a restarted one sees
// the same answer (spec §9 open question on the reference-symbol cache).
func (s *Store) MostRecentSessionID(ctx context.Context, kind model.SessionKind) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions
		WHERE kind = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, kind, model.StatusCompleted).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// --- Symbol operations ---

// SaveSymbols persists the session's harvested legend symbols, replacing
// any previously stored set.
func (s *Store) SaveSymbols(ctx context.Context, sessionID string, symbols []model.SymbolEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE session_id = ?", sessionID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO symbols (session_id, ordinal, category, code, description, image_path,
				bbox_x0, bbox_y0, bbox_x1, bbox_y1)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sym := range symbols {
			var x0, y0, x1, y1 sql.NullFloat64
			if sym.BBox != nil {
				x0 = sql.NullFloat64{Float64: sym.BBox.X0, Valid: true}
				y0 = sql.NullFloat64{Float64: sym.BBox.Y0, Valid: true}
				x1 = sql.NullFloat64{Float64: sym.BBox.X1, Valid: true}
				y1 = sql.NullFloat64{Float64: sym.BBox.Y1, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, sessionID, sym.Ordinal, sym.Category, sym.Code,
				sym.Description, sym.ImagePath, x0, y0, x1, y1); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSymbols returns a session's legend symbols ordered by harvest order.
func (s *Store) GetSymbols(ctx context.Context, sessionID string) ([]model.SymbolEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, category, code, description, image_path, bbox_x0, bbox_y0, bbox_x1, bbox_y1
		FROM symbols WHERE session_id = ? ORDER BY ordinal
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []model.SymbolEntry
	for rows.Next() {
		var sym model.SymbolEntry
		var x0, y0, x1, y1 sql.NullFloat64
		if err := rows.Scan(&sym.Ordinal, &sym.Category, &sym.Code, &sym.Description,
			&sym.ImagePath, &x0, &y0, &x1, &y1); err != nil {
			return nil, err
		}
		if x0.Valid {
			sym.BBox = &model.BBox{X0: x0.Float64, Y0: y0.Float64, X1: x1.Float64, Y1: y1.Float64}
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// --- Page BOM operations ---

// SavePageBOM persists one page's extraction record, both as a JSON blob
// (so the full shape round-trips without a schema migration per new field)
// and as typed summary columns (so the chat surface's NL-to-SQL queries
// can filter/aggregate without parsing JSON in SQL).
func (s *Store) SavePageBOM(ctx context.Context, sessionID string, rec model.PageBOMRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshaling page bom record: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO page_bom (session_id, page_number, is_cover, drawing_number, line_number,
				pipe_number, line_description, weld_count_text, weld_count_vlm,
				drawing_analysis_ok, table_analysis_ok, error_detail, data_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, rec.PageNumber, rec.IsCover, rec.DrawingNumber, rec.LineNumber,
			rec.PipeNumber, rec.LineDescription, rec.WeldCountText, rec.WeldCountVLM,
			rec.DrawingAnalysisOK, rec.TableAnalysisOK, rec.ErrorDetail, string(data)); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pipe_bom (session_id, page_number, piece_id, size, schedule, material, provenance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, pp := range rec.PipePieces {
			if _, err := stmt.ExecContext(ctx, sessionID, rec.PageNumber, pp.ID, pp.Size, pp.Schedule, pp.Material, pp.Provenance); err != nil {
				return err
			}
		}

		dimStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO dimensions (session_id, page_number, from_id, to_id, length_mm, orientation, source)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer dimStmt.Close()
		for _, d := range rec.Dimensions {
			if _, err := dimStmt.ExecContext(ctx, sessionID, rec.PageNumber, d.From, d.To, d.LengthMM, d.Orientation, d.Source); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetPageBOMs returns every page record for a session, decoded from the
// JSON blob column, ordered by page number.
func (s *Store) GetPageBOMs(ctx context.Context, sessionID string) ([]model.PageBOMRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_json FROM page_bom WHERE session_id = ? ORDER BY page_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.PageBOMRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec model.PageBOMRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("store: decoding page bom record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Valve operations ---

// SaveValves persists a P&ID page's extracted valve tags.
func (s *Store) SaveValves(ctx context.Context, sessionID string, valves []model.ValveExtract) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO valves (session_id, tag, valve_type, valve_subtype, nominal_size, source_sheet, provenance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, v := range valves {
			if _, err := stmt.ExecContext(ctx, sessionID, v.Tag, v.Type, v.Subtype, v.NominalSize, v.SourceSheet, v.Provenance); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetValves returns every valve extract recorded for a session.
func (s *Store) GetValves(ctx context.Context, sessionID string) ([]model.ValveExtract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, valve_type, valve_subtype, nominal_size, source_sheet, provenance
		FROM valves WHERE session_id = ? ORDER BY source_sheet, tag
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var valves []model.ValveExtract
	for rows.Next() {
		var v model.ValveExtract
		if err := rows.Scan(&v.Tag, &v.Type, &v.Subtype, &v.NominalSize, &v.SourceSheet, &v.Provenance); err != nil {
			return nil, err
		}
		valves = append(valves, v)
	}
	return valves, rows.Err()
}

// --- Comparison operations ---

// SaveComparison persists one page's reconciliation result.
func (s *Store) SaveComparison(ctx context.Context, sessionID string, cmp model.PageComparison) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO comparison_items (session_id, page_number, bom_letter, bom_description,
				bom_quantity, bom_size, drawing_component, drawing_quantity, has_drawing_qty,
				verdict, quantity_diff, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, item := range cmp.ComparisonItems {
			if _, err := stmt.ExecContext(ctx, sessionID, cmp.PageNumber, item.BOMLetter, item.BOMDescription,
				item.BOMQuantity, item.BOMSize, item.DrawingComponent, item.DrawingQuantity, item.HasDrawingQty,
				item.Verdict, item.QuantityDiff, item.Notes); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetComparisons returns every reconciliation comparison item recorded for
// a session, grouped back into per-page PageComparison values. Summaries
// are recomputed from the stored items rather than persisted separately,
// since model.PageComparisonSummary is entirely derivable from them.
func (s *Store) GetComparisons(ctx context.Context, sessionID string) ([]model.PageComparison, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_number, bom_letter, bom_description, bom_quantity, bom_size,
			drawing_component, drawing_quantity, has_drawing_qty, verdict, quantity_diff, notes
		FROM comparison_items WHERE session_id = ? ORDER BY page_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPage := make(map[int]*model.PageComparison)
	var order []int
	for rows.Next() {
		var page int
		var item model.ComparisonItem
		if err := rows.Scan(&page, &item.BOMLetter, &item.BOMDescription, &item.BOMQuantity, &item.BOMSize,
			&item.DrawingComponent, &item.DrawingQuantity, &item.HasDrawingQty, &item.Verdict,
			&item.QuantityDiff, &item.Notes); err != nil {
			return nil, err
		}
		cmp, ok := byPage[page]
		if !ok {
			cmp = &model.PageComparison{PageNumber: page}
			byPage[page] = cmp
			order = append(order, page)
		}
		cmp.ComparisonItems = append(cmp.ComparisonItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.PageComparison, 0, len(order))
	for _, page := range order {
		cmp := byPage[page]
		cmp.Summary = summarize(cmp.ComparisonItems)
		out = append(out, *cmp)
	}
	return out, nil
}

// summarize mirrors reconcile.summarize's verdict-counting and match-rate
// rounding exactly, so a comparison round-tripped through the database
// reports the same summary it was saved with. TotalBOMItems is
// reconstructed as every item that isn't drawing-only, since only
// ComparisonItems (not the original BOM row count) are persisted.
func summarize(items []model.ComparisonItem) model.PageComparisonSummary {
	var s model.PageComparisonSummary
	for _, it := range items {
		switch it.Verdict {
		case model.Match:
			s.Matched++
		case model.Mismatch:
			s.Mismatched++
		case model.BOMOnly:
			s.BOMOnly++
		case model.DrawingOnly:
			s.DrawingOnly++
		case model.NotApplicable:
			s.NAItems++
		default:
			continue
		}
		if it.Verdict != model.DrawingOnly {
			s.TotalBOMItems++
		}
	}
	s.ComparableItems = s.Matched + s.Mismatched + s.BOMOnly + s.DrawingOnly
	if s.ComparableItems > 0 {
		rate := float64(s.Matched) / float64(s.ComparableItems) * 100
		s.MatchRate = math.Round(rate*10) / 10
	}
	return s
}

// --- Chat surface ---

// Exec runs a read-only query against the database for the NL-to-SQL chat
// surface. It rejects anything but a single SELECT statement, mirroring
// the chatbot service's "SELECT 문만 허용됩니다" guard.
func (s *Store) Exec(ctx context.Context, query string) (*sql.Rows, error) {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return nil, ErrNonSelectQuery
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, ErrNonSelectQuery
	}
	return s.db.QueryContext(ctx, trimmed)
}

// Schema returns the DDL of the database, used to ground the chat
// surface's NL-to-SQL system prompt in the real table shapes.
func (s *Store) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sql FROM sqlite_master WHERE type = 'table' AND sql IS NOT NULL
	`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var ddl string
		if err := rows.Scan(&ddl); err != nil {
			return "", err
		}
		b.WriteString(ddl)
		b.WriteString(";\n")
	}
	return b.String(), rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
