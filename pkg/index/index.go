// Package index opens precomputed per-split search index files and exposes
// the relevance scoring operations the pagination engine depends on.
//
// An index file is a SQLite database with a `data` table holding the split's
// rows (keyed by `row_idx`) and a `data_fts` FTS5 table over the searchable
// text, joined by rowid. Relevance is bm25: SQLite reports better matches
// with lower (negative) values, so scores are negated to satisfy the
// "non-negative, higher is better" contract.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/datapages/splitsearch/pkg/pager"
)

const (
	// DataTable is the row table inside an index file.
	DataTable = "data"

	// FTSTable is the FTS5 table inside an index file.
	FTSTable = "data_fts"

	// RowIndexColumn keys rows by their original position in the split.
	RowIndexColumn = "row_idx"
)

// Handle is an open, read-only connection to one split's index file. It
// implements pager.Handle and is owned by a single request.
type Handle struct {
	db      *sql.DB
	columns []string
	selects string
}

var _ pager.Handle = (*Handle)(nil)

// Opener adapts Open to the engine's pager.Opener signature.
func Opener(location string) (pager.Handle, error) {
	return Open(location)
}

// Open opens the index file at path read-only and introspects its column
// schema. The returned handle must be closed by the caller.
func Open(path string) (*Handle, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	columns, err := tableColumns(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	h := &Handle{
		db:      db,
		columns: columns,
	}
	h.selects = h.selectList()
	return h, nil
}

func (h *Handle) Close() error {
	return h.db.Close()
}

// Columns returns the index's data columns in table order, without the
// internal row-index column.
func (h *Handle) Columns() []string {
	out := make([]string, len(h.columns))
	copy(out, h.columns)
	return out
}

// MatchCount returns the exact number of rows matching the query text across
// the whole index.
func (h *Handle) MatchCount(ctx context.Context, text string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s MATCH ?", FTSTable, FTSTable)
	if err := h.db.QueryRowContext(ctx, query, text).Scan(&count); err != nil {
		return 0, classify(fmt.Errorf("counting matches: %w", err))
	}
	return count, nil
}

// RankedSlice returns rows ranked [offset, offset+length) by descending
// score over the whole index in one query. Ties are broken by ascending row
// index so pagination is reproducible.
func (h *Handle) RankedSlice(ctx context.Context, text string, offset, length int) ([]pager.ScoredRow, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s d
		JOIN %s ON d.rowid = %s.rowid
		WHERE %s MATCH ?
		ORDER BY score DESC, d.%s ASC
		LIMIT ? OFFSET ?`,
		h.selects, DataTable, FTSTable, FTSTable, FTSTable, RowIndexColumn)

	rows, err := h.db.QueryContext(ctx, query, text, length, offset)
	if err != nil {
		return nil, classify(fmt.Errorf("ranked query: %w", err))
	}
	return h.collectRows(rows)
}

// ScoredRange returns every matching row with row index in [start, end),
// unranked.
func (h *Handle) ScoredRange(ctx context.Context, text string, start, end int64) ([]pager.ScoredRow, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s d
		JOIN %s ON d.rowid = %s.rowid
		WHERE %s MATCH ? AND d.%s >= ? AND d.%s < ?`,
		h.selects, DataTable, FTSTable, FTSTable, FTSTable, RowIndexColumn, RowIndexColumn)

	rows, err := h.db.QueryContext(ctx, query, text, start, end)
	if err != nil {
		return nil, classify(fmt.Errorf("window query: %w", err))
	}
	return h.collectRows(rows)
}

// selectList builds the projection shared by both scan queries: row index,
// negated bm25 score, then the data columns in table order.
func (h *Handle) selectList() string {
	parts := make([]string, 0, len(h.columns)+2)
	parts = append(parts, fmt.Sprintf("d.%s", RowIndexColumn))
	parts = append(parts, fmt.Sprintf("-bm25(%s) AS score", FTSTable))
	for _, col := range h.columns {
		parts = append(parts, fmt.Sprintf("d.%q", col))
	}
	return strings.Join(parts, ", ")
}

func (h *Handle) collectRows(rows *sql.Rows) ([]pager.ScoredRow, error) {
	defer func() {
		_ = rows.Close()
	}()

	var out []pager.ScoredRow
	for rows.Next() {
		var rowIndex int64
		var score float64
		values := make([]any, len(h.columns))
		dest := make([]any, 0, len(h.columns)+2)
		dest = append(dest, &rowIndex, &score)
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rowValues := make(map[string]any, len(h.columns))
		for i, col := range h.columns {
			rowValues[col] = values[i]
		}
		out = append(out, pager.ScoredRow{
			RowIndex: rowIndex,
			Score:    score,
			Values:   rowValues,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("reading rows: %w", err))
	}
	return out, nil
}

// tableColumns introspects the data table's column names in declaration
// order, excluding the internal row-index column.
func tableColumns(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info(?) ORDER BY cid", DataTable)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		if name == RowIndexColumn {
			continue
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("index has no %s table or no data columns", DataTable)
	}
	return columns, nil
}

// classify maps FTS5 query-syntax rejections to ErrInvalidQuery so callers
// can distinguish a bad query from a broken index.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "unknown special query") {
		return fmt.Errorf("%w: %w", pager.ErrInvalidQuery, err)
	}
	return err
}
