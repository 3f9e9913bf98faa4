// Package pager implements the ranked pagination engine: given a free-text
// query and a descriptor for a per-split search index, it returns an exact
// total-match count and the page of matching rows ranked by descending
// relevance score.
//
// Two scan strategies are supported. The direct strategy issues a single
// ranked, offset-limited query against the index and is used for ordinary
// indexes. The chunked strategy scans the index in fixed-size row windows,
// accumulates every scored row, and stops early once enough candidates have
// been collected to cover the requested page; the final page is always
// computed by a full sort over everything accumulated, never by trusting
// per-window order.
package pager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/datapages/splitsearch/pkg/log"
)

// DefaultBatchSize is the window size (rows) for the chunked scan strategy.
const DefaultBatchSize = 1000

var (
	// ErrIndexUnavailable indicates the index file could not be opened.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrScanFailure indicates a count, direct or window query failed
	// mid-execution. Partial results are never returned alongside it.
	ErrScanFailure = errors.New("scan failed")

	// ErrInvalidQuery indicates query text the underlying engine rejects
	// outright, or invalid offset/length parameters.
	ErrInvalidQuery = errors.New("invalid query")
)

// Query describes one search request against a single dataset split.
// Immutable once constructed.
type Query struct {
	Dataset string
	Config  string
	Split   string

	// Text is the free-text query. Empty text matches zero rows.
	Text string

	// Offset is the rank of the first row to return (0-based).
	Offset int

	// Length is the maximum number of rows to return. Must be positive;
	// the caller bounds Offset+Length by its maximum page size.
	Length int
}

// Descriptor identifies a resolved, locally readable index for one split.
type Descriptor struct {
	// Location is the local path of the index file.
	Location string

	// NumRows is the total row count of the indexed split.
	NumRows int64

	// Chunked marks indexes too large for a single ranked pass. It is a
	// static deployment classification, not derived from index contents.
	Chunked bool

	// Partial marks indexes built over a subset of the split's rows. It is
	// surfaced to callers but does not alter pagination semantics.
	Partial bool
}

// ScoredRow is one matching row. Rows compare by Score, ties broken by
// ascending RowIndex so output order is reproducible.
type ScoredRow struct {
	RowIndex int64
	Score    float64
	Values   map[string]any
}

// Result is the outcome of executing a query: the exact number of matches in
// the whole index and the requested page of ranked rows. Columns carries the
// index's column names in table order; Rows is ordered by descending score
// and never longer than the requested length.
type Result struct {
	NumRowsTotal int
	Columns      []string
	Rows         []ScoredRow
}

// Scorer is the relevance capability the engine depends on. Any search-capable
// index backend must provide it. Scores are non-negative, higher is more
// relevant, and repeated calls for the same (text, row) pair agree.
type Scorer interface {
	// MatchCount returns the exact count of rows with a non-null score for
	// the query text across the whole index.
	MatchCount(ctx context.Context, text string) (int, error)

	// RankedSlice returns rows ranked [offset, offset+length) by descending
	// score among all matches, in one pass over the whole index.
	RankedSlice(ctx context.Context, text string, offset, length int) ([]ScoredRow, error)

	// ScoredRange returns every row in [start, end) with a non-null score,
	// in no particular order.
	ScoredRange(ctx context.Context, text string, start, end int64) ([]ScoredRow, error)
}

// Handle is an open connection to one split's index. Owned exclusively by the
// request that opened it and closed on every exit path.
type Handle interface {
	Scorer

	// Columns returns the index's column names in table order.
	Columns() []string

	Close() error
}

// Opener opens an index handle for a local index location.
type Opener func(location string) (Handle, error)

// Config tunes the engine.
type Config struct {
	// BatchSize is the chunked scan window size. Defaults to
	// DefaultBatchSize when zero or negative.
	BatchSize int

	// ScanAll disables the chunked scan early-stop heuristic. The early
	// stop assumes later windows cannot out-rank accumulated rows badly
	// enough to change the page; with ScanAll every window is visited.
	ScanAll bool
}

// Engine coordinates strategy selection and index handle lifetime.
type Engine struct {
	open      Opener
	batchSize int
	scanAll   bool
	logger    *log.Logger
}

func NewEngine(open Opener, cfg Config) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		open:      open,
		batchSize: batchSize,
		scanAll:   cfg.ScanAll,
		logger:    log.ForService("pager"),
	}
}

// Execute runs the query against the descriptor's index and returns the exact
// match count plus the page of rows ranked [Offset, Offset+Length). The count
// is always taken in a single full-index pass, independent of the strategy.
func (e *Engine) Execute(ctx context.Context, query Query, desc Descriptor) (*Result, error) {
	if query.Offset < 0 || query.Length <= 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0 and length > 0", ErrInvalidQuery)
	}

	// Empty query text conventionally matches zero rows; FTS engines
	// reject an empty MATCH, so never issue one.
	if strings.TrimSpace(query.Text) == "" {
		return &Result{}, nil
	}

	handle, err := e.open(desc.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			e.logger.Warnf("closing index handle: %v", err)
		}
	}()

	total, err := handle.MatchCount(ctx, query.Text)
	if err != nil {
		return nil, wrapQueryError("counting matches", err)
	}
	e.logger.Debugf("%d total matches for %q in %s/%s/%s", total, query.Text, query.Dataset, query.Config, query.Split)

	var rows []ScoredRow
	if desc.Chunked {
		rows, err = e.chunkedScan(ctx, handle, desc.NumRows, query)
	} else {
		rows, err = e.directScan(ctx, handle, query)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		NumRowsTotal: total,
		Columns:      handle.Columns(),
		Rows:         rows,
	}, nil
}

// directScan delegates ranking and pagination to the index in one query.
// Correct whenever the backend can rank the whole index in a single pass.
func (e *Engine) directScan(ctx context.Context, scorer Scorer, query Query) ([]ScoredRow, error) {
	rows, err := scorer.RankedSlice(ctx, query.Text, query.Offset, query.Length)
	if err != nil {
		return nil, wrapQueryError("ranked query", err)
	}
	return rows, nil
}

// chunkedScan visits fixed-size row windows in strictly ascending order,
// accumulating scored rows. Scanning stops once the accumulated match count
// strictly exceeds Offset+Length (unless ScanAll is set), then the page is
// cut from a full sort of the accumulator. Windows are never queried
// concurrently: the stop decision depends on the running count.
func (e *Engine) chunkedScan(ctx context.Context, scorer Scorer, numRows int64, query Query) ([]ScoredRow, error) {
	if numRows <= 0 {
		return nil, nil
	}

	needed := query.Offset + query.Length
	var matched []ScoredRow

	for start := int64(0); start < numRows; start += int64(e.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, wrapQueryError("window scan", err)
		}

		end := start + int64(e.batchSize)
		if end > numRows {
			end = numRows
		}

		rows, err := scorer.ScoredRange(ctx, query.Text, start, end)
		if err != nil {
			return nil, wrapQueryError(fmt.Sprintf("window [%d,%d)", start, end), err)
		}
		matched = append(matched, rows...)
		e.logger.Debugf("%d rows for window [%d,%d), %d accumulated", len(rows), start, end, len(matched))

		if !e.scanAll && len(matched) > needed {
			break
		}
	}

	sortByScore(matched)
	return pageOf(matched, query.Offset, query.Length), nil
}

// sortByScore orders rows by descending score, ties by ascending row index.
func sortByScore(rows []ScoredRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].RowIndex < rows[j].RowIndex
	})
}

// pageOf slices [offset, offset+length) out of rows, shorter when fewer rows
// remain past the offset. Never an error.
func pageOf(rows []ScoredRow, offset, length int) []ScoredRow {
	if offset >= len(rows) {
		return nil
	}
	end := offset + length
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// wrapQueryError classifies a failed index query. Backend rejections of the
// query text stay ErrInvalidQuery; everything else is a scan failure.
func wrapQueryError(op string, err error) error {
	if errors.Is(err, ErrInvalidQuery) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrScanFailure, op, err)
}
