package pager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRow is a synthetic index row: text is matched by substring, score is
// fixed per row.
type fakeRow struct {
	idx   int64
	text  string
	score float64
}

// fakeHandle implements Handle over an in-memory row set so pagination logic
// can be tested independently of any query engine.
type fakeHandle struct {
	rows []fakeRow

	closed       bool
	rangeCalls   int
	rankedCalls  int
	countCalls   int
	failOnWindow int64 // start of the window whose query fails, -1 for never
}

func newFakeHandle(rows []fakeRow) *fakeHandle {
	return &fakeHandle{rows: rows, failOnWindow: -1}
}

func (h *fakeHandle) matches(text string) []ScoredRow {
	var out []ScoredRow
	for _, r := range h.rows {
		if strings.Contains(r.text, text) {
			out = append(out, ScoredRow{RowIndex: r.idx, Score: r.score, Values: map[string]any{"text": r.text}})
		}
	}
	return out
}

func (h *fakeHandle) MatchCount(ctx context.Context, text string) (int, error) {
	h.countCalls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(h.matches(text)), nil
}

func (h *fakeHandle) RankedSlice(ctx context.Context, text string, offset, length int) ([]ScoredRow, error) {
	h.rankedCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := h.matches(text)
	sortByScore(all)
	return pageOf(all, offset, length), nil
}

func (h *fakeHandle) ScoredRange(ctx context.Context, text string, start, end int64) ([]ScoredRow, error) {
	h.rangeCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.failOnWindow == start {
		return nil, fmt.Errorf("window query exploded")
	}
	var out []ScoredRow
	for _, r := range h.matches(text) {
		if r.RowIndex >= start && r.RowIndex < end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *fakeHandle) Columns() []string { return []string{"text"} }

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func openerFor(h *fakeHandle) Opener {
	return func(string) (Handle, error) { return h, nil }
}

func rowIndexes(rows []ScoredRow) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.RowIndex
	}
	return out
}

func TestDirectScanPage(t *testing.T) {
	handle := newFakeHandle([]fakeRow{
		{idx: 0, text: "alpha cat", score: 1.0},
		{idx: 1, text: "beta cat", score: 3.0},
		{idx: 2, text: "gamma dog", score: 9.0},
		{idx: 3, text: "delta cat", score: 2.0},
	})
	engine := NewEngine(openerFor(handle), Config{})

	result, err := engine.Execute(context.Background(), Query{Text: "cat", Offset: 1, Length: 2}, Descriptor{NumRows: 4})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.NumRowsTotal != 3 {
		t.Errorf("NumRowsTotal: expected 3, got %d", result.NumRowsTotal)
	}
	got := rowIndexes(result.Rows)
	// Ranked matches: 1 (3.0), 3 (2.0), 0 (1.0); page [1,3) is rows 3, 0.
	if len(got) != 2 || got[0] != 3 || got[1] != 0 {
		t.Errorf("page: expected [3 0], got %v", got)
	}
	if !handle.closed {
		t.Error("handle not closed after direct scan")
	}
	if handle.rangeCalls != 0 {
		t.Errorf("direct scan must not issue window queries, got %d", handle.rangeCalls)
	}
}

func TestChunkedMatchesDirectAcrossWindowBoundary(t *testing.T) {
	// Top matches straddle the boundary between windows [0,1000) and
	// [1000,2000); a naive per-window cut would return the wrong page.
	rows := []fakeRow{
		{idx: 10, text: "needle", score: 2.0},
		{idx: 990, text: "needle", score: 5.0},
		{idx: 1005, text: "needle", score: 9.0},
		{idx: 1500, text: "needle", score: 7.0},
		{idx: 1999, text: "needle", score: 1.0},
	}
	query := Query{Text: "needle", Offset: 0, Length: 2}

	direct := newFakeHandle(rows)
	directResult, err := NewEngine(openerFor(direct), Config{}).
		Execute(context.Background(), query, Descriptor{NumRows: 2000})
	if err != nil {
		t.Fatalf("direct Execute: %v", err)
	}

	chunked := newFakeHandle(rows)
	chunkedResult, err := NewEngine(openerFor(chunked), Config{BatchSize: 1000}).
		Execute(context.Background(), query, Descriptor{NumRows: 2000, Chunked: true})
	if err != nil {
		t.Fatalf("chunked Execute: %v", err)
	}

	directIdx := rowIndexes(directResult.Rows)
	chunkedIdx := rowIndexes(chunkedResult.Rows)
	if len(directIdx) != len(chunkedIdx) {
		t.Fatalf("page lengths differ: direct %v chunked %v", directIdx, chunkedIdx)
	}
	for i := range directIdx {
		if directIdx[i] != chunkedIdx[i] {
			t.Errorf("page mismatch at %d: direct %v chunked %v", i, directIdx, chunkedIdx)
		}
	}
	if chunkedResult.NumRowsTotal != directResult.NumRowsTotal {
		t.Errorf("counts differ: direct %d chunked %d", directResult.NumRowsTotal, chunkedResult.NumRowsTotal)
	}
}

func TestChunkedEndToEndExample(t *testing.T) {
	// 2500 rows in windows of 1000; matches at 50 (9.1), 900 (9.5),
	// 1200 (8.7), 2100 (9.5). offset=0 length=2 must return rows 900 and
	// 2100, both score 9.5, lower row index first.
	handle := newFakeHandle([]fakeRow{
		{idx: 50, text: "needle", score: 9.1},
		{idx: 900, text: "needle", score: 9.5},
		{idx: 1200, text: "needle", score: 8.7},
		{idx: 2100, text: "needle", score: 9.5},
	})
	engine := NewEngine(openerFor(handle), Config{BatchSize: 1000})

	result, err := engine.Execute(context.Background(),
		Query{Text: "needle", Offset: 0, Length: 2},
		Descriptor{NumRows: 2500, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := rowIndexes(result.Rows)
	if len(got) != 2 || got[0] != 900 || got[1] != 2100 {
		t.Fatalf("expected page [900 2100], got %v", got)
	}
	if result.Rows[0].Score != 9.5 || result.Rows[1].Score != 9.5 {
		t.Errorf("expected both scores 9.5, got %v %v", result.Rows[0].Score, result.Rows[1].Score)
	}
	if result.NumRowsTotal != 4 {
		t.Errorf("NumRowsTotal: expected 4, got %d", result.NumRowsTotal)
	}
}

func TestChunkedEarlyStop(t *testing.T) {
	// All matches live in the first window; the scan should stop before
	// touching the remaining nine windows.
	rows := make([]fakeRow, 0, 10)
	for i := int64(0); i < 10; i++ {
		rows = append(rows, fakeRow{idx: i, text: "needle", score: float64(10 - i)})
	}
	handle := newFakeHandle(rows)
	engine := NewEngine(openerFor(handle), Config{BatchSize: 100})

	_, err := engine.Execute(context.Background(),
		Query{Text: "needle", Offset: 0, Length: 3},
		Descriptor{NumRows: 1000, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if handle.rangeCalls != 1 {
		t.Errorf("expected early stop after 1 window, scanned %d", handle.rangeCalls)
	}
}

func TestChunkedScanAllDisablesEarlyStop(t *testing.T) {
	rows := make([]fakeRow, 0, 10)
	for i := int64(0); i < 10; i++ {
		rows = append(rows, fakeRow{idx: i, text: "needle", score: float64(10 - i)})
	}
	handle := newFakeHandle(rows)
	engine := NewEngine(openerFor(handle), Config{BatchSize: 100, ScanAll: true})

	_, err := engine.Execute(context.Background(),
		Query{Text: "needle", Offset: 0, Length: 3},
		Descriptor{NumRows: 1000, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if handle.rangeCalls != 10 {
		t.Errorf("ScanAll should visit all 10 windows, scanned %d", handle.rangeCalls)
	}
}

func TestTieBreakDeterminism(t *testing.T) {
	handle := newFakeHandle([]fakeRow{
		{idx: 7, text: "same", score: 4.2},
		{idx: 3, text: "same", score: 4.2},
		{idx: 5, text: "same", score: 4.2},
	})
	engine := NewEngine(openerFor(handle), Config{BatchSize: 10})

	for run := 0; run < 5; run++ {
		result, err := engine.Execute(context.Background(),
			Query{Text: "same", Offset: 0, Length: 3},
			Descriptor{NumRows: 10, Chunked: true})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		got := rowIndexes(result.Rows)
		if len(got) != 3 || got[0] != 3 || got[1] != 5 || got[2] != 7 {
			t.Fatalf("run %d: expected [3 5 7], got %v", run, got)
		}
	}
}

func TestShortPage(t *testing.T) {
	handle := newFakeHandle([]fakeRow{
		{idx: 1, text: "rare", score: 2.0},
		{idx: 2, text: "rare", score: 1.0},
	})
	engine := NewEngine(openerFor(handle), Config{})

	result, err := engine.Execute(context.Background(),
		Query{Text: "rare", Offset: 1, Length: 10}, Descriptor{NumRows: 5})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0].RowIndex != 2 {
		t.Errorf("expected short page [2], got %v", rowIndexes(result.Rows))
	}
}

func TestOffsetPastAllMatches(t *testing.T) {
	handle := newFakeHandle([]fakeRow{{idx: 1, text: "rare", score: 2.0}})
	engine := NewEngine(openerFor(handle), Config{BatchSize: 10})

	result, err := engine.Execute(context.Background(),
		Query{Text: "rare", Offset: 5, Length: 10},
		Descriptor{NumRows: 10, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("expected empty page, got %v", rowIndexes(result.Rows))
	}
	if result.NumRowsTotal != 1 {
		t.Errorf("NumRowsTotal: expected 1, got %d", result.NumRowsTotal)
	}
}

func TestZeroMatches(t *testing.T) {
	handle := newFakeHandle([]fakeRow{{idx: 0, text: "something", score: 1.0}})
	engine := NewEngine(openerFor(handle), Config{})

	result, err := engine.Execute(context.Background(),
		Query{Text: "absent", Offset: 0, Length: 10}, Descriptor{NumRows: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.NumRowsTotal != 0 || len(result.Rows) != 0 {
		t.Errorf("expected zero matches and empty page, got %d rows, total %d", len(result.Rows), result.NumRowsTotal)
	}
}

func TestEmptyQueryText(t *testing.T) {
	handle := newFakeHandle([]fakeRow{{idx: 0, text: "something", score: 1.0}})
	engine := NewEngine(openerFor(handle), Config{})

	result, err := engine.Execute(context.Background(),
		Query{Text: "   ", Offset: 0, Length: 10}, Descriptor{NumRows: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.NumRowsTotal != 0 || len(result.Rows) != 0 {
		t.Error("empty query must match zero rows")
	}
	if handle.countCalls != 0 || handle.rankedCalls != 0 {
		t.Error("empty query must not reach the index")
	}
}

func TestEmptyIndexNoWindowQueries(t *testing.T) {
	handle := newFakeHandle(nil)
	engine := NewEngine(openerFor(handle), Config{BatchSize: 10})

	result, err := engine.Execute(context.Background(),
		Query{Text: "anything", Offset: 0, Length: 10},
		Descriptor{NumRows: 0, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Error("expected empty page for empty index")
	}
	if handle.rangeCalls != 0 {
		t.Errorf("expected no window queries for empty index, got %d", handle.rangeCalls)
	}
}

func TestInvalidParameters(t *testing.T) {
	engine := NewEngine(openerFor(newFakeHandle(nil)), Config{})

	cases := []Query{
		{Text: "x", Offset: -1, Length: 10},
		{Text: "x", Offset: 0, Length: 0},
		{Text: "x", Offset: 0, Length: -5},
	}
	for _, q := range cases {
		if _, err := engine.Execute(context.Background(), q, Descriptor{NumRows: 1}); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("offset=%d length=%d: expected ErrInvalidQuery, got %v", q.Offset, q.Length, err)
		}
	}
}

func TestOpenFailure(t *testing.T) {
	opener := func(string) (Handle, error) { return nil, fmt.Errorf("no such file") }
	engine := NewEngine(opener, Config{})

	_, err := engine.Execute(context.Background(),
		Query{Text: "x", Offset: 0, Length: 1}, Descriptor{NumRows: 1})
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestWindowFailureAbortsScan(t *testing.T) {
	handle := newFakeHandle([]fakeRow{
		{idx: 5, text: "needle", score: 1.0},
		{idx: 150, text: "needle", score: 2.0},
	})
	handle.failOnWindow = 100
	engine := NewEngine(openerFor(handle), Config{BatchSize: 100, ScanAll: true})

	result, err := engine.Execute(context.Background(),
		Query{Text: "needle", Offset: 0, Length: 10},
		Descriptor{NumRows: 300, Chunked: true})
	if !errors.Is(err, ErrScanFailure) {
		t.Fatalf("expected ErrScanFailure, got %v", err)
	}
	if result != nil {
		t.Error("no partial result may be returned on scan failure")
	}
	if !handle.closed {
		t.Error("handle must be closed on scan failure")
	}
}

func TestCancellationMidScan(t *testing.T) {
	rows := make([]fakeRow, 0, 5)
	for i := int64(0); i < 5; i++ {
		rows = append(rows, fakeRow{idx: i * 100, text: "needle", score: 1.0})
	}
	handle := newFakeHandle(rows)

	ctx, cancel := context.WithCancel(context.Background())
	opener := func(string) (Handle, error) {
		// Cancel once the scan is underway.
		cancel()
		return handle, nil
	}
	engine := NewEngine(opener, Config{BatchSize: 100, ScanAll: true})

	result, err := engine.Execute(ctx,
		Query{Text: "needle", Offset: 0, Length: 100},
		Descriptor{NumRows: 500, Chunked: true})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, ErrScanFailure) {
		t.Errorf("expected ErrScanFailure, got %v", err)
	}
	if result != nil {
		t.Error("no partial result may be returned on cancellation")
	}
	if !handle.closed {
		t.Error("handle must be released on cancellation")
	}
}

func TestCountIndependentOfStrategy(t *testing.T) {
	// More matches than offset+length: the chunked scan stops early, yet
	// the reported total still covers the whole index.
	rows := make([]fakeRow, 0, 50)
	for i := int64(0); i < 50; i++ {
		rows = append(rows, fakeRow{idx: i * 10, text: "common", score: float64(i)})
	}
	handle := newFakeHandle(rows)
	engine := NewEngine(openerFor(handle), Config{BatchSize: 100})

	result, err := engine.Execute(context.Background(),
		Query{Text: "common", Offset: 0, Length: 5},
		Descriptor{NumRows: 500, Chunked: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.NumRowsTotal != 50 {
		t.Errorf("NumRowsTotal: expected 50, got %d", result.NumRowsTotal)
	}
	if handle.rangeCalls >= 5 {
		t.Errorf("expected early stop, scanned %d windows", handle.rangeCalls)
	}
}
