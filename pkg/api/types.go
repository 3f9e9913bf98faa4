package api

import (
	"time"
)

// FeatureItem names one column of the indexed split, in table order.
type FeatureItem struct {
	Name string `json:"name"`
}

// RowItem is one matching row of the result page.
type RowItem struct {
	RowIdx int64          `json:"row_idx"`
	Score  float64        `json:"score"`
	Row    map[string]any `json:"row"`
}

// SearchResponse is the paginated search result envelope.
type SearchResponse struct {
	Features       []FeatureItem `json:"features"`
	Rows           []RowItem     `json:"rows"`
	NumRowsTotal   int           `json:"num_rows_total"`
	NumRowsPerPage int           `json:"num_rows_per_page"`
	Partial        bool          `json:"partial"`
}

// SplitInfo describes one catalogued split.
type SplitInfo struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
	NumRows int64  `json:"num_rows"`
	HasFTS  bool   `json:"has_fts"`
	Partial bool   `json:"partial"`
}

type CatalogResponse struct {
	Splits []SplitInfo `json:"splits"`
	Count  int         `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
