package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/datapages/splitsearch/pkg/catalog"
	"github.com/datapages/splitsearch/pkg/pager"
	"github.com/datapages/splitsearch/pkg/version"
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := ParseSearchParams(r.URL.Query(), s.cfg.MaxPageSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid parameters", err.Error())
		return
	}

	entry, err := s.Catalog().Resolve(query.Dataset, query.Config, query.Split)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrSplitNotFound):
			s.writeError(w, http.StatusNotFound, "Split not found", err.Error())
		case errors.Is(err, catalog.ErrSearchNotAvailable):
			s.writeError(w, http.StatusUnprocessableEntity, "Search not available", err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "Catalog lookup failed", err.Error())
		}
		return
	}

	location, err := s.fetcher.Materialize(r.Context(), query.Dataset, query.Config, query.Split, entry.Filename, entry.URL)
	if err != nil {
		s.logger.Errorf("materializing index for %s: %v", entry.Key(), err)
		s.writeError(w, http.StatusInternalServerError, "Index unavailable", "could not materialize the index file")
		return
	}

	descriptor := pager.Descriptor{
		Location: location,
		NumRows:  entry.NumRows,
		Chunked:  s.cfg.IsChunked(query.Dataset),
		Partial:  entry.Partial(),
	}

	result, err := s.engine.Execute(r.Context(), query, descriptor)
	if err != nil {
		switch {
		case errors.Is(err, pager.ErrInvalidQuery):
			s.writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		case errors.Is(err, pager.ErrIndexUnavailable):
			s.logger.Errorf("opening index for %s: %v", entry.Key(), err)
			s.writeError(w, http.StatusInternalServerError, "Index unavailable", "could not open the index file")
		default:
			s.logger.Errorf("search failed for %s: %v", entry.Key(), err)
			s.writeError(w, http.StatusInternalServerError, "Search failed", "the search could not be completed")
		}
		return
	}

	features := make([]FeatureItem, len(result.Columns))
	for i, column := range result.Columns {
		features[i] = FeatureItem{Name: column}
	}

	rows := make([]RowItem, len(result.Rows))
	for i, row := range result.Rows {
		rows[i] = RowItem{
			RowIdx: row.RowIndex,
			Score:  row.Score,
			Row:    row.Values,
		}
	}

	s.writeJSON(w, http.StatusOK, SearchResponse{
		Features:       features,
		Rows:           rows,
		NumRowsTotal:   result.NumRowsTotal,
		NumRowsPerPage: s.cfg.MaxPageSize,
		Partial:        descriptor.Partial,
	})
}

func (s *Server) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	entries := s.Catalog().Entries()

	splits := make([]SplitInfo, len(entries))
	for i, entry := range entries {
		splits[i] = SplitInfo{
			Dataset: entry.Dataset,
			Config:  entry.Config,
			Split:   entry.Split,
			NumRows: entry.NumRows,
			HasFTS:  entry.HasFTS,
			Partial: entry.Partial(),
		}
	}

	s.writeJSON(w, http.StatusOK, CatalogResponse{
		Splits: splits,
		Count:  len(splits),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
