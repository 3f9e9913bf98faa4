package api

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/datapages/splitsearch/pkg/pager"
)

// ParseSearchParams validates the /search query parameters and builds the
// engine query. dataset, config, split and query are required; offset
// defaults to 0 and length to maxPageSize, with offset >= 0 and
// 0 < length <= maxPageSize enforced here so the engine only ever sees
// caller-bounded pages.
func ParseSearchParams(values url.Values, maxPageSize int) (pager.Query, error) {
	query := pager.Query{
		Dataset: values.Get("dataset"),
		Config:  values.Get("config"),
		Split:   values.Get("split"),
		Text:    values.Get("query"),
		Length:  maxPageSize,
	}

	for name, value := range map[string]string{
		"dataset": query.Dataset,
		"config":  query.Config,
		"split":   query.Split,
		"query":   query.Text,
	} {
		if value == "" {
			return pager.Query{}, fmt.Errorf("parameter %q is required", name)
		}
	}

	if offsetStr := values.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return pager.Query{}, fmt.Errorf("parameter \"offset\" must be a non-negative integer")
		}
		query.Offset = offset
	}

	if lengthStr := values.Get("length"); lengthStr != "" {
		length, err := strconv.Atoi(lengthStr)
		if err != nil || length <= 0 {
			return pager.Query{}, fmt.Errorf("parameter \"length\" must be a positive integer")
		}
		if length > maxPageSize {
			return pager.Query{}, fmt.Errorf("parameter \"length\" must be at most %d", maxPageSize)
		}
		query.Length = length
	}

	return query, nil
}
