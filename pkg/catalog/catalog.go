// Package catalog resolves {dataset, config, split} triples to index
// descriptors. The catalog is a TOML manifest maintained by the indexing
// pipeline; this service only reads it.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrSplitNotFound indicates the catalog has no entry for the split.
	ErrSplitNotFound = errors.New("no search index for split")

	// ErrSearchNotAvailable indicates the split exists but was indexed
	// without full-text search support.
	ErrSearchNotAvailable = errors.New("split does not have search enabled")
)

// Entry describes one split's index as recorded in the manifest.
type Entry struct {
	Dataset  string `toml:"dataset"`
	Config   string `toml:"config"`
	Split    string `toml:"split"`
	URL      string `toml:"url"`
	Filename string `toml:"filename"`
	NumRows  int64  `toml:"num_rows"`
	HasFTS   bool   `toml:"has_fts"`
}

// Partial reports whether the index covers only a subset of the split's
// rows. The indexing pipeline marks partial indexes with a "partial-"
// prefix on the filename or on a path segment of the URL.
func (e Entry) Partial() bool {
	if strings.HasPrefix(e.Filename, "partial-") {
		return true
	}
	for _, segment := range strings.Split(e.URL, "/") {
		if strings.HasPrefix(segment, "partial-") {
			return true
		}
	}
	return false
}

// Key returns the canonical dataset/config/split identifier for the entry.
func (e Entry) Key() string {
	return e.Dataset + "/" + e.Config + "/" + e.Split
}

type manifest struct {
	Splits []Entry `toml:"splits"`
}

// Catalog is an immutable snapshot of the manifest. Reloads produce a new
// Catalog; readers never see a half-updated one.
type Catalog struct {
	entries map[string]Entry
}

// Load reads and parses the manifest at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling catalog: %w", err)
	}

	entries := make(map[string]Entry, len(m.Splits))
	for _, entry := range m.Splits {
		if entry.Dataset == "" || entry.Split == "" {
			return nil, fmt.Errorf("catalog entry missing dataset or split: %+v", entry)
		}
		entries[entry.Key()] = entry
	}

	return &Catalog{entries: entries}, nil
}

// Empty returns a catalog with no entries, used until a manifest appears.
func Empty() *Catalog {
	return &Catalog{entries: map[string]Entry{}}
}

// Resolve returns the entry for the given split. It fails with
// ErrSplitNotFound when the split is not in the catalog and with
// ErrSearchNotAvailable when the split's index has no search support.
func (c *Catalog) Resolve(dataset, config, split string) (Entry, error) {
	entry, ok := c.entries[dataset+"/"+config+"/"+split]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s/%s/%s", ErrSplitNotFound, dataset, config, split)
	}
	if !entry.HasFTS {
		return Entry{}, fmt.Errorf("%w: %s", ErrSearchNotAvailable, entry.Key())
	}
	return entry, nil
}

// Entries returns all catalog entries sorted by key.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Len returns the number of catalogued splits.
func (c *Catalog) Len() int {
	return len(c.entries)
}
