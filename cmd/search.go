package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/datapages/splitsearch/pkg/config"
	"github.com/datapages/splitsearch/pkg/pager"
)

// Define styles using lipgloss
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	rowStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search a dataset split from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dataset",
				Usage:    "Dataset name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config-name",
				Usage: "Dataset configuration name",
				Value: "default",
			},
			&cli.StringFlag{
				Name:     "split",
				Usage:    "Split name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "query",
				Usage:    "Search query",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Rank of the first result to show",
			},
			&cli.IntFlag{
				Name:  "length",
				Usage: "Maximum number of results",
				Value: 10,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := pager.Query{
				Dataset: c.String("dataset"),
				Config:  c.String("config-name"),
				Split:   c.String("split"),
				Text:    c.String("query"),
				Offset:  c.Int("offset"),
				Length:  c.Int("length"),
			}
			return searchSplit(ctx, c.String("config"), query)
		},
	}
}

// searchSplit resolves, materializes and searches one split's index.
func searchSplit(ctx context.Context, configPath string, query pager.Query) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	entry, err := cat.Resolve(query.Dataset, query.Config, query.Split)
	if err != nil {
		return err
	}

	location, err := newFetcher(cfg).Materialize(ctx, query.Dataset, query.Config, query.Split, entry.Filename, entry.URL)
	if err != nil {
		return fmt.Errorf("materializing index: %w", err)
	}

	descriptor := pager.Descriptor{
		Location: location,
		NumRows:  entry.NumRows,
		Chunked:  cfg.IsChunked(query.Dataset),
		Partial:  entry.Partial(),
	}

	result, err := newEngine(cfg).Execute(ctx, query, descriptor)
	if err != nil {
		return fmt.Errorf("searching %s: %w", entry.Key(), err)
	}

	renderResult(query, descriptor, result)
	return nil
}

func renderResult(query pager.Query, descriptor pager.Descriptor, result *pager.Result) {
	titleCaser := cases.Title(language.English)
	header := fmt.Sprintf("%s — %s/%s", titleCaser.String(query.Dataset), query.Config, query.Split)
	if descriptor.Partial {
		header += " (partial index)"
	}
	fmt.Println(headerStyle.Render(header))

	if len(result.Rows) == 0 {
		fmt.Println("No results found")
		return
	}

	for i, row := range result.Rows {
		var lines []string
		lines = append(lines, metaStyle.Render(fmt.Sprintf("#%d  row %d  score %.3f", query.Offset+i+1, row.RowIndex, row.Score)))

		columns := result.Columns
		if len(columns) == 0 {
			columns = sortedKeys(row.Values)
		}
		for _, column := range columns {
			value, ok := row.Values[column]
			if !ok || value == nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %v", column, value))
		}
		fmt.Println(rowStyle.Render(strings.Join(lines, "\n")))
	}

	fmt.Println(summaryStyle.Render(fmt.Sprintf("%d of %d matches (offset %d)", len(result.Rows), result.NumRowsTotal, query.Offset)))
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
