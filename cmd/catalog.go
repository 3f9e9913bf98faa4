package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/datapages/splitsearch/pkg/config"
)

// CatalogCommand creates the catalog command
func CatalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "List the splits with a search index",
		Action: func(ctx context.Context, c *cli.Command) error {
			return listCatalog(c.String("config"))
		},
	}
}

func listCatalog(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	entries := cat.Entries()
	if len(entries) == 0 {
		fmt.Println("Catalog is empty")
		return nil
	}

	for _, entry := range entries {
		flags := ""
		if !entry.HasFTS {
			flags += " [no search]"
		}
		if entry.Partial() {
			flags += " [partial]"
		}
		if cfg.IsChunked(entry.Dataset) {
			flags += " [chunked]"
		}
		fmt.Printf("%s (%d rows)%s\n", entry.Key(), entry.NumRows, flags)
	}

	fmt.Printf("\nTotal: %d splits\n", len(entries))
	return nil
}
