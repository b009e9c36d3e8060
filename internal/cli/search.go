package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchKindFilter string
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search catalog entries",
	Long: `Search catalog entries across all search directories.

The query matches entry names, catalog names and declared parameter names
(case-insensitive substring). Use --kind to restrict the entity kind.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchKindFilter, "kind", "", "Filter by entity kind (Vehicle, Controller, ...)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	idx, err := newEngine().loadIndex(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing catalogs: %w", err)
	}
	out := cmd.OutOrStdout()

	entries := idx.Search(query, searchKindFilter)
	if searchJSON {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		msg := "No catalog entries found"
		if query != "" {
			msg += fmt.Sprintf(" matching %q", query)
		}
		if searchKindFilter != "" {
			msg += fmt.Sprintf(" with --kind=%s", searchKindFilter)
		}
		fmt.Fprintln(out, msg)
		return nil
	}
	return printEntryTable(out, entries)
}
