package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/index"
)

var (
	listKindFilter string
	listCatalogs   bool
	listJSON       bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries in the search directories",
	Long: `List every entry of every catalog visible from the search directories.
A catalog name found in an earlier directory hides the same name in later
ones, exactly as resolution picks it. Use --catalogs to list files instead.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listKindFilter, "kind", "", "Filter by entity kind (Vehicle, Controller, ...)")
	listCmd.Flags().BoolVar(&listCatalogs, "catalogs", false, "List catalog files instead of entries")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// loadIndex returns the index of the engine's directories, served from
// the on-disk cache when nothing changed since it was written.
func (e *engine) loadIndex(ctx context.Context) (*index.Index, error) {
	b := e.indexer()
	if e.settings.IndexCache == "" {
		return b.Build(ctx)
	}
	return b.Cached(ctx, afero.NewOsFs(), e.settings.IndexCache)
}

func runList(cmd *cobra.Command, args []string) error {
	idx, err := newEngine().loadIndex(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing catalogs: %w", err)
	}
	out := cmd.OutOrStdout()

	if listCatalogs {
		if listJSON {
			return printJSON(out, idx.Catalogs)
		}
		if len(idx.Catalogs) == 0 {
			fmt.Fprintln(out, "No catalogs found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CATALOG\tREVISION\tENTRIES\tSOURCE\tPATH")
		for _, c := range idx.Catalogs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.Name, orDash(c.Revision), c.Entries, c.Source, c.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printProblems(out, idx.Problems)
		return nil
	}

	entries := idx.Filter(listKindFilter)
	if listJSON {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		if listKindFilter != "" {
			fmt.Fprintf(out, "No catalog entries matching --kind=%s\n", listKindFilter)
		} else {
			fmt.Fprintln(out, "No catalog entries found.")
		}
		printProblems(out, idx.Problems)
		return nil
	}
	if err := printEntryTable(out, entries); err != nil {
		return err
	}
	printProblems(out, idx.Problems)
	return nil
}

func printEntryTable(out io.Writer, entries []index.Entry) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KIND\tCATALOG\tENTRY\tPARAMETERS\tSOURCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Kind, e.Catalog, e.Name, parameterList(e.Parameters), e.Source)
	}
	return w.Flush()
}

// parameterList renders parameters as name:type[=default].
func parameterList(ps []index.Parameter) string {
	if len(ps) == 0 {
		return "-"
	}
	s := ""
	for i, p := range ps {
		if i > 0 {
			s += ","
		}
		s += p.Name + ":" + p.Type
		if p.Default != "" {
			s += "=" + p.Default
		}
	}
	return s
}

func printProblems(out io.Writer, problems []index.Problem) {
	if len(problems) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%d catalog file(s) could not be read:\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(out, "  %s: %s\n", p.Path, p.Error)
	}
}
