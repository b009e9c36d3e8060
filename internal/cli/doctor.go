package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/catalogrepo"
	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/config"
	"github.com/scenariokit/scenariocat/internal/index"
	"github.com/scenariokit/scenariocat/internal/resolve"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the catalog setup",
	Long: `Run diagnostic checks: search directories, the catalog library checkout,
git availability, catalog files that fail to parse and dependency cycles
between catalogs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		eng := newEngine()
		failures := 0

		fmt.Fprintln(out, "Search directories:")
		found := 0
		for _, d := range eng.dirs {
			info, err := os.Stat(d.Path)
			switch {
			case err != nil:
				fmt.Fprintf(out, "  [MISS] %s (%s)\n", d.Path, d.Name)
			case !info.IsDir():
				fmt.Fprintf(out, "  [FAIL] %s is not a directory\n", d.Path)
				failures++
			default:
				fmt.Fprintf(out, "  [ OK ] %s (%s)\n", d.Path, d.Name)
				found++
			}
		}
		if found == 0 {
			fmt.Fprintln(out, "  [WARN] no search directory exists")
		}

		fmt.Fprintln(out, "Catalog library:")
		checkBinary(out, "git")
		st := libraryRepo().Status(catalogrepo.DefaultMaxAge)
		switch {
		case !st.Present:
			fmt.Fprintf(out, "  [INFO] not cloned (run `%s catalogs sync`)\n", rootCmd.Name())
		case st.Stale:
			fmt.Fprintf(out, "  [WARN] %s is stale\n", st.Dir)
		default:
			fmt.Fprintf(out, "  [ OK ] %s\n", st.Dir)
		}

		fmt.Fprintln(out, "Catalog files:")
		idx, err := eng.indexer().Build(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  [ OK ] %d catalogs, %d entries\n", len(idx.Catalogs), len(idx.Entries))
		for _, p := range idx.Problems {
			fmt.Fprintf(out, "  [FAIL] %s: %s\n", p.Path, p.Error)
			failures++
		}

		fmt.Fprintln(out, "Catalog dependencies:")
		failures += checkDependencies(cmd.Context(), out, eng, idx.Entries)

		if failures > 0 {
			return fmt.Errorf("%d check(s) failed", failures)
		}
		if config.Current().ProjectDir == "" {
			fmt.Fprintln(out, "No project file found; using user settings only.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// checkDependencies resolves every indexed entry with its defaults and
// reports the catalog cycles met on the way. Entries that fail for other
// reasons, typically placeholders left to an enclosing scope, only warn.
func checkDependencies(ctx context.Context, out io.Writer, eng *engine, entries []index.Entry) int {
	resolved := 0
	for _, e := range entries {
		_, err := eng.resolver.Resolve(ctx, resolve.Reference{Catalog: e.Catalog, Entry: e.Name, Kind: e.Kind}, nil)
		switch {
		case err == nil:
			resolved++
		case !errors.Is(err, caterr.CircularDependency):
			fmt.Fprintf(out, "  [WARN] %s/%s: %v\n", e.Catalog, e.Name, err)
		}
	}

	cycles := eng.resolver.Graph().Cycles()
	for _, c := range cycles {
		fmt.Fprintf(out, "  [FAIL] cycle: %s\n", strings.Join(c, " -> "))
	}
	if len(cycles) == 0 {
		fmt.Fprintf(out, "  [ OK ] %d of %d entries resolved, no cycles\n", resolved, len(entries))
	}
	return len(cycles)
}

func checkBinary(out io.Writer, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(out, "  [MISS] %s not found\n", name)
		return
	}
	fmt.Fprintf(out, "  [ OK ] %s found at %s\n", name, path)
}
