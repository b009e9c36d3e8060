package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/graph"
	"github.com/scenariokit/scenariocat/internal/resolve"
)

var (
	depsKind string
	depsSet  []string
)

var depsCmd = &cobra.Command{
	Use:   "deps <catalog> <entry>",
	Short: "Show the catalogs an entry depends on",
	Long: `Resolve an entry and print the catalog files it pulls in through nested
catalog references. A dependency cycle is reported with its chain.`,
	Args: cobra.ExactArgs(2),
	RunE: runDeps,
}

func init() {
	depsCmd.Flags().StringVar(&depsKind, "kind", "", "Entity kind to look up")
	depsCmd.Flags().StringArrayVar(&depsSet, "set", nil, "Parameter binding name=value (repeatable)")
	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
	bindings, err := parseBindings(depsSet)
	if err != nil {
		return err
	}
	ref := resolve.Reference{Catalog: args[0], Entry: args[1], Kind: depsKind, Bindings: bindings}
	eng := newEngine()
	out := cmd.OutOrStdout()

	e, err := eng.resolver.Resolve(cmd.Context(), ref, nil)
	if err != nil {
		var ce *caterr.Error
		if errors.As(err, &ce) && ce.Kind == caterr.CircularDependency && len(ce.Cycle) > 0 {
			fmt.Fprintln(out, "Dependency cycle:")
			fmt.Fprintf(out, "  %s\n", strings.Join(ce.Cycle, " -> "))
			fmt.Fprintln(out)
			graph.PrintTree(out, eng.resolver.Graph().Tree(ce.Cycle[0]), "", true)
		}
		return fmt.Errorf("resolving %s: %w", ref, err)
	}

	graph.PrintTree(out, eng.resolver.Graph().Tree(e.SourcePath), "", true)
	return nil
}
