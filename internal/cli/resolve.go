package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/resolve"
)

var (
	resolveKind string
	resolveSet  []string
	resolveJSON bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <catalog> <entry>",
	Short: "Resolve one catalog entry",
	Long: `Resolve a catalog entry into a concrete entity: parameters are bound,
placeholders substituted and nested catalog references resolved.

  scenariocat resolve vehicles sedan --set mass=1800
  scenariocat resolve controllers aggressive --kind Controller --json`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveKind, "kind", "", "Entity kind to look up (Vehicle, Controller, ...)")
	resolveCmd.Flags().StringArrayVar(&resolveSet, "set", nil, "Parameter binding name=value (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	bindings, err := parseBindings(resolveSet)
	if err != nil {
		return err
	}
	ref := resolve.Reference{Catalog: args[0], Entry: args[1], Kind: resolveKind, Bindings: bindings}

	e, err := newEngine().resolver.Resolve(cmd.Context(), ref, nil)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", ref, err)
	}
	if resolveJSON {
		return printJSON(cmd.OutOrStdout(), e)
	}
	printEntity(cmd.OutOrStdout(), e)
	return nil
}
