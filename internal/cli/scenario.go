package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/scenario"
)

var (
	scenarioSet  []string
	scenarioJSON bool
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>",
	Short: "Resolve every catalog reference in a scenario",
	Long: `Read a scenario document and resolve each CatalogReference it holds.
Scenario parameters act as the enclosing scope of every reference; --set
overrides their defaults. Directories listed under CatalogLocations are
searched before the configured ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().StringArrayVar(&scenarioSet, "set", nil, "Override a scenario parameter name=value (repeatable)")
	scenarioCmd.Flags().BoolVar(&scenarioJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading scenario: %w", err)
	}
	tree, err := doctree.Decode(path, data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	s, err := scenario.Parse(tree, path)
	if err != nil {
		return err
	}

	overrides, err := parseBindings(scenarioSet)
	if err != nil {
		return err
	}
	scope, err := s.Scope(overrides)
	if err != nil {
		return err
	}

	results, err := scenario.Resolve(cmd.Context(), newEngine(s.CatalogDirs...).resolver, s, scope)
	if err != nil {
		return err
	}

	if scenarioJSON {
		return printJSON(cmd.OutOrStdout(), results)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No catalog references in", path)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), scenario.Summary(results))
	return nil
}
