package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/branding"
	"github.com/scenariokit/scenariocat/internal/config"
)

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage user settings",
	Long: `Read and write settings stored at ~/` + branding.HomeDir() + `/config.yaml.
A ` + branding.ProjectFile() + ` file in the project root overrides them.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.Set(key, value); err != nil {
			return fmt.Errorf("setting config key %q: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.Get(args[0]))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Current()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "project\t%s\n", orDash(s.ProjectDir))
		fmt.Fprintf(w, "%s\t%s\n", config.KeyCatalogDirs, strings.Join(searchDirs(s), ", "))
		for name, path := range s.CatalogAliases {
			fmt.Fprintf(w, "%s.%s\t%s\n", config.KeyCatalogAliases, name, path)
		}
		fmt.Fprintf(w, "%s\t%t\n", config.KeyStrictBindings, s.StrictBindings)
		fmt.Fprintf(w, "%s\t%s\n", config.KeyLogLevel, s.LogLevel)
		fmt.Fprintf(w, "%s\t%s\n", config.KeyLogFormat, s.LogFormat)
		fmt.Fprintf(w, "%s\t%s\n", config.KeyCatalogRepo, s.CatalogRepo)
		fmt.Fprintf(w, "%s\t%s\n", config.KeyIndexCache, s.IndexCache)
		return w.Flush()
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
