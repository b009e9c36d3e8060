package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/catalogrepo"
	"github.com/scenariokit/scenariocat/internal/config"
)

var catalogsJSON bool

func init() {
	catalogsStatusCmd.Flags().BoolVar(&catalogsJSON, "json", false, "Output in JSON format")
	catalogsCmd.AddCommand(catalogsSyncCmd)
	catalogsCmd.AddCommand(catalogsStatusCmd)
	rootCmd.AddCommand(catalogsCmd)
}

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "Manage the shared catalog library",
	Long: `The catalog library is a git checkout kept under the user directory. Its
catalogs/ directory is searched after the project catalog directories.`,
}

func libraryRepo() *catalogrepo.Repo {
	return &catalogrepo.Repo{Dir: config.LibraryDir(), URL: config.Current().CatalogRepo}
}

var catalogsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or update the catalog library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.EnsureDir(); err != nil {
			return err
		}
		repo := libraryRepo()
		if repo.URL == "" {
			return fmt.Errorf("no catalog repository configured (set %s)", config.KeyCatalogRepo)
		}
		action := "Cloning"
		if repo.Present() {
			action = "Updating"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s catalog library from %s...\n", action, repo.URL)
		if err := repo.Sync(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog library ready at %s\n", repo.CatalogDir())
		return nil
	},
}

var catalogsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the catalog library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := libraryRepo().Status(catalogrepo.DefaultMaxAge)
		out := cmd.OutOrStdout()
		if catalogsJSON {
			return printJSON(out, st)
		}
		fmt.Fprintf(out, "Repository: %s\n", orDash(st.URL))
		fmt.Fprintf(out, "Checkout:   %s\n", st.Dir)
		if !st.Present {
			fmt.Fprintln(out, "Status:     not cloned")
			return nil
		}
		updated := "unknown"
		if !st.LastUpdated.IsZero() {
			updated = st.LastUpdated.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "Updated:    %s\n", updated)
		if st.Stale {
			fmt.Fprintln(out, "Status:     stale")
		} else {
			fmt.Fprintln(out, "Status:     fresh")
		}
		return nil
	},
}
