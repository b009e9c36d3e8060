package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/branding"
	"github.com/scenariokit/scenariocat/internal/catalogrepo"
	"github.com/scenariokit/scenariocat/internal/config"
	"github.com/scenariokit/scenariocat/internal/logging"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	flagCatalogDirs []string
	flagLogLevel    string
	flagLenient     bool
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` resolves catalog references in driving-scenario descriptions:
it locates and parses catalog files, substitutes entry parameters, follows
nested references and reports dependency cycles.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		s := config.Current()
		level := s.LogLevel
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		log := logging.New(level, s.LogFormat, cmd.ErrOrStderr())
		cmd.SetContext(logging.WithLogger(cmd.Context(), log))

		// Skip the freshness hint for commands that manage the library.
		if cmd.Parent() != nil && cmd.Parent().Name() == "catalogs" {
			return nil
		}
		repo := &catalogrepo.Repo{Dir: config.LibraryDir(), URL: s.CatalogRepo}
		if repo.Present() && catalogrepo.IsStale(repo.Dir, catalogrepo.DefaultMaxAge) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Catalog library is more than 7 days old. Run '%s catalogs sync'.\n", branding.CLIName())
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&flagCatalogDirs, "catalog-dir", nil, "Extra catalog directory searched before the configured ones (repeatable)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flagLenient, "lenient", false, "Drop undeclared parameter bindings instead of failing")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
