package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scenariokit/scenariocat/internal/catalog"
	"github.com/scenariokit/scenariocat/internal/doctree"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check catalog files for structural and schema problems",
	Long: `Check catalog files against the catalog schema and the kind registry.
Placeholders that no declaration in the file covers are listed as notes:
they resolve only when an enclosing scope binds them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			if !validateFile(out, path) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d catalog files invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateFile reports the problems of one catalog file to w and returns
// whether it is valid.
func validateFile(w io.Writer, path string) bool {
	fail := func(msg string) bool {
		fmt.Fprintf(w, "FAIL  %s\n      %s\n", path, msg)
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err.Error())
	}
	tree, err := doctree.Decode(path, data)
	if err != nil {
		return fail(err.Error())
	}

	res, err := catalog.Validate(tree)
	if err != nil {
		return fail(err.Error())
	}
	if !res.Valid {
		fmt.Fprintf(w, "FAIL  %s\n", path)
		for _, issue := range res.Issues {
			fmt.Fprintf(w, "      %s\n", issue)
		}
		return false
	}

	f, err := catalog.Parse(tree, path)
	if err != nil {
		return fail(err.Error())
	}
	fmt.Fprintf(w, "ok    %s\n", path)
	for _, fp := range f.FreeParameters() {
		fmt.Fprintf(w, "      note: %s %q uses undeclared parameter %q\n", fp.Entry.Kind, fp.Entry.Name, fp.Name)
	}
	return true
}
