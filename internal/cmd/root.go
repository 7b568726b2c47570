// Package cmd implements the command-line surface for the manifest
// language server as an external collaborator of the core: lint, check,
// coverage, tree, and config. None of these commands implement any
// analysis themselves; they call only internal/session's public
// operations and format the result.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codeownersls",
	Short: "Analyze and author code-ownership manifests",
	Long: `codeownersls is the command-line surface for the code-ownership
manifest language server: it parses the manifest, relates it to the
repository tree, and reports broken, dead, and unvalidated rules.`,
}

// Execute runs the root command against os.Args.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file; not read: configuration always loads from $XDG_CONFIG_HOME/codeownersls/config.yaml or ~/.config/codeownersls/config.yaml")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colorized output")
}
