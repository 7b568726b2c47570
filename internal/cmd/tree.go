package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Render the repository tree annotated with owning rules",
	RunE:  runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, shutdown, err := newSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	if err := sess.EnsureManifestLoaded(cmd.Context()); err != nil {
		return err
	}

	files := append([]string(nil), sess.Index().Files()...)
	sort.Strings(files)

	for _, f := range files {
		line, owners, ok := sess.Owner(cmd.Context(), f)
		depth := strings.Count(f, "/")
		indent := strings.Repeat("  ", depth)
		name := f[strings.LastIndex(f, "/")+1:]

		if !ok {
			fmt.Printf("%s%s (unowned)\n", indent, name)
			continue
		}
		fmt.Printf("%s%s  [line %d: %s]\n", indent, name, line+1, strings.Join(owners, ", "))
	}
	return nil
}
