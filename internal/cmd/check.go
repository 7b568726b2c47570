package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Report the owning rule for a single repository path",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, shutdown, err := newSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	path := strings.TrimPrefix(args[0], "./")
	line, owners, ok := sess.Owner(cmd.Context(), path)
	if !ok {
		fmt.Printf("%s: unowned\n", path)
		return nil
	}
	fmt.Printf("%s: line %d, owner(s): %s\n", path, line+1, strings.Join(owners, ", "))
	return nil
}
