package cmd

import (
	"fmt"
	"os"

	"github.com/go-codeowners/codeowners-ls/internal/diagnostics"
	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Run every diagnostic against the manifest headlessly",
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, shutdown, err := newSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	issues := sess.BatchDiagnostics(cmd.Context())
	noColor, _ := cmd.Root().PersistentFlags().GetBool("no-color")
	color := colorEnabled(noColor)

	hasError := false
	for _, issue := range issues {
		if issue.Severity == diagnostics.Error {
			hasError = true
		}
		printIssue(os.Stdout, sess.ManifestPath(), issue, color)
	}

	fmt.Fprintf(os.Stdout, "%d issue(s)\n", len(issues))
	if hasError {
		return errLintFailed
	}
	return nil
}

var errLintFailed = fmt.Errorf("lint found error-severity issues")

func printIssue(w *os.File, path string, issue diagnostics.Issue, color bool) {
	loc := fmt.Sprintf("%s:%d", path, issue.Range.Line+1)
	sev := issue.Severity.String()
	if color {
		sev = colorizeSeverity(issue.Severity, sev)
	}
	fmt.Fprintf(w, "%s: %s [%s] %s\n", loc, sev, issue.Code, issue.Message)
}

func colorizeSeverity(sev diagnostics.Severity, text string) string {
	const (
		red    = "\x1b[31m"
		yellow = "\x1b[33m"
		cyan   = "\x1b[36m"
		reset  = "\x1b[0m"
	)
	switch sev {
	case diagnostics.Error:
		return red + text + reset
	case diagnostics.Warning:
		return yellow + text + reset
	default:
		return cyan + text + reset
	}
}
