package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-codeowners/codeowners-ls/internal/matcher"
	"github.com/spf13/cobra"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print per-rule owned/raw/dead match counts",
	RunE:  runCoverage,
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
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

	doc := sess.Document()
	table := sess.MatchTable()

	for _, rule := range doc.Rules() {
		rm := ruleMatchByLine(table, rule.Number)
		if rm == nil {
			continue
		}

		status := "ok"
		switch {
		case rm.CompileErr != nil:
			status = fmt.Sprintf("invalid pattern: %v", rm.CompileErr)
		case rm.PatternDead():
			status = "dead: matches no file"
		case rm.Shadowed():
			status = "shadowed: every match is overridden later"
		}

		fmt.Printf("line %-4d %-30s owned=%-6s raw=%-6s %s\n",
			rule.Number+1,
			rule.Pattern.Text,
			humanize.Comma(int64(rm.OwnedCount)),
			humanize.Comma(int64(len(rm.RawMatches))),
			status,
		)
	}

	total := sess.Index().Len()
	unowned, err := sess.UnownedFiles(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("\n%s files indexed, %s unowned\n",
		humanize.Comma(int64(total)), humanize.Comma(int64(len(unowned))))

	return nil
}

func ruleMatchByLine(table *matcher.MatchTable, lineNumber int) *matcher.RuleMatch {
	if table == nil {
		return nil
	}
	for i := range table.Rules {
		if table.Rules[i].LineNumber == lineNumber {
			return &table.Rules[i]
		}
	}
	return nil
}
