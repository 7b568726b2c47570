package matcher

import (
	"testing"

	"github.com/go-codeowners/codeowners-ls/internal/manifest"
)

func TestSweepLastMatchWins(t *testing.T) {
	t.Parallel()

	doc := manifest.Parse([]byte(
		"*.go @org/backend\n" +
			"/cmd/** @org/cli\n" +
			"cmd/legacy.go @alice\n",
	))

	files := []string{"main.go", "cmd/main.go", "cmd/legacy.go", "docs/readme.md"}
	table := Sweep(doc, files)

	wantOwnerLine := map[string]int{
		"main.go":         0,
		"cmd/main.go":     1,
		"cmd/legacy.go":   2,
		"docs/readme.md": -1,
	}
	for f, wantLine := range wantOwnerLine {
		got, ok := table.Owner[f]
		if wantLine == -1 {
			if ok && got != -1 {
				t.Errorf("Owner[%q] = %d, want no owner", f, got)
			}
			continue
		}
		if !ok || got != wantLine {
			t.Errorf("Owner[%q] = %d, want %d", f, got, wantLine)
		}
	}

	if table.Rules[0].OwnedCount != 1 {
		t.Errorf("rule 0 OwnedCount = %d, want 1 (cmd/main.go shadowed by rule 1)", table.Rules[0].OwnedCount)
	}
	if len(table.Rules[0].RawMatches) != 3 {
		t.Errorf("rule 0 RawMatches = %v, want 3 entries (main.go, cmd/main.go, cmd/legacy.go)", table.Rules[0].RawMatches)
	}
}

func TestSweepDeadAndShadowedRules(t *testing.T) {
	t.Parallel()

	doc := manifest.Parse([]byte(
		"*.md @org/docs\n" +
			"*.md @org/docs2\n" +
			"*.nonexistent @org/ghost\n",
	))
	files := []string{"readme.md"}
	table := Sweep(doc, files)

	if !table.Rules[0].Shadowed() {
		t.Error("rule 0 (*.md) should be shadowed by rule 1")
	}
	if table.Rules[1].OwnedCount != 1 {
		t.Errorf("rule 1 OwnedCount = %d, want 1", table.Rules[1].OwnedCount)
	}
	if !table.Rules[2].PatternDead() {
		t.Error("rule 2 (*.nonexistent) should be reported as pattern-dead")
	}
}

func TestSweepInvalidPatternExcluded(t *testing.T) {
	t.Parallel()

	doc := manifest.Parse([]byte("a**b @org/team\n"))
	table := Sweep(doc, []string{"aXXb"})

	if table.Rules[0].CompileErr == nil {
		t.Fatal("expected CompileErr for invalid \"**\" pattern")
	}
	if owner, ok := table.Owner["aXXb"]; ok && owner != -1 {
		t.Errorf("Owner[aXXb] = %d, want no match (pattern failed to compile)", owner)
	}
}

func TestMatchPath(t *testing.T) {
	t.Parallel()

	doc := manifest.Parse([]byte(
		"*.go @org/backend\n" +
			"/cmd/** @org/cli\n",
	))

	line, owners, ok := MatchPath(doc, "cmd/sub/main.go")
	if !ok {
		t.Fatal("MatchPath: expected a match")
	}
	if line != 1 {
		t.Errorf("MatchPath line = %d, want 1", line)
	}
	if len(owners) != 1 || owners[0].Text != "@org/cli" {
		t.Errorf("MatchPath owners = %v, want [@org/cli]", owners)
	}

	if _, _, ok := MatchPath(doc, "docs/readme.md"); ok {
		t.Error("MatchPath: expected no match for docs/readme.md")
	}
}
