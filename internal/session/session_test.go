package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-codeowners/codeowners-ls/internal/config"
)

// fakeEnumerator is a hand-rolled repoindex.Enumerator, a small
// hand-written fake in place of a mocking framework.
type fakeEnumerator struct {
	files []string
}

func (f *fakeEnumerator) Enumerate(ctx context.Context) ([]string, error) {
	return f.files, nil
}

func newTestSession(t *testing.T, files []string, cfg *config.Config) *Session {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = "CODEOWNERS"
	}
	s, err := New(context.Background(), cfg, t.TempDir(), &fakeEnumerator{files: files}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestHoverPatternToken(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, []string{"src/main.go", "docs/readme.md"}, nil)
	s.Open("CODEOWNERS", "*.go\t@org/backend\n")

	hover := s.Hover("CODEOWNERS", Position{Line: 0, Character: 0})
	if hover == nil {
		t.Fatal("Hover() = nil, want a result for the pattern token")
	}
	if hover.Range.Start.Character != 0 || hover.Range.End.Character != 4 {
		t.Errorf("Hover() range = %+v, want pattern token span [0,4)", hover.Range)
	}
}

func TestHoverFileReturnsOwningRule(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, []string{"src/main.go", "docs/readme.md"}, nil)
	s.Open("CODEOWNERS", "*.go\t@org/backend\n")

	hover := s.Hover("src/main.go", Position{})
	if hover == nil {
		t.Fatal("Hover() = nil, want owning-rule summary")
	}
	if hover.Contents == "" {
		t.Error("Hover().Contents is empty")
	}

	unowned := s.Hover("docs/readme.md", Position{})
	if unowned == nil || unowned.Contents == "" {
		t.Fatal("Hover() for an unowned file should still return a result")
	}
}

func TestCodeActionsOffersTakeOwnershipForUncoveredFile(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Individual = "@me"

	s := newTestSession(t, []string{"README.md"}, cfg)
	s.Open("CODEOWNERS", "")

	actions := s.CodeActions("README.md", FullRange())
	if len(actions) != 1 {
		t.Fatalf("CodeActions() = %d actions, want 1", len(actions))
	}
	if actions[0].Command != CommandTakeOwnership {
		t.Errorf("CodeActions()[0].Command = %q, want %q", actions[0].Command, CommandTakeOwnership)
	}
}

func TestExecuteTakeOwnershipInsertsRule(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, []string{"README.md"}, nil)
	s.Open("CODEOWNERS", "")

	edits, err := s.Execute(CommandTakeOwnership, 0, []any{"README.md", "@me"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("Execute() = %d edits, want 1", len(edits))
	}
	if edits[0].NewText != "README.md\t@me\n" {
		t.Errorf("Execute() edit text = %q, want %q", edits[0].NewText, "README.md\t@me\n")
	}
}

func TestExecuteRejectsStaleVersion(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil, nil)
	s.Open("CODEOWNERS", "*.go\t@org/backend\n")
	s.Change("CODEOWNERS", "*.go\t@org/backend\n*.md\t@org/docs\n", 1)

	_, err := s.Execute(CommandAddCatchAll, 0, []any{"@fallback"})
	if err != ErrStaleVersion {
		t.Fatalf("Execute() error = %v, want ErrStaleVersion", err)
	}
}

func TestBatchDiagnosticsMissingManifestIsSynthetic(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil, nil) // no manifest written to disk, none opened
	issues := s.BatchDiagnostics(context.Background())
	if len(issues) != 1 {
		t.Fatalf("BatchDiagnostics() = %d issues, want 1 synthetic environment-error issue", len(issues))
	}
	if string(issues[0].Code) != "environment-error" {
		t.Errorf("BatchDiagnostics()[0].Code = %q, want %q", issues[0].Code, "environment-error")
	}
}

func TestBatchDiagnosticsLoadsManifestFromDisk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "CODEOWNERS"), []byte("/a.go\t@org/backend\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Path = "CODEOWNERS"
	s, err := New(context.Background(), cfg, root, &fakeEnumerator{files: []string{"a.go"}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Shutdown)

	issues := s.BatchDiagnostics(context.Background())
	for _, issue := range issues {
		if string(issue.Code) == "environment-error" {
			t.Fatalf("BatchDiagnostics() reported environment-error for a manifest that exists: %+v", issue)
		}
	}
}

func TestUnownedFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "CODEOWNERS"), []byte("*.go\t@org/backend\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Path = "CODEOWNERS"

	s, err := New(context.Background(), cfg, root, &fakeEnumerator{files: []string{"a.go", "README.md"}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Shutdown)

	unowned, err := s.UnownedFiles(context.Background())
	if err != nil {
		t.Fatalf("UnownedFiles() error = %v", err)
	}
	if len(unowned) != 1 || unowned[0] != "README.md" {
		t.Errorf("UnownedFiles() = %v, want [README.md]", unowned)
	}
}
