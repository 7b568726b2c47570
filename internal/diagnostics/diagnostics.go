// Package diagnostics computes the set of issues a manifest document and
// its matched file set produce, as a pure function over already-computed
// state (no I/O of its own).
package diagnostics

import (
	"fmt"

	"github.com/go-codeowners/codeowners-ls/internal/manifest"
	"github.com/go-codeowners/codeowners-ls/internal/matcher"
	"github.com/go-codeowners/codeowners-ls/internal/validator"
)

// Severity is the user-facing level of an Issue.
type Severity int

const (
	Off Severity = iota
	Hint
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Off:
		return "off"
	case Hint:
		return "hint"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity parses a configuration string into a Severity, defaulting
// to def when s is empty or unrecognized.
func ParseSeverity(s string, def Severity) Severity {
	switch s {
	case "off":
		return Off
	case "hint":
		return Hint
	case "info":
		return Info
	case "warning":
		return Warning
	case "error":
		return Error
	default:
		return def
	}
}

// Code is the machine-readable identifier of an issue kind.
type Code string

const (
	InvalidPattern Code = "invalid-pattern"
	MalformedLine  Code = "malformed-line"
	NoMatches      Code = "no-matches"
	DeadRule       Code = "dead-rule"
	NoOwners       Code = "no-owners"
	DuplicateOwner Code = "duplicate-owner"
	InvalidOwner   Code = "invalid-owner"
	UnknownOwner   Code = "unknown-owner"
	FileNotOwned   Code = "file-not-owned"

	// EnvironmentError covers environment errors (manifest missing,
	// workspace root unreadable, cache corrupt): a single session-level
	// issue synthesized on the manifest URI rather than one of the
	// per-line kinds above.
	EnvironmentError Code = "environment-error"
)

// defaultSeverities bakes sensible defaults into the code and lets Config
// override individual entries.
var defaultSeverities = map[Code]Severity{
	InvalidPattern:   Error,
	MalformedLine:    Error,
	NoMatches:        Warning,
	DeadRule:         Warning,
	NoOwners:         Warning,
	DuplicateOwner:   Info,
	InvalidOwner:     Warning,
	UnknownOwner:     Hint,
	FileNotOwned:     Off,
	EnvironmentError: Error,
}

// Range anchors an Issue to a byte span within a single line.
type Range struct {
	Line     int
	StartCol int
	EndCol   int
}

// Issue is one diagnostic finding.
type Issue struct {
	Range    Range
	Code     Code
	Severity Severity
	Message  string
}

// OwnerStatus is the subset of validator.Worker diagnostics needs: a
// synchronous in-memory lookup, never triggering a network call itself.
// *validator.Worker satisfies this directly.
type OwnerStatus interface {
	Lookup(owner string) validator.Record
}

// Config resolves per-code severity overrides. A nil Config uses the
// built-in defaults unmodified.
type Config struct {
	Overrides map[string]string // code -> "off"|"hint"|"info"|"warning"|"error"
}

func (c *Config) severity(code Code) Severity {
	def := defaultSeverities[code]
	if c == nil || c.Overrides == nil {
		return def
	}
	if raw, ok := c.Overrides[string(code)]; ok {
		return ParseSeverity(raw, def)
	}
	return def
}

// Compute produces every Issue for the given document and match table,
// consulting status for validated-owner kinds. status may be nil, in
// which case invalid-owner/unknown-owner are never emitted (matching a
// workspace with owner validation disabled).
func Compute(doc *manifest.Document, table *matcher.MatchTable, status OwnerStatus, cfg *Config) []Issue {
	var issues []Issue

	emit := func(code Code, r Range, format string, args ...any) {
		sev := cfg.severity(code)
		if sev == Off {
			return
		}
		issues = append(issues, Issue{Range: r, Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	for i := range doc.Lines {
		line := &doc.Lines[i]
		switch line.Kind {
		case manifest.Malformed:
			emit(MalformedLine, Range{Line: line.Number, StartCol: 0, EndCol: len(line.Raw)},
				"%s", line.MalformedReason)
		case manifest.Rule:
			checkRuleLine(line, table, status, cfg, emit)
		}
	}

	return issues
}

func checkRuleLine(line *manifest.Line, table *matcher.MatchTable, status OwnerStatus, cfg *Config, emit func(Code, Range, string, ...any)) {
	var rm *matcher.RuleMatch
	if table != nil {
		for i := range table.Rules {
			if table.Rules[i].LineNumber == line.Number {
				rm = &table.Rules[i]
				break
			}
		}
	}

	if rm != nil && rm.CompileErr != nil {
		emit(InvalidPattern, Range{Line: line.Number, StartCol: line.Pattern.StartCol, EndCol: line.Pattern.EndCol},
			"invalid pattern %q: %v", line.Pattern.Text, rm.CompileErr)
	} else if rm != nil {
		if rm.PatternDead() {
			emit(NoMatches, Range{Line: line.Number, StartCol: line.Pattern.StartCol, EndCol: line.Pattern.EndCol},
				"pattern %q matches no file in the repository", line.Pattern.Text)
		} else if rm.Shadowed() {
			emit(DeadRule, Range{Line: line.Number, StartCol: 0, EndCol: len(line.Raw)},
				"every file matching %q is also matched by a later rule", line.Pattern.Text)
		}
	}

	if len(line.Owners) == 0 {
		emit(NoOwners, Range{Line: line.Number, StartCol: 0, EndCol: len(line.Raw)},
			"rule has no owners")
	}

	seen := make(map[string]bool, len(line.Owners))
	for _, o := range line.Owners {
		canon := manifest.CanonicalOwner(o.Text)
		if seen[canon] {
			emit(DuplicateOwner, Range{Line: line.Number, StartCol: o.StartCol, EndCol: o.EndCol},
				"owner %q repeated in this rule", o.Text)
			continue
		}
		seen[canon] = true

		if o.Kind == manifest.OwnerInvalid {
			continue
		}
		if status == nil {
			continue
		}
		rec := status.Lookup(canon)
		if rec.FetchedAt.IsZero() {
			emit(UnknownOwner, Range{Line: line.Number, StartCol: o.StartCol, EndCol: o.EndCol},
				"owner %q has not yet been checked against the forge", o.Text)
			continue
		}
		if rec.Status == validator.Invalid {
			msg := fmt.Sprintf("owner %q was not found on the forge", o.Text)
			if rec.Reason != "" {
				msg = fmt.Sprintf("owner %q was not found on the forge: %s", o.Text, rec.Reason)
			}
			emit(InvalidOwner, Range{Line: line.Number, StartCol: o.StartCol, EndCol: o.EndCol}, "%s", msg)
		}
	}
}

// FileNotOwnedIssue builds the configurable, off-by-default issue for a
// queried path that the index knows about but no rule in doc covers. Its
// range is the full document range of the queried file itself, per the
// coverage-diagnostic's stated anchor (not the manifest).
func FileNotOwnedIssue(path string, lineCount int, cfg *Config) (Issue, bool) {
	sev := cfg.severity(FileNotOwned)
	if sev == Off {
		return Issue{}, false
	}
	return Issue{
		Range:    Range{Line: 0, StartCol: 0, EndCol: lineCount},
		Code:     FileNotOwned,
		Severity: sev,
		Message:  fmt.Sprintf("%s is not covered by any rule", path),
	}, true
}

// EnvironmentIssue builds the session-level diagnostic for an environment
// error (manifest missing, workspace root unreadable, corrupt cache): the
// affected capability still returns an (empty) result rather than the
// session failing outright.
func EnvironmentIssue(message string, cfg *Config) (Issue, bool) {
	sev := cfg.severity(EnvironmentError)
	if sev == Off {
		return Issue{}, false
	}
	return Issue{
		Code:     EnvironmentError,
		Severity: sev,
		Message:  message,
	}, true
}
