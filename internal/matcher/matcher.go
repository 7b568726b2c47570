package matcher

import "github.com/go-codeowners/codeowners-ls/internal/manifest"

// RuleMatch holds the compiled-pattern state and match bookkeeping for a
// single Rule line of the manifest.
type RuleMatch struct {
	LineNumber int
	Pattern    string
	CompileErr error // non-nil: pattern excluded from matching (boundary rule)

	// RawMatches is the set of files this rule's pattern matches, before any
	// later rule shadows them.
	RawMatches map[string]struct{}

	// OwnedCount is the number of files for which this rule is the final
	// (last-match-wins) owner.
	OwnedCount int
}

// PatternDead reports whether this rule's pattern matched no files at all.
func (m RuleMatch) PatternDead() bool {
	return m.CompileErr == nil && len(m.RawMatches) == 0
}

// Shadowed reports whether this rule had raw matches but every one of them
// was overridden by a later rule.
func (m RuleMatch) Shadowed() bool {
	return m.CompileErr == nil && len(m.RawMatches) > 0 && m.OwnedCount == 0
}

// MatchTable is the pure function of (line model, repository file set):
// for every file, the index of its owning rule (or -1 for none); for every
// rule, its raw and owned match counts.
type MatchTable struct {
	// Owner maps each repository file to the index (into Rules) of the
	// rule that owns it, or -1 if no rule matches.
	Owner map[string]int
	Rules []RuleMatch
}

// OwningRule returns the owning RuleMatch for path, and whether one exists.
func (t *MatchTable) OwningRule(path string) (*RuleMatch, bool) {
	idx, ok := t.Owner[path]
	if !ok || idx < 0 {
		return nil, false
	}
	return &t.Rules[idx], true
}

// Sweep evaluates every rule in doc against every file in files in a single
// pass, producing the match table for the whole repository in one shot
// rather than one lookup at a time.
func Sweep(doc *manifest.Document, files []string) *MatchTable {
	ruleLines := doc.Rules()

	patterns := make([]*Pattern, len(ruleLines))
	table := &MatchTable{
		Owner: make(map[string]int, len(files)),
		Rules: make([]RuleMatch, len(ruleLines)),
	}
	for i, rl := range ruleLines {
		pat, err := Compile(rl.Pattern.Text)
		patterns[i] = pat
		table.Rules[i] = RuleMatch{
			LineNumber: rl.Number,
			Pattern:    rl.Pattern.Text,
			CompileErr: err,
			RawMatches: make(map[string]struct{}),
		}
	}

	for _, f := range files {
		lastIdx := -1
		for i, pat := range patterns {
			if pat == nil {
				continue // invalid pattern: excluded from matching
			}
			if pat.Match(f) {
				table.Rules[i].RawMatches[f] = struct{}{}
				lastIdx = i
			}
		}
		table.Owner[f] = lastIdx
		if lastIdx >= 0 {
			table.Rules[lastIdx].OwnedCount++
		}
	}

	return table
}

// MatchPath determines the owning rule for a single path without requiring
// the full repository file set, by replaying last-match-wins over the
// document's compiled rules directly. The session uses this for queried
// paths the repository index has not (yet) seen — e.g. a file mid-creation
// in the editor.
func MatchPath(doc *manifest.Document, path string) (ruleLineNumber int, owners []manifest.Owner, ok bool) {
	ruleLines := doc.Rules()
	lastIdx := -1
	for i, rl := range ruleLines {
		pat, err := Compile(rl.Pattern.Text)
		if err != nil {
			continue
		}
		if pat.Match(path) {
			lastIdx = i
		}
	}
	if lastIdx < 0 {
		return 0, nil, false
	}
	return ruleLines[lastIdx].Number, ruleLines[lastIdx].Owners, true
}
