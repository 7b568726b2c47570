// Package authoring computes text edits for the manifest's authoring
// operations. Every function here is pure: it reads a manifest.Document and
// returns an Edit describing a byte-range replacement; none of them touch
// the filesystem.
package authoring

import (
	"errors"
	"strings"

	"github.com/go-codeowners/codeowners-ls/internal/manifest"
)

// Edit is a single text replacement over the original document bytes.
// Applying it means: doc[:StartByte] + NewText + doc[EndByte:].
type Edit struct {
	StartByte int
	EndByte   int
	NewText   string
}

// ErrAlreadyCovered is returned by AddCatchAll when the last rule already
// catches everything.
var ErrAlreadyCovered = errors.New("already-covered")

// TakeOwnership produces the edit that grants owner O ownership of path P.
// If a rule's pattern is exactly P and doesn't already list O, the edit
// appends O to that rule. Otherwise a new rule is inserted at the point
// chosen by insertionPoint.
func TakeOwnership(doc *manifest.Document, path, owner string) Edit {
	canon := manifest.CanonicalOwner(owner)
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.Kind != manifest.Rule || line.Pattern.Text != path {
			continue
		}
		for _, o := range line.Owners {
			if manifest.CanonicalOwner(o.Text) == canon {
				// O already owns P exactly: nothing to change.
				pos := doc.LineStart(i) + len(line.Raw)
				return Edit{StartByte: pos, EndByte: pos, NewText: ""}
			}
		}
		insertAt := len(line.Raw)
		return Edit{
			StartByte: doc.LineStart(i) + insertAt,
			EndByte:   doc.LineStart(i) + insertAt,
			NewText:   " " + owner,
		}
	}

	insertAfter := insertionPoint(doc, path, canon)
	newLine := path + "\t" + owner + "\n"
	off := insertionOffset(doc, insertAfter)
	return Edit{StartByte: off, EndByte: off, NewText: newLine}
}

// insertionPoint returns the zero-based line index after which a new rule
// for (path, canonicalOwner) should be inserted, or -1 to mean "end of
// file, before trailing blank lines."
func insertionPoint(doc *manifest.Document, path, canonicalOwner string) int {
	rules := doc.Rules()

	// Rule 1: a contiguous block of rules already owned by this owner.
	var ownedBlock []int
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.Kind != manifest.Rule {
			continue
		}
		for _, o := range line.Owners {
			if manifest.CanonicalOwner(o.Text) == canonicalOwner {
				ownedBlock = append(ownedBlock, i)
				break
			}
		}
	}
	if len(ownedBlock) > 0 {
		best := ownedBlock[0]
		bestShared := sharedPrefixLen(doc.Lines[best].Pattern.Text, path)
		for _, idx := range ownedBlock[1:] {
			shared := sharedPrefixLen(doc.Lines[idx].Pattern.Text, path)
			if shared >= bestShared {
				bestShared = shared
				best = idx // tie-break: later rule wins since we scan forward
			}
		}
		return best
	}

	// Rule 2: any rule sharing a directory segment with path.
	lastShared := -1
	for _, rl := range rules {
		if sharedPrefixLen(rl.Pattern.Text, path) > 0 {
			lastShared = rl.Number
		}
	}
	if lastShared >= 0 {
		return lastShared
	}

	// Rule 3: end of file.
	return -1
}

// sharedPrefixLen returns the number of leading '/'-delimited directory
// segments a and b have in common.
func sharedPrefixLen(a, b string) int {
	as := strings.Split(strings.Trim(a, "/"), "/")
	bs := strings.Split(strings.Trim(b, "/"), "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

// insertionOffset converts a line index (or -1 for "before trailing blank
// lines") to a byte offset suitable for an insertion edit.
func insertionOffset(doc *manifest.Document, afterLine int) int {
	if afterLine >= 0 {
		return doc.LineStart(afterLine) + len(doc.Lines[afterLine].Raw) + len(doc.Lines[afterLine].Ending)
	}
	end := len(doc.Lines)
	for end > 0 && doc.Lines[end-1].Kind == manifest.Blank {
		end--
	}
	return doc.LineStart(end)
}

// RemoveDeadRule deletes the rule at lineNumber, along with at most one
// immediately following blank line if that blank line exists solely to
// separate the deleted rule from whatever comes after it.
func RemoveDeadRule(doc *manifest.Document, lineNumber int) Edit {
	line := doc.Line(lineNumber)
	start := doc.LineStart(lineNumber)
	end := start + len(line.Raw) + len(line.Ending)

	if next := doc.Line(lineNumber + 1); next != nil && next.Kind == manifest.Blank {
		end += len(next.Raw) + len(next.Ending)
	}

	return Edit{StartByte: start, EndByte: end, NewText: ""}
}

// DedupeOwners removes duplicate owner tokens (by canonical form) within a
// single rule line, preserving the first occurrence of each and the
// whitespace style that preceded it.
func DedupeOwners(doc *manifest.Document, lineNumber int) Edit {
	line := doc.Line(lineNumber)
	lineStart := doc.LineStart(lineNumber)

	seen := make(map[string]bool, len(line.Owners))
	var drop []manifest.Owner
	for _, o := range line.Owners {
		canon := manifest.CanonicalOwner(o.Text)
		if seen[canon] {
			drop = append(drop, o)
			continue
		}
		seen[canon] = true
	}
	if len(drop) == 0 {
		return Edit{StartByte: lineStart, EndByte: lineStart, NewText: ""}
	}

	// Remove each duplicate token along with the whitespace immediately
	// preceding it, so "a @x @x" becomes "a @x" rather than "a @x ".
	raw := line.Raw
	type span struct{ start, end int }
	var spans []span
	for _, o := range drop {
		start := o.StartCol
		for start > 0 && isSpaceByte(raw[start-1]) {
			start--
		}
		spans = append(spans, span{start, o.EndCol})
	}

	var sb strings.Builder
	cursor := 0
	for _, sp := range spans {
		sb.WriteString(raw[cursor:sp.start])
		cursor = sp.end
	}
	sb.WriteString(raw[cursor:])

	return Edit{StartByte: lineStart, EndByte: lineStart + len(raw), NewText: sb.String()}
}

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' }

// AddCatchAll appends a `*\t{owner}` rule at the end of the file. It
// returns ErrAlreadyCovered if the last rule's pattern is already "*".
func AddCatchAll(doc *manifest.Document, owner string) (Edit, error) {
	rules := doc.Rules()
	if len(rules) > 0 && rules[len(rules)-1].Pattern.Text == "*" {
		return Edit{}, ErrAlreadyCovered
	}

	off := insertionOffset(doc, -1)
	return Edit{StartByte: off, EndByte: off, NewText: "*\t" + owner + "\n"}, nil
}

// RenameOwner rewrites every owner token matching `from` (by canonical
// form) to `to`, across the whole document, preserving surrounding
// whitespace. This is not named in the authoring operation list but
// addresses the same organisational-rename drift the ownership model
// itself calls out as a recurring failure mode.
func RenameOwner(doc *manifest.Document, from, to string) []Edit {
	canonFrom := manifest.CanonicalOwner(from)
	var edits []Edit
	for i := range doc.Lines {
		line := &doc.Lines[i]
		lineStart := doc.LineStart(i)
		owners := line.Owners
		if line.Kind == manifest.Section {
			owners = line.DefaultOwners
		}
		for _, o := range owners {
			if manifest.CanonicalOwner(o.Text) != canonFrom {
				continue
			}
			edits = append(edits, Edit{
				StartByte: lineStart + o.StartCol,
				EndByte:   lineStart + o.EndCol,
				NewText:   to,
			})
		}
	}
	return edits
}
