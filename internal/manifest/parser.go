package manifest

import (
	"regexp"
	"strconv"
	"strings"
)

// sectionHeaderRe matches "[Name]", "^[Name]", "[Name] 2", and
// "[Name] @default/owners".
var sectionHeaderRe = regexp.MustCompile(`^(\^?)\[([^\]]+)\](?:\s+(\d+))?(?:\s+(.*))?$`)

// sectionHeaderBracketApprovalRe matches the forge's alternate "[Name][2]"
// form, where the minimum-approval count is bracketed immediately after the
// name with no separating space.
var sectionHeaderBracketApprovalRe = regexp.MustCompile(`^(\^?)\[([^\]]+)\]\[(\d+)\](?:\s+(.*))?$`)

var (
	ownerUserRe = regexp.MustCompile(`^@[A-Za-z0-9](?:[A-Za-z0-9][-A-Za-z0-9]*)?$`)
	ownerTeamRe = regexp.MustCompile(`^@[A-Za-z0-9](?:[-A-Za-z0-9]*[A-Za-z0-9])?/[A-Za-z0-9](?:[-A-Za-z0-9]*[A-Za-z0-9])?$`)
	ownerEmailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
)

// ClassifyOwner returns the syntactic kind of a single owner token.
// Classification is purely lexical; it never consults the forge.
func ClassifyOwner(tok string) OwnerKind {
	switch {
	case ownerTeamRe.MatchString(tok):
		return OwnerTeam
	case ownerUserRe.MatchString(tok):
		return OwnerUser
	case ownerEmailRe.MatchString(tok):
		return OwnerEmail
	default:
		return OwnerInvalid
	}
}

// CanonicalOwner lowercases the forge-namespace portion of an owner token
// (everything after '@' for handles, the host for emails) while leaving the
// display form untouched elsewhere. This is the canonical key used by the
// validation cache and by dedupe/rename operations.
func CanonicalOwner(tok string) string {
	if tok == "" {
		return tok
	}
	if tok[0] == '@' {
		return "@" + strings.ToLower(tok[1:])
	}
	if at := strings.LastIndexByte(tok, '@'); at >= 0 {
		return tok[:at+1] + strings.ToLower(tok[at+1:])
	}
	return strings.ToLower(tok)
}

// Parse converts manifest text into an ordered, positional line model. Parse
// is total: every input byte sequence yields a Document, with parse failures
// recorded as Malformed lines rather than returned as errors.
func Parse(text []byte) *Document {
	rawLines, endings := splitPreservingEndings(text)

	doc := &Document{Lines: make([]Line, len(rawLines))}
	for i, raw := range rawLines {
		doc.Lines[i] = parseLine(i, raw, endings[i])
	}
	return doc
}

// splitPreservingEndings splits text into lines without discarding the
// original terminator of each line, so Serialize can reproduce it exactly.
// A trailing line with no terminator (including an entirely empty input) is
// represented as a single empty-ending line, matching bufio.Scanner-style
// line counting used elsewhere in the pack.
func splitPreservingEndings(text []byte) (lines []string, endings []string) {
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			end := i
			ending := "\n"
			if end > start && text[end-1] == '\r' {
				end--
				ending = "\r\n"
			}
			lines = append(lines, string(text[start:end]))
			endings = append(endings, ending)
			start = i + 1
		}
	}
	if start < len(text) || len(lines) == 0 {
		lines = append(lines, string(text[start:]))
		endings = append(endings, "")
	}
	return lines, endings
}

func parseLine(number int, raw, ending string) Line {
	base := Line{Number: number, Raw: raw, Ending: ending}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		base.Kind = Blank
		return base
	}

	firstNonWS := strings.TrimLeft(raw, " \t")
	if strings.HasPrefix(firstNonWS, "#") {
		if m := matchSectionHeader(trimmed); m == nil {
			base.Kind = Comment
			base.CommentText = strings.TrimPrefix(firstNonWS, "#")
			return base
		}
	}

	if applySectionHeader(&base, trimmed) {
		return base
	}

	return parseRuleOrMalformed(base, raw)
}

type sectionMatch struct {
	optional     bool
	name         string
	minApprovals *int
	rest         string
}

func matchSectionHeader(trimmed string) *sectionMatch {
	if m := sectionHeaderBracketApprovalRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[3])
		return &sectionMatch{optional: m[1] == "^", name: m[2], minApprovals: &n, rest: m[4]}
	}
	if m := sectionHeaderRe.FindStringSubmatch(trimmed); m != nil {
		sm := &sectionMatch{optional: m[1] == "^", name: m[2], rest: m[4]}
		if m[3] != "" {
			n, _ := strconv.Atoi(m[3])
			sm.minApprovals = &n
		}
		return sm
	}
	return nil
}

func applySectionHeader(base *Line, trimmed string) bool {
	m := matchSectionHeader(trimmed)
	if m == nil {
		return false
	}
	base.Kind = Section
	base.SectionName = m.name
	base.SectionOptional = m.optional
	base.MinApprovals = m.minApprovals
	if strings.TrimSpace(m.rest) != "" {
		for _, tok := range tokenizeRest(base.Raw, m.rest) {
			base.DefaultOwners = append(base.DefaultOwners, Owner{Token: tok, Kind: ClassifyOwner(tok.Text)})
		}
	}
	return true
}

// tokenizeRest re-locates the whitespace-delimited tokens of `rest` within
// the original raw line, so returned tokens carry correct byte offsets.
func tokenizeRest(raw, rest string) []Token {
	offset := strings.Index(raw, rest)
	if offset < 0 {
		offset = 0
	}
	return tokenize(rest, offset)
}

// tokenize splits s on runs of whitespace, returning each token with its
// byte-offset range relative to the start of the containing line (baseCol).
func tokenize(s string, baseCol int) []Token {
	var toks []Token
	i := 0
	for i < len(s) {
		for i < len(s) && isManifestSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && !isManifestSpace(s[i]) {
			i++
		}
		toks = append(toks, Token{Text: s[start:i], StartCol: baseCol + start, EndCol: baseCol + i})
	}
	return toks
}

func isManifestSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// parseRuleOrMalformed tokenizes a line as pattern + owners [+ comment].
func parseRuleOrMalformed(base Line, raw string) Line {
	leading := len(raw) - len(strings.TrimLeft(raw, " \t"))
	toks := tokenize(raw[leading:], leading)
	if len(toks) == 0 {
		base.Kind = Blank
		return base
	}

	base.Pattern = toks[0]
	rest := toks[1:]

	commentIdx := -1
	for i, t := range rest {
		if strings.HasPrefix(t.Text, "#") {
			commentIdx = i
			break
		}
	}

	var ownerToks []Token
	if commentIdx == -1 {
		ownerToks = rest
	} else {
		ownerToks = rest[:commentIdx]
		start := rest[commentIdx].StartCol
		c := Token{Text: raw[start:], StartCol: start, EndCol: len(raw)}
		base.TrailingComment = &c
	}

	var invalid []string
	for _, t := range ownerToks {
		kind := ClassifyOwner(t.Text)
		base.Owners = append(base.Owners, Owner{Token: t, Kind: kind})
		if kind == OwnerInvalid {
			invalid = append(invalid, t.Text)
		}
	}

	if len(invalid) > 0 {
		base.Kind = Malformed
		base.MalformedReason = "invalid owner token(s): " + strings.Join(invalid, ", ")
		return base
	}

	base.Kind = Rule
	return base
}
