// Package session orchestrates the parser, matcher, diagnostics,
// authoring, repository index, and validator on a per-workspace basis,
// exposing the operation surface a transport layer (an editor-protocol
// server, or the CLI's headless batch mode) calls into.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-codeowners/codeowners-ls/internal/authoring"
	"github.com/go-codeowners/codeowners-ls/internal/config"
	"github.com/go-codeowners/codeowners-ls/internal/diagnostics"
	"github.com/go-codeowners/codeowners-ls/internal/manifest"
	"github.com/go-codeowners/codeowners-ls/internal/matcher"
	"github.com/go-codeowners/codeowners-ls/internal/repoindex"
	"github.com/go-codeowners/codeowners-ls/internal/validator"
)

// Position is a zero-based line/character position within a document, the
// same shape an editor protocol's position notifications use.
type Position struct {
	Line      int
	Character int
}

// Range spans two Positions, end-exclusive.
type Range struct {
	Start, End Position
}

// FullRange returns a Range covering every line (the sentinel callers pass
// when there's no narrower range to scope a query to).
func FullRange() Range {
	return Range{Start: Position{Line: 0}, End: Position{Line: 1 << 30}}
}

// Location pairs a URI with a Range, the shape goto_definition and
// cross-file hover return.
type Location struct {
	URI   string
	Range Range
}

// Hover is the result of the hover operation.
type Hover struct {
	Contents string
	Range    Range
}

// InlayHint is one end-of-line (manifest) or line-zero (other files)
// annotation.
type InlayHint struct {
	Position Position
	Label    string
}

// CodeAction names one authoring operation applicable at a queried range,
// with the command identifier and arguments Execute expects back.
type CodeAction struct {
	Title     string
	Command   string
	Arguments []any
}

// Command identifiers, one per authoring operation, exposed to callers as
// opaque execute-command strings.
const (
	CommandTakeOwnership  = "codeownersls.takeOwnership"
	CommandRemoveDeadRule = "codeownersls.removeDeadRule"
	CommandDedupeOwners   = "codeownersls.dedupeOwners"
	CommandAddCatchAll    = "codeownersls.addCatchAll"
	CommandRenameOwner    = "codeownersls.renameOwner"
)

// ErrStaleVersion is returned by Execute when the caller's document
// version has been superseded by an intervening change: the session
// reports a stale-edit failure rather than computing an edit against
// state the caller no longer has.
var ErrStaleVersion = fmt.Errorf("stale document version")

// snapshot is an immutable view of document state taken under the
// document lock and then read without it, so matcher/diagnostics/authoring
// (all synchronous, non-suspending) never run while holding the lock.
type snapshot struct {
	doc     *manifest.Document
	table   *matcher.MatchTable
	version int
	loaded  bool
}

// Session holds per-workspace state: the manifest document and its derived
// line model and match table, a handle to the repository index, a handle
// to the owner validator, and the immutable configuration record. The
// document lock, the index lock, and the validator lock are three separate
// locks, and the index/validator locks are never acquired while holding
// the document lock.
type Session struct {
	cfg  *config.Config
	root string

	manifestPath string // workspace-relative; "" if none could be discovered

	index *repoindex.Watcher
	val   *validator.Worker // nil when cfg.ValidateOwners is false

	mu   sync.RWMutex
	snap snapshot

	openMu sync.RWMutex
	open   map[string]int // uri -> version, for non-manifest open files
}

// New constructs a Session rooted at root. enum supplies the repository
// file enumerator; forge supplies the owner-validation collaborator and is
// only consulted if cfg.ValidateOwners is true.
func New(ctx context.Context, cfg *config.Config, root string, enum repoindex.Enumerator, forge validator.Forge) (*Session, error) {
	watcher, err := repoindex.NewWatcher(ctx, enum)
	if err != nil {
		return nil, fmt.Errorf("build repository index: %w", err)
	}
	watcher.Start(ctx)

	manifestPath := cfg.Path
	if manifestPath == "" {
		manifestPath = config.DiscoverPath(root)
	}

	s := &Session{
		cfg:          cfg,
		root:         root,
		manifestPath: manifestPath,
		index:        watcher,
		open:         make(map[string]int),
	}

	if cfg.ValidateOwners && forge != nil {
		var store *validator.Store
		dbPath := filepath.Join(root, ".codeowners-ls", "validator.db")
		if st, err := validator.OpenStore(dbPath); err != nil {
			log.Printf("[session] validator cache disabled: %v", err)
		} else {
			store = st
			ensureGitignoreEntry(root, "/.codeowners-ls/validator.db*")
		}

		worker := validator.NewWorker(forge, store, validator.Config{
			Interval: cfg.Cache.Interval,
			TTL:      cfg.Cache.TTL,
		})
		if err := worker.Hydrate(ctx); err != nil {
			log.Printf("[session] hydrate validator cache: %v", err)
		}
		worker.Start(ctx)
		s.val = worker
	}

	return s, nil
}

// Shutdown stops the background watcher and validator worker and closes
// the persistent cache, if any. Safe to call once, at process exit or
// workspace close.
func (s *Session) Shutdown() {
	s.index.Stop()
	if s.val != nil {
		if err := s.val.Close(); err != nil {
			log.Printf("[session] close validator: %v", err)
		}
	}
}

// Invalidate requests a repository index rebuild, the entry point a file
// watcher notification (outside this core's scope) drives.
func (s *Session) Invalidate() {
	s.index.Invalidate()
}

// ManifestPath returns the workspace-relative manifest path this session
// resolved at construction (via Config.Path or discovery), or "" if none
// was found.
func (s *Session) ManifestPath() string {
	return s.manifestPath
}

// Document returns the currently loaded manifest document, or nil if none
// has been opened or loaded yet.
func (s *Session) Document() *manifest.Document {
	return s.snapshot().doc
}

// MatchTable returns the current match table, or nil.
func (s *Session) MatchTable() *matcher.MatchTable {
	return s.snapshot().table
}

// Index returns the current repository index snapshot.
func (s *Session) Index() *repoindex.Index {
	return s.index.Current()
}

func (s *Session) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// relPath normalizes a transport-supplied URI into a workspace-relative,
// forward-slash path. This accepts both bare paths and "file://" URIs,
// which covers what a real transport collaborator would hand in after
// stripping protocol framing.
func (s *Session) relPath(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(s.root, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

func (s *Session) isManifest(uri string) bool {
	if s.manifestPath == "" {
		return false
	}
	return s.relPath(uri) == filepath.ToSlash(s.manifestPath)
}

// Open registers text for uri at version 0 (an initial open, per the LSP
// convention the transport collaborator follows).
func (s *Session) Open(uri, text string) {
	s.setDoc(uri, text, 0)
}

// Change updates text for uri, advancing it to version.
func (s *Session) Change(uri, text string, version int) {
	s.setDoc(uri, text, version)
}

// Close drops tracked state for uri.
func (s *Session) Close(uri string) {
	if s.isManifest(uri) {
		s.mu.Lock()
		s.snap = snapshot{}
		s.mu.Unlock()
		return
	}
	s.openMu.Lock()
	delete(s.open, uri)
	s.openMu.Unlock()
}

func (s *Session) setDoc(uri, text string, version int) {
	if !s.isManifest(uri) {
		s.openMu.Lock()
		s.open[uri] = version
		s.openMu.Unlock()
		return
	}

	doc := manifest.Parse([]byte(text))
	table := matcher.Sweep(doc, s.index.Current().Files())

	s.mu.Lock()
	s.snap = snapshot{doc: doc, table: table, version: version, loaded: true}
	s.mu.Unlock()
}

// EnsureManifestLoaded loads the manifest from disk if no editor session
// has opened it yet — the path the CLI's headless batch mode takes, since
// it never calls Open itself.
func (s *Session) EnsureManifestLoaded(ctx context.Context) error {
	if s.snapshot().loaded {
		return nil
	}
	if s.manifestPath == "" {
		return fmt.Errorf("no manifest found (searched %s)", strings.Join(config.CandidatePaths(), ", "))
	}
	data, err := os.ReadFile(filepath.Join(s.root, s.manifestPath))
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", s.manifestPath, err)
	}
	s.setDoc(s.manifestPath, string(data), 0)
	return nil
}

// Owner resolves the owning rule for a repository-relative path, the
// query `check <path>` needs without any hover-text formatting wrapped
// around it.
func (s *Session) Owner(ctx context.Context, path string) (lineNumber int, owners []string, ok bool) {
	if err := s.EnsureManifestLoaded(ctx); err != nil {
		return 0, nil, false
	}
	snap := s.snapshot()
	line, ownerTokens, found := owningRuleFor(snap, s.Index(), path)
	if !found {
		return 0, nil, false
	}
	names := make([]string, len(ownerTokens))
	for i, o := range ownerTokens {
		names[i] = o.Text
	}
	return line, names, true
}

// Hover returns ownership information for the token under pos: inside the
// manifest, the interpretation of the pattern or owner token under the
// cursor; elsewhere, the owning rule for the queried file.
func (s *Session) Hover(uri string, pos Position) *Hover {
	snap := s.snapshot()
	if snap.doc == nil {
		return nil
	}
	if s.isManifest(uri) {
		return hoverManifest(snap, pos)
	}
	return s.hoverFile(snap, uri)
}

func hoverManifest(snap snapshot, pos Position) *Hover {
	line := snap.doc.Line(pos.Line)
	if line == nil || line.Kind != manifest.Rule {
		return nil
	}
	col := pos.Character

	if col >= line.Pattern.StartCol && col < line.Pattern.EndCol {
		rm := findRuleMatch(snap.table, line.Number)
		if rm == nil {
			return nil
		}
		return &Hover{Contents: patternHoverText(rm), Range: tokenRange(line.Number, line.Pattern)}
	}

	for _, o := range line.Owners {
		if col >= o.StartCol && col < o.EndCol {
			return &Hover{Contents: fmt.Sprintf("owner %s", o.Text), Range: tokenRange(line.Number, o.Token)}
		}
	}
	return nil
}

func patternHoverText(rm *matcher.RuleMatch) string {
	if rm.CompileErr != nil {
		return fmt.Sprintf("pattern %q is invalid: %v", rm.Pattern, rm.CompileErr)
	}
	msg := fmt.Sprintf("pattern %q matches %d file(s), owns %d", rm.Pattern, len(rm.RawMatches), rm.OwnedCount)
	examples := exampleFiles(rm, 5)
	if len(examples) > 0 {
		msg += "\n" + strings.Join(examples, "\n")
	}
	return msg
}

func exampleFiles(rm *matcher.RuleMatch, limit int) []string {
	out := make([]string, 0, min(limit, len(rm.RawMatches)))
	for f := range rm.RawMatches {
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	sort.Strings(out)
	return out
}

func (s *Session) hoverFile(snap snapshot, uri string) *Hover {
	path := s.relPath(uri)
	lineNum, owners, ok := owningRuleFor(snap, s.Index(), path)
	if !ok {
		return &Hover{Contents: fmt.Sprintf("%s is not owned by any rule", path)}
	}
	return &Hover{Contents: fmt.Sprintf("owned by rule on line %d: %s", lineNum, ownerList(owners))}
}

// InlayHints returns per-rule match counts (manifest) or the owning rule
// summary (other files), scoped to rng.
func (s *Session) InlayHints(uri string, rng Range) []InlayHint {
	snap := s.snapshot()
	if snap.doc == nil {
		return nil
	}

	if s.isManifest(uri) {
		var hints []InlayHint
		for i := range snap.doc.Lines {
			line := &snap.doc.Lines[i]
			if line.Kind != manifest.Rule || line.Number < rng.Start.Line || line.Number > rng.End.Line {
				continue
			}
			rm := findRuleMatch(snap.table, line.Number)
			if rm == nil {
				continue
			}
			label := fmt.Sprintf("%d matched, %d owned", len(rm.RawMatches), rm.OwnedCount)
			hints = append(hints, InlayHint{Position: Position{Line: line.Number, Character: len(line.Raw)}, Label: label})
		}
		return hints
	}

	path := s.relPath(uri)
	if lineNum, owners, ok := owningRuleFor(snap, s.Index(), path); ok {
		return []InlayHint{{Position: Position{Line: 0, Character: 0}, Label: fmt.Sprintf("owned by line %d: %s", lineNum, ownerList(owners))}}
	}
	return nil
}

// CodeActions enumerates the authoring operations applicable at rng.
func (s *Session) CodeActions(uri string, rng Range) []CodeAction {
	snap := s.snapshot()
	if snap.doc == nil {
		return nil
	}

	if s.isManifest(uri) {
		return s.manifestCodeActions(snap, rng)
	}
	return s.fileCodeActions(snap, uri)
}

func (s *Session) manifestCodeActions(snap snapshot, rng Range) []CodeAction {
	var actions []CodeAction
	for i := range snap.doc.Lines {
		line := &snap.doc.Lines[i]
		if line.Number < rng.Start.Line || line.Number > rng.End.Line {
			continue
		}
		if line.Kind != manifest.Rule {
			continue
		}
		if rm := findRuleMatch(snap.table, line.Number); rm != nil && (rm.PatternDead() || rm.Shadowed()) {
			actions = append(actions, CodeAction{
				Title:     fmt.Sprintf("Remove dead rule on line %d", line.Number),
				Command:   CommandRemoveDeadRule,
				Arguments: []any{line.Number},
			})
		}
		if hasDuplicateOwner(line.Owners) {
			actions = append(actions, CodeAction{
				Title:     fmt.Sprintf("Remove duplicate owners on line %d", line.Number),
				Command:   CommandDedupeOwners,
				Arguments: []any{line.Number},
			})
		}
	}

	rules := snap.doc.Rules()
	if len(rules) == 0 || rules[len(rules)-1].Pattern.Text != "*" {
		if s.cfg.Individual != "" {
			actions = append(actions, CodeAction{Title: "Add catch-all rule", Command: CommandAddCatchAll, Arguments: []any{s.cfg.Individual}})
		}
	}
	return actions
}

func (s *Session) fileCodeActions(snap snapshot, uri string) []CodeAction {
	path := s.relPath(uri)
	var actions []CodeAction
	if _, _, ok := owningRuleFor(snap, s.Index(), path); !ok {
		if s.cfg.Individual != "" {
			actions = append(actions, CodeAction{
				Title:     fmt.Sprintf("Take ownership of %s as %s", path, s.cfg.Individual),
				Command:   CommandTakeOwnership,
				Arguments: []any{path, s.cfg.Individual},
			})
		}
		if s.cfg.Team != "" {
			actions = append(actions, CodeAction{
				Title:     fmt.Sprintf("Take ownership of %s as %s", path, s.cfg.Team),
				Command:   CommandTakeOwnership,
				Arguments: []any{path, s.cfg.Team},
			})
		}
	}
	return actions
}

func hasDuplicateOwner(owners []manifest.Owner) bool {
	seen := make(map[string]bool, len(owners))
	for _, o := range owners {
		canon := manifest.CanonicalOwner(o.Text)
		if seen[canon] {
			return true
		}
		seen[canon] = true
	}
	return false
}

// GotoDefinition returns the manifest location of the rule owning the
// queried non-manifest file, or nil. Inside the manifest itself, this is a
// no-op.
func (s *Session) GotoDefinition(uri string, pos Position) *Location {
	if s.isManifest(uri) {
		return nil
	}
	snap := s.snapshot()
	if snap.doc == nil {
		return nil
	}
	path := s.relPath(uri)
	lineNum, _, ok := owningRuleFor(snap, s.Index(), path)
	if !ok {
		return nil
	}
	return &Location{
		URI:   s.manifestPath,
		Range: Range{Start: Position{Line: lineNum}, End: Position{Line: lineNum}},
	}
}

// Execute runs a prepared authoring operation against the manifest at the
// given document version and returns the resulting edits. If version
// doesn't match the session's current document version, it returns
// ErrStaleVersion rather than computing an edit against document state the
// caller's view doesn't match.
func (s *Session) Execute(command string, version int, args []any) ([]authoring.Edit, error) {
	snap := s.snapshot()
	if snap.doc == nil {
		return nil, fmt.Errorf("no manifest loaded")
	}
	if version != snap.version {
		return nil, ErrStaleVersion
	}

	switch command {
	case CommandTakeOwnership:
		path, owner, err := twoStrings(args)
		if err != nil {
			return nil, err
		}
		return []authoring.Edit{authoring.TakeOwnership(snap.doc, path, owner)}, nil

	case CommandRemoveDeadRule:
		line, err := oneInt(args)
		if err != nil {
			return nil, err
		}
		return []authoring.Edit{authoring.RemoveDeadRule(snap.doc, line)}, nil

	case CommandDedupeOwners:
		line, err := oneInt(args)
		if err != nil {
			return nil, err
		}
		return []authoring.Edit{authoring.DedupeOwners(snap.doc, line)}, nil

	case CommandAddCatchAll:
		owner, err := oneString(args)
		if err != nil {
			return nil, err
		}
		edit, err := authoring.AddCatchAll(snap.doc, owner)
		if err != nil {
			return nil, err
		}
		return []authoring.Edit{edit}, nil

	case CommandRenameOwner:
		from, to, err := twoStrings(args)
		if err != nil {
			return nil, err
		}
		return authoring.RenameOwner(snap.doc, from, to), nil

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func oneString(args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("argument 0: expected string, got %T", args[0])
	}
	return s, nil
}

func oneInt(args []any) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	n, ok := args[0].(int)
	if !ok {
		return 0, fmt.Errorf("argument 0: expected int, got %T", args[0])
	}
	return n, nil
}

func twoStrings(args []any) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	a, ok := args[0].(string)
	if !ok {
		return "", "", fmt.Errorf("argument 0: expected string, got %T", args[0])
	}
	b, ok := args[1].(string)
	if !ok {
		return "", "", fmt.Errorf("argument 1: expected string, got %T", args[1])
	}
	return a, b, nil
}

// BatchDiagnostics runs the full diagnostics pass headlessly, the entry
// point the CLI's "lint" command uses. A missing or
// unreadable manifest yields a single synthetic issue instead of an
// error.
func (s *Session) BatchDiagnostics(ctx context.Context) []diagnostics.Issue {
	diagCfg := &diagnostics.Config{Overrides: s.cfg.Diagnostics}

	if err := s.EnsureManifestLoaded(ctx); err != nil {
		if issue, ok := diagnostics.EnvironmentIssue(err.Error(), diagCfg); ok {
			return []diagnostics.Issue{issue}
		}
		return nil
	}

	snap := s.snapshot()
	var status diagnostics.OwnerStatus
	if s.val != nil {
		status = s.val
	}
	return diagnostics.Compute(snap.doc, snap.table, status, diagCfg)
}

// UnownedFiles returns every indexed repository file with no owning rule,
// sorted, for the CLI's "coverage" command and for a transport that wants
// to raise file-not-owned diagnostics across a whole tree rather than one
// queried path at a time.
func (s *Session) UnownedFiles(ctx context.Context) ([]string, error) {
	if err := s.EnsureManifestLoaded(ctx); err != nil {
		return nil, err
	}
	snap := s.snapshot()
	var out []string
	for _, f := range s.Index().Files() {
		if idx, ok := snap.table.Owner[f]; !ok || idx < 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// owningRuleFor resolves the owning rule for path, preferring the
// precomputed match table (the repository index's last sweep) and falling
// back to a direct single-path replay for a path the index hasn't seen yet
// — e.g. a file mid-creation in the editor.
func owningRuleFor(snap snapshot, idx *repoindex.Index, path string) (lineNumber int, owners []manifest.Owner, ok bool) {
	if idx != nil && idx.Exists(path) && snap.table != nil {
		if rm, found := snap.table.OwningRule(path); found {
			if line := snap.doc.Line(rm.LineNumber); line != nil {
				return rm.LineNumber, line.Owners, true
			}
		}
		return 0, nil, false
	}
	return matcher.MatchPath(snap.doc, path)
}

func findRuleMatch(table *matcher.MatchTable, lineNumber int) *matcher.RuleMatch {
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

func tokenRange(line int, tok manifest.Token) Range {
	return Range{
		Start: Position{Line: line, Character: tok.StartCol},
		End:   Position{Line: line, Character: tok.EndCol},
	}
}

func ownerList(owners []manifest.Owner) string {
	names := make([]string, len(owners))
	for i, o := range owners {
		names[i] = o.Text
	}
	return strings.Join(names, ", ")
}

// ensureGitignoreEntry appends pattern to root's .gitignore if it isn't
// already present.
func ensureGitignoreEntry(root, pattern string) {
	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if err == nil && strings.Contains(string(data), pattern) {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[session] ensure gitignore entry: %v", err)
		return
	}
	defer f.Close()

	prefix := ""
	if len(data) > 0 && data[len(data)-1] != '\n' {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + pattern + "\n"); err != nil {
		log.Printf("[session] write gitignore entry: %v", err)
	}
}
