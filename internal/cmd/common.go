package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/go-codeowners/codeowners-ls/internal/config"
	"github.com/go-codeowners/codeowners-ls/internal/repoindex"
	"github.com/go-codeowners/codeowners-ls/internal/session"
	"github.com/go-codeowners/codeowners-ls/internal/validator"
	"github.com/mattn/go-isatty"
)

// loadConfig resolves the configuration record the way every subcommand
// does: real environment, leaving the manifest path empty when unset so
// the session falls back to config.DiscoverPath's discovery order.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newSession builds a session.Session rooted at the current working
// directory, wiring a real HTTPForge when the resolved config enables
// owner validation.
func newSession(ctx context.Context, cfg *config.Config) (*session.Session, func(), error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("getwd: %w", err)
	}

	enum := repoindex.NewDirEnumerator(root)

	var forge validator.Forge
	if cfg.ValidateOwners {
		forge = validator.NewHTTPForge(cfg.Forge.BaseURL, cfg.Forge.Token, cfg.Forge.Timeout)
	}

	sess, err := session.New(ctx, cfg, root, enum, forge)
	if err != nil {
		return nil, nil, fmt.Errorf("build session: %w", err)
	}
	return sess, sess.Shutdown, nil
}

// colorEnabled reports whether stdout is a terminal and --no-color wasn't
// passed.
func colorEnabled(noColor bool) bool {
	if noColor {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}
