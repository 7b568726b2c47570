// Package validator checks owner tokens against a forge (GitHub, GitLab,
// or similar) and caches the results so diagnostics never block on a
// network round trip. Lookups read an in-memory snapshot; a background
// worker keeps that snapshot fresh and persists it to SQLite across
// restarts.
package validator

import (
	"context"
	"time"

	"github.com/go-codeowners/codeowners-ls/internal/manifest"
)

// Status is the outcome of checking a single owner token against the forge.
type Status int

const (
	// Unknown means the forge has given no conclusive answer: either no
	// lookup has completed yet (FetchedAt is zero) or the lookup was
	// inconclusive. Diagnostics reports unknown-owner only for the first
	// case.
	Unknown Status = iota
	Valid
	Invalid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Record is the cached validation result for one canonical owner token.
type Record struct {
	Owner       string // canonical form, see manifest.CanonicalOwner
	Status      Status
	DisplayName string
	Reason      string // why the status is Invalid or an inconclusive Unknown
	FetchedAt   time.Time
}

// Stale reports whether this record was fetched before cutoff and should
// be refreshed.
func (r Record) Stale(cutoff time.Time) bool {
	return r.FetchedAt.Before(cutoff)
}

// Forge resolves owner tokens against a code-hosting provider. HTTPForge is
// the production implementation; tests substitute a fake.
type Forge interface {
	// ResolveUsers resolves @handle-form owner tokens in a single batched
	// call where the provider supports it.
	ResolveUsers(ctx context.Context, handles []string) (map[string]Record, error)

	// ResolveTeams resolves @org/team-form owner tokens.
	ResolveTeams(ctx context.Context, teams []string) (map[string]Record, error)

	// ResolveEmail resolves a single email-form owner token; most forges
	// have no batch endpoint for organization membership by email.
	ResolveEmail(ctx context.Context, email string) (Record, error)
}

// classify groups raw owner tokens by their manifest.OwnerKind so a
// refresh batch can call the right Forge method for each.
func classify(owners []string) (users, teams, emails []string) {
	for _, o := range owners {
		switch manifest.ClassifyOwner(o) {
		case manifest.OwnerUser:
			users = append(users, o)
		case manifest.OwnerTeam:
			teams = append(teams, o)
		case manifest.OwnerEmail:
			emails = append(emails, o)
		}
	}
	return users, teams, emails
}
