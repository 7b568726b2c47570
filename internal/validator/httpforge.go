package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var debugRateLimit = os.Getenv("CODEOWNERSLS_DEBUG_RATE") != ""

// HTTPForge resolves owner tokens against a forge's REST API. Without a
// token the rate stays well under GitHub's unauthenticated limit;
// NewHTTPForge raises it when a token is configured.
type HTTPForge struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPForge constructs an HTTPForge pointed at baseURL (e.g.
// "https://api.github.com"), authenticating with token when non-empty.
// A timeout of zero falls back to 15 seconds.
func NewHTTPForge(baseURL, token string, timeout time.Duration) *HTTPForge {
	limit := rate.Limit(1) // 1 req/s unauthenticated
	burst := 5
	if token != "" {
		limit = rate.Limit(10)
		burst = 30
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPForge{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type forgeUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Type  string `json:"type"`
}

func (f *HTTPForge) get(ctx context.Context, path string, out any) (int, error) {
	if tokens := f.limiter.Tokens(); tokens <= 0 {
		log.Printf("[validator] token bucket empty, request to %s will block until tokens replenish", path)
	}
	if debugRateLimit {
		reservation := f.limiter.Reserve()
		if delay := reservation.Delay(); delay > time.Millisecond {
			log.Printf("[validator] debug: %s reservation delay %v", path, delay)
		}
		reservation.Cancel()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// ResolveUsers checks each handle with a GET /users/{handle} call. The
// forge's user-lookup endpoint has no batch form, so these happen
// sequentially; the rate limiter, not a worker pool, bounds throughput.
func (f *HTTPForge) ResolveUsers(ctx context.Context, handles []string) (map[string]Record, error) {
	out := make(map[string]Record, len(handles))
	for _, h := range handles {
		login := strings.TrimPrefix(h, "@")
		var user forgeUser
		status, err := f.get(ctx, "/users/"+login, &user)
		if err != nil {
			return out, err
		}
		if transientHTTPStatus(status) {
			log.Printf("[validator] transient forge status %d resolving %s, keeping previous record", status, h)
			continue
		}
		out[h] = userStatusRecord(h, status, user)
	}
	return out, nil
}

// ResolveTeams checks each "@org/team" token with GET /orgs/{org}/teams/{slug}.
func (f *HTTPForge) ResolveTeams(ctx context.Context, teams []string) (map[string]Record, error) {
	out := make(map[string]Record, len(teams))
	for _, t := range teams {
		org, slug, ok := strings.Cut(strings.TrimPrefix(t, "@"), "/")
		if !ok {
			out[t] = Record{Owner: t, Status: Invalid, Reason: "malformed team token", FetchedAt: time.Now()}
			continue
		}
		var team forgeUser
		status, err := f.get(ctx, "/orgs/"+org+"/teams/"+slug, &team)
		if err != nil {
			return out, err
		}
		if transientHTTPStatus(status) {
			log.Printf("[validator] transient forge status %d resolving %s, keeping previous record", status, t)
			continue
		}
		out[t] = userStatusRecord(t, status, team)
	}
	return out, nil
}

// ResolveEmail cannot be checked against the forge's public API (no
// reverse email lookup without org-membership scopes), so it always
// reports Unknown rather than a false Invalid.
func (f *HTTPForge) ResolveEmail(ctx context.Context, email string) (Record, error) {
	return Record{Owner: email, Status: Unknown, FetchedAt: time.Now()}, nil
}

func userStatusRecord(owner string, httpStatus int, u forgeUser) Record {
	now := time.Now()
	switch httpStatus {
	case http.StatusOK:
		name := u.Name
		if name == "" {
			name = u.Login
		}
		return Record{Owner: owner, Status: Valid, DisplayName: name, FetchedAt: now}
	case http.StatusNotFound:
		return Record{Owner: owner, Status: Invalid, Reason: "not found on forge", FetchedAt: now}
	default:
		return Record{Owner: owner, Status: Unknown, Reason: fmt.Sprintf("forge returned HTTP %d", httpStatus), FetchedAt: now}
	}
}

// transientHTTPStatus reports whether httpStatus reflects a forge hiccup
// (rate limiting, maintenance, an overloaded server) rather than a
// conclusive answer about the owner token. Callers must not let a
// transient status demote or overwrite a previously cached Valid or
// Invalid record — the caller drops the lookup and leaves the prior record
// in place instead.
func transientHTTPStatus(httpStatus int) bool {
	switch httpStatus {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return true
	}
	return httpStatus >= http.StatusInternalServerError
}
