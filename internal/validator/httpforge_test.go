package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockForgeServer is a path-routed httptest server serving the REST
// user/team endpoints HTTPForge calls.
type mockForgeServer struct {
	server *httptest.Server

	users map[string]forgeUser // login -> user, absent means 404
	teams map[string]forgeUser // "org/slug" -> team, absent means 404

	statusOverride map[string]int // path -> forced HTTP status, takes precedence

	requests []string
}

func newMockForgeServer() *mockForgeServer {
	m := &mockForgeServer{
		users: make(map[string]forgeUser),
		teams: make(map[string]forgeUser),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockForgeServer) URL() string { return m.server.URL }
func (m *mockForgeServer) Close()      { m.server.Close() }

func (m *mockForgeServer) handle(w http.ResponseWriter, r *http.Request) {
	m.requests = append(m.requests, r.URL.Path)

	if status, ok := m.statusOverride[r.URL.Path]; ok {
		http.Error(w, "forced status", status)
		return
	}

	switch {
	case len(r.URL.Path) > len("/users/") && r.URL.Path[:len("/users/")] == "/users/":
		login := r.URL.Path[len("/users/"):]
		u, ok := m.users[login]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, u)
	case len(r.URL.Path) > len("/orgs/"):
		// /orgs/{org}/teams/{slug}
		var org, slug string
		if n, err := splitOrgTeamPath(r.URL.Path); err == nil {
			org, slug = n[0], n[1]
		}
		team, ok := m.teams[org+"/"+slug]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, team)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func splitOrgTeamPath(path string) ([2]string, error) {
	// path like "/orgs/acme/teams/backend"
	const prefix = "/orgs/"
	rest := path[len(prefix):]
	var org, slug string
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			org = rest[:i]
			const mid = "/teams/"
			if len(rest) >= i+len(mid) && rest[i:i+len(mid)] == mid {
				slug = rest[i+len(mid):]
			}
			break
		}
	}
	return [2]string{org, slug}, nil
}

func TestHTTPForgeResolveUsers(t *testing.T) {
	t.Parallel()

	mock := newMockForgeServer()
	defer mock.Close()
	mock.users["alice"] = forgeUser{Login: "alice", Name: "Alice A.", Type: "User"}

	forge := NewHTTPForge(mock.URL(), "", 0)
	got, err := forge.ResolveUsers(context.Background(), []string{"@alice", "@nobody"})
	if err != nil {
		t.Fatalf("ResolveUsers() error: %v", err)
	}

	alice := got["@alice"]
	if alice.Status != Valid || alice.DisplayName != "Alice A." {
		t.Errorf("ResolveUsers()[@alice] = %+v, want Valid Alice A.", alice)
	}

	nobody := got["@nobody"]
	if nobody.Status != Invalid {
		t.Errorf("ResolveUsers()[@nobody].Status = %v, want Invalid", nobody.Status)
	}
}

func TestHTTPForgeResolveTeams(t *testing.T) {
	t.Parallel()

	mock := newMockForgeServer()
	defer mock.Close()
	mock.teams["acme/backend"] = forgeUser{Login: "backend", Name: "Backend Team"}

	forge := NewHTTPForge(mock.URL(), "", 0)
	got, err := forge.ResolveTeams(context.Background(), []string{"@acme/backend", "@acme/ghosts"})
	if err != nil {
		t.Fatalf("ResolveTeams() error: %v", err)
	}

	backend := got["@acme/backend"]
	if backend.Status != Valid {
		t.Errorf("ResolveTeams()[@acme/backend].Status = %v, want Valid", backend.Status)
	}

	ghosts := got["@acme/ghosts"]
	if ghosts.Status != Invalid {
		t.Errorf("ResolveTeams()[@acme/ghosts].Status = %v, want Invalid", ghosts.Status)
	}
}

func TestHTTPForgeResolveTeamsMalformedToken(t *testing.T) {
	t.Parallel()

	mock := newMockForgeServer()
	defer mock.Close()

	forge := NewHTTPForge(mock.URL(), "", 0)
	got, err := forge.ResolveTeams(context.Background(), []string{"@not-a-team-token"})
	if err != nil {
		t.Fatalf("ResolveTeams() error: %v", err)
	}
	r := got["@not-a-team-token"]
	if r.Status != Invalid || r.Reason == "" {
		t.Errorf("ResolveTeams()[malformed] = %+v, want Invalid with reason", r)
	}
}

func TestHTTPForgeResolveUsersTransientStatusKeepsNoRecord(t *testing.T) {
	t.Parallel()

	mock := newMockForgeServer()
	defer mock.Close()
	mock.statusOverride = map[string]int{"/users/alice": http.StatusTooManyRequests}

	forge := NewHTTPForge(mock.URL(), "", 0)
	got, err := forge.ResolveUsers(context.Background(), []string{"@alice"})
	if err != nil {
		t.Fatalf("ResolveUsers() error: %v", err)
	}
	if _, ok := got["@alice"]; ok {
		t.Errorf("ResolveUsers() returned a record for a transient forge status, want none: %+v", got["@alice"])
	}
}

func TestTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, c := range cases {
		if got := transientHTTPStatus(c.status); got != c.want {
			t.Errorf("transientHTTPStatus(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestHTTPForgeResolveEmailAlwaysUnknown(t *testing.T) {
	t.Parallel()

	forge := NewHTTPForge("https://example.invalid", "", 0)
	r, err := forge.ResolveEmail(context.Background(), "person@example.com")
	if err != nil {
		t.Fatalf("ResolveEmail() error: %v", err)
	}
	if r.Status != Unknown {
		t.Errorf("ResolveEmail().Status = %v, want Unknown", r.Status)
	}
}
