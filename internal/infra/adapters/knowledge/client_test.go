package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain"
)

type kbServer struct {
	mu      sync.Mutex
	members map[string]bool
	calls   []string
}

func (s *kbServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/spaces/docs/members", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, "invite "+body["email"])
		if s.members[body["email"]] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.members[body["email"]] = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/spaces/docs/members/{email}", func(w http.ResponseWriter, r *http.Request) {
		email := r.PathValue("email")
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, r.Method+" "+email)
		if !s.members[email] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodDelete {
			delete(s.members, email)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *kbServer) {
	t.Helper()
	kb := &kbServer{members: map[string]bool{}}
	srv := httptest.NewServer(kb.handler(t))
	t.Cleanup(srv.Close)
	cfg := config.KnowledgeConfig{BaseURL: srv.URL + "/", APIKey: "secret", SpaceID: "docs"}
	return newClient(cfg, srv.Client()), kb
}

func TestClient_GrantCheckRevoke(t *testing.T) {
	ctx := context.Background()
	c, kb := newTestClient(t)

	require.NoError(t, c.Grant(ctx, "a@example.com"))
	require.NoError(t, c.Grant(ctx, "a@example.com"), "existing member is success")

	ok, err := c.Check(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Revoke(ctx, "a@example.com"))
	require.NoError(t, c.Revoke(ctx, "a@example.com"), "absent member is success")

	ok, err = c.Check(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, kb.calls, 6)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	assert.ErrorIs(t, c.Grant(ctx, "not-an-email"), domain.ErrIdentityMissing)

	unconfigured := newClient(config.KnowledgeConfig{}, http.DefaultClient)
	assert.ErrorIs(t, unconfigured.Grant(ctx, "a@example.com"), domain.ErrNotConfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	broken := newClient(config.KnowledgeConfig{BaseURL: srv.URL, SpaceID: "docs"}, srv.Client())
	assert.ErrorIs(t, broken.Grant(ctx, "a@example.com"), domain.ErrProviderFailed)
}
