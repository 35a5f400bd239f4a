package replay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
	"github.com/seleknir/webrecorder/internal/sessionstore"
)

func newTestStore(t *testing.T, cookies []schemas.Cookie) *sessionstore.Store {
	t.Helper()
	store := sessionstore.New(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
	require.NoError(t, store.Persist(schemas.SessionState{Cookies: cookies}))
	return store
}

func TestDoAttachesSessionCookies(t *testing.T) {
	var gotCookies []*http.Cookie
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookies = r.Cookies()
	}))
	defer server.Close()

	// httptest serves on 127.0.0.1; substring domain matching picks these up.
	store := newTestStore(t, []schemas.Cookie{
		{Name: "token", Value: "abc123", Domain: "127.0.0.1"},
		{Name: "other", Value: "x", Domain: "elsewhere.example.com"},
	})

	resp, err := NewClient(store, zap.NewNop()).Do(context.Background(), http.MethodGet, server.URL+"/1/members/me", nil, "")
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, gotCookies, 1)
	assert.Equal(t, "token", gotCookies[0].Name)
	assert.Equal(t, "abc123", gotCookies[0].Value)
}

func TestDoJSONInjectsCsrfOnMutatingVerbs(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		io.WriteString(w, `{"id":"new"}`)
	}))
	defer server.Close()

	store := newTestStore(t, []schemas.Cookie{
		{Name: "dsc", Value: "csrf-token-value", Domain: "127.0.0.1"},
	})
	client := NewClient(store, zap.NewNop())

	respBody, err := client.DoJSON(context.Background(), http.MethodPost, server.URL+"/1/cards",
		map[string]interface{}{"name": "new card"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"new"}`, string(respBody))
	assert.Equal(t, "new card", gotBody["name"])
	assert.Equal(t, "csrf-token-value", gotBody["dsc"])
}

func TestDoJSONLeavesGetUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	store := newTestStore(t, nil)
	_, err := NewClient(store, zap.NewNop()).DoJSON(context.Background(), http.MethodGet, server.URL+"/1/boards", nil)
	require.NoError(t, err)
}

func TestDoJSONCallerDscWins(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	store := newTestStore(t, []schemas.Cookie{
		{Name: "dsc", Value: "store-token", Domain: "127.0.0.1"},
	})
	_, err := NewClient(store, zap.NewNop()).DoJSON(context.Background(), http.MethodPut, server.URL+"/1/cards/1",
		map[string]interface{}{"dsc": "explicit-token"})
	require.NoError(t, err)
	assert.Equal(t, "explicit-token", gotBody["dsc"])
}

func TestDoJSONErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	store := newTestStore(t, nil)
	_, err := NewClient(store, zap.NewNop()).DoJSON(context.Background(), http.MethodGet, server.URL+"/1/members/me", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
