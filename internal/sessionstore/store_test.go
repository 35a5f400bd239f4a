package sessionstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
}

func trelloSession() schemas.SessionState {
	return schemas.SessionState{
		Cookies: []schemas.Cookie{
			{Name: "token", Value: "secret-token", Domain: ".trello.com", SameSite: "no_restriction"},
			{Name: "dsc", Value: "csrf-value", Domain: "trello.com", SameSite: "lax"},
			{Name: "other", Value: "nope", Domain: "other.com", SameSite: "strict"},
		},
	}
}

func TestNormalizeSameSite(t *testing.T) {
	for _, raw := range []string{"unspecified", "no_restriction", "None", "weird-value", ""} {
		assert.Equal(t, schemas.SameSiteNone, NormalizeSameSite(raw), "input %q", raw)
	}
	assert.Equal(t, schemas.SameSiteStrict, NormalizeSameSite("strict"))
	assert.Equal(t, schemas.SameSiteLax, NormalizeSameSite("lax"))

	// Already-canonical values survive a second pass.
	assert.Equal(t, schemas.SameSiteStrict, NormalizeSameSite(string(schemas.SameSiteStrict)))
	assert.Equal(t, schemas.SameSiteLax, NormalizeSameSite(string(schemas.SameSiteLax)))
}

func TestPersistAndLoadNormalizes(t *testing.T) {
	s := newTestStore(t)
	require.False(t, s.Exists())

	require.NoError(t, s.Persist(trelloSession()))
	require.True(t, s.Exists())

	state, err := s.Load()
	require.NoError(t, err)
	require.Len(t, state.Cookies, 3)
	assert.Equal(t, "None", state.Cookies[0].SameSite)
	assert.Equal(t, "Lax", state.Cookies[1].SameSite)
	assert.Equal(t, "Strict", state.Cookies[2].SameSite)
}

func TestPersistOverwritesPriorSession(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Persist(trelloSession()))
	require.NoError(t, s.Persist(schemas.SessionState{
		Cookies: []schemas.Cookie{{Name: "only", Value: "v", Domain: "trello.com"}},
	}))

	state, err := s.Load()
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "only", state.Cookies[0].Name)
}

func TestLookupCookies(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Persist(trelloSession()))

	t.Run("bare host matches dotted domain", func(t *testing.T) {
		cookies, err := s.LookupCookies("https://trello.com/1/x")
		require.NoError(t, err)
		assert.Equal(t, "secret-token", cookies["token"])
		assert.Equal(t, "csrf-value", cookies["dsc"])
		assert.NotContains(t, cookies, "other")
	})

	t.Run("subdomain host matches dotted domain", func(t *testing.T) {
		cookies, err := s.LookupCookies("https://www.trello.com/x")
		require.NoError(t, err)
		assert.Equal(t, "secret-token", cookies["token"])
	})

	t.Run("unrelated domain is excluded", func(t *testing.T) {
		cookies, err := s.LookupCookies("https://example.com/")
		require.NoError(t, err)
		assert.Empty(t, cookies)
	})

	t.Run("missing session yields empty map", func(t *testing.T) {
		empty := newTestStore(t)
		cookies, err := empty.LookupCookies("https://trello.com/")
		require.NoError(t, err)
		assert.Empty(t, cookies)
	})
}

func TestCsrfToken(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "", s.CsrfToken(), "no session means empty token")

	require.NoError(t, s.Persist(trelloSession()))
	assert.Equal(t, "csrf-value", s.CsrfToken())

	require.NoError(t, s.Persist(schemas.SessionState{
		Cookies: []schemas.Cookie{{Name: "token", Value: "x", Domain: "trello.com"}},
	}))
	assert.Equal(t, "", s.CsrfToken(), "absent dsc cookie means empty token")
}

func TestDriverCookiesStripURLField(t *testing.T) {
	s := newTestStore(t)
	state := trelloSession()
	state.Cookies[0].URL = "https://trello.com/"
	require.NoError(t, s.Persist(state))

	cookies, err := s.DriverCookies()
	require.NoError(t, err)
	for _, c := range cookies {
		assert.Empty(t, c.URL)
	}
	assert.Len(t, cookies, 3)
}

func TestLoadCorruptSession(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{broken"), 0o600))

	_, err := s.Load()
	assert.Error(t, err)
	assert.Equal(t, "", s.CsrfToken(), "corrupt session degrades to empty token")
}
