package sessionstore

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/seleknir/webrecorder/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Store owns the persisted session document: the cookie jar for the
// authenticated browsing context plus the CSRF token lookup derived from it.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a store backed by the given session file path.
func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.Named("sessionstore"),
	}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a persisted session is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Persist serializes the session state, overwriting any prior session. Every
// cookie's SameSite attribute is normalized before it hits disk so consumers
// only ever see canonical values. The write is atomic (temp file + rename).
func (s *Store) Persist(state schemas.SessionState) error {
	for i := range state.Cookies {
		state.Cookies[i].SameSite = string(NormalizeSameSite(state.Cookies[i].SameSite))
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := jsonAPI.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize session file: %w", err)
	}

	s.logger.Info("Session persisted.", zap.String("path", s.path), zap.Int("cookies", len(state.Cookies)))
	return nil
}

// Load reads the persisted session. SameSite values are normalized on the way
// in as well, so documents written by other producers are safe to consume.
func (s *Store) Load() (schemas.SessionState, error) {
	var state schemas.SessionState

	data, err := os.ReadFile(s.path)
	if err != nil {
		return state, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := jsonAPI.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}

	for i := range state.Cookies {
		state.Cookies[i].SameSite = string(NormalizeSameSite(state.Cookies[i].SameSite))
	}
	return state, nil
}

// LookupCookies returns every stored cookie applicable to the target URL's
// host as a name to value map. A cookie matches when its domain is a
// suffix-or-superstring of the host after stripping a single leading dot from
// both sides, so ".trello.com" matches "trello.com" and "www.trello.com", and
// vice versa. A missing session yields an empty map, not an error.
func (s *Store) LookupCookies(rawURL string) (map[string]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lookup URL: %w", err)
	}
	host := strings.TrimPrefix(u.Hostname(), ".")

	cookies := make(map[string]string)
	if !s.Exists() {
		return cookies, nil
	}

	state, err := s.Load()
	if err != nil {
		return nil, err
	}

	for _, c := range state.Cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == "" {
			continue
		}
		if strings.Contains(host, domain) || strings.Contains(domain, host) {
			cookies[c.Name] = c.Value
		}
	}
	return cookies, nil
}

// CsrfToken returns the value of the cookie named "dsc", or the empty string
// when the cookie or the session itself is absent.
func (s *Store) CsrfToken() string {
	if !s.Exists() {
		return ""
	}
	state, err := s.Load()
	if err != nil {
		s.logger.Warn("Could not load session for CSRF lookup.", zap.Error(err))
		return ""
	}
	for _, c := range state.Cookies {
		if c.Name == schemas.CsrfCookieName {
			return c.Value
		}
	}
	return ""
}

// DriverCookies returns the stored cookies prepared for driver-level
// injection: the url field is stripped, since drivers reject cookies that
// carry both url and domain.
func (s *Store) DriverCookies() ([]schemas.Cookie, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	cookies := make([]schemas.Cookie, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		c.URL = ""
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// NormalizeSameSite maps raw browser SameSite values onto the three canonical
// ones. Browser-internal values like "unspecified" and "no_restriction", the
// already-canonical "None", and anything unrecognized all map to None.
func NormalizeSameSite(raw string) schemas.SameSite {
	switch raw {
	case "strict", string(schemas.SameSiteStrict):
		return schemas.SameSiteStrict
	case "lax", string(schemas.SameSiteLax):
		return schemas.SameSiteLax
	default:
		return schemas.SameSiteNone
	}
}
