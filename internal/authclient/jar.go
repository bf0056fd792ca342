package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/net/publicsuffix"
)

const jarFile = "cookies.json"

// JarStore persists the cookies of one API deployment to a JSON file so a
// terminal session survives between invocations.
type JarStore struct {
	path string
}

type storedJar struct {
	BaseURL string         `json:"base_url"`
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewJarStore returns a store backed by path.
func NewJarStore(path string) *JarStore {
	return &JarStore{path: path}
}

// DefaultJarPath returns ~/.tasklane/cookies.json, creating the directory.
func DefaultJarPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, ".tasklane")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create .tasklane directory: %w", err)
	}
	return filepath.Join(dir, jarFile), nil
}

// Load returns a jar seeded with the cookies saved for base. A missing file
// or a file saved for another deployment yields an empty jar.
func (s *JarStore) Load(base *url.URL) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jar, nil
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	var stored storedJar
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cookie file: %w", err)
	}
	if stored.BaseURL != base.String() {
		return jar, nil
	}
	cookies := make([]*http.Cookie, 0, len(stored.Cookies))
	for _, c := range stored.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(base, cookies)
	return jar, nil
}

// Save writes the cookies the jar holds for base.
func (s *JarStore) Save(jar http.CookieJar, base *url.URL) error {
	stored := storedJar{BaseURL: base.String()}
	for _, c := range jar.Cookies(base) {
		stored.Cookies = append(stored.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Delete removes the cookie file.
func (s *JarStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
