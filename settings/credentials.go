// Package settings provides persistent storage for resxsync user
// settings, currently the backend API tokens.
//
// Tokens are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/resxsync/  (default: ~/.local/share/resxsync/)
//
// auth.json is a JSON object keyed by backend host, so tokens for an
// on-premise instance and the hosted service can coexist:
//
//	{
//	  "api.openlocalize.io": {"token": "..."},
//	  "translate.corp.internal": {"token": "..."}
//	}
//
// File permissions are 0600 (owner read/write only).
//
// Lookup order for tokens (highest priority first):
//  1. --token flag
//  2. RESXSYNC_TOKEN environment variable
//  3. .env file in the project root
//  4. This store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDirName = "resxsync"
	fileName    = "auth.json"
)

// Info is the per-host entry stored in auth.json.
type Info struct {
	// Token is the backend API token.
	Token string `json:"token"`
}

// Store holds all stored tokens, keyed by backend host.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for resxsync.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the resxsync data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the token store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return make(Store)
	}

	if store == nil {
		return make(Store)
	}

	return store
}

// Save writes the token store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tokens: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// GetToken returns the stored token for a backend host, or "" if none.
func GetToken(host string) string {
	store := Load()
	if info := store[host]; info != nil {
		return info.Token
	}
	return ""
}

// SetToken stores a token for a backend host (upsert).
func SetToken(host, token string) error {
	store := Load()
	store[host] = &Info{Token: token}
	return Save(store)
}

// Remove deletes the token for a backend host.
func Remove(host string) error {
	store := Load()
	if _, ok := store[host]; !ok {
		return nil // Nothing to delete
	}
	delete(store, host)
	return Save(store)
}

// RemoveAll deletes the auth file entirely.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Hosts returns the hosts with a stored token.
func Hosts() []string {
	store := Load()
	hosts := make([]string, 0, len(store))
	for h := range store {
		hosts = append(hosts, h)
	}
	return hosts
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskToken renders a token safe for terminal output: first four and last
// four characters with the middle elided. Short tokens are fully masked.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}
