// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of
// plain-text files. Each file in the directory represents one secret:
// the filename is the key name and the file contents (trimmed) are the
// value.
//
// Supported key files: brave-search-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BraveSearchAPIKey is the key file holding the search provider token.
const BraveSearchAPIKey = "brave-search-api-key"

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory or missing files are not errors; Load
// returns an empty map. Unreadable files produce a warning on stderr
// but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Resolve returns the secret for key from loaded, falling back to the
// environment variable envVar. An empty string means the secret is
// unset in both places.
func Resolve(loaded map[string]string, key, envVar string) string {
	if v, ok := loaded[key]; ok && v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envVar))
}
