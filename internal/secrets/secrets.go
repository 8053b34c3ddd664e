// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file in the directory is one secret: the filename is the key and the
// trimmed file contents are the value.
//
// Known keys: crawler-api-token.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Lizo-RoadTown/proves-curation-dashboard-sub002/internal/logging"
)

// DefaultDir is where the CLI looks for secrets.
const DefaultDir = ".secrets"

// CrawlerAPIToken is the bearer token for the discovery crawler service.
const CrawlerAPIToken = "crawler-api-token"

// Secrets maps key names to values.
type Secrets map[string]string

// Lookup returns the value for key and whether it was set.
func (s Secrets) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Load reads all files in dir. A missing directory is not an error and
// yields an empty set. Unreadable files are logged and skipped; dotfiles
// and empty files are ignored.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	log := logging.OrNop(logger)
	secrets := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("secret not readable", zap.String("key", name), zap.Error(err))
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}
