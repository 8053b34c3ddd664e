// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	exportDir   = "export"
	exportLimit = 100000
)

// ExportEntry is one library entity as written to export files.
type ExportEntry struct {
	Key          string         `json:"key" yaml:"key"`
	Type         string         `json:"type" yaml:"type"`
	Ecosystem    string         `json:"ecosystem,omitempty" yaml:"ecosystem,omitempty"`
	Confidence   float64        `json:"confidence" yaml:"confidence"`
	ExtractionID string         `json:"extraction_id" yaml:"extraction_id"`
	PromotedAt   time.Time      `json:"promoted_at" yaml:"promoted_at"`
	Attributes   map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ExportYAML writes the library to export/library.yaml under the data
// directory and returns the path. It supports the same filters as Retrieve.
func (l *Library) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	entries, err := l.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return l.writeExport("library.yaml", data)
}

// ExportJSON writes the library to export/library.json under the data
// directory and returns the path. It supports the same filters as Retrieve.
func (l *Library) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	entries, err := l.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return l.writeExport("library.json", data)
}

func (l *Library) writeExport(name string, data []byte) (string, error) {
	dir := filepath.Join(l.dataDir, exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (l *Library) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	entities, err := l.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(entities))
	for i, e := range entities {
		entries[i] = ExportEntry{
			Key:          e.Key,
			Type:         string(e.Type),
			Ecosystem:    e.Ecosystem,
			Confidence:   e.Confidence,
			ExtractionID: e.ExtractionID,
			PromotedAt:   e.PromotedAt,
		}
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &entries[i].Attributes); err != nil {
				return nil, fmt.Errorf("decoding payload of %s: %w", e.Key, err)
			}
		}
	}
	return entries, nil
}
