package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "featureserv.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
collections:
  - id: obs
    title: Observations
    description: |
      Weather **observations** from surface stations.
    keywords: [weather, observations]
    provider:
      name: mongodb
      data: mongodb://localhost:27017/testdb
      collection: obs
      datetime_field: timestamp
  - id: lakes
    title: Large Lakes
    provider:
      name: sqlite
      data: /data/lakes.db
`

func TestLoadCollections(t *testing.T) {
	path := writeConfig(t, validConfig)
	collections, err := LoadCollections(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(collections))
	}

	obs := collections[0]
	if obs.ID != "obs" || obs.Title != "Observations" {
		t.Fatalf("wrong first collection: %+v", obs)
	}
	if !strings.Contains(obs.Description, "**observations**") {
		t.Fatalf("description not preserved: %q", obs.Description)
	}
	if len(obs.Keywords) != 2 || obs.Keywords[0] != "weather" {
		t.Fatalf("wrong keywords: %v", obs.Keywords)
	}

	def := obs.Provider.Definition()
	if def.Name != "mongodb" || def.Collection != "obs" {
		t.Fatalf("wrong definition: %+v", def)
	}
	if def.DatetimeProperty() != "timestamp" {
		t.Fatalf("datetime field not carried: %q", def.DatetimeProperty())
	}

	if collections[1].Provider.Definition().DatetimeProperty() != "datetime" {
		t.Fatal("default datetime property expected")
	}
}

func TestLoadCollectionsMissingFile(t *testing.T) {
	if _, err := LoadCollections(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCollectionsValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty",
			content: "collections: []\n",
			wantErr: "declares no collections",
		},
		{
			name: "missing id",
			content: `
collections:
  - title: No ID
    provider: {name: sqlite, data: /tmp/x.db}
`,
			wantErr: "has no id",
		},
		{
			name: "duplicate id",
			content: `
collections:
  - id: a
    provider: {name: sqlite, data: /tmp/x.db}
  - id: a
    provider: {name: sqlite, data: /tmp/y.db}
`,
			wantErr: "duplicate collection id",
		},
		{
			name: "missing provider name",
			content: `
collections:
  - id: a
    provider: {data: /tmp/x.db}
`,
			wantErr: "no provider name",
		},
		{
			name: "missing data source",
			content: `
collections:
  - id: a
    provider: {name: sqlite}
`,
			wantErr: "no provider data source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadCollections(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
