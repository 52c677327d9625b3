package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://decksync.local/schemas/"

// Names of the embedded response schemas.
const (
	schemaLogin         = "login.json"
	schemaRefresh       = "refresh.json"
	schemaDecks         = "decks.json"
	schemaDownload      = "download.json"
	schemaBatchDownload = "batch_download.json"
	schemaChangelog     = "changelog.json"
	schemaSyncProgress  = "sync_progress.json"
	schemaNotifications = "notifications.json"
)

type schemaSet map[string]*jsonschema.Schema

func compileSchemas() (schemaSet, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(schemaBase+e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}
	set := make(schemaSet, len(entries))
	for _, e := range entries {
		s, err := compiler.Compile(schemaBase + e.Name())
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", e.Name(), err)
		}
		set[e.Name()] = s
	}
	return set, nil
}

// validate checks raw against the named schema.
func (s schemaSet) validate(name string, raw []byte) error {
	sch, ok := s[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return sch.Validate(doc)
}
