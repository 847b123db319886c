package storage

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/apistore/pkg/search"
)

// catalogFile is the YAML (or JSON) document loaded by the indexer:
//
//	apis:
//	  - id: 7f6c...
//	    provider: alice
//	    name: PetStore
//	    context: /petstore
//	    version: 1.0.0
//	    lifecycle_status: PUBLISHED
//	    visibility: RESTRICTED
//	    visible_roles: [dev]
//	    tags: [pets]
//	    operations:
//	      - {method: GET, url_pattern: /pets}
type catalogFile struct {
	APIs []catalogEntry `yaml:"apis"`
}

type catalogEntry struct {
	ID                  string           `yaml:"id"`
	Provider            string           `yaml:"provider"`
	Name                string           `yaml:"name"`
	Context             string           `yaml:"context"`
	Version             string           `yaml:"version"`
	Description         string           `yaml:"description"`
	LifecycleStatus     string           `yaml:"lifecycle_status"`
	LifecycleInstanceID string           `yaml:"lifecycle_instance_id"`
	WorkflowStatus      string           `yaml:"workflow_status"`
	Type                string           `yaml:"type"`
	Visibility          string           `yaml:"visibility"`
	VisibleRoles        []string         `yaml:"visible_roles"`
	Groups              []string         `yaml:"groups"`
	Tags                []string         `yaml:"tags"`
	Operations          []operationEntry `yaml:"operations"`
}

type operationEntry struct {
	Method     string `yaml:"method"`
	URLPattern string `yaml:"url_pattern"`
}

// ReadCatalogFile decodes API records from a catalog file. Unknown fields and
// duplicate ids are rejected; records are otherwise validated by PutAPI.
func ReadCatalogFile(r io.Reader) ([]*APIRecord, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	seen := make(map[string]bool, len(file.APIs))
	records := make([]*APIRecord, 0, len(file.APIs))
	for i, e := range file.APIs {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %s", i, e.ID)
		}
		seen[e.ID] = true

		rec := &APIRecord{
			APISummary: search.APISummary{
				ID:                  e.ID,
				Provider:            e.Provider,
				Name:                e.Name,
				Context:             e.Context,
				Version:             e.Version,
				Description:         e.Description,
				LifecycleStatus:     e.LifecycleStatus,
				LifecycleInstanceID: e.LifecycleInstanceID,
				WorkflowStatus:      e.WorkflowStatus,
			},
			Type:         search.APIType(e.Type),
			Visibility:   e.Visibility,
			VisibleRoles: e.VisibleRoles,
			Groups:       e.Groups,
			Tags:         e.Tags,
		}
		for _, op := range e.Operations {
			rec.Operations = append(rec.Operations, Operation{Method: op.Method, URLPattern: op.URLPattern})
		}
		records = append(records, rec)
	}

	return records, nil
}
