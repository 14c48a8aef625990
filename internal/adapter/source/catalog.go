package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog declares template-driven sources loaded at startup. It is the
// runtime extension point: dropping a new entry into the catalog file adds
// a source without touching the orchestration code.
type Catalog struct {
	Sources []CatalogEntry `yaml:"sources"`
}

// CatalogEntry declares one template-driven source.
type CatalogEntry struct {
	Code         string `yaml:"code"`
	URLTemplate  string `yaml:"url_template"`
	LatestPage   string `yaml:"latest_page"`
	LinkSelector string `yaml:"link_selector"`
}

// LoadCatalog parses a sources file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, entry := range catalog.Sources {
		if entry.Code == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no code", path, i)
		}
		if entry.URLTemplate == "" && entry.LatestPage == "" {
			return nil, fmt.Errorf("catalog %s: source %s has neither url_template nor latest_page", path, entry.Code)
		}
	}
	return &catalog, nil
}

// Register installs every catalog entry into the registry. Entries with a
// built-in's code overwrite the built-in (last write wins).
func (c *Catalog) Register(reg *Registry, deps Deps) {
	for _, entry := range c.Sources {
		cfg := TemplateConfig{
			Code:         entry.Code,
			URLTemplate:  entry.URLTemplate,
			LatestPage:   entry.LatestPage,
			LinkSelector: entry.LinkSelector,
		}
		reg.Register(cfg.Code, TemplateFactory(cfg, deps))
	}
}
