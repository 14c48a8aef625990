package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - code: tjsp
    url_template: https://dje.tjsp.jus.br/cdje/{date}.pdf
  - code: tjba
    latest_page: https://www.tjba.jus.br/diario/
    link_selector: a.edicao
`)

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(catalog.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(catalog.Sources))
	}
	if catalog.Sources[0].Code != "tjsp" || catalog.Sources[1].LinkSelector != "a.edicao" {
		t.Errorf("catalog mismatch: %+v", catalog.Sources)
	}
}

func TestLoadCatalogRejectsEntryWithoutCode(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - url_template: https://x.jus.br/{date}.pdf
`)
	if _, err := LoadCatalog(path); err == nil {
		t.Error("expected error for entry without code")
	}
}

func TestLoadCatalogRejectsEmptyEntry(t *testing.T) {
	path := writeCatalog(t, `
sources:
  - code: tjxx
`)
	if _, err := LoadCatalog(path); err == nil {
		t.Error("expected error for entry without template or index page")
	}
}

func TestCatalogRegisterExtendsRegistry(t *testing.T) {
	reg := NewRegistry()
	deps := Deps{DataDir: t.TempDir(), Logger: discardLogger()}
	RegisterBuiltins(reg, deps)

	catalog := &Catalog{Sources: []CatalogEntry{
		{Code: "tjsp", URLTemplate: "https://dje.tjsp.jus.br/cdje/{date}.pdf"},
	}}
	catalog.Register(reg, deps)

	codes := reg.SupportedCodes()
	if len(codes) != 2 {
		t.Fatalf("codes = %v, want builtin + catalog source", codes)
	}
	if _, err := reg.Get("tjsp"); err != nil {
		t.Errorf("Get(tjsp): %v", err)
	}
}
