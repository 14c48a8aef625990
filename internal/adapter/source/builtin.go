package source

import (
	"log/slog"
	"net/http"

	"gazeta/internal/domain"
)

// Deps carries the collaborators every adapter is built from.
type Deps struct {
	DataDir   string
	Archive   domain.ArchiveClient
	Extractor DecisionExtractor
	Client    *http.Client // index scraping and HEAD checks; nil for default
	Logger    *slog.Logger
}

// TemplateFactory builds an adapter factory from a discovery template.
func TemplateFactory(cfg TemplateConfig, deps Deps) Factory {
	return func() *Adapter {
		return &Adapter{
			Code:       cfg.Code,
			Discovery:  NewTemplateDiscovery(cfg, deps.Client),
			Downloader: NewHTTPDownloader(cfg.Code, deps.DataDir, deps.Archive, deps.Logger),
			Analyzer:   NewExtractionAnalyzer(cfg.Code, deps.Extractor, deps.Logger),
		}
	}
}

// RegisterBuiltins installs the sources shipped with the binary.
func RegisterBuiltins(reg *Registry, deps Deps) {
	tjro := TemplateConfig{
		Code:         "tjro",
		URLTemplate:  "https://www.tjro.jus.br/diario_oficial/recuperar-diario.php?data={date}",
		LatestPage:   "https://www.tjro.jus.br/diario_oficial/",
		LinkSelector: `a[href$=".pdf"]`,
	}
	reg.Register(tjro.Code, TemplateFactory(tjro, deps))
}
