package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gazeta/internal/domain"
)

// DecisionExtractor is the boundary to the AI extraction service.
type DecisionExtractor interface {
	Extract(ctx context.Context, sourceCode string, content []byte) ([]domain.Decision, error)
}

// ExtractionAnalyzer reads a downloaded gazette and runs the extraction
// service over its content.
type ExtractionAnalyzer struct {
	code      string
	extractor DecisionExtractor
	logger    *slog.Logger
}

// NewExtractionAnalyzer builds the analyzer capability for one source.
func NewExtractionAnalyzer(code string, extractor DecisionExtractor, logger *slog.Logger) *ExtractionAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionAnalyzer{code: code, extractor: extractor, logger: logger.With("source", code)}
}

// Analyze extracts decision records from the gazette's local copy.
func (a *ExtractionAnalyzer) Analyze(ctx context.Context, d *domain.Diario) ([]domain.Decision, error) {
	if d.LocalPath == "" {
		return nil, fmt.Errorf("source %s: gazette has no local copy", a.code)
	}
	content, err := os.ReadFile(d.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("read gazette %s: %w", d.LocalPath, err)
	}

	decisions, err := a.extractor.Extract(ctx, a.code, content)
	if err != nil {
		return nil, fmt.Errorf("extract decisions: %w", err)
	}
	a.logger.Info("gazette analyzed", "diario", d.ID, "decisions", len(decisions))
	return decisions, nil
}
