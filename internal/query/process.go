// Package query prepares user queries for retrieval and wraps the document
// index's retrieval capabilities with the pipeline's logging conventions.
package query

import (
	"context"
	"log/slog"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/store"
)

var queryStopWords = store.BuildStopWordMap(store.DefaultEnglishStopWords)

// NormalizeQuery lowercases and tokenizes the raw query, drops stop words
// and stems what remains. The normalized form, not the raw query, is what
// reaches the keyword backend.
func NormalizeQuery(raw string) string {
	tokens := store.FilterStopWords(store.TokenizeText(raw), queryStopWords)
	stemmed := make([]string, len(tokens))
	for i, token := range tokens {
		stemmed[i] = porterstemmer.StemString(token)
	}
	return strings.Join(stemmed, " ")
}

// Retriever runs normalized queries against a document index.
type Retriever struct {
	index  docindex.DocumentIndex
	logger *slog.Logger
}

// NewRetriever wraps an index. A nil logger falls back to slog.Default().
func NewRetriever(index docindex.DocumentIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, logger: logger}
}

// RetrieveKeyword normalizes the query and runs a keyword search. The found
// flag distinguishes "no matches" from an error; zero hits is logged as a
// warning but is never a failure.
func (r *Retriever) RetrieveKeyword(ctx context.Context, rawQuery string, filters docindex.Filters, limit int) ([]chunk.InferenceChunk, bool, error) {
	normalized := NormalizeQuery(rawQuery)
	if normalized == "" {
		normalized = rawQuery
	}

	results, err := r.index.KeywordRetrieval(ctx, normalized, filters, limit)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		r.logger.Warn("keyword search returned no results",
			"raw_query", rawQuery,
			"normalized_query", normalized,
			"filters", describeFilters(filters))
		return nil, false, nil
	}
	return results, true, nil
}

// RetrieveSemantic runs a vector search with the raw query; embedding models
// handle their own normalization.
func (r *Retriever) RetrieveSemantic(ctx context.Context, rawQuery string, filters docindex.Filters, limit int) ([]chunk.InferenceChunk, bool, error) {
	results, err := r.index.SemanticRetrieval(ctx, rawQuery, filters, limit)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		r.logger.Warn("semantic search returned no results",
			"raw_query", rawQuery,
			"filters", describeFilters(filters))
		return nil, false, nil
	}
	return results, true, nil
}

// RetrieveHybrid fuses keyword and semantic retrieval over the raw query;
// the keyword index's analyzer applies its own token normalization.
func (r *Retriever) RetrieveHybrid(ctx context.Context, rawQuery string, filters docindex.Filters, limit int) ([]chunk.InferenceChunk, bool, error) {
	results, err := r.index.HybridRetrieval(ctx, rawQuery, filters, limit)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		r.logger.Warn("hybrid search returned no results",
			"raw_query", rawQuery,
			"filters", describeFilters(filters))
		return nil, false, nil
	}
	return results, true, nil
}

func describeFilters(filters docindex.Filters) string {
	var parts []string
	if filters.AllowedUsers != nil {
		parts = append(parts, "users="+strings.Join(filters.AllowedUsers, ","))
	}
	if len(filters.Sources) > 0 {
		sources := make([]string, len(filters.Sources))
		for i, source := range filters.Sources {
			sources[i] = string(source)
		}
		parts = append(parts, "sources="+strings.Join(sources, ","))
	}
	if filters.TimeCutoff != nil {
		parts = append(parts, "cutoff="+filters.TimeCutoff.Format("2006-01-02"))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
