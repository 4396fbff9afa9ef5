package cmd

import (
	"fmt"
	"log/slog"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/config"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/dynconfig"
	"github.com/quillindex/quill/internal/embed"
	"github.com/quillindex/quill/internal/pipeline"
	"github.com/quillindex/quill/internal/store"
)

// app bundles the wired components every command works with.
type app struct {
	cfg      *config.Config
	index    *docindex.LocalIndex
	meta     store.MetadataStore
	pipe     *pipeline.Pipeline
	dynStore *dynconfig.FileStore
}

// openApp loads configuration and opens the index and its pipeline.
func openApp() (*app, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(), cfg.Embeddings.CacheSize)

	index, err := docindex.Open(docindex.Config{
		DataDir:  cfg.Paths.DataDir,
		Embedder: embedder,
		Weights: docindex.Weights{
			Keyword:  cfg.Search.KeywordWeight,
			Semantic: cfg.Search.SemanticWeight,
		},
		RRFK:           cfg.Search.RRFConstant,
		DistanceCutoff: float32(cfg.Search.DistanceCutoff),
		Logger:         slog.Default(),
	})
	if err != nil {
		return nil, err
	}

	chunker := chunk.NewChunkerWithOptions(chunk.Options{ChunkSize: cfg.Chunking.ChunkSize})
	chunkEmbedder := embed.NewChunkEmbedder(embedder, embed.ChunkEmbedderOptions{
		BatchSize:        cfg.Embeddings.BatchSize,
		EnableMiniChunks: cfg.Embeddings.MiniChunks,
	})

	pipe, err := pipeline.New(chunker, chunkEmbedder, index, index.Metadata(),
		pipeline.WithPoolSize(cfg.Indexing.Workers))
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	dynStore, err := dynconfig.NewFileStore(cfg.Paths.ConfigStoreDir)
	if err != nil {
		pipe.Release()
		_ = index.Close()
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}

	return &app{
		cfg:      cfg,
		index:    index,
		meta:     index.Metadata(),
		pipe:     pipe,
		dynStore: dynStore,
	}, nil
}

// Close releases the pipeline and the index.
func (a *app) Close() {
	a.pipe.Release()
	_ = a.index.Close()
}
