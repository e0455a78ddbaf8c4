// Package app assembles examgen components from a Config for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"examgen"
	"examgen/gemini"
	"examgen/qdrant"
	"examgen/redisstore"
)

// Needs says which collaborators a command uses. Credentials are only
// checked for what is needed.
type Needs struct {
	Completion bool
	Index      bool
	Store      bool
}

// App holds the opened backends. Close flushes the cache session and
// releases connections in reverse order of opening.
type App struct {
	Config    *examgen.Config
	Index     examgen.Index
	Completer examgen.Completer
	History   examgen.HistoryLog
	Cache     *examgen.CacheSession

	closers []func() error
}

// Open validates credentials for needs and opens the selected backends
func Open(ctx context.Context, cfg *examgen.Config, needs Needs) (*App, error) {
	if needs.Completion {
		if err := cfg.ValidateCompletion(); err != nil {
			return nil, err
		}
	}
	if needs.Index {
		if err := cfg.ValidateEmbedding(); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg}
	if needs.Completion {
		a.Completer = NewCompleter(cfg)
	}
	if needs.Index {
		if err := a.openIndex(); err != nil {
			a.closeAll()
			return nil, err
		}
	}
	if needs.Store {
		if err := a.openStore(ctx); err != nil {
			a.closeAll()
			return nil, err
		}
	}
	return a, nil
}

// NewCompleter returns the chat-completion provider selected by cfg
func NewCompleter(cfg *examgen.Config) examgen.Completer {
	p := cfg.Provider
	switch p.Type {
	case examgen.ProviderGemini:
		return gemini.New(p.APIKey, p.Model)
	default:
		return examgen.NewOpenAICompleter(p.APIKey, p.BaseURL, p.Model)
	}
}

// NewEmbedder returns the embedder configured by cfg
func NewEmbedder(cfg *examgen.Config) examgen.Embedder {
	e := cfg.Embedding
	return examgen.NewOpenAIEmbedder(cfg.EmbeddingAPIKey(), e.BaseURL, e.Model, e.Dimensions)
}

func (a *App) openIndex() error {
	cfg := a.Config
	embedder := NewEmbedder(cfg)

	switch cfg.Index.Backend {
	case examgen.IndexQdrant:
		ix, err := qdrant.New(cfg.Index.QdrantHost, cfg.Index.QdrantPort, cfg.Index.Collection, cfg.Embedding.Dimensions, embedder)
		if err != nil {
			return fmt.Errorf("%w: %w", examgen.ErrIndexUnavailable, err)
		}
		a.Index = ix
		a.closers = append(a.closers, ix.Close)
	default:
		bank, err := examgen.OpenBankDB(cfg.Index.Path, cfg.Index.Collection, embedder)
		if err != nil {
			return fmt.Errorf("%w: %w", examgen.ErrIndexUnavailable, err)
		}
		a.Index = bank
		a.closers = append(a.closers, bank.Close)
	}
	examgen.VerboseLog("Opened %s index, collection %s", cfg.Index.Backend, cfg.Index.Collection)
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config

	var store examgen.CacheStore
	switch cfg.Store.Backend {
	case examgen.StoreRedis:
		rs, err := redisstore.Dial(ctx, cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.Prefix)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
		a.History = rs
	default:
		store = examgen.NewFileCacheStore(cfg.Paths.CacheFile)
		a.History = examgen.NewFileHistory(cfg.Paths.HistoryFile)
	}

	session, err := examgen.OpenCacheSession(ctx, store)
	if err != nil {
		return err
	}
	a.Cache = session
	return nil
}

// Generator builds the orchestrator over the opened backends
func (a *App) Generator(template *examgen.PromptTemplate) *examgen.Generator {
	return examgen.NewGenerator(
		examgen.NewRetriever(a.Index),
		a.History,
		a.Cache,
		a.Completer,
		template,
		a.Config.GeneratorConfig(),
	)
}

// Comparer builds the pairwise evaluator over the opened backends
func (a *App) Comparer(generate, judge *examgen.PromptTemplate, topK int) *examgen.Comparer {
	cfg := examgen.DefaultCompareConfig()
	if topK > 0 {
		cfg.TopK = topK
	}
	cfg.LogDir = a.Config.Paths.LogDir
	return examgen.NewComparer(examgen.NewRetriever(a.Index), a.Completer, generate, judge, cfg)
}

// Close flushes pending cache inserts and closes every backend
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Cache != nil {
		if err := a.Cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
